// Package extract turns fetched listing pages into crawler records.
//
// JSONExtractor reads search API responses shaped {"data":{"ads":[...]}}.
// HTMLExtractor reads listing cards rendered as div containers carrying a
// code attribute, using goquery selectors built with ComposeClassName.
// LinkExtractor lists the anchors of a document for category discovery.
package extract
