// Package crawler holds the listing crawl engine: the domain types, the
// error taxonomy, the pagination state machine, category fan-out and the
// run orchestrator.
//
// A run walks numbered pages of one source (JSON mode) or of every category
// linked from a root page (HTML mode). A source stops when a page yields no
// records or repeats the previous page, when a fetch fails, or when the page
// ceiling is reached. Records are handed to a Persister page by page, so an
// interrupted run keeps everything stored before the interruption.
package crawler
