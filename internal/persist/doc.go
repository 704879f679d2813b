// Package persist turns extracted records into stored listings.
//
// The Gateway writes each record in its own transaction through a
// store.ListingStore, so a rejected record never affects its siblings. A
// duplicate natural key is reported as RejectDuplicate and is not an
// operational error. Successful writes may be announced on a Publisher.
package persist
