// Package store declares the listing persistence capability. Implementations
// live under internal/storage; this package must not import database
// drivers or concrete clients.
package store
