// Package repository defines the persistence contract for crawl state.
//
// The crawl state store keeps the authoritative view in memory and writes
// every transition through to a Repository, so that a stopped crawl can be
// resumed and the final inventory can be exported after the queue drains.
//
// # Implementations
//
// The sqlite subpackage stores records in a single devices table using the
// pure-Go modernc.org/sqlite driver. The memory subpackage keeps them in a
// map and is used by tests and by runs that do not configure a database.
//
// # Ordering
//
// ListByStatus returns records ordered by their discovery sequence, which is
// the order resume re-enqueues them in.
package repository
