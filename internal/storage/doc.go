// Package storage is the sqlite persistence layer.
//
// It backs every collaborator interface the core evaluators depend on: the
// recipient directory, the principal store, the channel requirement store
// and the broadcast job ledger, plus the content catalog and its view
// statistics.
package storage
