// Package service runs each order book on its own worker goroutine and
// ties it to the entry WAL, the exit outbox and snapshots.
//
// Every mutating call is journaled before the book sees it, and the book
// clock follows the journaled time, so replaying the WAL over the newest
// snapshot rebuilds the same books, ids included.
package service
