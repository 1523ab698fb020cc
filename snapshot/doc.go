// Package snapshot persists the resting state of every book so a restart
// only has to replay the intents journaled after it. Files are gob
// streams compressed with zstd, written to a temporary name and renamed
// into place.
package snapshot
