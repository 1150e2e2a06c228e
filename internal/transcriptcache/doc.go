// Package transcriptcache stores per-part transcription output in SQLite so
// re-running a long video skips parts that were already transcribed.
//
// Entries are keyed by the source file's path, size and modification time,
// the part's offset and duration, and the requested model and language. Any
// change to the source invalidates its entries implicitly.
package transcriptcache
