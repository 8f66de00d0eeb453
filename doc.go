// Package draftstore is the editing-session persistence and undo/redo
// engine behind a chord-annotated song sheet editor.
//
// # Sessions
//
// A [Session] owns everything one open document needs: the command log that
// drives undo and redo, the autosave scheduler, and the draft checkpoints it
// writes through two storage tiers. Construct one per open document with
// [Open] and always [Session.Close] it; closing flushes a final save so a
// clean shutdown never loses data.
//
// # Tiers
//
// Drafts are written to a volatile tier (in-process, cleared when the
// process ends, see [github.com/chordpad/draftstore/tier/memtier]) on every
// debounced save, and to a durable tier (installation-wide, survives
// restarts, see [github.com/chordpad/draftstore/tier/sqlitetier]) at a
// throttled cadence. Both tiers are quota-constrained; the engine evicts
// least-recently-used drafts of other documents when a write does not fit.
//
// # Remote sync
//
// When the document has a server identity, the engine additionally pushes
// content to the document service through a [remote.Pusher]. Remote success
// and failure are reported separately from local durability and never block
// or fail a local save.
//
// # Concurrency
//
// All save scheduling runs on one background goroutine per session; saves
// for a document are strictly ordered and never overlap. Two sessions
// editing the same document are resolved last-writer-wins, both in the
// tiers and at the document service. There is no cross-session merging.
package draftstore
