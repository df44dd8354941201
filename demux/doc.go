// Package demux incrementally splits one multiplexed generation stream into
// per-task segments.
//
// A fixed task set is declared up front. Each task's output is bracketed in
// the stream by start and end boundary markers derived from its output key.
// Scan runs synchronously inside each content-delta handler and resolves a
// task the moment its complete segment appears in the buffer; Fallback runs
// once after the stream closes and applies staged, progressively looser
// matching to recover whatever the live scan missed.
//
// A task resolves at most once per session. Resolved content is handed to a
// Sink exactly once; the persistence layer's idempotence gate backs this up
// across rescans and the fallback pass.
package demux
