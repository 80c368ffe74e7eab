// Package secrets detects and redacts credentials in session context.
//
// The fast path is a regexp scrubber applied to every context snapshot
// before it is persisted. The deep path is a gitleaks-backed detector used
// by audits to flag credentials that reached archived sessions; its
// findings carry rule IDs and short previews, never full matches.
package secrets
