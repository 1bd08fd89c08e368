// Package events is the structured-logging backbone for the verify
// pipeline: every stage (claimed, on-chain checked, built, verified,
// failed, demoted) emits through an Emitter, so the backend can be
// swapped without touching the scheduler. Store, probe and cleanup errors
// that do not change a job's stage are written with the standard log
// package instead.
package events

// Event is one point-in-time occurrence in a verification job's life.
type Event struct {
	// VerificationID identifies the job this event belongs to. Empty for
	// scheduler-level events not tied to a single job.
	VerificationID string

	// Stage names where in the pipeline this happened, e.g. "claimed",
	// "on_chain_checked", "built", "verified", "failed", "demoted".
	Stage string

	// Msg is a short human-readable description.
	Msg string

	// Meta carries stage-specific structured data: duration_ms, code_id,
	// network, error, exit_code, and similar.
	Meta map[string]any
}
