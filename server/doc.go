// Package server implements the intake side of the submission protocol: it
// verifies proof envelopes, enforces epoch freshness and the one-submission-
// per-epoch rule through the nullifier store, and persists accepted records.
//
// The intake deliberately reports most failures generically. Only the
// duplicate-nullifier rejection is surfaced verbatim, because it is the
// designed rate-limit signal rather than a security leak; everything else a
// submitter sees is a generic "submission failed" while full detail goes to
// the server log.
package server
