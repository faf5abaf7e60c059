// Package protocol implements the anonymous submission protocol core:
// epoch windows, nullifier derivation and replay tracking, the proof
// envelope, and the submission record types shared by submitters and
// intake servers.
//
// A submission is accepted only if its nullifier is unused for the epoch,
// its proof envelope verifies, and its ciphertext envelope is well-formed.
// The nullifier store is the single shared mutable resource; everything
// else in the package is a pure function of its inputs.
package protocol
