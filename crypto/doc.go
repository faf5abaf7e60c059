// Package crypto provides cryptographic primitives for anonymous report submission.
//
// This package implements the core cryptographic operations required by the
// submission protocol, including:
//
//   - Field arithmetic over the BN254 scalar field (commitments, nullifiers,
//     Merkle tree nodes are all field elements)
//   - A ZK-friendly hash primitive (MiMC) behind a small Hasher interface so
//     that a Poseidon or Rescue permutation can be substituted without
//     touching callers
//   - Identity generation: a secret scalar and its one-way commitment
//   - Hybrid ECIES encryption (ephemeral P-256 ECDH + AES-256-GCM) for
//     end-to-end encrypted report payloads
//   - Digital signatures (Ed25519) for authenticating protocol messages
//
// The crypto package provides low-level primitives that are used by higher-level
// protocol implementations.
// Note: not all operations are constant-time (in particular hashing to the field).
//
// # Key Management
//
// The package provides Ed25519 for signing operations and P-256 ECDH for the
// hybrid encryption codec. All keys include helper methods for serialization
// and comparison.
package crypto
