// Package services provides the collaborators around the submission core:
// the group registry that owns the membership Merkle tree, report record
// stores (in-memory and Postgres), and the Postgres-backed nullifier store
// used by multi-node deployments.
package services
