package protocol

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/veilpost/veilpost/crypto"
)

// ErrDuplicateNullifier is the designed rate-limit signal: the identity has
// already submitted in this epoch. Unlike other rejection reasons it is safe
// to surface verbatim to the submitter.
var ErrDuplicateNullifier = errors.New("protocol: nullifier already used for epoch")

// DeriveNullifier computes the per-epoch pseudonymous tag H(secret, epoch).
// The same identity in the same epoch always produces the same nullifier,
// which is what makes duplicate detection possible without identifying the
// submitter.
func DeriveNullifier(h crypto.Hasher, secret fr.Element, epoch Epoch) (fr.Element, error) {
	var epochEl fr.Element
	epochEl.SetInt64(int64(epoch))
	nullifier, err := h.Hash(secret, epochEl)
	if err != nil {
		return fr.Element{}, fmt.Errorf("derive nullifier: %w", err)
	}
	return nullifier, nil
}

// NullifierStore tracks used nullifiers per epoch. It is the one place in
// the protocol where concurrency control is load-bearing: RegisterIfUnused
// must be linearizable per (epoch, nullifier) key.
type NullifierStore interface {
	// RegisterIfUnused atomically checks and registers the nullifier for the
	// epoch. Returns ErrDuplicateNullifier if it was already registered.
	// Two concurrent callers with the same key must not both succeed.
	RegisterIfUnused(ctx context.Context, epoch Epoch, nullifier fr.Element) error

	// Release removes a registration. Used by the submission pipeline to
	// roll back when the record could not be persisted, so a cancelled
	// submission does not silently consume the identity's window.
	Release(ctx context.Context, epoch Epoch, nullifier fr.Element) error

	// PruneBefore garbage-collects registrations for epochs older than the
	// given horizon.
	PruneBefore(ctx context.Context, epoch Epoch) error
}

// MemoryNullifierStore is a mutex-guarded in-process NullifierStore for
// tests and single-node deployments. For multi-node deployments use the
// Postgres-backed store, which enforces uniqueness at the database level.
type MemoryNullifierStore struct {
	mu   sync.Mutex
	used map[Epoch]map[string]struct{}
}

// NewMemoryNullifierStore creates an empty in-memory store.
func NewMemoryNullifierStore() *MemoryNullifierStore {
	return &MemoryNullifierStore{used: make(map[Epoch]map[string]struct{})}
}

// RegisterIfUnused performs the check-and-set under a single lock.
func (s *MemoryNullifierStore) RegisterIfUnused(ctx context.Context, epoch Epoch, nullifier fr.Element) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := nullifier.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	epochSet, ok := s.used[epoch]
	if !ok {
		epochSet = make(map[string]struct{})
		s.used[epoch] = epochSet
	}
	if _, exists := epochSet[key]; exists {
		return ErrDuplicateNullifier
	}
	epochSet[key] = struct{}{}
	return nil
}

// Release removes the registration if present.
func (s *MemoryNullifierStore) Release(ctx context.Context, epoch Epoch, nullifier fr.Element) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if epochSet, ok := s.used[epoch]; ok {
		delete(epochSet, nullifier.String())
	}
	return nil
}

// PruneBefore drops all epochs older than the horizon.
func (s *MemoryNullifierStore) PruneBefore(ctx context.Context, epoch Epoch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for e := range s.used {
		if e < epoch {
			delete(s.used, e)
		}
	}
	return nil
}
