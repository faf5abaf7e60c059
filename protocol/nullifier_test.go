package protocol

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/veilpost/veilpost/crypto"
)

func TestDeriveNullifierDeterministic(t *testing.T) {
	hasher := crypto.NewMiMCHasher()

	identity, err := crypto.GenerateIdentity(hasher)
	require.NoError(t, err)
	secret := identity.Secret()

	a, err := DeriveNullifier(hasher, secret, Epoch(19876))
	require.NoError(t, err)
	b, err := DeriveNullifier(hasher, secret, Epoch(19876))
	require.NoError(t, err)
	assert.True(t, a.Equal(&b), "same identity and epoch must give the same nullifier")

	next, err := DeriveNullifier(hasher, secret, Epoch(19877))
	require.NoError(t, err)
	assert.False(t, a.Equal(&next), "nullifier must change across epochs")

	other, err := crypto.GenerateIdentity(hasher)
	require.NoError(t, err)
	otherSecret := other.Secret()
	c, err := DeriveNullifier(hasher, otherSecret, Epoch(19876))
	require.NoError(t, err)
	assert.False(t, a.Equal(&c), "nullifier must differ across identities")
}

func TestMemoryStoreRegisterIfUnused(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryNullifierStore()

	nullifier, err := crypto.RandomFieldElement()
	require.NoError(t, err)

	require.NoError(t, store.RegisterIfUnused(ctx, Epoch(10), nullifier))
	assert.ErrorIs(t, store.RegisterIfUnused(ctx, Epoch(10), nullifier), ErrDuplicateNullifier)

	// The same tag in a different epoch is independent.
	require.NoError(t, store.RegisterIfUnused(ctx, Epoch(11), nullifier))
}

func TestMemoryStoreConcurrentRegister(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryNullifierStore()

	nullifier, err := crypto.RandomFieldElement()
	require.NoError(t, err)

	const workers = 32
	var (
		wg         sync.WaitGroup
		successes  atomic.Int64
		duplicates atomic.Int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch err := store.RegisterIfUnused(ctx, Epoch(10), nullifier); {
			case err == nil:
				successes.Inc()
			case assert.ErrorIs(t, err, ErrDuplicateNullifier):
				duplicates.Inc()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), successes.Load(), "exactly one registration must win")
	assert.Equal(t, int64(workers-1), duplicates.Load())
}

func TestMemoryStoreRelease(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryNullifierStore()

	nullifier, err := crypto.RandomFieldElement()
	require.NoError(t, err)

	require.NoError(t, store.RegisterIfUnused(ctx, Epoch(10), nullifier))
	require.NoError(t, store.Release(ctx, Epoch(10), nullifier))

	// Released tags can be registered again.
	assert.NoError(t, store.RegisterIfUnused(ctx, Epoch(10), nullifier))

	// Releasing an unknown tag is a no-op.
	assert.NoError(t, store.Release(ctx, Epoch(99), nullifier))
}

func TestMemoryStorePruneBefore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryNullifierStore()

	nullifier, err := crypto.RandomFieldElement()
	require.NoError(t, err)

	for _, e := range []Epoch{8, 9, 10} {
		require.NoError(t, store.RegisterIfUnused(ctx, e, nullifier))
	}
	require.NoError(t, store.PruneBefore(ctx, Epoch(10)))

	// Pruned epochs accept registrations again; the retained one still dedups.
	assert.NoError(t, store.RegisterIfUnused(ctx, Epoch(9), nullifier))
	assert.ErrorIs(t, store.RegisterIfUnused(ctx, Epoch(10), nullifier), ErrDuplicateNullifier)
}

func TestMemoryStoreHonorsContext(t *testing.T) {
	store := NewMemoryNullifierStore()

	nullifier, err := crypto.RandomFieldElement()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, store.RegisterIfUnused(ctx, Epoch(10), nullifier), context.Canceled)
	assert.ErrorIs(t, store.Release(ctx, Epoch(10), nullifier), context.Canceled)
	assert.ErrorIs(t, store.PruneBefore(ctx, Epoch(10)), context.Canceled)
}
