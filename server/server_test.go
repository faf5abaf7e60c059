package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilpost/veilpost/crypto"
	"github.com/veilpost/veilpost/merkle"
	"github.com/veilpost/veilpost/protocol"
	"github.com/veilpost/veilpost/services"
	"github.com/veilpost/veilpost/testutil"
)

// treeRoots accepts exactly the roots of the given trees.
type treeRoots []*merkle.Tree

func (r treeRoots) KnownRoot(root fr.Element) bool {
	for _, tree := range r {
		treeRoot := tree.Root()
		if root.Equal(&treeRoot) {
			return true
		}
	}
	return false
}

type intakeFixture struct {
	intake     *Intake
	hasher     crypto.Hasher
	cfg        *protocol.Config
	store      *services.MemoryReportStore
	identities []*crypto.Identity
	tree       *merkle.Tree
	recipient  []byte
	epoch      protocol.Epoch
}

func newIntakeFixture(t *testing.T) *intakeFixture {
	t.Helper()

	hasher := crypto.NewMiMCHasher()
	cfg := protocol.DefaultConfig()
	store := services.NewMemoryReportStore()
	identities, tree := testutil.NewGroup(t, hasher, 5)
	_, recipientKey := testutil.NewRecipientKeyPair(t)

	intake, err := NewIntake(cfg, protocol.NewHashVerifier(hasher, cfg),
		protocol.NewMemoryNullifierStore(), store, treeRoots{tree}, nil)
	require.NoError(t, err)

	// Pin the clock so epoch freshness is deterministic.
	now := time.Unix(19876*86400+3600, 0)
	intake.now = func() time.Time { return now }

	return &intakeFixture{
		intake:     intake,
		hasher:     hasher,
		cfg:        cfg,
		store:      store,
		identities: identities,
		tree:       tree,
		recipient:  recipientKey,
		epoch:      protocol.EpochAt(now, cfg.EpochDuration),
	}
}

func (f *intakeFixture) submission(t *testing.T, leafIndex int, epoch protocol.Epoch, payload []byte) *protocol.Submission {
	t.Helper()
	return testutil.BuildSubmission(t, f.hasher, f.cfg, f.identities[leafIndex], f.tree,
		leafIndex, epoch, f.recipient, payload)
}

func TestProcessAccepted(t *testing.T) {
	f := newIntakeFixture(t)

	stored, err := f.intake.Process(context.Background(), f.submission(t, 0, f.epoch, []byte("hello")))
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)
	assert.Equal(t, protocol.StatusPending, stored.Status)

	saved, err := f.store.GetReport(context.Background(), stored.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, saved.ID)
}

func TestProcessDuplicateNullifier(t *testing.T) {
	f := newIntakeFixture(t)

	_, err := f.intake.Process(context.Background(), f.submission(t, 1, f.epoch, []byte("first")))
	require.NoError(t, err)

	_, err = f.intake.Process(context.Background(), f.submission(t, 1, f.epoch, []byte("second")))
	assert.ErrorIs(t, err, protocol.ErrDuplicateNullifier)

	// A different member in the same epoch is unaffected.
	_, err = f.intake.Process(context.Background(), f.submission(t, 2, f.epoch, []byte("other")))
	assert.NoError(t, err)

	// The same member can submit again in the next epoch.
	_, err = f.intake.Process(context.Background(), f.submission(t, 1, f.epoch+1, []byte("later")))
	assert.Error(t, err, "next epoch is in the future relative to the pinned clock")
}

func TestProcessPreviousEpochAccepted(t *testing.T) {
	f := newIntakeFixture(t)

	_, err := f.intake.Process(context.Background(), f.submission(t, 0, f.epoch-1, []byte("late")))
	assert.NoError(t, err, "the immediately preceding window is still fresh")
}

func TestProcessStaleAndFutureEpochs(t *testing.T) {
	f := newIntakeFixture(t)

	_, err := f.intake.Process(context.Background(), f.submission(t, 0, f.epoch-2, []byte("stale")))
	assert.ErrorIs(t, err, ErrSubmissionRejected)

	_, err = f.intake.Process(context.Background(), f.submission(t, 0, f.epoch+1, []byte("future")))
	assert.ErrorIs(t, err, ErrSubmissionRejected)
}

func TestProcessUnknownRoot(t *testing.T) {
	f := newIntakeFixture(t)

	// A valid proof over a different tree must be rejected: the root is not
	// one the intake trusts.
	outsiders, otherTree := testutil.NewGroup(t, f.hasher, 3)
	sub := testutil.BuildSubmission(t, f.hasher, f.cfg, outsiders[0], otherTree, 0,
		f.epoch, f.recipient, []byte("hello"))

	_, err := f.intake.Process(context.Background(), sub)
	assert.ErrorIs(t, err, ErrSubmissionRejected)
}

func TestProcessTamperedProof(t *testing.T) {
	f := newIntakeFixture(t)

	sub := f.submission(t, 0, f.epoch, []byte("hello"))
	sub.Proof.PublicSignals[protocol.SignalNullifier] = "12345"

	_, err := f.intake.Process(context.Background(), sub)
	assert.ErrorIs(t, err, ErrSubmissionRejected)
	assert.NotErrorIs(t, err, protocol.ErrProofVerificationFailed,
		"the detailed cause must not surface")
}

func TestProcessMalformedSubmissions(t *testing.T) {
	f := newIntakeFixture(t)

	valid := f.submission(t, 0, f.epoch, []byte("hello"))

	cases := []struct {
		name string
		sub  *protocol.Submission
	}{
		{"nil submission", nil},
		{"missing proof", &protocol.Submission{EncryptedData: valid.EncryptedData}},
		{"missing envelope", &protocol.Submission{Proof: valid.Proof}},
		{"empty ciphertext", &protocol.Submission{
			Proof: valid.Proof,
			EncryptedData: &crypto.EncryptedEnvelope{
				EphemeralPublicKey: valid.EncryptedData.EphemeralPublicKey,
				IV:                 valid.EncryptedData.IV,
			},
		}},
		{"wrong nonce size", &protocol.Submission{
			Proof: valid.Proof,
			EncryptedData: &crypto.EncryptedEnvelope{
				Ciphertext:         valid.EncryptedData.Ciphertext,
				EphemeralPublicKey: valid.EncryptedData.EphemeralPublicKey,
				IV:                 []byte{1, 2, 3},
			},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.intake.Process(context.Background(), tc.sub)
			assert.ErrorIs(t, err, ErrSubmissionRejected)
		})
	}
}

func TestProcessPersistFailureRollsBack(t *testing.T) {
	f := newIntakeFixture(t)

	failing := &failingReportStore{fail: true}
	intake, err := NewIntake(f.cfg, protocol.NewHashVerifier(f.hasher, f.cfg),
		protocol.NewMemoryNullifierStore(), failing, treeRoots{f.tree}, nil)
	require.NoError(t, err)
	intake.now = f.intake.now

	sub := f.submission(t, 0, f.epoch, []byte("hello"))
	_, err = intake.Process(context.Background(), sub)
	assert.ErrorIs(t, err, ErrSubmissionRejected)

	// The nullifier was released, so the retry is not treated as a replay.
	failing.fail = false
	_, err = intake.Process(context.Background(), sub)
	assert.NoError(t, err)
}

func TestUpdateStatus(t *testing.T) {
	f := newIntakeFixture(t)

	stored, err := f.intake.Process(context.Background(), f.submission(t, 0, f.epoch, []byte("hello")))
	require.NoError(t, err)

	require.NoError(t, f.intake.UpdateStatus(context.Background(), stored.ID, protocol.StatusReviewed))
	saved, err := f.store.GetReport(context.Background(), stored.ID)
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusReviewed, saved.Status)

	assert.Error(t, f.intake.UpdateStatus(context.Background(), stored.ID, protocol.Status("bogus")))
	assert.ErrorIs(t, f.intake.UpdateStatus(context.Background(), "missing", protocol.StatusReviewed),
		services.ErrReportNotFound)
}

// failingReportStore fails saves on demand; reads always miss.
type failingReportStore struct {
	fail  bool
	saved []*protocol.StoredReport
}

func (s *failingReportStore) SaveReport(ctx context.Context, report *protocol.StoredReport) error {
	if s.fail {
		return errors.New("disk full")
	}
	s.saved = append(s.saved, report)
	return nil
}

func (s *failingReportStore) GetReport(ctx context.Context, id string) (*protocol.StoredReport, error) {
	return nil, services.ErrReportNotFound
}

func (s *failingReportStore) ListReports(ctx context.Context) ([]*protocol.StoredReport, error) {
	return s.saved, nil
}

func (s *failingReportStore) UpdateStatus(ctx context.Context, id string, status protocol.Status) error {
	return services.ErrReportNotFound
}
