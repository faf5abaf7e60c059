package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/google/uuid"

	"github.com/veilpost/veilpost/crypto"
	"github.com/veilpost/veilpost/protocol"
	"github.com/veilpost/veilpost/services"
)

// ErrSubmissionRejected is the generic rejection returned for every failure
// except a duplicate nullifier. Callers must not learn which validation step
// failed.
var ErrSubmissionRejected = errors.New("server: submission rejected")

// RootChecker answers whether a Merkle root belongs to the group the intake
// serves. The group registry implements it; tests substitute fakes.
type RootChecker interface {
	KnownRoot(root fr.Element) bool
}

// Intake validates and persists anonymous submissions.
type Intake struct {
	config     *protocol.Config
	verifier   protocol.Verifier
	nullifiers protocol.NullifierStore
	store      services.ReportStore
	roots      RootChecker
	log        *slog.Logger

	// now is the clock; tests override it.
	now func() time.Time
}

// NewIntake wires an intake from its collaborators. All dependencies are
// explicit; there is no process-wide state.
func NewIntake(cfg *protocol.Config, verifier protocol.Verifier, nullifiers protocol.NullifierStore,
	store services.ReportStore, roots RootChecker, log *slog.Logger) (*Intake, error) {

	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if verifier == nil {
		return nil, errors.New("verifier cannot be nil")
	}
	if nullifiers == nil {
		return nil, errors.New("nullifier store cannot be nil")
	}
	if store == nil {
		return nil, errors.New("report store cannot be nil")
	}
	if roots == nil {
		return nil, errors.New("root checker cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Intake{
		config:     cfg,
		verifier:   verifier,
		nullifiers: nullifiers,
		store:      store,
		roots:      roots,
		log:        log,
		now:        time.Now,
	}, nil
}

// Process validates a submission and persists it.
//
// The checks run in order: envelope well-formedness, proof verification,
// epoch freshness, root membership, then the atomic nullifier registration.
// If persisting the record fails after the nullifier was registered, the
// registration is rolled back so the submitter's window is not consumed by
// a failed submission.
func (in *Intake) Process(ctx context.Context, sub *protocol.Submission) (*protocol.StoredReport, error) {
	if sub == nil || sub.Proof == nil || sub.EncryptedData == nil {
		return nil, in.reject("incomplete submission", nil)
	}
	if len(sub.EncryptedData.Ciphertext) == 0 || len(sub.EncryptedData.EphemeralPublicKey) == 0 ||
		len(sub.EncryptedData.IV) != crypto.NonceSize {
		return nil, in.reject("malformed encrypted envelope", nil)
	}

	if err := in.verifier.Verify(sub.Proof); err != nil {
		return nil, in.reject("proof verification", err)
	}

	epoch, err := sub.Proof.Epoch()
	if err != nil {
		return nil, in.reject("epoch signal", err)
	}
	if err := protocol.ValidateFreshness(epoch, in.now(), in.config.EpochDuration); err != nil {
		return nil, in.reject("epoch freshness", err)
	}

	root, err := sub.Proof.Root()
	if err != nil {
		return nil, in.reject("root signal", err)
	}
	if !in.roots.KnownRoot(root) {
		return nil, in.reject("unknown membership root", nil)
	}

	nullifier, err := sub.Proof.Nullifier()
	if err != nil {
		return nil, in.reject("nullifier signal", err)
	}

	if err := in.nullifiers.RegisterIfUnused(ctx, epoch, nullifier); err != nil {
		if errors.Is(err, protocol.ErrDuplicateNullifier) {
			// The one rejection a submitter is allowed to understand.
			return nil, protocol.ErrDuplicateNullifier
		}
		return nil, in.reject("nullifier registration", err)
	}

	record := &protocol.SubmissionRecord{
		ID:            uuid.NewString(),
		EncryptedData: sub.EncryptedData,
		Proof:         sub.Proof,
		Timestamp:     in.now().UTC(),
		Status:        protocol.StatusPending,
	}

	stored, err := record.Stored()
	if err != nil {
		in.rollbackNullifier(epoch, nullifier)
		return nil, in.reject("record assembly", err)
	}

	if err := in.store.SaveReport(ctx, stored); err != nil {
		in.rollbackNullifier(epoch, nullifier)
		return nil, in.reject("persist record", err)
	}

	in.log.Info("submission accepted",
		"id", record.ID, "epoch", epoch.String())
	return stored, nil
}

// UpdateStatus applies a moderation status transition on behalf of the
// moderation collaborator. Fire-and-forget from the core's perspective.
func (in *Intake) UpdateStatus(ctx context.Context, id string, status protocol.Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}
	return in.store.UpdateStatus(ctx, id, status)
}

// reject logs the real failure server-side and returns the generic error.
func (in *Intake) reject(step string, err error) error {
	in.log.Warn("submission rejected", "step", step, "err", err)
	return ErrSubmissionRejected
}

// rollbackNullifier releases a registration after a downstream failure.
// Release uses a fresh context so a cancelled request still rolls back.
func (in *Intake) rollbackNullifier(epoch protocol.Epoch, nullifier fr.Element) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := in.nullifiers.Release(ctx, epoch, nullifier); err != nil {
		in.log.Error("nullifier rollback failed", "epoch", epoch.String(), "err", err)
	}
}
