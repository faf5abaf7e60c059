// Package client implements the submitter-side pipeline: build the proof
// envelope, encrypt the payload for the designated recipient, atomically
// claim the epoch's nullifier, and emit the signed submission record.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/google/uuid"

	"github.com/veilpost/veilpost/crypto"
	"github.com/veilpost/veilpost/merkle"
	"github.com/veilpost/veilpost/protocol"
	"github.com/veilpost/veilpost/services"
)

// State tracks a submission through the pipeline. Terminal states are
// StateAccepted and StateRejected.
type State string

const (
	StateBuilding         State = "building"
	StateProofReady       State = "proof_ready"
	StateEncrypted        State = "encrypted"
	StateNullifierChecked State = "nullifier_checked"
	StateAccepted         State = "accepted"
	StateRejected         State = "rejected"
)

// ErrEncryptionFailed wraps codec failures at the pipeline boundary.
var ErrEncryptionFailed = errors.New("client: payload encryption failed")

// Request carries everything the pipeline needs for one submission. The
// identity's secret never leaves this process: only the derived nullifier
// and the proof envelope are emitted.
type Request struct {
	// Identity is the submitter's credential.
	Identity *crypto.Identity

	// Membership proves the identity's commitment is a leaf of the group
	// tree. Obtained from the group registry.
	Membership *merkle.Proof

	// Epoch is the submission window being claimed.
	Epoch protocol.Epoch

	// RecipientKey is the designated reader's serialized P-256 public key.
	RecipientKey []byte

	// Payload is the opaque report content. The codec treats it as bytes;
	// any JSON structure is the application's business.
	Payload []byte
}

// Receipt is returned for an accepted submission. Signed carries the record
// under the pipeline's Ed25519 key, so downstream consumers can check the
// record was emitted by this pipeline and not altered since.
type Receipt struct {
	Record    *protocol.SubmissionRecord
	Signed    *protocol.Signed[protocol.SubmissionRecord]
	Stored    *protocol.StoredReport
	Nullifier string
	State     State
}

// Submitter runs the pipeline. All collaborators are injected; there are no
// process-wide managers, which makes the pipeline trivially testable with
// fakes.
type Submitter struct {
	hasher     crypto.Hasher
	signingKey crypto.PrivateKey
	prover     protocol.Prover
	nullifiers protocol.NullifierStore
	store      services.ReportStore
	log        *slog.Logger

	now func() time.Time
}

// NewSubmitter wires a pipeline from its dependencies. The signing key is
// the Ed25519 key accepted records are signed under; it is unrelated to the
// anonymous identity secret.
func NewSubmitter(h crypto.Hasher, signingKey crypto.PrivateKey, prover protocol.Prover,
	nullifiers protocol.NullifierStore, store services.ReportStore, log *slog.Logger) (*Submitter, error) {

	if h == nil {
		return nil, errors.New("hasher cannot be nil")
	}
	if _, err := signingKey.PublicKey(); err != nil {
		return nil, fmt.Errorf("signing key: %w", err)
	}
	if prover == nil {
		return nil, errors.New("prover cannot be nil")
	}
	if nullifiers == nil {
		return nil, errors.New("nullifier store cannot be nil")
	}
	if store == nil {
		return nil, errors.New("report store cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Submitter{
		hasher:     h,
		signingKey: signingKey,
		prover:     prover,
		nullifiers: nullifiers,
		store:      store,
		log:        log,
		now:        time.Now,
	}, nil
}

// Submit runs one submission end to end:
//
//	Building -> ProofReady -> Encrypted -> NullifierChecked -> Accepted
//
// Every failure is terminal; the pipeline never retries on its own. The
// caller decides whether to retry with a new identity or epoch. Cancellation
// is honored at every stage before the nullifier is registered; once it is,
// either the record is persisted with it or the registration is rolled back.
func (s *Submitter) Submit(ctx context.Context, req *Request) (*Receipt, error) {
	state := StateBuilding
	if err := s.validate(req); err != nil {
		return s.rejected(state, err)
	}

	nullifier, err := protocol.DeriveNullifier(s.hasher, req.Identity.Secret(), req.Epoch)
	if err != nil {
		return s.rejected(state, fmt.Errorf("%w: %v", protocol.ErrProofGenerationFailed, err))
	}
	signalHash := crypto.HashToField(req.Payload)

	envelope, err := s.prover.Prove(req.Membership, req.Epoch, nullifier, signalHash)
	if err != nil {
		return s.rejected(state, err)
	}
	state = StateProofReady

	if err := ctx.Err(); err != nil {
		return s.rejected(state, err)
	}

	encrypted, err := crypto.EncryptTo(req.RecipientKey, req.Payload)
	if err != nil {
		if errors.Is(err, crypto.ErrInvalidRecipientKey) {
			return s.rejected(state, err)
		}
		return s.rejected(state, fmt.Errorf("%w: %v", ErrEncryptionFailed, err))
	}
	state = StateEncrypted

	if err := ctx.Err(); err != nil {
		return s.rejected(state, err)
	}

	if err := s.nullifiers.RegisterIfUnused(ctx, req.Epoch, nullifier); err != nil {
		return s.rejected(state, err)
	}
	state = StateNullifierChecked

	record := &protocol.SubmissionRecord{
		ID:            uuid.NewString(),
		EncryptedData: encrypted,
		Proof:         envelope,
		Timestamp:     s.now().UTC(),
		Status:        protocol.StatusPending,
	}

	signedRecord, err := protocol.NewSigned(s.signingKey, record)
	if err != nil {
		s.release(req.Epoch, nullifier)
		return s.rejected(state, fmt.Errorf("sign record: %w", err))
	}

	stored, err := record.Stored()
	if err == nil {
		err = s.store.SaveReport(ctx, stored)
	}
	if err != nil {
		// The nullifier is registered but no record exists; release it so
		// the identity's window is not silently consumed.
		s.release(req.Epoch, nullifier)
		return s.rejected(state, fmt.Errorf("persist record: %w", err))
	}

	s.log.Info("submission accepted", "id", record.ID, "epoch", req.Epoch.String())
	return &Receipt{
		Record:    record,
		Signed:    signedRecord,
		Stored:    stored,
		Nullifier: nullifier.String(),
		State:     StateAccepted,
	}, nil
}

func (s *Submitter) validate(req *Request) error {
	if req == nil {
		return errors.New("request cannot be nil")
	}
	if req.Identity == nil {
		return errors.New("identity cannot be nil")
	}
	if req.Membership == nil {
		return errors.New("membership proof cannot be nil")
	}
	if req.Epoch < 0 {
		return protocol.ErrInvalidEpoch
	}
	if len(req.Payload) == 0 {
		return errors.New("payload cannot be empty")
	}
	return nil
}

// rejected logs the terminal state and passes the reason through.
// ErrDuplicateNullifier is meaningful to the caller; everything else is for
// the caller's own logging, not end-user display.
func (s *Submitter) rejected(state State, err error) (*Receipt, error) {
	s.log.Warn("submission rejected", "state", string(state), "err", err)
	return &Receipt{State: StateRejected}, err
}

// release rolls back a nullifier registration on a fresh context so a
// cancelled request still cleans up.
func (s *Submitter) release(epoch protocol.Epoch, nullifier fr.Element) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.nullifiers.Release(ctx, epoch, nullifier); err != nil {
		s.log.Error("nullifier rollback failed", "epoch", epoch.String(), "err", err)
	}
}
