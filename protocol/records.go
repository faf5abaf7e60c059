package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/veilpost/veilpost/crypto"
)

// Status is the moderation state of a submission record. The protocol core
// creates records as Pending; status transitions are applied on behalf of an
// external moderation collaborator and never read back.
type Status string

const (
	StatusPending  Status = "pending"
	StatusReviewed Status = "reviewed"
	StatusArchived Status = "archived"
)

// Valid returns true if the status is recognized.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusReviewed, StatusArchived:
		return true
	}
	return false
}

// Submission is the wire shape of an incoming report: the encrypted payload
// plus the proof envelope authorizing it.
type Submission struct {
	EncryptedData *crypto.EncryptedEnvelope `json:"encryptedData"`
	Proof         *ProofEnvelope            `json:"proof"`
}

// SubmissionRecord is the output of an accepted submission: the encrypted
// payload and the proof that authorized it. After creation the core never
// mutates a record except for status transitions it is told to apply.
type SubmissionRecord struct {
	ID            string                    `json:"id"`
	EncryptedData *crypto.EncryptedEnvelope `json:"encryptedData"`
	Proof         *ProofEnvelope            `json:"proof"`
	Timestamp     time.Time                 `json:"timestamp"`
	Status        Status                    `json:"status"`
}

// StoredReport is the persisted shape consumed by the report CRUD API: the
// encrypted envelope is stringified and only the proof's public signals are
// kept.
type StoredReport struct {
	ID                 string    `json:"id"`
	EncryptedData      string    `json:"encryptedData"`
	ProofPublicSignals []string  `json:"proofPublicSignals"`
	Timestamp          time.Time `json:"timestamp"`
	Status             Status    `json:"status"`
}

// Stored converts the record to its persisted shape.
func (r *SubmissionRecord) Stored() (*StoredReport, error) {
	if r.EncryptedData == nil || r.Proof == nil {
		return nil, fmt.Errorf("record %s is incomplete", r.ID)
	}

	envJSON, err := json.Marshal(r.EncryptedData)
	if err != nil {
		return nil, fmt.Errorf("marshal encrypted envelope: %w", err)
	}

	signals := make([]string, len(r.Proof.PublicSignals))
	copy(signals, r.Proof.PublicSignals)

	return &StoredReport{
		ID:                 r.ID,
		EncryptedData:      string(envJSON),
		ProofPublicSignals: signals,
		Timestamp:          r.Timestamp,
		Status:             r.Status,
	}, nil
}

// Envelope parses the stringified encrypted envelope back out of a stored
// report, for the designated recipient to decrypt.
func (r *StoredReport) Envelope() (*crypto.EncryptedEnvelope, error) {
	var env crypto.EncryptedEnvelope
	if err := json.Unmarshal([]byte(r.EncryptedData), &env); err != nil {
		return nil, fmt.Errorf("unmarshal encrypted envelope: %w", err)
	}
	return &env, nil
}
