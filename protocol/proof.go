package protocol

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/veilpost/veilpost/crypto"
	"github.com/veilpost/veilpost/merkle"
)

var (
	// ErrProofGenerationFailed indicates the prover could not produce an
	// envelope for the given witness.
	ErrProofGenerationFailed = errors.New("protocol: proof generation failed")

	// ErrProofVerificationFailed indicates a proof envelope was rejected:
	// malformed structure, bad tags, bad signals, or a failed proof check.
	ErrProofVerificationFailed = errors.New("protocol: proof verification failed")
)

// Public signal positions. The order is fixed wire format; verifiers consume
// signals by position.
const (
	SignalRoot = iota
	SignalEpoch
	SignalNullifier
	SignalHash
	signalCount
)

// proofScalarHexLen is the length of a hex-encoded proof scalar (32 bytes).
const proofScalarHexLen = 2 * fr.Bytes

// ProofEnvelope packages a membership proof's public signals with the proof
// blob in the groth16/bn254 wire shape:
//
//	{ pi_a: [hex,hex], pi_b: [[hex,hex],[hex,hex]], pi_c: [hex,hex],
//	  protocol: "groth16", curve: "bn254",
//	  publicSignals: [root, epoch, nullifier, signalHash] }
//
// Public signals are decimal field-element strings; proof elements are
// fixed-length hex scalars.
type ProofEnvelope struct {
	PiA           []string   `json:"pi_a"`
	PiB           [][]string `json:"pi_b"`
	PiC           []string   `json:"pi_c"`
	Protocol      string     `json:"protocol"`
	Curve         string     `json:"curve"`
	PublicSignals []string   `json:"publicSignals"`
}

// Root returns the Merkle root signal, if well-formed.
func (e *ProofEnvelope) Root() (fr.Element, error) {
	if len(e.PublicSignals) != signalCount {
		return fr.Element{}, ErrProofVerificationFailed
	}
	return crypto.FieldElementFromString(e.PublicSignals[SignalRoot])
}

// Epoch returns the epoch signal, if well-formed.
func (e *ProofEnvelope) Epoch() (Epoch, error) {
	if len(e.PublicSignals) != signalCount {
		return 0, ErrProofVerificationFailed
	}
	return ParseEpoch(e.PublicSignals[SignalEpoch])
}

// Nullifier returns the nullifier signal, if well-formed.
func (e *ProofEnvelope) Nullifier() (fr.Element, error) {
	if len(e.PublicSignals) != signalCount {
		return fr.Element{}, ErrProofVerificationFailed
	}
	return crypto.FieldElementFromString(e.PublicSignals[SignalNullifier])
}

// Prover produces proof envelopes from a membership witness. The reference
// implementation is HashProver; a production deployment substitutes a real
// SNARK prover behind the same signature without changing callers.
type Prover interface {
	Prove(membership *merkle.Proof, epoch Epoch, nullifier, signalHash fr.Element) (*ProofEnvelope, error)
}

// Verifier checks proof envelopes. A nil return means the envelope is valid;
// any rejection wraps ErrProofVerificationFailed. Verification never panics
// on malformed input.
type Verifier interface {
	Verify(env *ProofEnvelope) error
}

// HashProver is the deterministic stand-in proving backend: the proof blob
// is a hash transcript over the public signals, not a pairing-based proof.
// It preserves the exact envelope shape and verification flow a real
// Groth16 backend would use.
type HashProver struct {
	hasher   crypto.Hasher
	protocol string
	curve    string
}

// NewHashProver creates the stand-in prover with the config's envelope tags.
func NewHashProver(h crypto.Hasher, cfg *Config) *HashProver {
	return &HashProver{hasher: h, protocol: cfg.ProofProtocol, curve: cfg.ProofCurve}
}

// Prove builds the envelope for the witness. The membership proof
// contributes its root as the first public signal; the proof elements are
// derived from the transcript hash chain.
func (p *HashProver) Prove(membership *merkle.Proof, epoch Epoch, nullifier, signalHash fr.Element) (*ProofEnvelope, error) {
	if membership == nil {
		return nil, fmt.Errorf("%w: missing membership proof", ErrProofGenerationFailed)
	}
	if epoch < 0 {
		return nil, fmt.Errorf("%w: negative epoch", ErrProofGenerationFailed)
	}

	elements, err := proofElements(p.hasher, membership.Root, epoch, nullifier, signalHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProofGenerationFailed, err)
	}

	return &ProofEnvelope{
		PiA:      []string{elements[1], elements[2]},
		PiB:      [][]string{{elements[3], elements[4]}, {elements[5], elements[6]}},
		PiC:      []string{elements[0], elements[7]},
		Protocol: p.protocol,
		Curve:    p.curve,
		PublicSignals: []string{
			membership.Root.String(),
			epoch.String(),
			nullifier.String(),
			signalHash.String(),
		},
	}, nil
}

// HashVerifier is the stand-in verifying backend matching HashProver.
type HashVerifier struct {
	hasher   crypto.Hasher
	protocol string
	curve    string
}

// NewHashVerifier creates the stand-in verifier with the config's envelope tags.
func NewHashVerifier(h crypto.Hasher, cfg *Config) *HashVerifier {
	return &HashVerifier{hasher: h, protocol: cfg.ProofProtocol, curve: cfg.ProofCurve}
}

// Verify checks the envelope in four stages: structural shape, proof element
// encoding, public signal sanity, then the proof relation. A production
// backend replaces only the last stage with a pairing check.
func (v *HashVerifier) Verify(env *ProofEnvelope) error {
	// Stage 1: structural shape and tags.
	if env == nil {
		return fmt.Errorf("%w: nil envelope", ErrProofVerificationFailed)
	}
	if len(env.PiA) != 2 || len(env.PiC) != 2 {
		return fmt.Errorf("%w: pi_a/pi_c shape", ErrProofVerificationFailed)
	}
	if len(env.PiB) != 2 || len(env.PiB[0]) != 2 || len(env.PiB[1]) != 2 {
		return fmt.Errorf("%w: pi_b shape", ErrProofVerificationFailed)
	}
	if len(env.PublicSignals) != signalCount {
		return fmt.Errorf("%w: expected %d public signals, got %d", ErrProofVerificationFailed, signalCount, len(env.PublicSignals))
	}
	if env.Protocol != v.protocol {
		return fmt.Errorf("%w: protocol tag %q", ErrProofVerificationFailed, env.Protocol)
	}
	if env.Curve != v.curve {
		return fmt.Errorf("%w: curve tag %q", ErrProofVerificationFailed, env.Curve)
	}

	// Stage 2: every proof element is a fixed-length hex scalar.
	for _, scalar := range proofScalars(env) {
		if len(scalar) != proofScalarHexLen {
			return fmt.Errorf("%w: proof element length %d", ErrProofVerificationFailed, len(scalar))
		}
		if _, err := hex.DecodeString(scalar); err != nil {
			return fmt.Errorf("%w: proof element encoding", ErrProofVerificationFailed)
		}
	}

	// Stage 3: public signal sanity.
	root, err := env.Root()
	if err != nil || env.PublicSignals[SignalRoot] == "" {
		return fmt.Errorf("%w: root signal", ErrProofVerificationFailed)
	}
	epoch, err := env.Epoch()
	if err != nil {
		return fmt.Errorf("%w: epoch signal", ErrProofVerificationFailed)
	}
	nullifier, err := env.Nullifier()
	if err != nil || env.PublicSignals[SignalNullifier] == "" {
		return fmt.Errorf("%w: nullifier signal", ErrProofVerificationFailed)
	}
	signalHash, err := crypto.FieldElementFromString(env.PublicSignals[SignalHash])
	if err != nil {
		return fmt.Errorf("%w: signal hash", ErrProofVerificationFailed)
	}

	// Stage 4: the proof relation. Recompute the transcript chain from the
	// public signals and compare against the claimed elements.
	elements, err := proofElements(v.hasher, root, epoch, nullifier, signalHash)
	if err != nil {
		return fmt.Errorf("%w: transcript", ErrProofVerificationFailed)
	}
	expected := []string{
		elements[1], elements[2],
		elements[3], elements[4], elements[5], elements[6],
		elements[0], elements[7],
	}
	for i, scalar := range proofScalars(env) {
		if scalar != expected[i] {
			return fmt.Errorf("%w: proof relation", ErrProofVerificationFailed)
		}
	}

	return nil
}

// proofScalars flattens the eight proof elements in wire order.
func proofScalars(env *ProofEnvelope) []string {
	return []string{
		env.PiA[0], env.PiA[1],
		env.PiB[0][0], env.PiB[0][1], env.PiB[1][0], env.PiB[1][1],
		env.PiC[0], env.PiC[1],
	}
}

// proofElements derives the eight-element transcript chain from the public
// signals: e0 = H(root, epoch, nullifier, signalHash), e_{i+1} = H(e_i).
func proofElements(h crypto.Hasher, root fr.Element, epoch Epoch, nullifier, signalHash fr.Element) ([8]string, error) {
	var out [8]string

	var epochEl fr.Element
	epochEl.SetInt64(int64(epoch))

	transcript, err := h.Hash(root, epochEl, nullifier, signalHash)
	if err != nil {
		return out, err
	}

	link := transcript
	for i := range out {
		b := link.Bytes()
		out[i] = hex.EncodeToString(b[:])
		if link, err = h.Hash(link); err != nil {
			return out, err
		}
	}
	return out, nil
}
