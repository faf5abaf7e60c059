// Command submit delivers an anonymous, end-to-end encrypted report to a
// veilpost server.
//
// The flow mirrors the submission protocol end to end: generate (or restore)
// an identity, join the group, fetch a membership proof, derive the epoch
// nullifier, build the proof envelope, encrypt the payload to the recipient
// key, and POST the submission.
//
// # Usage
//
//	go run ./cmd/submit --server=http://localhost:8080 --message="..."
//
// A repeated run with the same --secret in the same epoch is rejected by the
// server as a duplicate: one report per identity per window.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/veilpost/veilpost/cmd/common"
	"github.com/veilpost/veilpost/crypto"
	"github.com/veilpost/veilpost/merkle"
	"github.com/veilpost/veilpost/protocol"
	"github.com/veilpost/veilpost/services"
)

func main() {
	var (
		serverURL       = flag.String("server", "http://localhost:8080", "veilpost server URL")
		message         = flag.String("message", "", "report content to submit")
		secretHex       = flag.String("secret", "", "identity secret (hex, generates if empty)")
		signingKeyHex   = flag.String("signing-key", "", "hex Ed25519 signing key for registry requests (generates if empty)")
		recipientKeyHex = flag.String("recipient-key", "", "hex recipient public key (fetched from server if empty)")
		configPath      = flag.String("config", "", "protocol config YAML (defaults if empty)")
	)
	flag.Parse()

	if *message == "" {
		fmt.Println("Error: --message is required")
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Config error: %v\n", err)
		os.Exit(1)
	}

	hasher := crypto.NewMiMCHasher()

	identity, err := loadOrGenerateIdentity(hasher, *secretHex)
	if err != nil {
		fmt.Printf("Identity error: %v\n", err)
		os.Exit(1)
	}
	commitment := identity.Commitment()
	fmt.Printf("Identity commitment: %s\n", commitment.String())

	signingKey, err := common.LoadOrGenerateSigningKey(*signingKeyHex)
	if err != nil {
		fmt.Printf("Signing key error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	svc := services.NewHTTPClient(*serverURL)

	recipientKey, err := resolveRecipientKey(ctx, *serverURL, *recipientKeyHex)
	if err != nil {
		fmt.Printf("Recipient key error: %v\n", err)
		os.Exit(1)
	}

	if _, err := svc.JoinGroup(ctx, signingKey, identity.Commitment()); err != nil {
		// Re-joining with a known commitment conflicts; the proof fetch
		// below settles whether we are actually a member.
		log.Warn("join group", "err", err)
	}

	membership, err := svc.ProveMembership(ctx, identity.Commitment())
	if err != nil {
		fmt.Printf("Membership proof error: %v\n", err)
		os.Exit(1)
	}

	epoch := protocol.CurrentEpoch(cfg.EpochDuration)
	submission, err := buildSubmission(hasher, cfg, identity, membership, epoch, recipientKey, []byte(*message))
	if err != nil {
		fmt.Printf("Build submission error: %v\n", err)
		os.Exit(1)
	}

	id, err := svc.SubmitReport(ctx, submission)
	if errors.Is(err, protocol.ErrDuplicateNullifier) {
		fmt.Println("Already submitted this epoch; wait for the next window.")
		os.Exit(1)
	}
	if err != nil {
		fmt.Printf("Submission failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Report accepted: %s (epoch %s)\n", id, epoch.String())
}

func loadOrGenerateIdentity(h crypto.Hasher, secretHex string) (*crypto.Identity, error) {
	if secretHex == "" {
		return crypto.GenerateIdentity(h)
	}
	secretBytes, err := hex.DecodeString(secretHex)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return crypto.NewIdentityFromSecret(h, crypto.FieldElementFromBytes(secretBytes))
}

func resolveRecipientKey(ctx context.Context, serverURL, hexKey string) ([]byte, error) {
	if hexKey != "" {
		return common.ParseRecipientPublicKey(hexKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverURL+"/api/v1/recipient-key", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	var body struct {
		RecipientKey string `json:"recipientKey"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return common.ParseRecipientPublicKey(body.RecipientKey)
}

// buildSubmission runs the client side of the protocol: nullifier, proof
// envelope, encrypted payload.
func buildSubmission(h crypto.Hasher, cfg *protocol.Config, identity *crypto.Identity,
	membership *merkle.Proof, epoch protocol.Epoch, recipientKey, payload []byte) (*protocol.Submission, error) {

	nullifier, err := protocol.DeriveNullifier(h, identity.Secret(), epoch)
	if err != nil {
		return nil, err
	}

	prover := protocol.NewHashProver(h, cfg)
	envelope, err := prover.Prove(membership, epoch, nullifier, crypto.HashToField(payload))
	if err != nil {
		return nil, err
	}

	encrypted, err := crypto.EncryptTo(recipientKey, payload)
	if err != nil {
		return nil, err
	}

	return &protocol.Submission{EncryptedData: encrypted, Proof: envelope}, nil
}
