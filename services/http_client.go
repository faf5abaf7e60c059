package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/veilpost/veilpost/crypto"
	"github.com/veilpost/veilpost/merkle"
	"github.com/veilpost/veilpost/protocol"
)

// HTTPClient talks to a remote group registry and intake server. It is the
// submitter-side counterpart of the HTTP APIs in this package and package
// server.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates a client for the service at baseURL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// JoinGroup registers the identity commitment with the group registry and
// returns the assigned leaf index. The request is signed with the caller's
// Ed25519 key; the registry refuses unsigned or tampered requests.
func (c *HTTPClient) JoinGroup(ctx context.Context, signingKey crypto.PrivateKey, commitment fr.Element) (int, error) {
	signed, err := protocol.NewSigned(signingKey, &GroupMemberRequest{Commitment: commitment.String()})
	if err != nil {
		return 0, fmt.Errorf("sign join request: %w", err)
	}

	body, err := json.Marshal(signed)
	if err != nil {
		return 0, err
	}

	resp, err := c.post(ctx, "/group/members", body)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("group registry returned status %d", resp.StatusCode)
	}

	member, err := protocol.DecodeMessage[GroupMemberResponse](resp.Body)
	if err != nil {
		return 0, fmt.Errorf("decode member response: %w", err)
	}
	return member.Index, nil
}

// CurrentMerkleRoot fetches the group's current membership root.
func (c *HTTPClient) CurrentMerkleRoot(ctx context.Context) (fr.Element, error) {
	resp, err := c.get(ctx, "/group/root")
	if err != nil {
		return fr.Element{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fr.Element{}, fmt.Errorf("group registry returned status %d", resp.StatusCode)
	}

	root, err := protocol.DecodeMessage[GroupRootResponse](resp.Body)
	if err != nil {
		return fr.Element{}, fmt.Errorf("decode root response: %w", err)
	}
	return crypto.FieldElementFromString(root.Root)
}

// ProveMembership fetches an inclusion proof for the commitment.
func (c *HTTPClient) ProveMembership(ctx context.Context, commitment fr.Element) (*merkle.Proof, error) {
	resp, err := c.get(ctx, "/group/proof/"+commitment.String())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("group registry returned status %d", resp.StatusCode)
	}

	encoded, err := protocol.DecodeMessage[MembershipProofResponse](resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode proof response: %w", err)
	}
	return DecodeProof(encoded)
}

// SubmitReport delivers a submission to the intake server. The duplicate
// rejection is mapped back to protocol.ErrDuplicateNullifier so callers can
// distinguish the rate-limit signal from other failures.
func (c *HTTPClient) SubmitReport(ctx context.Context, sub *protocol.Submission) (string, error) {
	body, err := json.Marshal(sub)
	if err != nil {
		return "", err
	}

	resp, err := c.post(ctx, "/api/v1/reports", body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
	case http.StatusConflict:
		return "", protocol.ErrDuplicateNullifier
	default:
		return "", fmt.Errorf("intake returned status %d", resp.StatusCode)
	}

	var ack struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	return ack.ID, nil
}

func (c *HTTPClient) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.httpClient.Do(req)
}

func (c *HTTPClient) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.httpClient.Do(req)
}
