package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/go-chi/chi/v5"

	"github.com/veilpost/veilpost/crypto"
	"github.com/veilpost/veilpost/merkle"
	"github.com/veilpost/veilpost/protocol"
)

var (
	ErrUnknownMember    = errors.New("services: commitment not in group")
	ErrDuplicateMember  = errors.New("services: commitment already in group")
	ErrGroupTooSmall    = errors.New("services: group below minimum size")
	errMalformedRequest = errors.New("services: malformed request")
)

// rootHistorySize bounds how many past roots an intake server will still
// accept, so members holding a proof against a recent tree are not rejected
// the moment a new member joins.
const rootHistorySize = 16

// GroupRegistry owns the membership set and its Merkle tree. Submitters
// interact with it through two operations: fetch the current root, and
// obtain a membership proof for their commitment. The submission core never
// persists the tree itself.
type GroupRegistry struct {
	hasher crypto.Hasher
	config *protocol.Config

	mu          sync.RWMutex
	members     []fr.Element
	memberIndex map[string]int
	tree        *merkle.Tree
	recentRoots []fr.Element
}

// NewGroupRegistry creates an empty group.
func NewGroupRegistry(h crypto.Hasher, cfg *protocol.Config) (*GroupRegistry, error) {
	tree, err := merkle.New(h, nil)
	if err != nil {
		return nil, fmt.Errorf("build empty tree: %w", err)
	}

	return &GroupRegistry{
		hasher:      h,
		config:      cfg,
		memberIndex: make(map[string]int),
		tree:        tree,
		recentRoots: []fr.Element{tree.Root()},
	}, nil
}

// AddMember appends an identity commitment as a new leaf and rebuilds the
// tree. Returns the member's leaf index.
func (g *GroupRegistry) AddMember(commitment fr.Element) (int, error) {
	key := commitment.String()

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.memberIndex[key]; exists {
		return 0, ErrDuplicateMember
	}

	members := append(g.members, commitment)
	tree, err := merkle.New(g.hasher, members)
	if err != nil {
		return 0, fmt.Errorf("rebuild tree: %w", err)
	}

	index := len(members) - 1
	g.members = members
	g.memberIndex[key] = index
	g.tree = tree

	g.recentRoots = append(g.recentRoots, tree.Root())
	if len(g.recentRoots) > rootHistorySize {
		g.recentRoots = g.recentRoots[len(g.recentRoots)-rootHistorySize:]
	}

	return index, nil
}

// Size returns the number of members.
func (g *GroupRegistry) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.members)
}

// CurrentMerkleRoot returns the root of the current membership tree.
func (g *GroupRegistry) CurrentMerkleRoot() fr.Element {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.tree.Root()
}

// KnownRoot reports whether root is the current root or one of the recent
// past roots.
func (g *GroupRegistry) KnownRoot(root fr.Element) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for i := range g.recentRoots {
		if g.recentRoots[i].Equal(&root) {
			return true
		}
	}
	return false
}

// ProveMembership issues an inclusion proof for the given commitment against
// the current tree. Submissions are refused while the group is below the
// configured minimum size, since a near-empty anonymity set identifies its
// members.
func (g *GroupRegistry) ProveMembership(commitment fr.Element) (*merkle.Proof, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if uint32(len(g.members)) < g.config.MinMembers {
		return nil, ErrGroupTooSmall
	}

	index, ok := g.memberIndex[commitment.String()]
	if !ok {
		return nil, ErrUnknownMember
	}
	return g.tree.Prove(index)
}

// GroupMemberRequest is the wire shape for joining the group. It travels
// inside a protocol.Signed envelope; the registry rejects join requests
// whose Ed25519 signature does not verify.
type GroupMemberRequest struct {
	Commitment string `json:"commitment"`
}

// GroupMemberResponse confirms membership and carries the new root.
type GroupMemberResponse struct {
	Index int    `json:"index"`
	Root  string `json:"root"`
}

// GroupRootResponse carries the current membership root.
type GroupRootResponse struct {
	Root string `json:"root"`
	Size int    `json:"size"`
}

// MembershipProofResponse is the wire shape of a membership proof.
type MembershipProofResponse struct {
	Root         string   `json:"root"`
	PathElements []string `json:"pathElements"`
	PathIndices  []int    `json:"pathIndices"`
}

// EncodeProof converts a Merkle proof to its wire shape.
func EncodeProof(proof *merkle.Proof) *MembershipProofResponse {
	resp := &MembershipProofResponse{
		Root:         proof.Root.String(),
		PathElements: make([]string, len(proof.PathElements)),
		PathIndices:  append([]int(nil), proof.PathIndices...),
	}
	for i := range proof.PathElements {
		resp.PathElements[i] = proof.PathElements[i].String()
	}
	return resp
}

// DecodeProof converts the wire shape back to a Merkle proof.
func DecodeProof(resp *MembershipProofResponse) (*merkle.Proof, error) {
	if len(resp.PathElements) != len(resp.PathIndices) {
		return nil, errMalformedRequest
	}

	root, err := crypto.FieldElementFromString(resp.Root)
	if err != nil {
		return nil, err
	}

	proof := &merkle.Proof{
		Root:         root,
		PathElements: make([]fr.Element, len(resp.PathElements)),
		PathIndices:  append([]int(nil), resp.PathIndices...),
	}
	for i := range resp.PathElements {
		if proof.PathElements[i], err = crypto.FieldElementFromString(resp.PathElements[i]); err != nil {
			return nil, err
		}
	}
	return proof, nil
}

// RegisterRoutes registers the group-management HTTP API.
func (g *GroupRegistry) RegisterRoutes(r chi.Router) {
	r.Post("/group/members", g.handleAddMember)
	r.Get("/group/root", g.handleRoot)
	r.Get("/group/proof/{commitment}", g.handleProof)
}

func (g *GroupRegistry) handleAddMember(w http.ResponseWriter, req *http.Request) {
	signed, err := protocol.DecodeMessage[protocol.Signed[GroupMemberRequest]](req.Body)
	if err != nil {
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}

	body, _, err := signed.Recover()
	if err != nil {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	commitment, err := crypto.FieldElementFromString(body.Commitment)
	if err != nil {
		http.Error(w, "invalid commitment", http.StatusBadRequest)
		return
	}

	index, err := g.AddMember(commitment)
	if errors.Is(err, ErrDuplicateMember) {
		http.Error(w, "already a member", http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, "registration failed", http.StatusInternalServerError)
		return
	}

	root := g.CurrentMerkleRoot()
	json.NewEncoder(w).Encode(&GroupMemberResponse{Index: index, Root: root.String()})
}

func (g *GroupRegistry) handleRoot(w http.ResponseWriter, req *http.Request) {
	root := g.CurrentMerkleRoot()
	json.NewEncoder(w).Encode(&GroupRootResponse{Root: root.String(), Size: g.Size()})
}

func (g *GroupRegistry) handleProof(w http.ResponseWriter, req *http.Request) {
	commitment, err := crypto.FieldElementFromString(chi.URLParam(req, "commitment"))
	if err != nil {
		http.Error(w, "invalid commitment", http.StatusBadRequest)
		return
	}

	proof, err := g.ProveMembership(commitment)
	switch {
	case errors.Is(err, ErrUnknownMember):
		http.Error(w, "not a member", http.StatusNotFound)
		return
	case errors.Is(err, ErrGroupTooSmall):
		http.Error(w, "group too small", http.StatusConflict)
		return
	case err != nil:
		http.Error(w, "proof generation failed", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(EncodeProof(proof))
}
