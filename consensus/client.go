// Package consensus holds the light clients the host uses to follow remote chains.
//
// A Client checks finality proofs against an opaque trusted state it alone can
// interpret, and extracts the state commitments a finalized header carries. Clients
// also verify proofs made against those commitments: accumulator membership for
// requests and responses, and state reads for timeouts, get responses and fees.
package consensus

import (
	"fmt"
	"sort"

	"github.com/colorfulnotion/ismp/common"
	"github.com/colorfulnotion/ismp/ismperrors"
	"github.com/colorfulnotion/ismp/types"
)

// Update is the result of a successful consensus proof.
type Update struct {
	// State replaces the trusted consensus state.
	State []byte
	// Commitments finalized by the proof, in header order.
	Commitments []types.IntermediateState
}

type Client interface {
	ID() types.ConsensusClientID
	// VerifyConsensus checks proof against trusted and returns the next trusted state.
	VerifyConsensus(trusted []byte, proof []byte) (*Update, error)
	// VerifyFraudProof succeeds when both proofs are valid under trusted yet finalize
	// different headers at the same height.
	VerifyFraudProof(trusted []byte, proof1, proof2 []byte) error
	// VerifyMembership checks that leaves are in the accumulator under commitment's overlay root.
	VerifyMembership(commitment types.StateCommitment, proof []byte, leaves []common.Hash) (*MembershipProof, error)
	// VerifyNonMembership checks that none of keys is set in the state under commitment.
	VerifyNonMembership(commitment types.StateCommitment, proof []byte, keys [][]byte) error
	// ReadState returns the proven value of every key, nil for absent keys.
	ReadState(commitment types.StateCommitment, proof []byte, keys [][]byte) ([]types.StorageValue, error)
}

// Registry is the closed set of clients a host accepts, keyed by client id.
type Registry struct {
	clients map[types.ConsensusClientID]Client
}

func NewRegistry(clients ...Client) *Registry {
	r := &Registry{clients: make(map[types.ConsensusClientID]Client, len(clients))}
	for _, c := range clients {
		r.clients[c.ID()] = c
	}
	return r
}

// DefaultRegistry holds every client implemented in this package.
func DefaultRegistry() *Registry {
	return NewRegistry(&GrandpaClient{}, &BeefyClient{}, &SyncCommitteeClient{})
}

func (r *Registry) Get(id types.ConsensusClientID) (Client, error) {
	c, ok := r.clients[id]
	if !ok {
		return nil, fmt.Errorf("client %s: %w", id, ismperrors.ErrHConsensusClientNotFound)
	}
	return c, nil
}

// IDs lists the registered client ids in sorted order.
func (r *Registry) IDs() []types.ConsensusClientID {
	ids := make([]types.ConsensusClientID, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

func proofFailed(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ismperrors.ErrHConsensusProofVerificationFailed)
}

// hasQuorum reports whether signed is strictly more than two thirds of total.
func hasQuorum(signed, total int) bool {
	return total > 0 && 3*signed > 2*total
}
