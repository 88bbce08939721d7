package host

import (
	"context"
	"fmt"

	"github.com/colorfulnotion/ismp/common"
	"github.com/colorfulnotion/ismp/ismperrors"
	"github.com/colorfulnotion/ismp/log"
	"github.com/colorfulnotion/ismp/types"
	"github.com/holiman/uint256"
)

// DispatchPost describes an outgoing post request. The host fills in the source and nonce.
type DispatchPost struct {
	Dest             types.StateMachine `json:"dest"`
	From             common.HexBytes    `json:"from"`
	To               common.HexBytes    `json:"to"`
	TimeoutTimestamp uint64             `json:"timeout_timestamp"`
	Body             common.HexBytes    `json:"body"`
}

type DispatchGet struct {
	Dest             types.StateMachine `json:"dest"`
	From             common.HexBytes    `json:"from"`
	Keys             []common.HexBytes  `json:"keys"`
	Height           uint64             `json:"height"`
	TimeoutTimestamp uint64             `json:"timeout_timestamp"`
	Context          common.HexBytes    `json:"context"`
}

// Dispatcher sends requests and responses from the host. Each dispatch appends one
// leaf to the accumulator and returns its commitment.
type Dispatcher interface {
	DispatchPost(p DispatchPost, fee types.FeeMetadata) (common.Hash, error)
	DispatchGet(g DispatchGet, fee types.FeeMetadata) (common.Hash, error)
	DispatchResponse(r types.PostResponse, fee types.FeeMetadata) (common.Hash, error)
}

func (s *hostState) nextNonce() (uint64, error) {
	nonce, _, err := s.readUint64(nonceKey)
	if err != nil {
		return 0, err
	}
	return nonce, s.writeUint64(nonceKey, nonce+1)
}

// commit appends the leaf and stores its fee and leaf metadata under key.
func (s *hostState) commit(leaf types.Leaf, key []byte, fee types.FeeMetadata) (types.LeafMetadata, error) {
	if fee.Fee == nil {
		fee.Fee = new(uint256.Int)
	}
	meta, err := s.appendLeaf(leaf)
	if err != nil {
		return meta, err
	}
	return meta, s.write(key, types.CommitmentMetadata{Fee: fee, Leaf: meta})
}

func (s *hostState) DispatchPost(p DispatchPost, fee types.FeeMetadata) (common.Hash, error) {
	nonce, err := s.nextNonce()
	if err != nil {
		return common.Hash{}, err
	}
	post := types.PostRequest{
		Source:           s.h.cfg.StateMachine,
		Dest:             p.Dest,
		Nonce:            nonce,
		From:             p.From,
		To:               p.To,
		TimeoutTimestamp: p.TimeoutTimestamp,
		Body:             p.Body,
	}
	req := types.Request{Post: &post}
	commitment := req.Commitment()
	meta, err := s.commit(types.Leaf{Request: &req}, RequestCommitmentKey(commitment), fee)
	if err != nil {
		return common.Hash{}, err
	}
	s.emit(types.RequestEvent{DestChain: post.Dest, SourceChain: post.Source, RequestNonce: nonce, Commitment: commitment})
	log.Debug(log.DispatchModule, "post request dispatched", "dest", post.Dest, "nonce", nonce, "commitment", commitment, "pos", meta.Position)
	return commitment, nil
}

func (s *hostState) DispatchGet(g DispatchGet, fee types.FeeMetadata) (common.Hash, error) {
	if len(g.Keys) == 0 {
		return common.Hash{}, fmt.Errorf("get request without keys: %w", ismperrors.ErrDInvalidRequest)
	}
	nonce, err := s.nextNonce()
	if err != nil {
		return common.Hash{}, err
	}
	get := types.GetRequest{
		Source:           s.h.cfg.StateMachine,
		Dest:             g.Dest,
		Nonce:            nonce,
		From:             g.From,
		Keys:             g.Keys,
		Height:           g.Height,
		TimeoutTimestamp: g.TimeoutTimestamp,
		Context:          g.Context,
	}
	req := types.Request{Get: &get}
	commitment := req.Commitment()
	meta, err := s.commit(types.Leaf{Request: &req}, RequestCommitmentKey(commitment), fee)
	if err != nil {
		return common.Hash{}, err
	}
	s.emit(types.RequestEvent{DestChain: get.Dest, SourceChain: get.Source, RequestNonce: nonce, Commitment: commitment})
	log.Debug(log.DispatchModule, "get request dispatched", "dest", get.Dest, "nonce", nonce, "keys", len(get.Keys), "pos", meta.Position)
	return commitment, nil
}

// DispatchResponse answers a post request this host received. Each request is
// answered at most once.
func (s *hostState) DispatchResponse(r types.PostResponse, fee types.FeeMetadata) (common.Hash, error) {
	if r.Post.Dest != s.h.cfg.StateMachine {
		return common.Hash{}, fmt.Errorf("request addressed to %s: %w", r.Post.Dest, ismperrors.ErrDInvalidRequest)
	}
	reqCommitment := r.Post.Commitment()
	received, err := s.has(RequestReceiptKey(reqCommitment))
	if err != nil {
		return common.Hash{}, err
	}
	if !received {
		return common.Hash{}, fmt.Errorf("request %s: %w", reqCommitment, ismperrors.ErrDRequestReceiptNotFound)
	}
	responded, err := s.has(respondedKey(reqCommitment))
	if err != nil {
		return common.Hash{}, err
	}
	if responded {
		return common.Hash{}, fmt.Errorf("request %s: %w", reqCommitment, ismperrors.ErrDResponseAlreadyDispatched)
	}

	resp := types.Response{Post: &r}
	commitment := resp.Commitment()
	if err := s.kv.Put(respondedKey(reqCommitment), commitment[:]); err != nil {
		return common.Hash{}, err
	}
	meta, err := s.commit(types.Leaf{Response: &resp}, ResponseCommitmentKey(commitment), fee)
	if err != nil {
		return common.Hash{}, err
	}
	s.emit(types.ResponseEvent{
		DestChain:          r.Post.Source,
		SourceChain:        r.Post.Dest,
		RequestNonce:       r.Post.Nonce,
		Commitment:         reqCommitment,
		ResponseCommitment: commitment,
	})
	log.Debug(log.DispatchModule, "post response dispatched", "dest", r.Post.Source, "nonce", r.Post.Nonce, "commitment", commitment, "pos", meta.Position)
	return commitment, nil
}

// DispatchPost sends a post request from the host in its own call.
func (h *Host) DispatchPost(ctx context.Context, p DispatchPost, fee types.FeeMetadata) (common.Hash, error) {
	var commitment common.Hash
	err := h.execute(ctx, "ismp.dispatch_post", func(s *hostState) error {
		var err error
		commitment, err = s.DispatchPost(p, fee)
		return err
	})
	return commitment, err
}

func (h *Host) DispatchGet(ctx context.Context, g DispatchGet, fee types.FeeMetadata) (common.Hash, error) {
	var commitment common.Hash
	err := h.execute(ctx, "ismp.dispatch_get", func(s *hostState) error {
		var err error
		commitment, err = s.DispatchGet(g, fee)
		return err
	})
	return commitment, err
}

func (h *Host) DispatchResponse(ctx context.Context, r types.PostResponse, fee types.FeeMetadata) (common.Hash, error) {
	var commitment common.Hash
	err := h.execute(ctx, "ismp.dispatch_response", func(s *hostState) error {
		var err error
		commitment, err = s.DispatchResponse(r, fee)
		return err
	})
	return commitment, err
}

// RequestCommitment returns the metadata of a request dispatched by this host.
func (h *Host) RequestCommitment(commitment common.Hash) (*types.CommitmentMetadata, error) {
	return h.commitmentMetadata(RequestCommitmentKey(commitment))
}

func (h *Host) ResponseCommitment(commitment common.Hash) (*types.CommitmentMetadata, error) {
	return h.commitmentMetadata(ResponseCommitmentKey(commitment))
}

func (h *Host) commitmentMetadata(key []byte) (*types.CommitmentMetadata, error) {
	meta := new(types.CommitmentMetadata)
	err := h.view(func(s *hostState) error {
		ok, err := s.read(key, meta)
		if err == nil && !ok {
			err = ismperrors.ErrHRequestCommitmentNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return meta, nil
}
