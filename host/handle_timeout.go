package host

import (
	"fmt"

	"github.com/colorfulnotion/ismp/ismperrors"
	"github.com/colorfulnotion/ismp/log"
	"github.com/colorfulnotion/ismp/types"
)

func (s *hostState) handleTimeouts(msg *types.TimeoutMessage) error {
	switch msg.Kind {
	case types.TimeoutPost:
		return s.handlePostTimeouts(msg)
	case types.TimeoutPostResponse:
		return s.handlePostResponseTimeouts(msg)
	case types.TimeoutGet:
		return s.handleGetTimeouts(msg)
	}
	return fmt.Errorf("timeout kind %s: %w", msg.Kind, ismperrors.ErrEMalformedMessage)
}

// checkRemoteTimeout checks that the destination state proven at commitment is past timeout.
func checkRemoteTimeout(timeout uint64, commitment types.StateCommitment) error {
	if timeout == 0 || commitment.Timestamp < timeout {
		return fmt.Errorf("destination time %d, timeout %d: %w", commitment.Timestamp, timeout, ismperrors.ErrHRequestTimeoutNotElapsed)
	}
	return nil
}

// handlePostTimeouts releases post requests the destination never received before
// their timeout: its proven time is past the timeout and it holds no receipt.
func (s *hostState) handlePostTimeouts(msg *types.TimeoutMessage) error {
	client, commitment, err := s.provenCommitment(msg.TimeoutProof.Height)
	if err != nil {
		return err
	}
	dest := msg.TimeoutProof.Height.ID.StateID
	keys := make([][]byte, len(msg.Requests))
	for i, req := range msg.Requests {
		if req.Post == nil {
			return fmt.Errorf("get request in post timeout: %w", ismperrors.ErrEMalformedMessage)
		}
		c := req.Commitment()
		sent, err := s.has(RequestCommitmentKey(c))
		if err != nil {
			return err
		}
		if !sent {
			return fmt.Errorf("request %s: %w", c, ismperrors.ErrHRequestCommitmentNotFound)
		}
		if req.Dest() != dest {
			return fmt.Errorf("request %d sent to %s, timeout proven for %s: %w", req.Nonce(), req.Dest(), dest, ismperrors.ErrHInvalidSource)
		}
		if err := checkRemoteTimeout(req.TimeoutTimestamp(), commitment); err != nil {
			return err
		}
		keys[i] = RequestReceiptKey(c)
	}
	if err := client.VerifyNonMembership(commitment, msg.TimeoutProof.Proof, keys); err != nil {
		return err
	}
	for _, req := range msg.Requests {
		c := req.Commitment()
		if err := s.releaseTimeout(RequestCommitmentKey(c), req.From(), types.Leaf{Request: &req}); err != nil {
			return err
		}
		s.emit(types.PostRequestTimeoutHandledEvent{Commitment: c, Source: req.Source(), Dest: req.Dest()})
	}
	return nil
}

func (s *hostState) handlePostResponseTimeouts(msg *types.TimeoutMessage) error {
	client, commitment, err := s.provenCommitment(msg.TimeoutProof.Height)
	if err != nil {
		return err
	}
	dest := msg.TimeoutProof.Height.ID.StateID
	keys := make([][]byte, len(msg.Responses))
	for i, pr := range msg.Responses {
		resp := types.Response{Post: &msg.Responses[i]}
		c := resp.Commitment()
		sent, err := s.has(ResponseCommitmentKey(c))
		if err != nil {
			return err
		}
		if !sent {
			return fmt.Errorf("response %s: %w", c, ismperrors.ErrHRequestCommitmentNotFound)
		}
		if resp.Dest() != dest {
			return fmt.Errorf("response to request %d sent to %s, timeout proven for %s: %w", pr.Post.Nonce, resp.Dest(), dest, ismperrors.ErrHInvalidSource)
		}
		if err := checkRemoteTimeout(pr.TimeoutTimestamp, commitment); err != nil {
			return err
		}
		keys[i] = ResponseReceiptKey(pr.Post.Commitment())
	}
	if err := client.VerifyNonMembership(commitment, msg.TimeoutProof.Proof, keys); err != nil {
		return err
	}
	for i, pr := range msg.Responses {
		resp := types.Response{Post: &msg.Responses[i]}
		c := resp.Commitment()
		// the request may be answered again
		if err := s.kv.Delete(respondedKey(pr.Post.Commitment())); err != nil {
			return err
		}
		if err := s.releaseTimeout(ResponseCommitmentKey(c), pr.Post.To, types.Leaf{Response: &resp}); err != nil {
			return err
		}
		s.emit(types.PostResponseTimeoutHandledEvent{Commitment: c, Source: resp.Source(), Dest: resp.Dest()})
	}
	return nil
}

// handleGetTimeouts needs no proof: a get request is answered from a state proof
// the host checks itself, so the host clock decides.
func (s *hostState) handleGetTimeouts(msg *types.TimeoutMessage) error {
	for _, req := range msg.Requests {
		if req.Get == nil {
			return fmt.Errorf("post request in get timeout: %w", ismperrors.ErrEMalformedMessage)
		}
		c := req.Commitment()
		sent, err := s.has(RequestCommitmentKey(c))
		if err != nil {
			return err
		}
		if !sent {
			return fmt.Errorf("request %s: %w", c, ismperrors.ErrHRequestCommitmentNotFound)
		}
		responded, err := s.has(ResponseReceiptKey(c))
		if err != nil {
			return err
		}
		if responded {
			return fmt.Errorf("request %s: %w", c, ismperrors.ErrHDuplicateResponse)
		}
		if !req.TimedOut(s.now()) {
			return fmt.Errorf("host time %d, timeout %d: %w", s.now(), req.TimeoutTimestamp(), ismperrors.ErrHRequestTimeoutNotElapsed)
		}
		if err := s.releaseTimeout(RequestCommitmentKey(c), req.From(), types.Leaf{Request: &req}); err != nil {
			return err
		}
		s.emit(types.GetRequestTimeoutHandledEvent{Commitment: c, Source: req.Source(), Dest: req.Dest()})
	}
	return nil
}

// releaseTimeout drops the commitment so it cannot time out twice and notifies the sending module.
func (s *hostState) releaseTimeout(key []byte, moduleID []byte, leaf types.Leaf) error {
	// a batch may repeat a timeout
	pending, err := s.has(key)
	if err != nil {
		return err
	}
	if !pending {
		return fmt.Errorf("commitment under %x: %w", key, ismperrors.ErrHRequestCommitmentNotFound)
	}
	if err := s.kv.Delete(key); err != nil {
		return err
	}
	module, err := s.h.router.Module(moduleID)
	if err != nil {
		return err
	}
	if err := module.OnTimeout(s, leaf); err != nil {
		return fmt.Errorf("module %q rejected timeout: %v: %w", moduleID, err, ismperrors.ErrHImplementationSpecific)
	}
	log.Debug(log.HandlerModule, "timeout handled", "key", fmt.Sprintf("%x", key))
	return nil
}
