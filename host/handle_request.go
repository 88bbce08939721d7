package host

import (
	"fmt"

	"github.com/colorfulnotion/ismp/common"
	"github.com/colorfulnotion/ismp/ismperrors"
	"github.com/colorfulnotion/ismp/log"
	"github.com/colorfulnotion/ismp/types"
)

func (s *hostState) handleRequests(msg *types.RequestMessage) error {
	if len(msg.Requests) == 0 {
		return fmt.Errorf("empty request message: %w", ismperrors.ErrEMalformedMessage)
	}
	client, commitment, err := s.provenCommitment(msg.Proof.Height)
	if err != nil {
		return err
	}
	source := msg.Proof.Height.ID.StateID
	leaves := make([]common.Hash, len(msg.Requests))
	for i, post := range msg.Requests {
		if post.Dest != s.h.cfg.StateMachine {
			return fmt.Errorf("request %d addressed to %s: %w", post.Nonce, post.Dest, ismperrors.ErrHInvalidDestination)
		}
		if post.Source != source {
			return fmt.Errorf("request %d from %s proven for %s: %w", post.Nonce, post.Source, source, ismperrors.ErrHInvalidSource)
		}
		req := types.Request{Post: &msg.Requests[i]}
		if req.TimedOut(s.now()) {
			return fmt.Errorf("request %d timed out at %d: %w", post.Nonce, post.TimeoutTimestamp, ismperrors.ErrHRequestTimeout)
		}
		leaves[i] = req.Commitment()
		received, err := s.has(RequestReceiptKey(leaves[i]))
		if err != nil {
			return err
		}
		if received {
			return fmt.Errorf("request %s: %w", leaves[i], ismperrors.ErrHDuplicateRequest)
		}
	}
	if _, err := client.VerifyMembership(commitment, msg.Proof.Proof, leaves); err != nil {
		return fmt.Errorf("%v: %w", err, ismperrors.ErrHRequestVerificationFailed)
	}

	for i, post := range msg.Requests {
		// a batch may repeat a request
		received, err := s.has(RequestReceiptKey(leaves[i]))
		if err != nil {
			return err
		}
		if received {
			return fmt.Errorf("request %s: %w", leaves[i], ismperrors.ErrHDuplicateRequest)
		}
		if err := s.kv.Put(RequestReceiptKey(leaves[i]), msg.Signer); err != nil {
			return err
		}
		module, err := s.h.router.Module(post.To)
		if err != nil {
			return err
		}
		if err := module.OnAccept(s, post); err != nil {
			return fmt.Errorf("module %q rejected request %d: %v: %w", post.To, post.Nonce, err, ismperrors.ErrHImplementationSpecific)
		}
		s.emit(types.PostRequestHandledEvent{Commitment: leaves[i], Relayer: msg.Signer})
		log.Debug(log.HandlerModule, "post request received", "source", post.Source, "nonce", post.Nonce, "commitment", leaves[i])
	}
	return nil
}
