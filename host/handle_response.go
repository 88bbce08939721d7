package host

import (
	"fmt"

	"github.com/colorfulnotion/ismp/common"
	"github.com/colorfulnotion/ismp/consensus"
	"github.com/colorfulnotion/ismp/ismperrors"
	"github.com/colorfulnotion/ismp/log"
	"github.com/colorfulnotion/ismp/types"
)

func (s *hostState) handleResponses(msg *types.ResponseMessage) error {
	client, commitment, err := s.provenCommitment(msg.Proof.Height)
	if err != nil {
		return err
	}
	if msg.IsGet() {
		return s.handleGetResponses(msg, client, commitment)
	}
	return s.handlePostResponses(msg, client, commitment)
}

// checkAwaitingResponse checks that req was sent by this host and is still unanswered.
func (s *hostState) checkAwaitingResponse(req types.Request, source types.StateMachine) (common.Hash, error) {
	if req.Source() != s.h.cfg.StateMachine {
		return common.Hash{}, fmt.Errorf("request %d sent by %s: %w", req.Nonce(), req.Source(), ismperrors.ErrHInvalidDestination)
	}
	if req.Dest() != source {
		return common.Hash{}, fmt.Errorf("request %d sent to %s, response proven for %s: %w", req.Nonce(), req.Dest(), source, ismperrors.ErrHInvalidSource)
	}
	reqCommitment := req.Commitment()
	sent, err := s.has(RequestCommitmentKey(reqCommitment))
	if err != nil {
		return common.Hash{}, err
	}
	if !sent {
		return common.Hash{}, fmt.Errorf("request %s: %w", reqCommitment, ismperrors.ErrHRequestCommitmentNotFound)
	}
	responded, err := s.has(ResponseReceiptKey(reqCommitment))
	if err != nil {
		return common.Hash{}, err
	}
	if responded {
		return common.Hash{}, fmt.Errorf("request %s: %w", reqCommitment, ismperrors.ErrHDuplicateResponse)
	}
	return reqCommitment, nil
}

func (s *hostState) handlePostResponses(msg *types.ResponseMessage, client consensus.Client, commitment types.StateCommitment) error {
	source := msg.Proof.Height.ID.StateID
	leaves := make([]common.Hash, len(msg.Responses))
	reqCommitments := make([]common.Hash, len(msg.Responses))
	for i, resp := range msg.Responses {
		if resp.Post == nil {
			return fmt.Errorf("get response without proof of state: %w", ismperrors.ErrEMalformedMessage)
		}
		reqCommitment, err := s.checkAwaitingResponse(resp.Request(), source)
		if err != nil {
			return err
		}
		if resp.TimedOut(s.now()) {
			return fmt.Errorf("response to %s timed out at %d: %w", reqCommitment, resp.TimeoutTimestamp(), ismperrors.ErrHRequestTimeout)
		}
		reqCommitments[i] = reqCommitment
		leaves[i] = resp.Commitment()
	}
	if _, err := client.VerifyMembership(commitment, msg.Proof.Proof, leaves); err != nil {
		return fmt.Errorf("%v: %w", err, ismperrors.ErrHResponseVerificationFailed)
	}
	for i, resp := range msg.Responses {
		if err := s.receiveResponse(resp, reqCommitments[i], leaves[i], msg.Signer); err != nil {
			return err
		}
		s.emit(types.PostResponseHandledEvent{Commitment: leaves[i], Relayer: msg.Signer})
	}
	return nil
}

// handleGetResponses reads the requested keys from the proven state of the destination.
func (s *hostState) handleGetResponses(msg *types.ResponseMessage, client consensus.Client, commitment types.StateCommitment) error {
	source := msg.Proof.Height.ID.StateID
	for _, req := range msg.Requests {
		if req.Get == nil {
			return fmt.Errorf("post request answered by state proof: %w", ismperrors.ErrEMalformedMessage)
		}
		reqCommitment, err := s.checkAwaitingResponse(req, source)
		if err != nil {
			return err
		}
		if req.TimedOut(s.now()) {
			return fmt.Errorf("get request %d timed out at %d: %w", req.Get.Nonce, req.Get.TimeoutTimestamp, ismperrors.ErrHRequestTimeout)
		}
		if req.Get.Height != msg.Proof.Height.Height {
			return fmt.Errorf("get request %d for height %d proven at %d: %w", req.Get.Nonce, req.Get.Height, msg.Proof.Height.Height, ismperrors.ErrHResponseVerificationFailed)
		}
		values, err := client.ReadState(commitment, msg.Proof.Proof, req.Get.KeyBytes())
		if err != nil {
			return fmt.Errorf("%v: %w", err, ismperrors.ErrHResponseVerificationFailed)
		}
		resp := types.Response{Get: &types.GetResponse{Get: *req.Get, Values: values}}
		respCommitment := resp.Commitment()
		if err := s.receiveResponse(resp, reqCommitment, respCommitment, msg.Signer); err != nil {
			return err
		}
		s.emit(types.GetRequestHandledEvent{Commitment: reqCommitment, Relayer: msg.Signer})
	}
	return nil
}

func (s *hostState) receiveResponse(resp types.Response, reqCommitment, respCommitment common.Hash, relayer []byte) error {
	// a batch may repeat a response
	responded, err := s.has(ResponseReceiptKey(reqCommitment))
	if err != nil {
		return err
	}
	if responded {
		return fmt.Errorf("request %s: %w", reqCommitment, ismperrors.ErrHDuplicateResponse)
	}
	if err := s.write(ResponseReceiptKey(reqCommitment), types.ResponseReceipt{Response: respCommitment, Relayer: relayer}); err != nil {
		return err
	}
	module, err := s.h.router.Module(resp.Request().From())
	if err != nil {
		return err
	}
	if err := module.OnResponse(s, resp); err != nil {
		return fmt.Errorf("module %q rejected response to %s: %v: %w", resp.Request().From(), reqCommitment, err, ismperrors.ErrHImplementationSpecific)
	}
	log.Debug(log.HandlerModule, "response received", "source", resp.Source(), "nonce", resp.Nonce(), "commitment", respCommitment)
	return nil
}
