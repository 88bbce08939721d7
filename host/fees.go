package host

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/colorfulnotion/ismp/codec"
	"github.com/colorfulnotion/ismp/common"
	"github.com/colorfulnotion/ismp/ed25519"
	"github.com/colorfulnotion/ismp/ismperrors"
	"github.com/colorfulnotion/ismp/log"
	"github.com/colorfulnotion/ismp/types"
	"github.com/holiman/uint256"
)

// feeLedger is the part of the host state the fee module writes to.
type feeLedger interface {
	credit(sm types.StateMachine, relayer []byte, amount *uint256.Int) error
}

// feeModule receives payout requests on the paying chain and re-credits payouts
// that time out on the withdrawing chain.
type feeModule struct{}

func (feeModule) OnAccept(_ Dispatcher, req types.PostRequest) error {
	var params types.WithdrawalParams
	if err := codec.Decode(req.Body, &params); err != nil {
		return fmt.Errorf("payout body: %v", err)
	}
	// the transfer itself belongs to the balances layer of the receiving chain
	log.Info(log.FeeModule, "relayer payout received", "source", req.Source, "beneficiary", params.Beneficiary, "amount", params.Amount)
	return nil
}

func (feeModule) OnResponse(_ Dispatcher, resp types.Response) error {
	return fmt.Errorf("fee module does not expect responses, got one from %s", resp.Source())
}

func (feeModule) OnTimeout(d Dispatcher, timeout types.Leaf) error {
	if timeout.Request == nil || timeout.Request.Post == nil {
		return fmt.Errorf("fee module only sends post requests")
	}
	ledger, ok := d.(feeLedger)
	if !ok {
		return fmt.Errorf("dispatcher %T cannot credit fees", d)
	}
	post := timeout.Request.Post
	var params types.WithdrawalParams
	if err := codec.Decode(post.Body, &params); err != nil {
		return fmt.Errorf("payout body: %v", err)
	}
	log.Info(log.FeeModule, "relayer payout timed out", "dest", post.Dest, "beneficiary", params.Beneficiary, "amount", params.Amount)
	return ledger.credit(post.Dest, params.Beneficiary, params.Amount)
}

func (s *hostState) credit(sm types.StateMachine, relayer []byte, amount *uint256.Int) error {
	balance, err := s.readU256(feesKey(sm, relayer))
	if err != nil {
		return err
	}
	sum, overflow := new(uint256.Int).AddOverflow(balance, amount)
	if overflow {
		return fmt.Errorf("fee balance of %x on %s overflows: %w", relayer, sm, ismperrors.ErrFInvalidAmount)
	}
	return s.writeU256(feesKey(sm, relayer), sum)
}

// feeClaim is one delivery proven by a withdrawal proof.
type feeClaim struct {
	claimKey []byte
	relayer  []byte
	fee      *uint256.Int
}

// AccumulateFees credits relayers for deliveries proven on both chains: the fee
// metadata on the chain that dispatched each commitment and the receipt on the
// chain that received it. Each commitment is credited once; already claimed or
// unproven commitments are skipped.
func (h *Host) AccumulateFees(ctx context.Context, proof types.WithdrawalProof) error {
	return h.execute(ctx, "ismp.accumulate_fees", func(s *hostState) error {
		return s.accumulateFees(proof)
	})
}

func (s *hostState) accumulateFees(proof types.WithdrawalProof) error {
	source := proof.SourceProof.Height.ID.StateID
	dest := proof.DestProof.Height.ID.StateID
	if source == dest {
		return fmt.Errorf("source and destination are both %s: %w", source, ismperrors.ErrFMismatchedStateMachine)
	}
	if len(proof.Commitments) == 0 {
		return ismperrors.ErrFMissingCommitments
	}
	srcClient, srcCommitment, err := s.provenCommitment(proof.SourceProof.Height)
	if err != nil {
		return err
	}
	dstClient, dstCommitment, err := s.provenCommitment(proof.DestProof.Height)
	if err != nil {
		return err
	}

	srcKeys := make([][]byte, len(proof.Commitments))
	dstKeys := make([][]byte, len(proof.Commitments))
	for i, k := range proof.Commitments {
		if k.IsResponse() {
			srcKeys[i] = ResponseCommitmentKey(*k.Response)
			dstKeys[i] = ResponseReceiptKey(k.Request)
		} else {
			srcKeys[i] = RequestCommitmentKey(k.Request)
			dstKeys[i] = RequestReceiptKey(k.Request)
		}
	}
	srcValues, err := srcClient.ReadState(srcCommitment, proof.SourceProof.Proof, srcKeys)
	if err != nil {
		return err
	}
	dstValues, err := dstClient.ReadState(dstCommitment, proof.DestProof.Proof, dstKeys)
	if err != nil {
		return err
	}

	var claims []feeClaim
	for i, k := range proof.Commitments {
		claim, ok, err := s.claimFor(k, srcValues[i].Value, dstValues[i].Value)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		// a proof may repeat a commitment
		if err := s.kv.Put(claim.claimKey, []byte{1}); err != nil {
			return err
		}
		claims = append(claims, claim)
	}
	if len(claims) == 0 {
		return fmt.Errorf("%d commitments from %s: %w", len(proof.Commitments), source, ismperrors.ErrFMissingCommitments)
	}

	totals := make(map[string]*uint256.Int)
	counts := make(map[string]int)
	for _, c := range claims {
		key := string(c.relayer)
		if totals[key] == nil {
			totals[key] = new(uint256.Int)
		}
		totals[key].Add(totals[key], c.fee)
		counts[key]++
	}
	relayers := make([]string, 0, len(totals))
	for r := range totals {
		relayers = append(relayers, r)
	}
	sort.Strings(relayers)
	for _, r := range relayers {
		if err := s.credit(source, []byte(r), totals[r]); err != nil {
			return err
		}
		s.emit(types.AccumulateFeesEvent{StateMachine: source, Relayer: common.HexBytes(r), Amount: totals[r], Commitments: counts[r]})
		log.Info(log.FeeModule, "relayer fees accumulated", "source", source, "relayer", common.HexBytes(r), "amount", totals[r], "commitments", counts[r])
	}
	return nil
}

// claimFor turns the proven source and destination values of k into a claim.
// ok is false when k was already claimed or one side does not hold it.
func (s *hostState) claimFor(k types.FeeKey, srcValue, dstValue []byte) (feeClaim, bool, error) {
	commitment := k.Request
	if k.IsResponse() {
		commitment = *k.Response
	}
	claimKey := claimedKey(commitment)
	claimed, err := s.has(claimKey)
	if err != nil || claimed || srcValue == nil || dstValue == nil {
		return feeClaim{}, false, err
	}
	var meta types.CommitmentMetadata
	if err := codec.Decode(srcValue, &meta); err != nil {
		log.Warn(log.FeeModule, "undecodable fee metadata", "commitment", commitment, "err", err)
		return feeClaim{}, false, nil
	}
	relayer := dstValue
	if k.IsResponse() {
		var receipt types.ResponseReceipt
		if err := codec.Decode(dstValue, &receipt); err != nil || receipt.Response != commitment {
			return feeClaim{}, false, nil
		}
		relayer = receipt.Relayer
	}
	fee := meta.Fee.Fee
	if fee == nil {
		fee = new(uint256.Int)
	}
	return feeClaim{claimKey: claimKey, relayer: relayer, fee: fee}, true, nil
}

// WithdrawFees pays out part of a relayer's balance on input.DestChain by sending a
// payout request there. The signature covers the next withdrawal nonce of the signer.
func (h *Host) WithdrawFees(ctx context.Context, input types.WithdrawalInputData) (common.Hash, error) {
	var commitment common.Hash
	err := h.execute(ctx, "ismp.withdraw_fees", func(s *hostState) error {
		var err error
		commitment, err = s.withdrawFees(input)
		return err
	})
	return commitment, err
}

func (s *hostState) withdrawFees(input types.WithdrawalInputData) (common.Hash, error) {
	if input.Amount == nil || input.Amount.IsZero() {
		return common.Hash{}, ismperrors.ErrFInvalidAmount
	}
	signer := input.Signature.Signer
	counterKey := withdrawNonceKey(signer, input.DestChain)
	nonce, _, err := s.readUint64(counterKey)
	if err != nil {
		return common.Hash{}, err
	}
	msg := types.WithdrawalMessage{Nonce: nonce + 1, DestChain: input.DestChain, Amount: input.Amount}
	if err := verifyWithdrawalSignature(input.Signature, msg.Hash()); err != nil {
		return common.Hash{}, fmt.Errorf("%s signer %x: %v: %w", input.Signature.Kind, []byte(signer), err, ismperrors.ErrFInvalidSignature)
	}

	balanceKey := feesKey(input.DestChain, signer)
	balance, err := s.readU256(balanceKey)
	if err != nil {
		return common.Hash{}, err
	}
	if balance.Lt(input.Amount) {
		return common.Hash{}, fmt.Errorf("balance %s, requested %s: %w", balance, input.Amount, ismperrors.ErrFInsufficientBalance)
	}
	if err := s.writeU256(balanceKey, new(uint256.Int).Sub(balance, input.Amount)); err != nil {
		return common.Hash{}, err
	}
	if err := s.writeUint64(counterKey, nonce+1); err != nil {
		return common.Hash{}, err
	}

	var timeout uint64
	if s.h.cfg.PayoutTimeout != 0 {
		timeout = s.now() + s.h.cfg.PayoutTimeout
	}
	moduleID := s.h.cfg.feeModuleID()
	body := codec.Encode(types.WithdrawalParams{Beneficiary: signer, Amount: input.Amount})
	commitment, err := s.DispatchPost(DispatchPost{
		Dest:             input.DestChain,
		From:             moduleID,
		To:               moduleID,
		TimeoutTimestamp: timeout,
		Body:             body,
	}, types.FeeMetadata{Payer: signer})
	if err != nil {
		return common.Hash{}, err
	}
	s.emit(types.WithdrawEvent{Address: signer, StateMachine: input.DestChain, Amount: input.Amount})
	log.Info(log.FeeModule, "relayer fees withdrawn", "relayer", signer, "dest", input.DestChain, "amount", input.Amount, "nonce", nonce+1)
	return commitment, nil
}

func verifyWithdrawalSignature(sig types.Signature, hash common.Hash) error {
	switch sig.Kind {
	case types.SignatureEvm:
		if len(sig.Signer) != common.AddressLength {
			return fmt.Errorf("address length %d", len(sig.Signer))
		}
		recovered, err := common.RecoverEthAddress(hash, sig.Signature)
		if err != nil {
			return err
		}
		if !bytes.Equal(recovered.Bytes(), sig.Signer) {
			return fmt.Errorf("recovered %s", recovered)
		}
		return nil
	case types.SignatureSr25519:
		return common.VerifySr25519(sig.Signer, hash[:], sig.Signature)
	case types.SignatureEd25519:
		if !ed25519.Verify(sig.Signer, hash[:], sig.Signature) {
			return fmt.Errorf("ed25519 signature does not verify")
		}
		return nil
	}
	return fmt.Errorf("unknown signature kind %d", sig.Kind)
}

// Fees is the balance relayer may withdraw on sm.
func (h *Host) Fees(sm types.StateMachine, relayer []byte) (*uint256.Int, error) {
	var balance *uint256.Int
	err := h.view(func(s *hostState) error {
		var err error
		balance, err = s.readU256(feesKey(sm, relayer))
		return err
	})
	return balance, err
}

// Nonce is the last withdrawal nonce used by relayer for sm.
func (h *Host) Nonce(relayer []byte, sm types.StateMachine) (uint64, error) {
	var nonce uint64
	err := h.view(func(s *hostState) error {
		var err error
		nonce, _, err = s.readUint64(withdrawNonceKey(relayer, sm))
		return err
	})
	return nonce, err
}
