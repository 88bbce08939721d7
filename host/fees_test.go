package host

import (
	"context"
	"testing"

	"github.com/colorfulnotion/ismp/codec"
	"github.com/colorfulnotion/ismp/common"
	"github.com/colorfulnotion/ismp/ed25519"
	"github.com/colorfulnotion/ismp/ismperrors"
	"github.com/colorfulnotion/ismp/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (c *testChain) credit(sm types.StateMachine, who []byte, amount uint64) {
	err := c.host.execute(context.Background(), "test.credit", func(s *hostState) error {
		return s.credit(sm, who, uint256.NewInt(amount))
	})
	require.NoError(c.t, err)
}

func (c *testChain) fees(sm types.StateMachine, who []byte) uint64 {
	balance, err := c.host.Fees(sm, who)
	require.NoError(c.t, err)
	return balance.Uint64()
}

func requestKey(c common.Hash) types.FeeKey {
	return types.FeeKey{Request: c}
}

// feeSetup has a deliver posts from a to b while a hub tracking both settles the fees.
type feeSetup struct {
	a, b, hub *testChain
}

func newFeeSetup(t *testing.T) *feeSetup {
	f := &feeSetup{
		a:   newTestChain(t, chainA, "ETH0", 1),
		b:   newTestChain(t, chainB, "PARA", 2),
		hub: newTestChain(t, hub, "HUB0", 3),
	}
	f.a.track(f.b, 0, 1000)
	f.b.track(f.a, 0, 1000)
	f.hub.track(f.a, 0, 1000)
	f.hub.track(f.b, 0, 1000)
	return f
}

// requestProof proves the fee metadata of reqs on a and their receipts on b.
func (f *feeSetup) requestProof(src, dst types.StateMachineHeight, reqs ...types.PostRequest) types.WithdrawalProof {
	var (
		keys     []types.FeeKey
		srcKeys  [][]byte
		destKeys [][]byte
	)
	for _, r := range reqs {
		keys = append(keys, requestKey(r.Commitment()))
		srcKeys = append(srcKeys, RequestCommitmentKey(r.Commitment()))
		destKeys = append(destKeys, RequestReceiptKey(r.Commitment()))
	}
	return types.WithdrawalProof{
		Commitments: keys,
		SourceProof: types.Proof{Height: src, Proof: f.a.readProof(srcKeys...)},
		DestProof:   types.Proof{Height: dst, Proof: f.b.readProof(destKeys...)},
	}
}

func TestAccumulateFeesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFeeSetup(t)

	a1 := f.a.post(f.b, appID, 0, 10)
	a2 := f.a.post(f.b, appID, 0, 20)
	a3 := f.a.post(f.b, appID, 0, 40)
	lost := f.a.post(f.b, appID, 0, 80)
	delivered := []types.PostRequest{a1, a2, a3}
	f.b.handleOK(requestMsg(delivered, f.a.proveTo(f.b), f.a.requestProof(delivered...)))

	src := f.a.proveTo(f.hub)
	dst := f.b.proveTo(f.hub)

	require.NoError(t, f.hub.host.AccumulateFees(ctx, f.requestProof(src, dst, a1, a2)))
	assert.EqualValues(t, 30, f.hub.fees(chainA, relayer))
	assert.Equal(t, types.AccumulateFeesEvent{StateMachine: chainA, Relayer: relayer, Amount: uint256.NewInt(30), Commitments: 2}, lastEvent(t, f.hub.host))

	// a2 was already claimed
	require.NoError(t, f.hub.host.AccumulateFees(ctx, f.requestProof(src, dst, a2, a3)))
	assert.EqualValues(t, 70, f.hub.fees(chainA, relayer))

	err := f.hub.host.AccumulateFees(ctx, f.requestProof(src, dst, a3))
	assert.ErrorIs(t, err, ismperrors.ErrFMissingCommitments)

	err = f.hub.host.AccumulateFees(ctx, f.requestProof(src, dst, lost))
	assert.ErrorIs(t, err, ismperrors.ErrFMissingCommitments)
	assert.EqualValues(t, 70, f.hub.fees(chainA, relayer))

	same := f.requestProof(src, src, a1)
	assert.ErrorIs(t, f.hub.host.AccumulateFees(ctx, same), ismperrors.ErrFMismatchedStateMachine)

	empty := types.WithdrawalProof{SourceProof: types.Proof{Height: src}, DestProof: types.Proof{Height: dst}}
	assert.ErrorIs(t, f.hub.host.AccumulateFees(ctx, empty), ismperrors.ErrFMissingCommitments)
}

func TestAccumulateFeesRepeatedCommitment(t *testing.T) {
	f := newFeeSetup(t)

	a1 := f.a.post(f.b, appID, 0, 10)
	f.b.handleOK(requestMsg([]types.PostRequest{a1}, f.a.proveTo(f.b), f.a.requestProof(a1)))
	src := f.a.proveTo(f.hub)
	dst := f.b.proveTo(f.hub)

	require.NoError(t, f.hub.host.AccumulateFees(context.Background(), f.requestProof(src, dst, a1, a1, a1)))
	assert.EqualValues(t, 10, f.hub.fees(chainA, relayer))
	assert.Equal(t, types.AccumulateFeesEvent{StateMachine: chainA, Relayer: relayer, Amount: uint256.NewInt(10), Commitments: 1}, lastEvent(t, f.hub.host))
}

func TestAccumulateResponseFees(t *testing.T) {
	f := newFeeSetup(t)
	f.b.app.respond = true

	req := f.a.post(f.b, appID, 0, 0)
	f.b.handleOK(requestMsg([]types.PostRequest{req}, f.a.proveTo(f.b), f.a.requestProof(req)))
	resp := types.PostResponse{Post: req, Response: []byte("pong")}
	respCommitment := resp.Commitment()
	meta, err := f.b.host.ResponseCommitment(respCommitment)
	require.NoError(t, err)
	proof, err := f.b.host.EncodedProof([]uint64{meta.Leaf.Position})
	require.NoError(t, err)
	f.a.handleOK(types.Message{Response: &types.ResponseMessage{
		Responses: []types.Response{{Post: &resp}},
		Proof:     types.Proof{Height: f.b.proveTo(f.a), Proof: proof},
		Signer:    relayer,
	}})

	src := f.b.proveTo(f.hub)
	dst := f.a.proveTo(f.hub)
	err = f.hub.host.AccumulateFees(context.Background(), types.WithdrawalProof{
		Commitments: []types.FeeKey{{Request: req.Commitment(), Response: &respCommitment}},
		SourceProof: types.Proof{Height: src, Proof: f.b.readProof(ResponseCommitmentKey(respCommitment))},
		DestProof:   types.Proof{Height: dst, Proof: f.a.readProof(ResponseReceiptKey(req.Commitment()))},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3, f.hub.fees(chainB, relayer))
	assert.EqualValues(t, 0, f.hub.fees(chainA, relayer))
}

// withdrawer is a relayer identity able to sign withdrawal messages.
type withdrawer struct {
	kind types.SignatureKind
	id   common.HexBytes
	sign func(msg types.WithdrawalMessage) common.HexBytes
}

func ed25519Withdrawer(t *testing.T, seed byte) withdrawer {
	s := make([]byte, ed25519.SeedSize)
	s[0] = seed
	key := ed25519.NewKeyFromSeed(s)
	return withdrawer{
		kind: types.SignatureEd25519,
		id:   common.HexBytes(key.Public().(ed25519.PublicKey)),
		sign: func(msg types.WithdrawalMessage) common.HexBytes {
			hash := msg.Hash()
			return ed25519.Sign(key, hash[:])
		},
	}
}

func evmWithdrawer(t *testing.T) withdrawer {
	key, err := crypto.ToECDSA(common.Keccak256([]byte("relayer-evm")).Bytes())
	require.NoError(t, err)
	return withdrawer{
		kind: types.SignatureEvm,
		id:   common.HexBytes(common.PubkeyToAddress(key.PublicKey).Bytes()),
		sign: func(msg types.WithdrawalMessage) common.HexBytes {
			// keccak of the encoded message is the withdrawal hash
			_, sig, err := common.EthSignWithKey(key, codec.Encode(msg))
			require.NoError(t, err)
			return sig
		},
	}
}

func sr25519Withdrawer(t *testing.T) withdrawer {
	seed := [32]byte{7}
	pub, _, err := common.Sr25519Sign(seed, nil)
	require.NoError(t, err)
	return withdrawer{
		kind: types.SignatureSr25519,
		id:   pub,
		sign: func(msg types.WithdrawalMessage) common.HexBytes {
			hash := msg.Hash()
			_, sig, err := common.Sr25519Sign(seed, hash[:])
			require.NoError(t, err)
			return sig
		},
	}
}

// withdraw signs a withdrawal of amount under the given nonce.
func (c *testChain) withdraw(w withdrawer, nonce uint64, dest types.StateMachine, amount uint64) (common.Hash, error) {
	msg := types.WithdrawalMessage{Nonce: nonce, DestChain: dest, Amount: uint256.NewInt(amount)}
	return c.host.WithdrawFees(context.Background(), types.WithdrawalInputData{
		Signature: types.Signature{Kind: w.kind, Signer: w.id, Signature: w.sign(msg)},
		DestChain: dest,
		Amount:    uint256.NewInt(amount),
	})
}

func (c *testChain) nonce(w withdrawer, dest types.StateMachine) uint64 {
	n, err := c.host.Nonce(w.id, dest)
	require.NoError(c.t, err)
	return n
}

func TestWithdrawFees(t *testing.T) {
	h := newTestChain(t, hub, "HUB0", 3)
	w := ed25519Withdrawer(t, 9)
	h.credit(chainA, w.id, 100)

	_, err := h.withdraw(w, 1, chainA, 0)
	assert.ErrorIs(t, err, ismperrors.ErrFInvalidAmount)

	commitment, err := h.withdraw(w, 1, chainA, 60)
	require.NoError(t, err)
	assert.EqualValues(t, 40, h.fees(chainA, w.id))
	assert.EqualValues(t, 1, h.nonce(w, chainA))
	assert.Equal(t, types.WithdrawEvent{Address: w.id, StateMachine: chainA, Amount: uint256.NewInt(60)}, lastEvent(t, h.host))

	reqs, err := h.host.GetRequests([]uint64{h.position(RequestCommitmentKey(commitment))})
	require.NoError(t, err)
	payout := reqs[0].Post
	require.NotNil(t, payout)
	assert.Equal(t, chainA, payout.Dest)
	assert.Equal(t, DefaultFeeModuleID, payout.From)
	assert.Equal(t, DefaultFeeModuleID, payout.To)
	assert.EqualValues(t, 500, payout.TimeoutTimestamp)
	var params types.WithdrawalParams
	require.NoError(t, codec.Decode(payout.Body, &params))
	assert.Equal(t, w.id, params.Beneficiary)
	assert.Equal(t, uint256.NewInt(60), params.Amount)

	// the same signature cannot be replayed
	_, err = h.withdraw(w, 1, chainA, 10)
	assert.ErrorIs(t, err, ismperrors.ErrFInvalidSignature)

	_, err = h.withdraw(w, 2, chainA, 41)
	assert.ErrorIs(t, err, ismperrors.ErrFInsufficientBalance)
	assert.EqualValues(t, 1, h.nonce(w, chainA))

	// balances are per chain
	_, err = h.withdraw(w, 1, chainB, 1)
	assert.ErrorIs(t, err, ismperrors.ErrFInsufficientBalance)

	_, err = h.withdraw(w, 2, chainA, 40)
	require.NoError(t, err)
	assert.EqualValues(t, 0, h.fees(chainA, w.id))
}

func TestWithdrawSignatureKinds(t *testing.T) {
	for name, mk := range map[string]func(t *testing.T) withdrawer{
		"evm":     evmWithdrawer,
		"sr25519": sr25519Withdrawer,
		"ed25519": func(t *testing.T) withdrawer { return ed25519Withdrawer(t, 4) },
	} {
		t.Run(name, func(t *testing.T) {
			h := newTestChain(t, hub, "HUB0", 3)
			w := mk(t)
			h.credit(chainB, w.id, 10)
			_, err := h.withdraw(w, 1, chainB, 10)
			require.NoError(t, err)
			assert.EqualValues(t, 0, h.fees(chainB, w.id))

			h.credit(chainB, w.id, 10)
			forged := w
			forged.id = append(common.HexBytes{}, w.id...)
			forged.id[0] ^= 1
			h.credit(chainB, forged.id, 10)
			_, err = h.withdraw(forged, 1, chainB, 10)
			assert.ErrorIs(t, err, ismperrors.ErrFInvalidSignature)
		})
	}
}

func TestPayoutTimeoutRestoresBalance(t *testing.T) {
	a := newTestChain(t, chainA, "ETH0", 1)
	h := newTestChain(t, hub, "HUB0", 3)
	h.track(a, 0, 10000)
	w := ed25519Withdrawer(t, 9)
	h.credit(chainA, w.id, 100)

	commitment, err := h.withdraw(w, 1, chainA, 60)
	require.NoError(t, err)
	reqs, err := h.host.GetRequests([]uint64{h.position(RequestCommitmentKey(commitment))})
	require.NoError(t, err)

	a.at(600)
	height := a.proveTo(h)
	h.handleOK(postTimeoutMsg([]types.PostRequest{*reqs[0].Post}, height, a.readProof(RequestReceiptKey(commitment))))
	assert.EqualValues(t, 100, h.fees(chainA, w.id))
	assert.EqualValues(t, 1, h.nonce(w, chainA))
}

func TestPayoutDelivered(t *testing.T) {
	a := newTestChain(t, chainA, "ETH0", 1)
	h := newTestChain(t, hub, "HUB0", 3)
	a.track(h, 0, 1000)
	w := ed25519Withdrawer(t, 9)
	h.credit(chainA, w.id, 100)

	commitment, err := h.withdraw(w, 1, chainA, 60)
	require.NoError(t, err)
	reqs, err := h.host.GetRequests([]uint64{h.position(RequestCommitmentKey(commitment))})
	require.NoError(t, err)
	payout := *reqs[0].Post

	a.handleOK(requestMsg([]types.PostRequest{payout}, h.proveTo(a), h.requestProof(payout)))
	assert.True(t, a.has(RequestReceiptKey(commitment)))
	assert.Empty(t, a.app.accepted)
}
