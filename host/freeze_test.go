package host

import (
	"context"
	"testing"

	"github.com/colorfulnotion/ismp/ismperrors"
	"github.com/colorfulnotion/ismp/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFreezeStateMachine(t *testing.T) {
	ctx := context.Background()
	a := newTestChain(t, chainA, "ETH0", 1)
	b := newTestChain(t, chainB, "PARA", 2)
	b.track(a, 0, 1000)

	req := a.post(b, appID, 0, 1)
	height := a.proveTo(b)
	msg := requestMsg([]types.PostRequest{req}, height, a.requestProof(req))

	assert.ErrorIs(t, b.host.FreezeStateMachine(ctx, relayer, a.smID()), ismperrors.ErrHUnauthorized)

	require.NoError(t, b.host.FreezeStateMachine(ctx, admin, a.smID()))
	assert.Equal(t, types.StateMachineFrozenEvent{StateMachineID: a.smID()}, lastEvent(t, b.host))

	requireCode(t, b.handle(msg), ismperrors.ErrHFrozenStateMachine)
	assert.Empty(t, b.app.accepted)
	next, _ := a.finalize()
	requireCode(t, b.handle(a.consensusMsg(next)), ismperrors.ErrHFrozenStateMachine)

	require.NoError(t, b.host.UnfreezeStateMachine(ctx, admin, a.smID()))
	assert.Equal(t, types.StateMachineUnfrozenEvent{StateMachineID: a.smID()}, lastEvent(t, b.host))
	b.handleOK(msg)
	b.handleOK(a.consensusMsg(next))
	assert.Len(t, b.app.accepted, 1)

	other := a.smID()
	other.ConsensusStateID = types.MustFourByteID("NONE")
	assert.ErrorIs(t, b.host.FreezeStateMachine(ctx, admin, other), ismperrors.ErrHConsensusStateNotFound)
}

func TestFreezeConsensusClient(t *testing.T) {
	ctx := context.Background()
	a := newTestChain(t, chainA, "ETH0", 1)
	b := newTestChain(t, chainB, "PARA", 2)
	b.track(a, 0, 1000)

	req := a.post(b, appID, 0, 1)
	height := a.proveTo(b)
	msg := requestMsg([]types.PostRequest{req}, height, a.requestProof(req))

	assert.ErrorIs(t, b.host.FreezeConsensusClient(ctx, relayer, a.stateID), ismperrors.ErrHUnauthorized)
	require.NoError(t, b.host.FreezeConsensusClient(ctx, admin, a.stateID))
	assert.Equal(t, types.ConsensusClientFrozenEvent{ConsensusStateID: a.stateID}, lastEvent(t, b.host))

	requireCode(t, b.handle(msg), ismperrors.ErrHFrozenConsensusClient)

	require.NoError(t, b.host.UnfreezeConsensusClient(ctx, admin, a.stateID))
	rec, err := b.host.ConsensusState(a.stateID)
	require.NoError(t, err)
	assert.False(t, rec.Frozen)
	b.handleOK(msg)
}

func TestFrozenStateMachineBlocksResponsesAndTimeouts(t *testing.T) {
	ctx := context.Background()
	a := newTestChain(t, chainA, "ETH0", 1)
	b := newTestChain(t, chainB, "PARA", 2)
	a.track(b, 0, 1000)
	b.track(a, 0, 1000)
	b.app.respond = true

	req := a.post(b, appID, 0, 0)
	lost := a.post(b, appID, 100, 1)
	b.handleOK(requestMsg([]types.PostRequest{req}, a.proveTo(b), a.requestProof(req)))

	resp := types.PostResponse{Post: req, Response: []byte("pong")}
	meta, err := b.host.ResponseCommitment(resp.Commitment())
	require.NoError(t, err)
	proof, err := b.host.EncodedProof([]uint64{meta.Leaf.Position})
	require.NoError(t, err)
	respMsg := types.Message{Response: &types.ResponseMessage{
		Responses: []types.Response{{Post: &resp}},
		Proof:     types.Proof{Height: b.proveTo(a), Proof: proof},
		Signer:    relayer,
	}}

	b.at(120)
	height := b.proveTo(a)
	timeoutMsg := postTimeoutMsg([]types.PostRequest{lost}, height, b.readProof(RequestReceiptKey(lost.Commitment())))

	require.NoError(t, a.host.FreezeStateMachine(ctx, admin, b.smID()))
	requireCode(t, a.handle(respMsg), ismperrors.ErrHFrozenStateMachine)
	requireCode(t, a.handle(timeoutMsg), ismperrors.ErrHFrozenStateMachine)
	assert.Empty(t, a.app.responses)
	assert.Empty(t, a.app.timeouts)

	require.NoError(t, a.host.UnfreezeStateMachine(ctx, admin, b.smID()))
	a.handleOK(respMsg)
	a.handleOK(timeoutMsg)
	assert.Len(t, a.app.responses, 1)
	require.Len(t, a.app.timeouts, 1)
	assert.Equal(t, lost, *a.app.timeouts[0].Request.Post)
}
