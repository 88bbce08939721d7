package host

import (
	"context"
	"testing"

	"github.com/colorfulnotion/ismp/common"
	"github.com/colorfulnotion/ismp/ismperrors"
	"github.com/colorfulnotion/ismp/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postTimeoutMsg(reqs []types.PostRequest, height types.StateMachineHeight, proof []byte) types.Message {
	msg := &types.TimeoutMessage{
		Kind:         types.TimeoutPost,
		TimeoutProof: &types.Proof{Height: height, Proof: proof},
		Signer:       relayer,
	}
	for i := range reqs {
		msg.Requests = append(msg.Requests, types.Request{Post: &reqs[i]})
	}
	return types.Message{Timeout: msg}
}

func TestPostRequestTimeout(t *testing.T) {
	a := newTestChain(t, chainA, "ETH0", 1)
	b := newTestChain(t, chainB, "PARA", 2)
	a.track(b, 0, 1000)
	b.track(a, 0, 1000)

	delivered := a.post(b, appID, 100, 1)
	lost := a.post(b, appID, 100, 1)
	b.at(10)
	b.handleOK(requestMsg([]types.PostRequest{delivered}, a.proveTo(b), a.requestProof(delivered)))

	b.at(50)
	early := b.proveTo(a)
	requireCode(t, a.handle(postTimeoutMsg([]types.PostRequest{lost}, early, b.readProof(RequestReceiptKey(lost.Commitment())))),
		ismperrors.ErrHRequestTimeoutNotElapsed)

	b.at(120)
	height := b.proveTo(a)
	requireCode(t, a.handle(postTimeoutMsg([]types.PostRequest{delivered}, height, b.readProof(RequestReceiptKey(delivered.Commitment())))),
		ismperrors.ErrHNonMembershipProofVerificationFailed)

	msg := postTimeoutMsg([]types.PostRequest{lost}, height, b.readProof(RequestReceiptKey(lost.Commitment())))
	a.handleOK(msg)
	require.Len(t, a.app.timeouts, 1)
	assert.Equal(t, lost, *a.app.timeouts[0].Request.Post)
	assert.Equal(t, types.PostRequestTimeoutHandledEvent{Commitment: lost.Commitment(), Source: chainA, Dest: chainB}, lastEvent(t, a.host))
	_, err := a.host.RequestCommitment(lost.Commitment())
	assert.ErrorIs(t, err, ismperrors.ErrHRequestCommitmentNotFound)

	requireCode(t, a.handle(msg), ismperrors.ErrHRequestCommitmentNotFound)
}

func TestPostRequestWithoutTimeoutNeverExpires(t *testing.T) {
	a := newTestChain(t, chainA, "ETH0", 1)
	b := newTestChain(t, chainB, "PARA", 2)
	a.track(b, 0, 1000)

	req := a.post(b, appID, 0, 1)
	b.at(999)
	height := b.proveTo(a)
	requireCode(t, a.handle(postTimeoutMsg([]types.PostRequest{req}, height, b.readProof(RequestReceiptKey(req.Commitment())))),
		ismperrors.ErrHRequestTimeoutNotElapsed)
}

func TestPostResponseTimeout(t *testing.T) {
	ctx := context.Background()
	a := newTestChain(t, chainA, "ETH0", 1)
	b := newTestChain(t, chainB, "PARA", 2)
	a.track(b, 0, 1000)
	b.track(a, 0, 1000)
	b.app.respond = true
	b.app.responseTimeout = 100

	req := a.post(b, appID, 0, 1)
	b.handleOK(requestMsg([]types.PostRequest{req}, a.proveTo(b), a.requestProof(req)))
	resp := types.PostResponse{Post: req, Response: []byte("pong"), TimeoutTimestamp: 100}

	a.at(150)
	height := a.proveTo(b)
	msg := types.Message{Timeout: &types.TimeoutMessage{
		Kind:         types.TimeoutPostResponse,
		Responses:    []types.PostResponse{resp},
		TimeoutProof: &types.Proof{Height: height, Proof: a.readProof(ResponseReceiptKey(req.Commitment()))},
		Signer:       relayer,
	}}
	b.handleOK(msg)
	require.Len(t, b.app.timeouts, 1)
	assert.Equal(t, resp, *b.app.timeouts[0].Response.Post)
	assert.Equal(t, types.PostResponseTimeoutHandledEvent{Commitment: resp.Commitment(), Source: chainB, Dest: chainA}, lastEvent(t, b.host))

	// the request may be answered again
	_, err := b.host.DispatchResponse(ctx, types.PostResponse{Post: req, Response: []byte("retry")}, types.FeeMetadata{})
	require.NoError(t, err)
}

func TestGetRequestTimeout(t *testing.T) {
	a := newTestChain(t, chainA, "ETH0", 1)
	commitment, err := a.host.DispatchGet(context.Background(), DispatchGet{
		Dest:             chainB,
		From:             appID,
		Keys:             []common.HexBytes{common.HexBytes("k")},
		Height:           1,
		TimeoutTimestamp: 100,
	}, types.FeeMetadata{})
	require.NoError(t, err)
	reqs, err := a.host.GetRequests([]uint64{a.position(RequestCommitmentKey(commitment))})
	require.NoError(t, err)
	msg := types.Message{Timeout: &types.TimeoutMessage{Kind: types.TimeoutGet, Requests: reqs, Signer: relayer}}

	a.at(50)
	requireCode(t, a.handle(msg), ismperrors.ErrHRequestTimeoutNotElapsed)

	a.at(100)
	dup := types.Message{Timeout: &types.TimeoutMessage{Kind: types.TimeoutGet, Requests: append(reqs, reqs...), Signer: relayer}}
	requireCode(t, a.handle(dup), ismperrors.ErrHRequestCommitmentNotFound)
	a.app.timeouts = nil

	a.handleOK(msg)
	require.Len(t, a.app.timeouts, 1)
	assert.Equal(t, types.GetRequestTimeoutHandledEvent{Commitment: commitment, Source: chainA, Dest: chainB}, lastEvent(t, a.host))

	requireCode(t, a.handle(msg), ismperrors.ErrHRequestCommitmentNotFound)
}

func TestTimeoutProofMustComeFromDestination(t *testing.T) {
	a := newTestChain(t, chainA, "ETH0", 1)
	b := newTestChain(t, chainB, "PARA", 2)
	c := newTestChain(t, hub, "HUB0", 3)
	a.track(c, 0, 1000)

	req := a.post(b, appID, 10, 1)
	c.at(100)
	height := c.proveTo(a)
	requireCode(t, a.handle(postTimeoutMsg([]types.PostRequest{req}, height, c.readProof(RequestReceiptKey(req.Commitment())))),
		ismperrors.ErrHInvalidSource)
}
