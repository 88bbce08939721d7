package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/colorfulnotion/ismp/common"
	"github.com/colorfulnotion/ismp/host"
	"github.com/colorfulnotion/ismp/ismperrors"
	"github.com/colorfulnotion/ismp/storage"
	"github.com/colorfulnotion/ismp/types"
	"github.com/gorilla/websocket"
	"github.com/holiman/uint256"
	"github.com/nsf/jsondiff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var chainA = types.EvmStateMachine(1)

func newTestServer(t *testing.T) (*host.Host, *Server) {
	db, err := storage.NewMemoryPersistenceStore()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	h, err := host.New(host.Config{StateMachine: chainA, Admins: []common.HexBytes{common.HexBytes("admin")}}, db, nil)
	require.NoError(t, err)
	h.BeginBlock(1, 10)

	ctx, cancel := context.WithCancel(context.Background())
	s, err := NewServer(ctx, h)
	require.NoError(t, err)
	t.Cleanup(func() {
		cancel()
		s.wg.Wait()
	})
	return h, s
}

func dispatch(t *testing.T, h *host.Host, body string) common.Hash {
	commitment, err := h.DispatchPost(context.Background(), host.DispatchPost{
		Dest:             types.PolkadotStateMachine(2000),
		From:             common.HexBytes("app"),
		To:               common.HexBytes("app"),
		TimeoutTimestamp: 0,
		Body:             []byte(body),
	}, types.FeeMetadata{Fee: uint256.NewInt(5)})
	require.NoError(t, err)
	return commitment
}

func requireSameJSON(t *testing.T, expected, actual []byte) {
	t.Helper()
	opts := jsondiff.DefaultConsoleOptions()
	diff, explanation := jsondiff.Compare(expected, actual, &opts)
	require.Equal(t, jsondiff.FullMatch, diff, explanation)
}

func TestServiceQueries(t *testing.T) {
	h, s := newTestServer(t)
	c := &Client{Client: s.localClient()}
	defer c.Close()

	first := dispatch(t, h, "one")
	dispatch(t, h, "two")

	count, err := c.MmrLeafCount()
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	root, err := c.MmrRoot()
	require.NoError(t, err)
	want, err := h.MmrRoot()
	require.NoError(t, err)
	assert.Equal(t, want, root)

	stateRoot, err := c.StateRoot()
	require.NoError(t, err)
	wantState, err := h.StateRoot()
	require.NoError(t, err)
	assert.Equal(t, wantState, stateRoot)

	meta, err := h.RequestCommitment(first)
	require.NoError(t, err)
	reqs, err := c.GetRequests([]uint64{meta.Leaf.Position})
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, first, reqs[0].Commitment())

	proof, err := c.GenerateProof([]uint64{meta.Leaf.Position})
	require.NoError(t, err)
	wantProof, err := h.EncodedProof([]uint64{meta.Leaf.Position})
	require.NoError(t, err)
	assert.Equal(t, wantProof, proof)

	_, err = c.call("GenerateProof", []string{"x"})
	assert.Error(t, err)

	var functions string
	require.NoError(t, c.Client.Call(ServiceName+".Functions", []string{}, &functions))
	assert.Contains(t, functions, "HandleMessages")
}

func TestHandleMessagesOverRPC(t *testing.T) {
	h, s := newTestServer(t)
	c := &Client{Client: s.localClient()}
	defer c.Close()

	msgs := types.Messages{{Consensus: &types.ConsensusMessage{
		ConsensusProof:   []byte{1, 2, 3},
		ConsensusStateID: types.MustFourByteID("NONE"),
		Signer:           common.HexBytes("relayer"),
	}}}

	errs, err := c.ValidateMessages(msgs)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, ismperrors.GetErrorCode(ismperrors.ErrHConsensusStateNotFound), errs[0].Code)
	assert.Empty(t, h.BlockEvents())

	errs, err = c.HandleMessages(msgs)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	require.Len(t, h.BlockEvents(), 1)
	assert.IsType(t, types.ErrorsEvent{}, h.BlockEvents()[0])

	_, err = c.call("HandleMessages", []string{"0x0409"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode messages")
}

func TestBlockEventsJSON(t *testing.T) {
	h, s := newTestServer(t)
	c := &Client{Client: s.localClient()}
	defer c.Close()

	commitment := dispatch(t, h, "one")
	res, err := c.call("BlockEvents", []string{})
	require.NoError(t, err)

	expected := fmt.Sprintf(`[{
		"block_number": 1,
		"index": 0,
		"name": "Request",
		"data": {
			"dest_chain": "POLKADOT-2000",
			"source_chain": "EVM-1",
			"request_nonce": 0,
			"commitment": %q
		}
	}]`, commitment.Hex())
	requireSameJSON(t, []byte(expected), []byte(res))
}

func TestJSONBridge(t *testing.T) {
	h, s := newTestServer(t)
	dispatch(t, h, "one")
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	post := func(body string) []byte {
		resp, err := http.Post(srv.URL+"/rpc", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var buf bytes.Buffer
		_, err = buf.ReadFrom(resp.Body)
		require.NoError(t, err)
		return buf.Bytes()
	}

	requireSameJSON(t, []byte(`{"jsonrpc":"2.0","result":1,"id":7}`),
		post(`{"jsonrpc":"2.0","method":"MmrLeafCount","params":[],"id":7}`))

	root, err := h.MmrRoot()
	require.NoError(t, err)
	requireSameJSON(t, []byte(fmt.Sprintf(`{"jsonrpc":"2.0","result":%q,"id":8}`, root.Hex())),
		post(`{"jsonrpc":"2.0","method":"MmrRoot","params":[],"id":8}`))

	var failed jsonResponse
	require.NoError(t, json.Unmarshal(post(`{"jsonrpc":"2.0","method":"ConsensusState","params":["NONE"],"id":9}`), &failed))
	assert.Contains(t, failed.Error, "H2|ConsensusStateNotFound")

	resp, err := http.Get(srv.URL + "/rpc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func readJSON(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func TestEventFeed(t *testing.T) {
	h, s := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"method": SubEvents,
		"params": map[string]interface{}{"events": []string{"Request"}},
	}))
	var ack struct {
		Method string `json:"method"`
		Result bool   `json:"result"`
	}
	readJSON(t, conn, &ack)
	assert.Equal(t, SubEvents, ack.Method)
	assert.True(t, ack.Result)

	// the Errors event is filtered out
	errs, err := h.Handle(context.Background(), types.Messages{{Consensus: &types.ConsensusMessage{
		ConsensusStateID: types.MustFourByteID("NONE"),
	}}})
	require.NoError(t, err)
	require.Len(t, errs, 1)
	commitment := dispatch(t, h, "one")

	var note struct {
		Method string `json:"method"`
		Result struct {
			BlockNumber uint64             `json:"block_number"`
			Name        string             `json:"name"`
			Data        types.RequestEvent `json:"data"`
		} `json:"result"`
	}
	readJSON(t, conn, &note)
	assert.Equal(t, SubEvents, note.Method)
	assert.EqualValues(t, 1, note.Result.BlockNumber)
	assert.Equal(t, "Request", note.Result.Name)
	assert.Equal(t, commitment, note.Result.Data.Commitment)
	assert.Equal(t, chainA, note.Result.Data.SourceChain)
}
