package rpc

import (
	"encoding/json"
	"fmt"
	"net/rpc"
	"strconv"

	"github.com/colorfulnotion/ismp/codec"
	"github.com/colorfulnotion/ismp/common"
	"github.com/colorfulnotion/ismp/types"
	"github.com/holiman/uint256"
)

// Client is a typed wrapper over a net/rpc connection to the ismp service.
type Client struct {
	Client *rpc.Client
}

func Dial(addr string) (*Client, error) {
	c, err := rpc.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{Client: c}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

func (c *Client) call(method string, req []string) (string, error) {
	var res string
	err := c.Client.Call(ServiceName+"."+method, req, &res)
	return res, err
}

func positionArgs(positions []uint64) []string {
	req := make([]string, len(positions))
	for i, p := range positions {
		req[i] = strconv.FormatUint(p, 10)
	}
	return req
}

func (c *Client) StateRoot() (common.Hash, error) {
	res, err := c.call("StateRoot", []string{})
	if err != nil {
		return common.Hash{}, err
	}
	return common.HexToHash(res), nil
}

func (c *Client) MmrRoot() (common.Hash, error) {
	res, err := c.call("MmrRoot", []string{})
	if err != nil {
		return common.Hash{}, err
	}
	return common.HexToHash(res), nil
}

func (c *Client) MmrLeafCount() (uint64, error) {
	res, err := c.call("MmrLeafCount", []string{})
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(res, 10, 64)
}

// GenerateProof returns the encoded MMR proof for the leaves at positions.
func (c *Client) GenerateProof(positions []uint64) ([]byte, error) {
	res, err := c.call("GenerateProof", positionArgs(positions))
	if err != nil {
		return nil, err
	}
	return common.FromHex(res), nil
}

func (c *Client) GetRequests(positions []uint64) ([]types.Request, error) {
	res, err := c.call("GetRequests", positionArgs(positions))
	if err != nil {
		return nil, err
	}
	var reqs []types.Request
	if err := json.Unmarshal([]byte(res), &reqs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal requests: %w", err)
	}
	return reqs, nil
}

func (c *Client) ReadProof(keys [][]byte) ([]byte, error) {
	req := make([]string, len(keys))
	for i, k := range keys {
		req[i] = common.Bytes2Hex(k)
	}
	res, err := c.call("ReadProof", req)
	if err != nil {
		return nil, err
	}
	return common.FromHex(res), nil
}

func (c *Client) handle(method string, msgs types.Messages) ([]types.HandlingError, error) {
	res, err := c.call(method, []string{common.Bytes2Hex(codec.Encode(msgs))})
	if err != nil {
		return nil, err
	}
	var errs []types.HandlingError
	if err := json.Unmarshal([]byte(res), &errs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal handling errors: %w", err)
	}
	return errs, nil
}

// HandleMessages submits msgs and returns the per-message failures.
func (c *Client) HandleMessages(msgs types.Messages) ([]types.HandlingError, error) {
	return c.handle("HandleMessages", msgs)
}

func (c *Client) ValidateMessages(msgs types.Messages) ([]types.HandlingError, error) {
	return c.handle("ValidateMessages", msgs)
}

func (c *Client) ConsensusState(id types.ConsensusStateID) (*types.ConsensusStateRecord, error) {
	res, err := c.call("ConsensusState", []string{id.String()})
	if err != nil {
		return nil, err
	}
	var rec types.ConsensusStateRecord
	if err := json.Unmarshal([]byte(res), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal consensus state: %w", err)
	}
	return &rec, nil
}

func (c *Client) LatestStateMachineHeight(id types.StateMachineID) (uint64, error) {
	res, err := c.call("LatestStateMachineHeight", []string{id.StateID.String(), id.ConsensusStateID.String()})
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(res, 10, 64)
}

func (c *Client) Fees(sm types.StateMachine, relayer []byte) (*uint256.Int, error) {
	res, err := c.call("Fees", []string{sm.String(), common.Bytes2Hex(relayer)})
	if err != nil {
		return nil, err
	}
	return uint256.FromDecimal(res)
}

func (c *Client) WithdrawFees(input types.WithdrawalInputData) (common.Hash, error) {
	res, err := c.call("WithdrawFees", []string{common.Bytes2Hex(codec.Encode(input))})
	if err != nil {
		return common.Hash{}, err
	}
	return common.HexToHash(res), nil
}

func (c *Client) AccumulateFees(proof types.WithdrawalProof) error {
	_, err := c.call("AccumulateFees", []string{common.Bytes2Hex(codec.Encode(proof))})
	return err
}
