package host

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/colorfulnotion/ismp/common"
	"github.com/colorfulnotion/ismp/types"
)

// DefaultFeeModuleID is the module id the relayer fee ledger is routed under.
var DefaultFeeModuleID = common.HexBytes("ismp-relayer-fees")

type Config struct {
	// StateMachine identifies this host in requests and responses.
	StateMachine types.StateMachine `json:"state_machine"`
	// Admins may create and update consensus clients and freeze or unfreeze.
	Admins      []common.HexBytes `json:"admins"`
	FeeModuleID common.HexBytes   `json:"fee_module_id,omitempty"`
	// PayoutTimeout is added to the host time to set the timeout of withdrawal payouts.
	// Zero payouts never time out.
	PayoutTimeout uint64                       `json:"payout_timeout"`
	DataDir       string                       `json:"datadir"`
	Genesis       []types.CreateConsensusState `json:"genesis,omitempty"`
}

func (c *Config) String() string {
	out, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("Config{%s}", c.StateMachine)
	}
	return string(out)
}

// LoadConfig reads a JSON config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) feeModuleID() []byte {
	if len(c.FeeModuleID) == 0 {
		return DefaultFeeModuleID
	}
	return c.FeeModuleID
}

func (c *Config) isAdmin(origin []byte) bool {
	for _, a := range c.Admins {
		if bytes.Equal(a, origin) {
			return true
		}
	}
	return false
}
