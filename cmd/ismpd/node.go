package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/colorfulnotion/ismp/codec"
	"github.com/colorfulnotion/ismp/common"
	"github.com/colorfulnotion/ismp/host"
	"github.com/colorfulnotion/ismp/ismperrors"
	"github.com/colorfulnotion/ismp/log"
	"github.com/colorfulnotion/ismp/storage"
	"github.com/colorfulnotion/ismp/types"
)

const (
	configFileName = "config.json"
	dbDirName      = "db"
)

// resolveConfig loads the config named by --config, falling back to the one init
// wrote into the data directory. The data directory flag wins over the file.
func resolveConfig(opts *options) (*host.Config, error) {
	path := opts.configPath
	if path == "" {
		path = filepath.Join(opts.dataDir, configFileName)
	}
	cfg, err := host.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("%v (run `ismpd init` first)", err)
	}
	if opts.dataDir != "" {
		cfg.DataDir = opts.dataDir
	}
	if cfg.DataDir == "" {
		return nil, errors.New("no data directory configured")
	}
	return cfg, nil
}

func writeConfig(cfg *host.Config) (string, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(cfg.DataDir, configFileName)
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", err
	}
	return path, os.WriteFile(path, data, 0o644)
}

// openHost opens the store under the data directory and the host over it. The
// returned closer releases the store.
func openHost(opts *options) (*host.Host, func(), error) {
	cfg, err := resolveConfig(opts)
	if err != nil {
		return nil, nil, err
	}
	db, err := storage.NewPersistenceStore(filepath.Join(cfg.DataDir, dbDirName))
	if err != nil {
		return nil, nil, err
	}
	h, err := host.New(*cfg, db, nil)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	ts := opts.timestamp
	if ts == 0 {
		ts = uint64(time.Now().Unix())
	}
	h.BeginBlock(opts.block, ts)
	log.Debug(log.HandlerModule, "host opened", "datadir", cfg.DataDir, "block", opts.block, "timestamp", ts)
	return h, func() {
		if err := db.Close(); err != nil {
			log.Warn(log.StorageModule, "close store", "err", err)
		}
	}, nil
}

// readMessages loads a SCALE encoded batch from path, or stdin for "-". Files may
// carry raw bytes or 0x prefixed hex.
func readMessages(path string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	if text := strings.TrimSpace(string(data)); strings.HasPrefix(text, "0x") {
		return common.FromHex(text), nil
	}
	return data, nil
}

func decodeMessages(data []byte, msgs *types.Messages) error {
	if err := codec.Decode(data, msgs); err != nil {
		return fmt.Errorf("%v: %w", err, ismperrors.ErrEMalformedMessage)
	}
	return nil
}

func parseStateMachineID(sm, cs string) (types.StateMachineID, error) {
	stateID, err := types.ParseStateMachine(sm)
	if err != nil {
		return types.StateMachineID{}, err
	}
	csID, err := types.NewFourByteID(cs)
	if err != nil {
		return types.StateMachineID{}, err
	}
	return types.StateMachineID{StateID: stateID, ConsensusStateID: csID}, nil
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
