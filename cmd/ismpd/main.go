// ismpd runs an ISMP host over a LevelDB data directory. It can initialise the
// directory, apply or dry-run message batches, answer state queries, print the
// request accumulator and serve the host over RPC.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/colorfulnotion/ismp/common"
	"github.com/colorfulnotion/ismp/host"
	"github.com/colorfulnotion/ismp/log"
	"github.com/colorfulnotion/ismp/rpc"
	"github.com/colorfulnotion/ismp/types"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

type options struct {
	dataDir      string
	configPath   string
	logLevel     string
	logJSON      bool
	logModules   string
	otlpEndpoint string
	rpcPort      int
	block        uint64
	timestamp    uint64

	shutdownTracing func(context.Context) error
}

func main() {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:           "ismpd",
		Short:         "ISMP host node",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.logJSON {
				log.InitJSONLogger(opts.logLevel)
			} else {
				log.InitLogger(opts.logLevel)
			}
			if opts.logModules != "" {
				log.EnableModules(opts.logModules)
			}
			if opts.otlpEndpoint != "" {
				shutdown, err := setupTracing(cmd.Context(), opts.otlpEndpoint)
				if err != nil {
					return fmt.Errorf("tracing: %w", err)
				}
				opts.shutdownTracing = shutdown
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.shutdownTracing != nil {
				if err := opts.shutdownTracing(context.Background()); err != nil {
					log.Warn(log.RPCModule, "tracing shutdown", "err", err)
				}
			}
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.dataDir, "datadir", "", "data directory (default ./ismpd-data for init)")
	flags.StringVar(&opts.configPath, "config", "", "config file (default <datadir>/config.json)")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level: trace, debug, info, warn, error")
	flags.BoolVar(&opts.logJSON, "log-json", false, "log JSON lines instead of text")
	flags.StringVar(&opts.logModules, "log-modules", "", "comma separated log modules to enable")
	flags.StringVar(&opts.otlpEndpoint, "otlp-endpoint", "", "OTLP/HTTP collector host:port for spans")
	flags.IntVar(&opts.rpcPort, "rpc-port", 9944, "net/rpc port for serve")
	flags.Uint64Var(&opts.block, "block", 0, "block number the host runs at")
	flags.Uint64Var(&opts.timestamp, "timestamp", 0, "host time in seconds (default now)")

	rootCmd.AddCommand(
		newInitCmd(opts),
		newHandleCmd(opts, false),
		newHandleCmd(opts, true),
		newQueryCmd(opts),
		newMmrCmd(opts),
		newServeCmd(opts),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newInitCmd(opts *options) *cobra.Command {
	var (
		stateMachine  string
		admins        []string
		feeModule     string
		payoutTimeout uint64
		genesisPath   string
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config and create the genesis consensus clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			sm, err := types.ParseStateMachine(stateMachine)
			if err != nil {
				return err
			}
			cfg := &host.Config{StateMachine: sm, PayoutTimeout: payoutTimeout, DataDir: opts.dataDir}
			if cfg.DataDir == "" {
				cfg.DataDir = "./ismpd-data"
			}
			for _, a := range admins {
				cfg.Admins = append(cfg.Admins, common.FromHex(a))
			}
			if feeModule != "" {
				cfg.FeeModuleID = common.HexBytes(feeModule)
			}
			if genesisPath != "" {
				data, err := os.ReadFile(genesisPath)
				if err != nil {
					return err
				}
				if err := json.Unmarshal(data, &cfg.Genesis); err != nil {
					return fmt.Errorf("parse genesis %s: %w", genesisPath, err)
				}
			}
			path, err := writeConfig(cfg)
			if err != nil {
				return err
			}
			opts.dataDir, opts.configPath = cfg.DataDir, path
			h, closeDB, err := openHost(opts)
			if err != nil {
				return err
			}
			defer closeDB()
			root, err := h.StateRoot()
			if err != nil {
				return err
			}
			fmt.Printf("Initialized %s\n", cfg.StateMachine)
			fmt.Printf("  Config: %s\n", path)
			fmt.Printf("  Consensus clients: %d\n", len(cfg.Genesis))
			fmt.Printf("  State root: %s\n", root.Hex())
			return nil
		},
	}
	cmd.Flags().StringVar(&stateMachine, "state-machine", "EVM-1", "state machine this host runs as")
	cmd.Flags().StringSliceVar(&admins, "admin", nil, "hex account allowed to manage consensus clients (repeatable)")
	cmd.Flags().StringVar(&feeModule, "fee-module", "", "module id of the relayer fee ledger")
	cmd.Flags().Uint64Var(&payoutTimeout, "payout-timeout", 0, "seconds before a withdrawal payout times out")
	cmd.Flags().StringVar(&genesisPath, "genesis", "", "JSON file with consensus clients to create")
	return cmd
}

func newHandleCmd(opts *options, validate bool) *cobra.Command {
	use, short := "handle <file|->", "Apply a SCALE encoded message batch"
	if validate {
		use, short = "validate <file|->", "Dry-run a SCALE encoded message batch"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readMessages(args[0])
			if err != nil {
				return err
			}
			h, closeDB, err := openHost(opts)
			if err != nil {
				return err
			}
			defer closeDB()

			var errs []types.HandlingError
			if validate {
				var msgs types.Messages
				if err := decodeMessages(data, &msgs); err != nil {
					return err
				}
				errs, err = h.ValidateMessages(cmd.Context(), msgs)
			} else {
				errs, err = h.HandleEncoded(cmd.Context(), data)
			}
			if err != nil {
				return err
			}
			if errs == nil {
				errs = []types.HandlingError{}
			}
			if !validate {
				events := h.BlockEventsWithMetadata()
				if events == nil {
					events = []types.EventWithMetadata{}
				}
				return printJSON(struct {
					Errors []types.HandlingError     `json:"errors"`
					Events []types.EventWithMetadata `json:"events"`
				}{errs, events})
			}
			return printJSON(errs)
		},
	}
}

func newQueryCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Read host state",
	}
	query := func(use, short string, nargs int, fn func(h *host.Host, args []string) (interface{}, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.ExactArgs(nargs),
			RunE: func(cmd *cobra.Command, args []string) error {
				h, closeDB, err := openHost(opts)
				if err != nil {
					return err
				}
				defer closeDB()
				v, err := fn(h, args)
				if err != nil {
					return err
				}
				return printJSON(v)
			},
		}
	}
	cmd.AddCommand(
		query("state-root", "Root of the host state", 0, func(h *host.Host, args []string) (interface{}, error) {
			return h.StateRoot()
		}),
		query("commitment", "State commitment of this host", 0, func(h *host.Host, args []string) (interface{}, error) {
			return h.StateCommitment()
		}),
		query("consensus-state <id>", "Stored consensus state record", 1, func(h *host.Host, args []string) (interface{}, error) {
			id, err := types.NewFourByteID(args[0])
			if err != nil {
				return nil, err
			}
			return h.ConsensusState(id)
		}),
		query("height <state-machine> <consensus-state>", "Latest verified height of a state machine", 2, func(h *host.Host, args []string) (interface{}, error) {
			id, err := parseStateMachineID(args[0], args[1])
			if err != nil {
				return nil, err
			}
			return h.LatestStateMachineHeight(id)
		}),
		query("state-commitment <state-machine> <consensus-state> <height>", "Verified state commitment at a height", 3, func(h *host.Host, args []string) (interface{}, error) {
			id, err := parseStateMachineID(args[0], args[1])
			if err != nil {
				return nil, err
			}
			height, err := strconv.ParseUint(args[2], 10, 64)
			if err != nil {
				return nil, err
			}
			commitment, updated, err := h.StateMachineCommitment(types.StateMachineHeight{ID: id, Height: height})
			if err != nil {
				return nil, err
			}
			return struct {
				Commitment types.StateCommitment `json:"commitment"`
				UpdatedAt  uint64                `json:"updated_at"`
			}{commitment, updated}, nil
		}),
		query("request <commitment>", "Metadata of an outgoing request", 1, func(h *host.Host, args []string) (interface{}, error) {
			return h.RequestCommitment(common.HexToHash(args[0]))
		}),
		query("fees <state-machine> <relayer>", "Fee balance of a relayer", 2, func(h *host.Host, args []string) (interface{}, error) {
			sm, err := types.ParseStateMachine(args[0])
			if err != nil {
				return nil, err
			}
			balance, err := h.Fees(sm, common.FromHex(args[1]))
			if err != nil {
				return nil, err
			}
			return balance.Dec(), nil
		}),
		query("nonce <relayer> <state-machine>", "Withdrawal nonce of a relayer", 2, func(h *host.Host, args []string) (interface{}, error) {
			sm, err := types.ParseStateMachine(args[1])
			if err != nil {
				return nil, err
			}
			return h.Nonce(common.FromHex(args[0]), sm)
		}),
	)
	return cmd
}

func newMmrCmd(opts *options) *cobra.Command {
	var proofPositions []uint
	cmd := &cobra.Command{
		Use:   "mmr",
		Short: "Print the request accumulator, or a proof with --proof",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, closeDB, err := openHost(opts)
			if err != nil {
				return err
			}
			defer closeDB()
			if len(proofPositions) > 0 {
				positions := make([]uint64, len(proofPositions))
				for i, p := range proofPositions {
					positions[i] = uint64(p)
				}
				proof, err := h.EncodedProof(positions)
				if err != nil {
					return err
				}
				fmt.Println(common.Bytes2Hex(proof))
				return nil
			}
			root, err := h.MmrRoot()
			if err != nil {
				return err
			}
			tree, err := h.MmrTree()
			if err != nil {
				return err
			}
			fmt.Printf("root: %s\n", root.Hex())
			fmt.Print(tree.String())
			return nil
		},
	}
	cmd.Flags().UintSliceVar(&proofPositions, "proof", nil, "leaf positions to prove")
	return cmd
}

func newServeCmd(opts *options) *cobra.Command {
	var httpPort int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the host over net/rpc, a JSON bridge and a websocket event feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, closeDB, err := openHost(opts)
			if err != nil {
				return err
			}
			defer closeDB()
			srv, err := rpc.NewServer(cmd.Context(), h)
			if err != nil {
				return err
			}
			fmt.Printf("Serving %s\n", h.StateMachine())
			fmt.Printf("  RPC port: %d\n", opts.rpcPort)
			fmt.Printf("  HTTP port: %d (/rpc, /ws)\n", httpPort)
			return srv.Run(cmd.Context(), opts.rpcPort, httpPort)
		},
	}
	cmd.Flags().IntVar(&httpPort, "http-port", 8080, "HTTP port for the JSON bridge and event feed")
	return cmd
}
