// Package host is an ISMP host: it tracks remote consensus, accumulates outgoing
// requests and responses in an MMR, handles inbound messages and settles relayer fees.
//
// Every call runs in one storage transaction and is applied entirely or not at all.
// Within Handle each message runs in its own overlay, so a failing message leaves no
// trace while the messages around it still apply.
package host

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/colorfulnotion/ismp/codec"
	"github.com/colorfulnotion/ismp/common"
	"github.com/colorfulnotion/ismp/consensus"
	"github.com/colorfulnotion/ismp/log"
	"github.com/colorfulnotion/ismp/storage"
	"github.com/colorfulnotion/ismp/trie"
	"github.com/colorfulnotion/ismp/types"
)

const tracerName = "github.com/colorfulnotion/ismp/host"

// Database is the storage a host runs on.
type Database interface {
	storage.KV
	Begin() (*storage.Txn, error)
}

type Host struct {
	mu      sync.Mutex
	cfg     Config
	db      Database
	clients *consensus.Registry
	router  *Router
	tracer  trace.Tracer

	blockNumber uint64
	timestamp   uint64
	events      []types.EventWithMetadata
	listeners   []func(types.EventWithMetadata)
}

// New opens a host over db. Consensus clients in cfg.Genesis are created when absent.
func New(cfg Config, db Database, clients *consensus.Registry) (*Host, error) {
	if clients == nil {
		clients = consensus.DefaultRegistry()
	}
	h := &Host{
		cfg:     cfg,
		db:      db,
		clients: clients,
		router:  NewRouter(),
		tracer:  otel.Tracer(tracerName),
	}
	h.router.Register(cfg.feeModuleID(), &feeModule{})
	for _, g := range cfg.Genesis {
		err := h.execute(context.Background(), "ismp.genesis", func(s *hostState) error {
			exists, err := s.has(consensusStateKey(g.ConsensusStateID))
			if err != nil || exists {
				return err
			}
			return s.createConsensusClient(g)
		})
		if err != nil {
			return nil, fmt.Errorf("genesis consensus state %s: %w", g.ConsensusStateID, err)
		}
	}
	log.Info(log.HandlerModule, "ismp host ready", "stateMachine", cfg.StateMachine, "clients", len(clients.IDs()))
	return h, nil
}

func (h *Host) Config() Config {
	return h.cfg
}

func (h *Host) StateMachine() types.StateMachine {
	return h.cfg.StateMachine
}

// Router holds the application modules requests are delivered to.
func (h *Host) Router() *Router {
	return h.router
}

// BeginBlock advances the host clock and starts a new event buffer.
func (h *Host) BeginBlock(number, timestamp uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.blockNumber = number
	h.timestamp = timestamp
	h.events = nil
}

func (h *Host) BlockNumber() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.blockNumber
}

func (h *Host) Timestamp() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.timestamp
}

// Subscribe registers fn to be called with every event the host records.
func (h *Host) Subscribe(fn func(types.EventWithMetadata)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// execute runs fn in a fresh transaction and commits it when fn succeeds.
func (h *Host) execute(ctx context.Context, name string, fn func(s *hostState) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.executeLocked(ctx, name, fn)
}

func (h *Host) executeLocked(ctx context.Context, name string, fn func(s *hostState) error) error {
	_, span := h.tracer.Start(ctx, name, trace.WithAttributes(attribute.Int64("block", int64(h.blockNumber))))
	defer span.End()

	txn, err := h.db.Begin()
	if err != nil {
		return err
	}
	s := &hostState{h: h, kv: txn}
	if err := fn(s); err != nil {
		txn.Discard()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	h.record(s.events)
	return nil
}

// view runs fn against a transaction that is always discarded.
func (h *Host) view(fn func(s *hostState) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	txn, err := h.db.Begin()
	if err != nil {
		return err
	}
	defer txn.Discard()
	return fn(&hostState{h: h, kv: txn})
}

func (h *Host) record(events []types.Event) {
	for _, ev := range events {
		e := types.EventWithMetadata{BlockNumber: h.blockNumber, Index: uint32(len(h.events)), Event: ev}
		h.events = append(h.events, e)
		for _, fn := range h.listeners {
			fn(e)
		}
	}
}

// BlockEvents returns the events recorded in the current block.
func (h *Host) BlockEvents() []types.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]types.Event, len(h.events))
	for i, e := range h.events {
		out[i] = e.Event
	}
	return out
}

func (h *Host) BlockEventsWithMetadata() []types.EventWithMetadata {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]types.EventWithMetadata(nil), h.events...)
}

// stateTree builds the state tree over every key that is not offchain.
func (s *hostState) stateTree() (*trie.StateTree, error) {
	pairs, err := s.kv.GetWithPrefix(nil)
	if err != nil {
		return nil, err
	}
	entries := make([]trie.KeyValue, 0, len(pairs))
	for _, kv := range pairs {
		if isOffchainKey(kv[0]) {
			continue
		}
		entries = append(entries, trie.KeyValue{Key: kv[0], Value: kv[1]})
	}
	return trie.NewStateTree(entries), nil
}

// StateRoot is the root of the host state tree.
func (h *Host) StateRoot() (common.Hash, error) {
	var root common.Hash
	err := h.view(func(s *hostState) error {
		tree, err := s.stateTree()
		if err != nil {
			return err
		}
		root = tree.Root()
		return nil
	})
	return root, err
}

// ReadProof proves the values of keys, or their absence, against StateRoot.
func (h *Host) ReadProof(keys [][]byte) ([]byte, error) {
	var proof []byte
	err := h.view(func(s *hostState) error {
		tree, err := s.stateTree()
		if err != nil {
			return err
		}
		proof = codec.Encode(*tree.Prove(keys))
		return nil
	})
	return proof, err
}

// StateCommitment is what a consensus proof for this host at its current height attests.
func (h *Host) StateCommitment() (types.StateCommitment, error) {
	var out types.StateCommitment
	err := h.view(func(s *hostState) error {
		tree, err := s.stateTree()
		if err != nil {
			return err
		}
		root, _, err := s.readHash(mmrRootKey)
		if err != nil {
			return err
		}
		out = types.StateCommitment{Timestamp: s.now(), OverlayRoot: &root, StateRoot: tree.Root()}
		return nil
	})
	return out, err
}
