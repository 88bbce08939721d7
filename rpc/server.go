// Package rpc serves a host to relayers and tooling: a net/rpc service over TCP, a
// JSON bridge to it over HTTP and a websocket feed of host events.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/rpc"
	"sync"
	"time"

	"github.com/colorfulnotion/ismp/host"
	"github.com/colorfulnotion/ismp/log"
)

type Server struct {
	host *host.Host
	rpc  *rpc.Server
	hub  *Hub
	wg   sync.WaitGroup
}

// NewServer registers h under ServiceName and starts the event hub. The hub stops
// when ctx is done.
func NewServer(ctx context.Context, h *host.Host) (*Server, error) {
	s := &Server{host: h, rpc: rpc.NewServer(), hub: NewHub(ctx)}
	if err := s.rpc.RegisterName(ServiceName, &Ismp{ctx: ctx, host: h}); err != nil {
		return nil, err
	}
	h.Subscribe(s.hub.Publish)
	s.wg.Add(1)
	go s.hub.Run(&s.wg)
	return s, nil
}

// ServeRPC accepts net/rpc connections on l until l is closed.
func (s *Server) ServeRPC(l net.Listener) error {
	log.Info(log.RPCModule, "RPC server started", "addr", l.Addr().String())
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.rpc.ServeConn(conn)
	}
}

// localClient returns a client connected to the service in process.
func (s *Server) localClient() *rpc.Client {
	c1, c2 := net.Pipe()
	go s.rpc.ServeConn(c1)
	return rpc.NewClient(c2)
}

type jsonRequest struct {
	JSONRPC string   `json:"jsonrpc"`
	Method  string   `json:"method"`
	Params  []string `json:"params"`
	ID      int      `json:"id"`
}

type jsonResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
	ID      int             `json:"id"`
}

// Handler serves the JSON bridge on /rpc and the event feed on /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		s.hub.ServeWs(w, r, &s.wg)
	})
	mux.HandleFunc("/rpc", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")
			w.WriteHeader(http.StatusNoContent)
			return
		} else if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req jsonRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		client := s.localClient()
		defer client.Close()

		resp := jsonResponse{JSONRPC: "2.0", ID: req.ID}
		var result string
		if err := client.Call(ServiceName+"."+req.Method, req.Params, &result); err != nil {
			resp.Error = err.Error()
		} else if json.Valid([]byte(result)) {
			resp.Result = json.RawMessage(result)
		} else {
			resp.Result, _ = json.Marshal(result)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		json.NewEncoder(w).Encode(resp)
	})
	return mux
}

// Run serves net/rpc on rpcPort and HTTP on httpPort until ctx is done.
func (s *Server) Run(ctx context.Context, rpcPort, httpPort int) error {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", rpcPort))
	if err != nil {
		return fmt.Errorf("rpc listen: %w", err)
	}
	server := &http.Server{Addr: fmt.Sprintf(":%d", httpPort), Handler: s.Handler()}

	errc := make(chan error, 2)
	go func() { errc <- s.ServeRPC(l) }()
	go func() {
		log.Info(log.RPCModule, "HTTP server started", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
			return
		}
		errc <- nil
	}()

	select {
	case <-ctx.Done():
	case err = <-errc:
	}
	l.Close()
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(ctxShutdown)
	s.hub.Stop()
	s.wg.Wait()
	log.Info(log.RPCModule, "graceful shutdown complete")
	return err
}
