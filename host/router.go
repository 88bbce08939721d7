package host

import (
	"fmt"
	"sync"

	"github.com/colorfulnotion/ismp/ismperrors"
	"github.com/colorfulnotion/ismp/types"
)

// IsmpModule is an application that sends and receives messages through the host.
// Callbacks run inside the handling of the message; an error fails that message.
type IsmpModule interface {
	OnAccept(d Dispatcher, req types.PostRequest) error
	OnResponse(d Dispatcher, resp types.Response) error
	// OnTimeout receives the request or response that was not delivered.
	OnTimeout(d Dispatcher, timeout types.Leaf) error
}

// Router maps module ids to modules. Incoming requests route by To, responses and
// timeouts by the From of the originating request.
type Router struct {
	mu      sync.RWMutex
	modules map[string]IsmpModule
}

func NewRouter() *Router {
	return &Router{modules: make(map[string]IsmpModule)}
}

func (r *Router) Register(id []byte, m IsmpModule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[string(id)] = m
}

func (r *Router) Module(id []byte) (IsmpModule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[string(id)]
	if !ok {
		return nil, fmt.Errorf("module %q: %w", id, ismperrors.ErrHModuleNotFound)
	}
	return m, nil
}
