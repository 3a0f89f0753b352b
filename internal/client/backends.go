package client

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Kelll31/aptscan/internal/logging"
)

// TransportConstructor builds a Transport from the client config.
type TransportConstructor func(cfg Config, logger logging.Logger) (Transport, error)

var (
	backendsMu sync.RWMutex
	backends   = map[string]TransportConstructor{}
)

// RegisterBackend registers a named transport constructor. Names are
// lower-cased; re-registering a name overwrites the previous
// constructor.
func RegisterBackend(name string, ctor TransportConstructor) {
	if name == "" || ctor == nil {
		return
	}
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[strings.ToLower(name)] = ctor
}

// NewTransport constructs the configured transport backend. It returns
// an error if the named backend has not been registered.
func NewTransport(cfg Config, logger logging.Logger) (Transport, error) {
	name := strings.ToLower(strings.TrimSpace(string(cfg.Backend)))
	if name == "" {
		name = string(BackendNetHTTP)
	}

	backendsMu.RLock()
	ctor, ok := backends[name]
	backendsMu.RUnlock()
	if !ok || ctor == nil {
		return nil, fmt.Errorf("transport backend %q not registered: available backends=%v", name, ListBackends())
	}

	t, err := ctor(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to construct transport backend %q: %w", name, err)
	}
	if t == nil {
		return nil, errors.New("transport constructor returned nil")
	}
	return t, nil
}

// ListBackends returns the registered backend names.
func ListBackends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	out := make([]string, 0, len(backends))
	for k := range backends {
		out = append(out, k)
	}
	return out
}

func init() {
	RegisterBackend(string(BackendNetHTTP), func(cfg Config, logger logging.Logger) (Transport, error) {
		return NewNetHTTPTransport(logger, nil), nil
	})
	RegisterBackend(string(BackendOffline), func(cfg Config, logger logging.Logger) (Transport, error) {
		return NewOfflineTransport(cfg.OfflineDelay, logger), nil
	})
}
