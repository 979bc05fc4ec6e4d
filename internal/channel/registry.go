package channel

import (
	"fmt"
	"sync"

	"github.com/mxaviersmp/rasa-voice-interface/internal/config"
)

// Factory constructs an input channel from configuration.
type Factory func(cfg *config.Config, voices Voices) InputChannel

// Registry maps channel names to their factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty channel registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory for a channel name. Panics on duplicate.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		panic(fmt.Sprintf("channel already registered: %s", name))
	}
	r.factories[name] = f
}

// Get returns the factory for a channel name.
func (r *Registry) Get(name string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("no channel registered for name: %s", name)
	}
	return f, nil
}

// Names returns all registered channel names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// DefaultRegistry creates a registry with all built-in channels.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(SocketChannelName, func(cfg *config.Config, voices Voices) InputChannel {
		return NewSocketChannel(cfg, voices)
	})
	return r
}
