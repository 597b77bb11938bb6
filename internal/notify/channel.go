// Package notify decides which written events warrant an alert and delivers them.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gyaneshwarpardhi/auditlog/internal/config"
	"github.com/gyaneshwarpardhi/auditlog/internal/event"
)

// ErrUnknownChannel is returned by Registry.Get for unregistered names.
var ErrUnknownChannel = errors.New("notify: unknown channel")

// Channel delivers one event to the destination named in conf.
type Channel interface {
	// Name returns the key this channel is registered under.
	Name() string
	Send(ctx context.Context, conf config.NotificationConf, e event.Event) error
}

// Registry maps channel names to implementations.
// It is safe for concurrent reads; Register should only be called at startup.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]Channel
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]Channel)}
}

// DefaultRegistry returns a Registry with the email, webhook and slack channels.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewEmailChannel(nil))
	r.Register(NewWebhookChannel(nil))
	r.Register(NewSlackChannel(nil))
	return r
}

// Register adds a channel. Panics on duplicate names to surface misconfiguration early.
func (r *Registry) Register(c Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.channels[c.Name()]; exists {
		panic(fmt.Sprintf("notify registry: duplicate channel %q", c.Name()))
	}
	r.channels[c.Name()] = c
}

// Get returns the channel registered under name.
func (r *Registry) Get(name string) (Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.channels[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownChannel, name)
	}
	return c, nil
}

// Names returns all registered channel names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.channels))
	for k := range r.channels {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
