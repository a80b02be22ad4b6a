package hooks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mixelka/mailvault/pkg/models"
)

// EventEmailReceived is dispatched once per successfully ingested message
const EventEmailReceived = "email_received"

// ListenerConfig describes a registered listener
type ListenerConfig struct {
	ID          string
	Name        string
	Description string
	Event       string // event name the listener subscribes to
	Enabled     bool
}

// Result reports what a listener did with an event
type Result struct {
	Executed bool
	Reason   string
}

// Listener reacts to message events. Implementations are registered at
// startup; there is no runtime plugin loading.
type Listener interface {
	Config() ListenerConfig
	Handle(ctx context.Context, event string, msg *models.Message) (Result, error)
}

// Registry holds registered listeners and dispatches events to them.
// Listener failures are logged and never propagated: one failing listener
// must not block the others or the ingestion loop.
type Registry struct {
	mu        sync.RWMutex
	listeners []Listener
	timeout   time.Duration
	logger    *slog.Logger
}

// NewRegistry creates a listener registry. timeout bounds each listener
// invocation so a stuck listener cannot stall ingestion.
func NewRegistry(timeout time.Duration, logger *slog.Logger) *Registry {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Registry{
		timeout: timeout,
		logger:  logger.With("component", "hooks"),
	}
}

// Register adds a listener to the registry
func (r *Registry) Register(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.listeners = append(r.listeners, l)
	cfg := l.Config()
	r.logger.Info("registered listener", "id", cfg.ID, "name", cfg.Name, "event", cfg.Event, "enabled", cfg.Enabled)
}

// Listeners returns the configs of all registered listeners
func (r *Registry) Listeners() []ListenerConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	configs := make([]ListenerConfig, 0, len(r.listeners))
	for _, l := range r.listeners {
		configs = append(configs, l.Config())
	}
	return configs
}

// Dispatch offers the message to every enabled listener registered for the
// event. No ordering guarantee between listeners. Errors and timeouts are
// logged per listener and swallowed.
func (r *Registry) Dispatch(ctx context.Context, event string, msg *models.Message) {
	r.mu.RLock()
	listeners := make([]Listener, len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.RUnlock()

	for _, l := range listeners {
		cfg := l.Config()
		if !cfg.Enabled || cfg.Event != event {
			continue
		}
		r.invoke(ctx, l, cfg, event, msg)
	}
}

func (r *Registry) invoke(ctx context.Context, l Listener, cfg ListenerConfig, event string, msg *models.Message) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type outcome struct {
		result Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := l.Handle(ctx, event, msg)
		done <- outcome{result, err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			r.logger.Error("listener failed", "listener", cfg.Name, "event", event, "message_id", msg.MessageID, "error", out.err)
			return
		}
		if out.result.Executed {
			r.logger.Info("listener executed", "listener", cfg.Name, "event", event, "reason", out.result.Reason)
		}
	case <-ctx.Done():
		r.logger.Error("listener timed out", "listener", cfg.Name, "event", event, "message_id", msg.MessageID, "timeout", r.timeout)
	}
}
