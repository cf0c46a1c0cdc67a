package pubsub

import (
	"context"
	"sync"

	"github.com/itchyny/gojq"

	apperrors "github.com/wavehq/orchestrator/internal/errors"
	"github.com/wavehq/orchestrator/pkg/domain"
)

// HandlerResult is what a typed event handler reports back to the
// dispatcher.
type HandlerResult struct {
	Success     bool
	Data        map[string]interface{}
	ActionTaken string
	NextAction  string
}

// EventHandler processes one WaveMessage of a registered event type.
type EventHandler func(ctx context.Context, msg domain.WaveMessage) (HandlerResult, error)

// DispatchCallback observes every dispatch outcome, for metrics/audit
// hookup (SPEC_FULL.md §4.8 "dispatch callbacks fire for observability").
type DispatchCallback func(eventType domain.EventType, result HandlerResult)

// EventDispatcher multiplexes one Subscriber across per-event-type
// handlers, owned as a process-wide service with an explicit
// start/stop lifecycle rather than a module-level handler registry
// (SPEC_FULL.md §9 design note on global pub/sub subscriber state).
type EventDispatcher struct {
	sub *Subscriber

	mu        sync.RWMutex
	handlers  map[domain.EventType][]EventHandler
	callbacks []DispatchCallback

	cancel context.CancelFunc
	done   chan struct{}
}

func NewEventDispatcher(sub *Subscriber) *EventDispatcher {
	return &EventDispatcher{sub: sub, handlers: map[domain.EventType][]EventHandler{}}
}

// Register adds handler for eventType. Multiple handlers for the same
// type all run; the dispatcher reports the last non-nil error, if any.
func (d *EventDispatcher) Register(eventType domain.EventType, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], handler)
}

// OnDispatch registers an observability callback invoked after every
// handled message.
func (d *EventDispatcher) OnDispatch(cb DispatchCallback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.callbacks = append(d.callbacks, cb)
}

// Start begins the subscriber's listen loop in a background goroutine.
// Calling Start twice without an intervening Stop is a no-op.
func (d *EventDispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.cancel != nil {
		d.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	d.mu.Unlock()

	go func() {
		defer close(d.done)
		_ = d.sub.Listen(runCtx, d.dispatch)
	}()
}

// Stop cancels the listen loop and waits for it to exit.
func (d *EventDispatcher) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	done := d.done
	d.cancel = nil
	d.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (d *EventDispatcher) dispatch(ctx context.Context, entry Entry) error {
	if err := validatePayload(entry.Message.Payload); err != nil {
		return err
	}

	d.mu.RLock()
	handlers := append([]EventHandler{}, d.handlers[entry.Message.EventType]...)
	callbacks := append([]DispatchCallback{}, d.callbacks...)
	d.mu.RUnlock()

	if len(handlers) == 0 {
		return nil
	}

	var lastErr error
	for _, h := range handlers {
		result, err := h(ctx, entry.Message)
		if err != nil {
			lastErr = err
			result = HandlerResult{Success: false}
		}
		for _, cb := range callbacks {
			cb(entry.Message.EventType, result)
		}
	}
	return lastErr
}

// actionQuery extracts the "action" discriminator the dispatcher requires
// of any payload carrying a dynamic schema (SPEC_FULL.md §9 design note on
// dynamic task payloads): every (domain, action) pair owns one concrete
// schema, validated here before a handler ever sees the message.
var actionQuery = mustParseJQ(".action")

func mustParseJQ(src string) *gojq.Query {
	q, err := gojq.Parse(src)
	if err != nil {
		panic(err)
	}
	return q
}

// validatePayload is permissive by design: messages with no "action" key
// (most signal-bus events — story_started, gate_passed, health_check, …)
// pass through untouched. It only rejects a payload where "action" is
// present but not a usable discriminator (e.g. nested under an array).
func validatePayload(payload map[string]interface{}) error {
	if payload == nil {
		return nil
	}
	if _, ok := payload["action"]; !ok {
		return nil
	}

	iter := actionQuery.Run(payload)
	v, ok := iter.Next()
	if !ok {
		return nil
	}
	if err, ok := v.(error); ok {
		return apperrors.Wrap(err, apperrors.ErrorTypeValidation, "failed to evaluate action discriminator")
	}
	if _, ok := v.(string); !ok {
		return apperrors.NewValidationError("payload action discriminator must be a string")
	}
	return nil
}
