package billing

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// HandlerFunc processes one event.
type HandlerFunc func(ctx context.Context, ev *Event) error

type registration struct {
	pattern string
	name    string
	fn      HandlerFunc
}

// Dispatcher runs registered handlers in registration order. A handler that
// fails or panics is recorded and the remaining handlers still run.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers []registration
}

// NewDispatcher returns an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Register adds fn for events matching pattern. Pattern is an exact event
// type, a prefix ending in ".*" or "*" for every event.
func (d *Dispatcher) Register(pattern, name string, fn HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, registration{pattern: pattern, name: name, fn: fn})
}

// Handlers returns the names of handlers that would run for eventType.
func (d *Dispatcher) Handlers(eventType string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var names []string
	for _, h := range d.handlers {
		if matches(h.pattern, eventType) {
			names = append(names, h.name)
		}
	}
	return names
}

func matches(pattern, eventType string) bool {
	switch {
	case pattern == "*":
		return true
	case strings.HasSuffix(pattern, ".*"):
		return strings.HasPrefix(eventType, strings.TrimSuffix(pattern, "*"))
	default:
		return pattern == eventType
	}
}

// HandlerError is the failure of one named handler.
type HandlerError struct {
	Handler string
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s: %v", e.Handler, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// Outcome records one handler run.
type Outcome struct {
	Handler  string
	Err      error
	Duration time.Duration
}

// Report is the result of dispatching one event.
type Report struct {
	EventID   string
	EventType string
	Outcomes  []Outcome
}

// Failed counts handlers that returned an error or panicked.
func (r *Report) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// Err joins every handler failure, or returns nil.
func (r *Report) Err() error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			errs = append(errs, &HandlerError{Handler: o.Handler, Err: o.Err})
		}
	}
	return errors.Join(errs...)
}

// Dispatch runs every matching handler for ev.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *Event) *Report {
	d.mu.RLock()
	handlers := make([]registration, 0, len(d.handlers))
	for _, h := range d.handlers {
		if matches(h.pattern, ev.Type) {
			handlers = append(handlers, h)
		}
	}
	d.mu.RUnlock()

	report := &Report{EventID: ev.ID, EventType: ev.Type}
	for _, h := range handlers {
		start := time.Now()
		err := runHandler(ctx, h, ev)
		report.Outcomes = append(report.Outcomes, Outcome{Handler: h.name, Err: err, Duration: time.Since(start)})

		if err != nil {
			log.Error().Err(err).
				Str("eventId", ev.ID).
				Str("eventType", ev.Type).
				Str("handler", h.name).
				Msg("Billing handler failed")
			continue
		}
		log.Debug().Str("eventId", ev.ID).Str("handler", h.name).Msg("Billing handler completed")
	}
	return report
}

func runHandler(ctx context.Context, h registration, ev *Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("handler", h.name).
				Str("stack", string(debug.Stack())).
				Msg("Billing handler panicked")
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.fn(ctx, ev)
}
