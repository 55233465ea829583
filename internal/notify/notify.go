// Package notify carries user-facing alerts from the core to whatever
// renders them. Publishing never blocks the caller.
package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/pumpctl/internal/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type Kind string

const (
	WrongPumpData Kind = "wrong_pump_data"
	PumpError     Kind = "pump_error"
)

type Level int

const (
	Urgent Level = iota
	Normal
	Low
	Info
)

func (l Level) String() string {
	switch l {
	case Urgent:
		return "urgent"
	case Normal:
		return "normal"
	case Low:
		return "low"
	case Info:
		return "info"
	default:
		return "unknown"
	}
}

// Notification is one alert instance.
type Notification struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// New stamps a fresh notification.
func New(kind Kind, level Level, message string) Notification {
	return Notification{
		ID:        uuid.NewString(),
		Kind:      kind,
		Level:     level,
		Message:   message,
		CreatedAt: time.Now(),
	}
}

// Sink renders delivered notifications.
type Sink interface {
	Deliver(n Notification)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Notification)

func (f SinkFunc) Deliver(n Notification) { f(n) }

// Dispatcher decouples publishers from the sink through a bounded buffer.
type Dispatcher struct {
	ch      chan Notification
	dropped atomic.Uint64
}

func NewDispatcher(buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 1
	}
	return &Dispatcher{ch: make(chan Notification, buffer)}
}

// Publish queues n. A full buffer drops it.
func (d *Dispatcher) Publish(n Notification) {
	select {
	case d.ch <- n:
		observability.RecordNotification(string(n.Kind), "queued")
	default:
		d.dropped.Add(1)
		observability.RecordNotification(string(n.Kind), "dropped")
		log.Warn().Str("kind", string(n.Kind)).Str("id", n.ID).Msg("notification dropped")
	}
}

// Dropped reports how many notifications did not fit the buffer.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Run delivers queued notifications to sink until ctx is done.
func (d *Dispatcher) Run(ctx context.Context, sink Sink) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-d.ch:
			sink.Deliver(n)
			observability.RecordNotification(string(n.Kind), "delivered")
		}
	}
}

// LogSink writes notifications to the global logger.
type LogSink struct{}

func (LogSink) Deliver(n Notification) {
	event := log.Info()
	if n.Level == Urgent {
		event = log.Warn()
	}
	event.
		Str("id", n.ID).
		Str("kind", string(n.Kind)).
		Str("level", n.Level.String()).
		Msg(n.Message)
}

// Recent keeps the last N delivered notifications for the HTTP surface.
type Recent struct {
	mu    sync.Mutex
	limit int
	items []Notification
}

func NewRecent(limit int) *Recent {
	if limit <= 0 {
		limit = 1
	}
	return &Recent{limit: limit}
}

func (r *Recent) Deliver(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
	if over := len(r.items) - r.limit; over > 0 {
		r.items = append([]Notification(nil), r.items[over:]...)
	}
}

// List returns delivered notifications, newest last.
func (r *Recent) List() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.items...)
}

// Fanout delivers to every sink in order.
type Fanout []Sink

func (f Fanout) Deliver(n Notification) {
	for _, s := range f {
		s.Deliver(n)
	}
}
