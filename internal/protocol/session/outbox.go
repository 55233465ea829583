package session

import (
	"container/heap"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/danmuck/pumpctl/internal/protocol/app"
	"github.com/google/uuid"
)

var ErrOutboxFull = errors.New("session: outbox full")

// Pending is one serialized command waiting for the transport.
type Pending struct {
	ID        string
	Command   string
	Priority  app.Priority
	Frame     []byte
	QueuedAt  time.Time
	NotBefore time.Time
	Attempts  int
	LastError string

	seq uint64
}

// Outbox orders outbound frames by message priority, highest first, and
// FIFO among equal priorities.
type Outbox struct {
	mu    sync.Mutex
	cfg   Config
	items pendingHeap
	seq   uint64
	rng   *rand.Rand
}

func NewOutbox(cfg Config) *Outbox {
	return &Outbox{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Enqueue serializes m and queues its frame.
func (o *Outbox) Enqueue(m app.Message, now time.Time) (Pending, error) {
	variant, ok := app.LookupKind(m.Kind())
	if !ok {
		return Pending{}, fmt.Errorf("session: enqueue kind %d: not registered", m.Kind())
	}
	raw, err := app.Serialize(m)
	if err != nil {
		return Pending{}, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cfg.Capacity > 0 && o.items.Len() >= o.cfg.Capacity {
		return Pending{}, ErrOutboxFull
	}
	o.seq++
	p := Pending{
		ID:        uuid.NewString(),
		Command:   variant.Name,
		Priority:  variant.Priority,
		Frame:     raw,
		QueuedAt:  now,
		NotBefore: now,
		seq:       o.seq,
	}
	heap.Push(&o.items, p)
	return p, nil
}

// Drain removes and returns every frame ready at now, in send order.
// Frames still backing off stay queued.
func (o *Outbox) Drain(now time.Time) []Pending {
	o.mu.Lock()
	defer o.mu.Unlock()
	var (
		ready   []Pending
		waiting []Pending
	)
	for o.items.Len() > 0 {
		p := heap.Pop(&o.items).(Pending)
		if p.NotBefore.After(now) {
			waiting = append(waiting, p)
			continue
		}
		ready = append(ready, p)
	}
	for _, p := range waiting {
		heap.Push(&o.items, p)
	}
	return ready
}

// Retry requeues a frame the transport failed to deliver. It reports false
// once the frame has used up its attempts and was dropped.
func (o *Outbox) Retry(p Pending, now time.Time, reason string) (Pending, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p.Attempts++
	p.LastError = reason
	if o.cfg.MaxAttempts > 0 && p.Attempts >= o.cfg.MaxAttempts {
		return p, false
	}
	p.NotBefore = now.Add(o.cfg.Backoff.Delay(p.Attempts, o.rng))
	heap.Push(&o.items, p)
	return p, true
}

func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.items.Len()
}

// List returns a snapshot in send order without removing anything.
func (o *Outbox) List() []Pending {
	o.mu.Lock()
	defer o.mu.Unlock()
	cp := make(pendingHeap, len(o.items))
	copy(cp, o.items)
	out := make([]Pending, 0, len(cp))
	for cp.Len() > 0 {
		out = append(out, heap.Pop(&cp).(Pending))
	}
	return out
}

type pendingHeap []Pending

func (h pendingHeap) Len() int { return len(h) }

func (h pendingHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h pendingHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *pendingHeap) Push(x any) { *h = append(*h, x.(Pending)) }

func (h *pendingHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
