// Package guard decides whether pump data may enter the event log. It keeps
// exactly one active pump identity and rejects data from any other device,
// or data older than the moment the active pump was registered.
package guard

import (
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/pumpctl/internal/notify"
	"github.com/danmuck/pumpctl/internal/observability"
	"github.com/danmuck/pumpctl/internal/prefs"
	"github.com/danmuck/pumpctl/internal/pump"
	"github.com/rs/zerolog/log"
)

// FirstRecordWindow is how old the record that registers a new pump may be.
const FirstRecordWindow = time.Minute

const wrongPumpMessage = "Data from a different pump was received and ignored. Connect the new pump before using it."

// Notifier receives fire-and-forget alerts.
type Notifier interface {
	Publish(n notify.Notification)
}

type Options struct {
	Prefs    prefs.Store
	Notifier Notifier
	Clock    pump.Clock
	// Simulation reports whether the software pump is driving; it accepts
	// data from any origin.
	Simulation func() bool
}

type Guard struct {
	mu         sync.Mutex
	prefs      prefs.Store
	notifier   Notifier
	clock      pump.Clock
	simulation func() bool
}

func New(opts Options) *Guard {
	g := &Guard{
		prefs:      opts.Prefs,
		notifier:   opts.Notifier,
		clock:      opts.Clock,
		simulation: opts.Simulation,
	}
	if g.prefs == nil {
		g.prefs = prefs.NewMemory()
	}
	if g.clock == nil {
		g.clock = time.Now
	}
	if g.simulation == nil {
		g.simulation = func() bool { return false }
	}
	return g
}

// ConfirmActive reports whether data stamped timestamp from origin may be
// recorded. With no active pump it registers origin as of now and accepts
// only a record at most FirstRecordWindow old. notifyOnMismatch controls whether a
// rejected cross-pump record raises an alert.
func (g *Guard) ConfirmActive(timestamp int64, origin pump.Origin, notifyOnMismatch bool) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	stored, ok := g.activeLocked()
	if !ok {
		now := pump.Millis(g.clock())
		if err := g.storeLocked(pump.Identity{Type: origin.Type, Serial: origin.Serial, RegisteredAt: now}); err != nil {
			return false, err
		}
		accepted := timestamp > now-FirstRecordWindow.Milliseconds()
		log.Debug().
			Str("type", string(origin.Type)).
			Str("serial", origin.Serial).
			Int64("timestamp", timestamp).
			Bool("accepted", accepted).
			Msg("registering new pump")
		observability.RecordGuardDecision("registered")
		return accepted, nil
	}

	match := stored.Origin().Equal(origin)
	if g.simulation() || (match && timestamp >= stored.RegisteredAt) {
		observability.RecordGuardDecision("accepted")
		return true, nil
	}

	if notifyOnMismatch && !match && timestamp >= stored.RegisteredAt && g.notifier != nil {
		g.notifier.Publish(notify.New(notify.WrongPumpData, notify.Urgent, wrongPumpMessage))
	}
	log.Error().
		Int64("allowed_from", stored.RegisteredAt).
		Str("allowed_type", string(stored.Type)).
		Str("allowed_serial", stored.Serial).
		Int64("timestamp", timestamp).
		Str("type", string(origin.Type)).
		Str("serial", origin.Serial).
		Msg("ignoring pump history record")
	observability.RecordGuardDecision("rejected")
	return false, nil
}

// Verify reports whether origin is the active pump without registering it.
func (g *Guard) Verify(origin pump.Origin) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.simulation() {
		return true
	}
	stored, ok := g.activeLocked()
	if ok && stored.Origin().Equal(origin) {
		return true
	}
	log.Debug().Str("type", string(origin.Type)).Str("serial", origin.Serial).Msg("pump identification failed")
	return false
}

// Active returns the registered pump, if any.
func (g *Guard) Active() (pump.Identity, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.activeLocked()
}

// Clear forgets the active pump; the next record registers a new one.
func (g *Guard) Clear() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.prefs.Remove(prefs.KeyActivePumpType, prefs.KeyActivePumpSerialNumber, prefs.KeyActivePumpChangeTimestamp); err != nil {
		return fmt.Errorf("guard clear: %w", err)
	}
	log.Info().Msg("active pump cleared")
	return nil
}

func (g *Guard) activeLocked() (pump.Identity, bool) {
	id := pump.Identity{
		Type:         pump.Type(g.prefs.String(prefs.KeyActivePumpType)),
		Serial:       g.prefs.String(prefs.KeyActivePumpSerialNumber),
		RegisteredAt: g.prefs.Int64(prefs.KeyActivePumpChangeTimestamp),
	}
	if id.Type == pump.TypeUnknown || id.Serial == "" {
		return pump.Identity{}, false
	}
	return id, true
}

func (g *Guard) storeLocked(id pump.Identity) error {
	err := g.prefs.PutAll(map[string]any{
		prefs.KeyActivePumpType:            string(id.Type),
		prefs.KeyActivePumpSerialNumber:    id.Serial,
		prefs.KeyActivePumpChangeTimestamp: id.RegisteredAt,
	})
	if err != nil {
		return fmt.Errorf("guard register: %w", err)
	}
	return nil
}
