// Package ingest feeds frames received from the pump through the app codec
// and records what they report.
package ingest

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/pumpctl/internal/notify"
	"github.com/danmuck/pumpctl/internal/observability"
	"github.com/danmuck/pumpctl/internal/protocol/app"
	"github.com/danmuck/pumpctl/internal/pump"
	"github.com/rs/zerolog/log"
)

// SuspendDuration bounds the PUMP_SUSPEND basal opened when the pump stops.
// The matching start closes it early.
const SuspendDuration = 30 * 24 * time.Hour

// Sync is the part of the reconciliation layer history is written through.
type Sync interface {
	SyncBolusWithPumpID(ctx context.Context, timestamp int64, amount float64, typeOverride *pump.BolusType, pumpID int64, origin pump.Origin) (bool, error)
	SyncExtendedBolusWithPumpID(ctx context.Context, timestamp int64, amount float64, duration int64, isEmulatingTempBasal bool, pumpID int64, origin pump.Origin) (bool, error)
	SyncTemporaryBasalWithPumpID(ctx context.Context, timestamp int64, rate float64, duration int64, isAbsolute bool, typeOverride *pump.TemporaryBasalType, pumpID int64, origin pump.Origin) (bool, error)
	SyncStopTemporaryBasalWithPumpID(ctx context.Context, timestamp, endPumpID int64, origin pump.Origin) (bool, error)
	InsertTherapyEventIfNewWithTimestamp(ctx context.Context, timestamp int64, eventType pump.TherapyEventType, note string, pumpID *int64, origin pump.Origin) (bool, error)
	InsertAnnouncement(ctx context.Context, message string, pumpID *int64, origin pump.Origin)
	CreateOrUpdateTotalDailyDose(ctx context.Context, timestamp int64, bolus, basal, total float64, pumpID *int64, origin pump.Origin) (bool, error)
}

// Notifier receives pump error alerts.
type Notifier interface {
	Publish(n notify.Notification)
}

type Options struct {
	Sync     Sync
	Notifier Notifier
	Origin   pump.Origin
	Clock    pump.Clock
}

// Report summarizes one received frame.
type Report struct {
	Command  string `json:"command"`
	Events   int    `json:"events"`
	Accepted int    `json:"accepted"`
}

// Ingestor decodes inbound frames for one pump.
type Ingestor struct {
	sync     Sync
	notifier Notifier
	origin   pump.Origin
	clock    pump.Clock
	decoder  app.Decoder
}

func New(opts Options) *Ingestor {
	i := &Ingestor{
		sync:     opts.Sync,
		notifier: opts.Notifier,
		origin:   opts.Origin,
		clock:    opts.Clock,
	}
	if i.clock == nil {
		i.clock = time.Now
	}
	i.decoder = app.Decoder{Observe: observeFrame}
	return i
}

// Origin is the pump this ingestor records data for.
func (i *Ingestor) Origin() pump.Origin { return i.origin }

// ReceiveHex decodes a hex encoded frame. Whitespace is ignored.
func (i *Ingestor) ReceiveHex(ctx context.Context, raw string) (Report, error) {
	b, err := hex.DecodeString(strings.Join(strings.Fields(raw), ""))
	if err != nil {
		return Report{}, fmt.Errorf("ingest: decode hex: %w", err)
	}
	return i.Receive(ctx, b)
}

// Receive decodes one inbound frame and records its content. A device
// error frame is recorded as an announcement and returned as the error.
func (i *Ingestor) Receive(ctx context.Context, frame []byte) (Report, error) {
	msg, err := i.decoder.Decode(frame)
	if err != nil {
		var devErr *app.DeviceError
		if errors.As(err, &devErr) {
			i.deviceError(ctx, devErr)
		}
		return Report{}, err
	}
	variant, _ := app.LookupKind(msg.Kind())
	report := Report{Command: variant.Name}

	switch m := msg.(type) {
	case *app.ReadHistoryEventsMessage:
		report.Events = len(m.Events)
		for _, event := range m.Events {
			ok, err := i.historyEvent(ctx, event)
			if err != nil {
				return report, err
			}
			if ok {
				report.Accepted++
			}
		}
	case *app.GetTotalDailyDoseMessage:
		report.Events = 1
		ok, err := i.sync.CreateOrUpdateTotalDailyDose(ctx, pump.Millis(i.clock()), m.Bolus, m.Basal, m.Total, nil, i.origin)
		if err != nil {
			return report, err
		}
		if ok {
			report.Accepted++
		}
	default:
		log.Debug().Str("command", variant.Name).Msg("frame carries no history")
	}
	return report, nil
}

func (i *Ingestor) deviceError(ctx context.Context, devErr *app.DeviceError) {
	message := "pump error: " + devErr.Kind.String()
	log.Error().Str("kind", devErr.Kind.String()).Uint16("code", devErr.Code).Msg("pump reported error")
	i.sync.InsertAnnouncement(ctx, message, nil, i.origin)
	if i.notifier != nil {
		i.notifier.Publish(notify.New(notify.PumpError, notify.Urgent, message))
	}
}

// historyEvent maps one history record onto the event log. The record
// position is the pump id.
func (i *Ingestor) historyEvent(ctx context.Context, event app.HistoryEvent) (bool, error) {
	meta := event.Meta()
	ts := pump.Millis(meta.Time)
	pumpID := int64(meta.Position)

	switch e := event.(type) {
	case *app.BolusDeliveredEvent:
		return i.bolusDelivered(ctx, ts, pumpID, e)

	case *app.TBRStartedEvent:
		return i.sync.SyncTemporaryBasalWithPumpID(ctx, ts, float64(e.Percentage), e.Duration.Milliseconds(), false, nil, pumpID, i.origin)

	case *app.TBREndedEvent:
		return i.sync.SyncStopTemporaryBasalWithPumpID(ctx, ts, pumpID, i.origin)

	case *app.OperatingModeChangedEvent:
		switch {
		case e.New == app.OperatingModeStopped:
			suspend := pump.TBRPumpSuspend
			return i.sync.SyncTemporaryBasalWithPumpID(ctx, ts, 0, SuspendDuration.Milliseconds(), false, &suspend, pumpID, i.origin)
		case e.Old == app.OperatingModeStopped && e.New == app.OperatingModeStarted:
			return i.sync.SyncStopTemporaryBasalWithPumpID(ctx, ts, pumpID, i.origin)
		default:
			log.Debug().Uint16("old", uint16(e.Old)).Uint16("new", uint16(e.New)).Msg("operating mode change ignored")
			return false, nil
		}

	case *app.CartridgeInsertedEvent:
		return i.sync.InsertTherapyEventIfNewWithTimestamp(ctx, ts, pump.TherapyInsulinChange, "", pump.Int64(pumpID), i.origin)

	case *app.CannulaFilledEvent:
		return i.sync.InsertTherapyEventIfNewWithTimestamp(ctx, ts, pump.TherapyCannulaChange, "", pump.Int64(pumpID), i.origin)

	case *app.BatteryInsertedEvent:
		return i.sync.InsertTherapyEventIfNewWithTimestamp(ctx, ts, pump.TherapyBatteryChange, "", pump.Int64(pumpID), i.origin)

	case *app.DailyTotalEvent:
		day := pump.Millis(e.Day)
		return i.sync.CreateOrUpdateTotalDailyDose(ctx, day, e.Bolus, e.Basal, e.Bolus+e.Basal, pump.Int64(pumpID), i.origin)

	default:
		return false, fmt.Errorf("ingest: unhandled history event 0x%04X", uint16(event.Type()))
	}
}

// bolusDelivered splits multiwave boluses into their immediate and
// extended parts.
func (i *Ingestor) bolusDelivered(ctx context.Context, ts, pumpID int64, e *app.BolusDeliveredEvent) (bool, error) {
	var accepted bool
	if e.Immediate > 0 {
		ok, err := i.sync.SyncBolusWithPumpID(ctx, ts, e.Immediate, nil, pumpID, i.origin)
		if err != nil {
			return false, err
		}
		accepted = accepted || ok
	}
	if e.Extended > 0 && e.Duration > 0 {
		ok, err := i.sync.SyncExtendedBolusWithPumpID(ctx, ts, e.Extended, e.Duration.Milliseconds(), false, pumpID, i.origin)
		if err != nil {
			return false, err
		}
		accepted = accepted || ok
	}
	return accepted, nil
}

func observeFrame(o app.Outcome) {
	command := o.Variant.Name
	if command == "" {
		command = fmt.Sprintf("0x%04X", o.Header.CommandID)
	}
	state := o.FailedIn.String()
	if o.Err != nil {
		state = "rejected_" + state
	}
	observability.RecordFrame(command, state)
}
