package ingest

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/pumpctl/internal/notify"
	"github.com/danmuck/pumpctl/internal/protocol"
	"github.com/danmuck/pumpctl/internal/protocol/app"
	"github.com/danmuck/pumpctl/internal/pump"
	"github.com/danmuck/pumpctl/internal/testutil/testlog"
)

var origin = pump.Origin{Type: pump.TypeAccuChekInsight, Serial: "SN-1"}

type recorder struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (r *recorder) add(format string, args ...any) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
	return r.err == nil, r.err
}

func (r *recorder) SyncBolusWithPumpID(_ context.Context, ts int64, amount float64, _ *pump.BolusType, pumpID int64, _ pump.Origin) (bool, error) {
	return r.add("bolus ts=%d amount=%.2f id=%d", ts, amount, pumpID)
}

func (r *recorder) SyncExtendedBolusWithPumpID(_ context.Context, ts int64, amount float64, duration int64, _ bool, pumpID int64, _ pump.Origin) (bool, error) {
	return r.add("extended ts=%d amount=%.2f duration=%d id=%d", ts, amount, duration, pumpID)
}

func (r *recorder) SyncTemporaryBasalWithPumpID(_ context.Context, ts int64, rate float64, duration int64, isAbsolute bool, typeOverride *pump.TemporaryBasalType, pumpID int64, _ pump.Origin) (bool, error) {
	kind := "default"
	if typeOverride != nil {
		kind = string(*typeOverride)
	}
	return r.add("tbr ts=%d rate=%.0f duration=%d absolute=%t type=%s id=%d", ts, rate, duration, isAbsolute, kind, pumpID)
}

func (r *recorder) SyncStopTemporaryBasalWithPumpID(_ context.Context, ts, endPumpID int64, _ pump.Origin) (bool, error) {
	return r.add("tbr_stop ts=%d id=%d", ts, endPumpID)
}

func (r *recorder) InsertTherapyEventIfNewWithTimestamp(_ context.Context, ts int64, eventType pump.TherapyEventType, _ string, pumpID *int64, _ pump.Origin) (bool, error) {
	return r.add("therapy ts=%d type=%s id=%d", ts, eventType, *pumpID)
}

func (r *recorder) InsertAnnouncement(_ context.Context, message string, _ *int64, _ pump.Origin) {
	_, _ = r.add("announcement %s", message)
}

func (r *recorder) CreateOrUpdateTotalDailyDose(_ context.Context, ts int64, bolus, basal, total float64, _ *int64, _ pump.Origin) (bool, error) {
	return r.add("tdd ts=%d bolus=%.2f basal=%.2f total=%.2f", ts, bolus, basal, total)
}

type alerts struct {
	mu    sync.Mutex
	items []notify.Notification
}

func (a *alerts) Publish(n notify.Notification) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items = append(a.items, n)
}

func historyFrame(t *testing.T, events ...app.HistoryEvent) []byte {
	t.Helper()
	b, err := app.SerializeResponse(&app.ReadHistoryEventsMessage{Events: events}, 0)
	if err != nil {
		t.Fatalf("serialize history: %v", err)
	}
	return b
}

func meta(position uint32, at time.Time) app.EventMeta {
	return app.EventMeta{Position: position, Time: at}
}

func newIngestor(rec *recorder, notes *alerts, now time.Time) *Ingestor {
	return New(Options{Sync: rec, Notifier: notes, Origin: origin, Clock: func() time.Time { return now }})
}

func TestHistoryEventsMapToReconciliation(t *testing.T) {
	testlog.Start(t)
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	ms := at.UnixMilli()
	rec := &recorder{}
	in := newIngestor(rec, &alerts{}, at)

	frame := historyFrame(t,
		&app.BolusDeliveredEvent{EventMeta: meta(1, at), BolusID: 7, BolusType: app.BolusStandard, Immediate: 2.5},
		&app.BolusDeliveredEvent{EventMeta: meta(2, at), BolusID: 8, BolusType: app.BolusMultiwave, Immediate: 1, Extended: 2, Duration: 30 * time.Minute},
		&app.TBRStartedEvent{EventMeta: meta(3, at), Percentage: 150, Duration: 60 * time.Minute},
		&app.TBREndedEvent{EventMeta: meta(4, at), Percentage: 150, Duration: 20 * time.Minute},
		&app.CartridgeInsertedEvent{EventMeta: meta(5, at), Amount: 300},
		&app.CannulaFilledEvent{EventMeta: meta(6, at), Amount: 0.7},
		&app.BatteryInsertedEvent{EventMeta: meta(7, at)},
		&app.DailyTotalEvent{EventMeta: meta(8, at), Day: time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC), Basal: 12, Bolus: 10.5},
	)
	report, err := in.Receive(context.Background(), frame)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if report.Command != "read_history_events" || report.Events != 8 || report.Accepted != 8 {
		t.Fatalf("unexpected report %+v", report)
	}

	day := time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC).UnixMilli()
	want := []string{
		fmt.Sprintf("bolus ts=%d amount=2.50 id=1", ms),
		fmt.Sprintf("bolus ts=%d amount=1.00 id=2", ms),
		fmt.Sprintf("extended ts=%d amount=2.00 duration=%d id=2", ms, (30 * time.Minute).Milliseconds()),
		fmt.Sprintf("tbr ts=%d rate=150 duration=%d absolute=false type=default id=3", ms, (60 * time.Minute).Milliseconds()),
		fmt.Sprintf("tbr_stop ts=%d id=4", ms),
		fmt.Sprintf("therapy ts=%d type=INSULIN_CHANGE id=5", ms),
		fmt.Sprintf("therapy ts=%d type=CANNULA_CHANGE id=6", ms),
		fmt.Sprintf("therapy ts=%d type=PUMP_BATTERY_CHANGE id=7", ms),
		fmt.Sprintf("tdd ts=%d bolus=10.50 basal=12.00 total=22.50", day),
	}
	if len(rec.calls) != len(want) {
		t.Fatalf("calls mismatch:\n got=%q\nwant=%q", rec.calls, want)
	}
	for i := range want {
		if rec.calls[i] != want[i] {
			t.Fatalf("call %d: got %q want %q", i, rec.calls[i], want[i])
		}
	}
}

func TestOperatingModeStopOpensSuspend(t *testing.T) {
	testlog.Start(t)
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	rec := &recorder{}
	in := newIngestor(rec, &alerts{}, at)

	frame := historyFrame(t,
		&app.OperatingModeChangedEvent{EventMeta: meta(10, at), Old: app.OperatingModeStarted, New: app.OperatingModeStopped},
		&app.OperatingModeChangedEvent{EventMeta: meta(11, at.Add(time.Hour)), Old: app.OperatingModeStopped, New: app.OperatingModeStarted},
		&app.OperatingModeChangedEvent{EventMeta: meta(12, at.Add(2 * time.Hour)), Old: app.OperatingModeStarted, New: app.OperatingModePaused},
	)
	report, err := in.Receive(context.Background(), frame)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if report.Accepted != 2 {
		t.Fatalf("expected 2 accepted, got %+v", report)
	}
	want := []string{
		fmt.Sprintf("tbr ts=%d rate=0 duration=%d absolute=false type=PUMP_SUSPEND id=10", at.UnixMilli(), SuspendDuration.Milliseconds()),
		fmt.Sprintf("tbr_stop ts=%d id=11", at.Add(time.Hour).UnixMilli()),
	}
	if len(rec.calls) != 2 || rec.calls[0] != want[0] || rec.calls[1] != want[1] {
		t.Fatalf("calls mismatch:\n got=%q\nwant=%q", rec.calls, want)
	}
}

func TestTotalDailyDoseResponseUsesNow(t *testing.T) {
	testlog.Start(t)
	now := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	rec := &recorder{}
	in := newIngestor(rec, &alerts{}, now)

	frame, err := app.SerializeResponse(&app.GetTotalDailyDoseMessage{Bolus: 4, Basal: 6, Total: 10}, 0)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	report, err := in.ReceiveHex(context.Background(), hex.EncodeToString(frame))
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if report.Accepted != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	want := fmt.Sprintf("tdd ts=%d bolus=4.00 basal=6.00 total=10.00", now.UnixMilli())
	if len(rec.calls) != 1 || rec.calls[0] != want {
		t.Fatalf("got %q want %q", rec.calls, want)
	}
}

func TestDeviceErrorAnnouncesAndAlerts(t *testing.T) {
	testlog.Start(t)
	rec := &recorder{}
	notes := &alerts{}
	in := newIngestor(rec, notes, time.Now())

	frame, err := app.SerializeResponse(&app.GetOperatingModeMessage{}, 0xF50C)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	_, err = in.Receive(context.Background(), frame)
	var devErr *app.DeviceError
	if !errors.As(err, &devErr) || devErr.Kind != app.ErrorPumpStopped {
		t.Fatalf("expected pump stopped device error, got %v", err)
	}
	if len(rec.calls) != 1 || rec.calls[0] != "announcement pump error: pump_stopped" {
		t.Fatalf("unexpected calls %q", rec.calls)
	}
	if len(notes.items) != 1 || notes.items[0].Kind != notify.PumpError || notes.items[0].Level != notify.Urgent {
		t.Fatalf("unexpected alerts %+v", notes.items)
	}
}

func TestProtocolErrorsRecordNothing(t *testing.T) {
	testlog.Start(t)
	rec := &recorder{}
	in := newIngestor(rec, &alerts{}, time.Now())

	frame := historyFrame(t, &app.BatteryInsertedEvent{EventMeta: meta(1, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))})
	frame[len(frame)-3] ^= 0xFF

	if _, err := in.Receive(context.Background(), frame); !errors.Is(err, protocol.ErrInvalidCRC) {
		t.Fatalf("expected ErrInvalidCRC, got %v", err)
	}
	if _, err := in.ReceiveHex(context.Background(), "zz"); err == nil {
		t.Fatalf("expected hex error")
	}
	if len(rec.calls) != 0 {
		t.Fatalf("expected no calls, got %q", rec.calls)
	}
}

func TestSyncErrorStopsBatch(t *testing.T) {
	testlog.Start(t)
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	rec := &recorder{err: errors.New("disk full")}
	in := newIngestor(rec, &alerts{}, at)

	frame := historyFrame(t,
		&app.BatteryInsertedEvent{EventMeta: meta(1, at)},
		&app.BatteryInsertedEvent{EventMeta: meta(2, at)},
	)
	report, err := in.Receive(context.Background(), frame)
	if err == nil {
		t.Fatalf("expected error")
	}
	if report.Accepted != 0 || len(rec.calls) != 1 {
		t.Fatalf("expected batch to stop at first failure, report=%+v calls=%q", report, rec.calls)
	}
}
