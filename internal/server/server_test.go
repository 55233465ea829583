package server

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/pumpctl/internal/auth"
	"github.com/danmuck/pumpctl/internal/guard"
	"github.com/danmuck/pumpctl/internal/ingest"
	"github.com/danmuck/pumpctl/internal/notify"
	"github.com/danmuck/pumpctl/internal/prefs"
	"github.com/danmuck/pumpctl/internal/protocol/app"
	"github.com/danmuck/pumpctl/internal/protocol/session"
	"github.com/danmuck/pumpctl/internal/pump"
	"github.com/danmuck/pumpctl/internal/pumpsync"
	"github.com/danmuck/pumpctl/internal/store"
	"github.com/danmuck/pumpctl/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
)

var eventTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type harness struct {
	srv    *Server
	recent *notify.Recent
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithAuth(t, nil)
}

func newHarnessWithAuth(t *testing.T, validator auth.Validator) *harness {
	t.Helper()
	testlog.Start(t)
	gin.SetMode(gin.TestMode)

	st, err := store.Open(filepath.Join(t.TempDir(), "pump.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	now := eventTime.Add(30 * time.Second)
	clock := func() time.Time { return now }
	recent := notify.NewRecent(10)
	g := guard.New(guard.Options{Prefs: prefs.NewMemory(), Notifier: recentPublisher{recent}, Clock: clock})
	sync := pumpsync.New(pumpsync.Options{Store: st, Guard: g, Clock: clock})
	in := ingest.New(ingest.Options{
		Sync:     sync,
		Notifier: recentPublisher{recent},
		Origin:   pump.Origin{Type: pump.TypeAccuChekInsight, Serial: "SN-1"},
		Clock:    clock,
	})
	srv := New(Options{
		Name:          "pumpctl-test",
		Sync:          sync,
		Ingestor:      in,
		Outbox:        session.NewOutbox(session.DefaultConfig()),
		Notifications: recent,
		Store:         st,
		Auth:          validator,
		Clock:         clock,
	})
	return &harness{srv: srv, recent: recent}
}

type recentPublisher struct{ r *notify.Recent }

func (p recentPublisher) Publish(n notify.Notification) { p.r.Deliver(n) }

func (h *harness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" && strings.HasPrefix(body, "{") {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), out); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
}

func historyHex(t *testing.T, events ...app.HistoryEvent) string {
	t.Helper()
	b, err := app.SerializeResponse(&app.ReadHistoryEventsMessage{Events: events}, 0)
	if err != nil {
		t.Fatalf("serialize history: %v", err)
	}
	return hex.EncodeToString(b)
}

func TestHealthReportsStore(t *testing.T) {
	h := newHarness(t)
	rr := h.do(t, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var body map[string]any
	decode(t, rr, &body)
	if body["status"] != "ok" || body["service"] != "pumpctl-test" {
		t.Fatalf("unexpected health body %#v", body)
	}
}

func TestCommandsQueueAndDrainByPriority(t *testing.T) {
	h := newHarness(t)

	rr := h.do(t, http.MethodPost, "/pump/commands/set_tbr", `{"percentage":150,"duration_minutes":30}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("set_tbr: expected 202, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = h.do(t, http.MethodPost, "/pump/commands/get_date_time", "")
	if rr.Code != http.StatusAccepted {
		t.Fatalf("get_date_time: expected 202, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = h.do(t, http.MethodPost, "/pump/commands/cancel_bolus", `{"bolus_id":3}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("cancel_bolus: expected 202, got %d body=%s", rr.Code, rr.Body.String())
	}

	var pending struct {
		Frames []pendingJSON `json:"frames"`
	}
	decode(t, h.do(t, http.MethodGet, "/pump/outbox/pending", ""), &pending)
	if len(pending.Frames) != 3 {
		t.Fatalf("expected 3 pending, got %+v", pending.Frames)
	}

	var drained struct {
		Frames []pendingJSON `json:"frames"`
	}
	decode(t, h.do(t, http.MethodGet, "/pump/outbox", ""), &drained)
	got := make([]string, 0, len(drained.Frames))
	for _, f := range drained.Frames {
		got = append(got, f.Command)
	}
	want := []string{"cancel_bolus", "set_tbr", "get_date_time"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("drain order: got %v want %v", got, want)
	}
	if drained.Frames[0].Priority != app.PriorityHighest.String() {
		t.Fatalf("unexpected priority %q", drained.Frames[0].Priority)
	}
	if len(drained.Frames[2].Frame) != 8 {
		t.Fatalf("get_date_time is header only, got %q", drained.Frames[2].Frame)
	}

	decode(t, h.do(t, http.MethodGet, "/pump/outbox", ""), &drained)
	if len(drained.Frames) != 0 {
		t.Fatalf("expected empty outbox after drain, got %+v", drained.Frames)
	}
}

func TestCommandErrors(t *testing.T) {
	h := newHarness(t)

	if rr := h.do(t, http.MethodPost, "/pump/commands/make_coffee", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown command: expected 404, got %d", rr.Code)
	}
	if rr := h.do(t, http.MethodPost, "/pump/commands/set_tbr", `{"percentage":300,"duration_minutes":30}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid tbr: expected 400, got %d", rr.Code)
	}
	if rr := h.do(t, http.MethodPost, "/pump/commands/deliver_bolus", `{"bolus_type":"square"}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid bolus type: expected 400, got %d", rr.Code)
	}
	if rr := h.do(t, http.MethodPost, "/pump/commands/set_tbr", `{"percentage":`); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad json: expected 400, got %d", rr.Code)
	}
}

func TestOutboxRetryRequeuesUntilDropped(t *testing.T) {
	h := newHarness(t)
	if rr := h.do(t, http.MethodPost, "/pump/commands/get_operating_mode", ""); rr.Code != http.StatusAccepted {
		t.Fatalf("enqueue: expected 202, got %d body=%s", rr.Code, rr.Body.String())
	}
	var drained struct {
		Frames []pendingJSON `json:"frames"`
	}
	decode(t, h.do(t, http.MethodGet, "/pump/outbox", ""), &drained)
	if len(drained.Frames) != 1 {
		t.Fatalf("expected 1 drained frame, got %+v", drained.Frames)
	}
	f := drained.Frames[0]

	body, err := json.Marshal(map[string]any{"id": f.ID, "command": f.Command, "frame": f.Frame, "attempts": f.Attempts, "error": "link down"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	rr := h.do(t, http.MethodPost, "/pump/outbox/retry", string(body))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("retry: expected 202, got %d body=%s", rr.Code, rr.Body.String())
	}

	// backing off, so visible but not drainable yet
	decode(t, h.do(t, http.MethodGet, "/pump/outbox", ""), &drained)
	if len(drained.Frames) != 0 {
		t.Fatalf("expected nothing ready during backoff, got %+v", drained.Frames)
	}
	var pending struct {
		Frames []pendingJSON `json:"frames"`
	}
	decode(t, h.do(t, http.MethodGet, "/pump/outbox/pending", ""), &pending)
	if len(pending.Frames) != 1 || pending.Frames[0].Attempts != 1 || pending.Frames[0].LastError != "link down" {
		t.Fatalf("unexpected pending %+v", pending.Frames)
	}

	body, _ = json.Marshal(map[string]any{"id": f.ID, "command": f.Command, "frame": f.Frame, "attempts": 2, "error": "link down"})
	if rr := h.do(t, http.MethodPost, "/pump/outbox/retry", string(body)); rr.Code != http.StatusGone {
		t.Fatalf("exhausted retry: expected 410, got %d body=%s", rr.Code, rr.Body.String())
	}
	if rr := h.do(t, http.MethodPost, "/pump/outbox/retry", `{"id":"x","command":"make_coffee","frame":"00"}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown command: expected 400, got %d", rr.Code)
	}
}

func TestFramesFeedPumpState(t *testing.T) {
	h := newHarness(t)

	body := historyHex(t, &app.TBRStartedEvent{
		EventMeta:  app.EventMeta{Position: 1, Time: eventTime},
		Percentage: 150,
		Duration:   60 * time.Minute,
	})
	rr := h.do(t, http.MethodPost, "/pump/frames", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("frames: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var report ingest.Report
	decode(t, rr, &report)
	if report.Command != "read_history_events" || report.Accepted != 1 {
		t.Fatalf("unexpected report %+v", report)
	}

	var state pump.State
	decode(t, h.do(t, http.MethodGet, "/pump/state", ""), &state)
	if state.TemporaryBasal == nil || state.TemporaryBasal.Rate != 150 || state.SerialNumber != "SN-1" {
		t.Fatalf("unexpected state %+v", state)
	}

	rr = h.do(t, http.MethodPost, "/pump/connect?end_running=true", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("connect: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	state = pump.State{}
	decode(t, h.do(t, http.MethodGet, "/pump/state", ""), &state)
	if state.TemporaryBasal != nil || state.SerialNumber != "" {
		t.Fatalf("expected cleared state, got %+v", state)
	}

	if rr := h.do(t, http.MethodPost, "/pump/connect?end_running=maybe", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad flag: expected 400, got %d", rr.Code)
	}
}

func TestFrameErrorsMapToStatus(t *testing.T) {
	h := newHarness(t)

	if rr := h.do(t, http.MethodPost, "/pump/frames", "not hex"); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad hex: expected 400, got %d", rr.Code)
	}

	raw, _ := hex.DecodeString(historyHex(t, &app.BatteryInsertedEvent{EventMeta: app.EventMeta{Position: 1, Time: eventTime}}))
	raw[len(raw)-3] ^= 0xFF
	if rr := h.do(t, http.MethodPost, "/pump/frames", hex.EncodeToString(raw)); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad crc: expected 400, got %d", rr.Code)
	}

	errFrame, err := app.SerializeResponse(&app.GetOperatingModeMessage{}, 0xF50C)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if rr := h.do(t, http.MethodPost, "/pump/frames", hex.EncodeToString(errFrame)); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("device error: expected 422, got %d body=%s", rr.Code, rr.Body.String())
	}

	var notes struct {
		Notifications []notify.Notification `json:"notifications"`
	}
	decode(t, h.do(t, http.MethodGet, "/notifications", ""), &notes)
	if len(notes.Notifications) != 1 || notes.Notifications[0].Kind != notify.PumpError {
		t.Fatalf("expected one pump error alert, got %+v", notes.Notifications)
	}
}

func TestTokenGuardsStateChanges(t *testing.T) {
	h := newHarnessWithAuth(t, auth.StaticToken{Token: "s3cret"})

	if rr := h.do(t, http.MethodPost, "/pump/commands/get_date_time", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
	if rr := h.do(t, http.MethodGet, "/pump/outbox", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 draining without token, got %d", rr.Code)
	}
	if rr := h.do(t, http.MethodGet, "/pump/state", ""); rr.Code != http.StatusOK {
		t.Fatalf("reads stay open, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/pump/commands/get_date_time", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rr := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202 with token, got %d body=%s", rr.Code, rr.Body.String())
	}
}
