package daemon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/pumpctl/internal/config"
	"github.com/danmuck/pumpctl/internal/pump"
	"github.com/danmuck/pumpctl/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.Store.Path = filepath.Join(dir, "data", "pumpctl.db")
	cfg.Prefs.Path = filepath.Join(dir, "data", "prefs.toml")
	return cfg
}

func TestNewWiresHTTPSurface(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	svc, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(svc.close)

	rr := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	ok, err := svc.Sync().SyncBolusWithPumpID(context.Background(), time.Now().UnixMilli(), 1.5, nil, 1,
		pump.Origin{Type: pump.TypeAccuChekInsight, Serial: "SN-1"})
	if err != nil || !ok {
		t.Fatalf("expected first bolus accepted, ok=%v err=%v", ok, err)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig(t)
	cfg.Notify.Buffer = 0
	if _, err := New(cfg); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	svc, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("serve did not stop")
	}
}

func TestOutboxConfigMapsBackoff(t *testing.T) {
	out := outboxConfig(config.OutboxConfig{Capacity: 8, MaxAttempts: 2, BackoffBaseMS: 100})
	if out.Capacity != 8 || out.MaxAttempts != 2 || out.Backoff.InitialDelay != 100*time.Millisecond {
		t.Fatalf("unexpected outbox config %+v", out)
	}
}
