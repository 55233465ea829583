// Package daemon wires the store, guard, reconciliation layer and HTTP
// surface into one process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/danmuck/pumpctl/internal/auth"
	"github.com/danmuck/pumpctl/internal/config"
	"github.com/danmuck/pumpctl/internal/guard"
	"github.com/danmuck/pumpctl/internal/ingest"
	"github.com/danmuck/pumpctl/internal/notify"
	"github.com/danmuck/pumpctl/internal/prefs"
	"github.com/danmuck/pumpctl/internal/protocol/session"
	"github.com/danmuck/pumpctl/internal/pump"
	"github.com/danmuck/pumpctl/internal/pumpsync"
	"github.com/danmuck/pumpctl/internal/server"
	"github.com/danmuck/pumpctl/internal/store"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 5 * time.Second

// Service owns every long-lived component of a pumpctl process.
type Service struct {
	cfg        config.Config
	store      *store.Store
	prefs      *prefs.File
	dispatcher *notify.Dispatcher
	recent     *notify.Recent
	outbox     *session.Outbox
	sync       *pumpsync.Sync
	server     *server.Server
}

// New opens the store and prefs named by cfg and wires the components.
func New(cfg config.Config) (*Service, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	if dir := filepath.Dir(cfg.Store.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("daemon: store dir: %w", err)
		}
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	pf, err := prefs.OpenFile(cfg.Prefs.Path)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	dispatcher := notify.NewDispatcher(cfg.Notify.Buffer)
	recent := notify.NewRecent(cfg.Notify.Recent)
	simulation := cfg.Pump.Simulation || cfg.Pump.Type.Simulated()

	g := guard.New(guard.Options{
		Prefs:      pf,
		Notifier:   dispatcher,
		Simulation: func() bool { return simulation },
	})
	sync := pumpsync.New(pumpsync.Options{Store: st, Guard: g})
	in := ingest.New(ingest.Options{
		Sync:     sync,
		Notifier: dispatcher,
		Origin:   pump.Origin{Type: cfg.Pump.Type, Serial: cfg.Pump.Serial},
	})
	outbox := session.NewOutbox(outboxConfig(cfg.Outbox))

	var validator auth.Validator
	if cfg.APIToken != "" {
		validator = auth.StaticToken{Token: cfg.APIToken}
	}
	srv := server.New(server.Options{
		Name:          cfg.Name,
		CorsOrigins:   cfg.CorsOrigins,
		Sync:          sync,
		Ingestor:      in,
		Outbox:        outbox,
		Notifications: recent,
		Store:         st,
		Auth:          validator,
	})

	return &Service{
		cfg:        cfg,
		store:      st,
		prefs:      pf,
		dispatcher: dispatcher,
		recent:     recent,
		outbox:     outbox,
		sync:       sync,
		server:     srv,
	}, nil
}

func outboxConfig(c config.OutboxConfig) session.Config {
	out := session.DefaultConfig()
	out.Capacity = c.Capacity
	out.MaxAttempts = c.MaxAttempts
	if c.BackoffBaseMS > 0 {
		out.Backoff.InitialDelay = time.Duration(c.BackoffBaseMS) * time.Millisecond
	}
	return out
}

// Handler exposes the HTTP surface.
func (s *Service) Handler() http.Handler {
	return s.server.Handler()
}

// Sync exposes the reconciliation layer.
func (s *Service) Sync() *pumpsync.Sync {
	return s.sync
}

// Run blocks until SIGINT or SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Serve(ctx)
}

// Serve runs the notification consumer and the HTTP listener until ctx is
// done, then shuts both down and closes the store.
func (s *Service) Serve(ctx context.Context) error {
	defer s.close()
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	sinkDone := make(chan struct{})
	go func() {
		defer close(sinkDone)
		s.dispatcher.Run(runCtx, notify.Fanout{notify.LogSink{}, s.recent})
	}()

	httpServer := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("service", s.cfg.Name).Str("addr", s.cfg.Addr).Msg("pumpctl listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	var err error
	select {
	case <-runCtx.Done():
	case err = <-serveErr:
		log.Error().Err(err).Msg("http listener failed")
	}
	cancelRun()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	<-sinkDone
	log.Info().Uint64("dropped_notifications", s.dispatcher.Dropped()).Msg("pumpctl stopped")
	return err
}

func (s *Service) close() {
	if err := s.store.Close(); err != nil {
		log.Error().Err(err).Msg("close store")
	}
}
