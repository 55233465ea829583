// Package server is the pumpctl HTTP surface.
package server

import (
	"context"
	"time"

	"github.com/danmuck/pumpctl/internal/auth"
	"github.com/danmuck/pumpctl/internal/ingest"
	"github.com/danmuck/pumpctl/internal/notify"
	"github.com/danmuck/pumpctl/internal/observability"
	"github.com/danmuck/pumpctl/internal/protocol/app"
	"github.com/danmuck/pumpctl/internal/protocol/session"
	"github.com/danmuck/pumpctl/internal/pump"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Sync is the reconciliation surface the routes drive.
type Sync interface {
	ExpectedPumpState(ctx context.Context) (pump.State, error)
	ConnectNewPump(ctx context.Context, endRunning bool) error
}

// Ingestor accepts frames received from the pump.
type Ingestor interface {
	ReceiveHex(ctx context.Context, raw string) (ingest.Report, error)
}

// Outbox holds serialized commands for the transport.
type Outbox interface {
	Enqueue(m app.Message, now time.Time) (session.Pending, error)
	Drain(now time.Time) []session.Pending
	Retry(p session.Pending, now time.Time, reason string) (session.Pending, bool)
	List() []session.Pending
	Len() int
}

// Notifications lists recent alerts.
type Notifications interface {
	List() []notify.Notification
}

// Pinger reports whether the durable store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options wires a Server. Auth, when set, guards the routes that change
// pump or queue state.
type Options struct {
	Name          string
	CorsOrigins   []string
	Sync          Sync
	Ingestor      Ingestor
	Outbox        Outbox
	Notifications Notifications
	Store         Pinger
	Auth          auth.Validator
	Clock         pump.Clock
}

type Server struct {
	name     string
	router   *gin.Engine
	sync     Sync
	ingestor Ingestor
	outbox   Outbox
	notes    Notifications
	store    Pinger
	auth     auth.Validator
	clock    pump.Clock
	started  time.Time
}

func New(opts Options) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(opts.Name))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(opts.CorsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization", observability.RequestIDHeader},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		name:     opts.Name,
		router:   r,
		sync:     opts.Sync,
		ingestor: opts.Ingestor,
		outbox:   opts.Outbox,
		notes:    opts.Notifications,
		store:    opts.Store,
		auth:     opts.Auth,
		clock:    opts.Clock,
		started:  time.Now(),
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() *gin.Engine {
	return s.router
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
