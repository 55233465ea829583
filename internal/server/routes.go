package server

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/danmuck/pumpctl/internal/auth"
	"github.com/danmuck/pumpctl/internal/observability"
	"github.com/danmuck/pumpctl/internal/protocol"
	"github.com/danmuck/pumpctl/internal/protocol/app"
	"github.com/danmuck/pumpctl/internal/protocol/session"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// maxFrameBody bounds POST /pump/frames bodies.
const maxFrameBody = 64 << 10

func (s *Server) registerRoutes() {
	r := s.router
	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	pump := r.Group("/pump")
	pump.GET("/state", s.pumpState)
	pump.GET("/outbox/pending", s.listOutbox)

	// everything that changes pump or queue state
	write := pump.Group("")
	if s.auth != nil {
		write.Use(auth.Require(s.auth))
	}
	write.POST("/connect", s.connectPump)
	write.POST("/frames", s.receiveFrame)
	write.POST("/commands/:command", s.enqueueCommand)
	write.GET("/outbox", s.drainOutbox)
	write.POST("/outbox/retry", s.retryOutbox)

	r.GET("/notifications", s.listNotifications)
}

func (s *Server) health(c *gin.Context) {
	status, code := "ok", http.StatusOK
	if s.store != nil {
		if err := s.store.Ping(c.Request.Context()); err != nil {
			log.Error().Err(err).Msg("store ping failed")
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}
	c.JSON(code, gin.H{
		"status":  status,
		"uptime":  time.Since(s.started).String(),
		"service": s.name,
		"version": "0.1.0",
	})
}

func (s *Server) pumpState(c *gin.Context) {
	state, err := s.sync.ExpectedPumpState(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) connectPump(c *gin.Context) {
	endRunning := false
	if raw := c.Query("end_running"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "end_running must be a boolean"})
			return
		}
		endRunning = v
	}
	if err := s.sync.ConnectNewPump(c.Request.Context(), endRunning); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "end_running": endRunning})
}

func (s *Server) receiveFrame(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxFrameBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	report, err := s.ingestor.ReceiveHex(c.Request.Context(), string(body))
	if err != nil {
		c.JSON(frameErrorStatus(err), gin.H{"error": err.Error(), "report": report})
		return
	}
	c.JSON(http.StatusOK, report)
}

// frameErrorStatus maps codec failures to client errors. A device error is
// a well formed frame and is answered 422.
func frameErrorStatus(err error) int {
	var devErr *app.DeviceError
	var unknownCode *app.UnknownErrorCodeError
	switch {
	case errors.As(err, &devErr), errors.As(err, &unknownCode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, protocol.ErrMalformedFrame),
		errors.Is(err, protocol.ErrIncompatibleVersion),
		errors.Is(err, protocol.ErrUnknownService),
		errors.Is(err, protocol.ErrUnknownCommand),
		errors.Is(err, protocol.ErrInvalidCRC),
		errors.Is(err, hex.ErrLength):
		return http.StatusBadRequest
	default:
		var invalidByte hex.InvalidByteError
		if errors.As(err, &invalidByte) {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	}
}

func (s *Server) enqueueCommand(c *gin.Context) {
	variant, ok := app.LookupName(c.Param("command"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown command %q", c.Param("command"))})
		return
	}
	var req commandRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	msg, err := buildMessage(variant, req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := s.outbox.Enqueue(msg, s.clock())
	switch {
	case errors.Is(err, session.ErrOutboxFull):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	observability.SetOutboxDepth(s.outbox.Len())
	c.JSON(http.StatusAccepted, pendingView(p))
}

func (s *Server) drainOutbox(c *gin.Context) {
	drained := s.outbox.Drain(s.clock())
	observability.SetOutboxDepth(s.outbox.Len())
	out := make([]pendingJSON, 0, len(drained))
	for _, p := range drained {
		out = append(out, pendingView(p))
	}
	c.JSON(http.StatusOK, gin.H{"frames": out})
}

// retryOutbox requeues a drained frame the transport could not deliver.
func (s *Server) retryOutbox(c *gin.Context) {
	var req retryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := req.pending()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, requeued := s.outbox.Retry(p, s.clock(), req.Error)
	observability.SetOutboxDepth(s.outbox.Len())
	if !requeued {
		log.Warn().Str("id", p.ID).Str("command", p.Command).Int("attempts", p.Attempts).Msg("outbox frame dropped")
		c.JSON(http.StatusGone, pendingView(p))
		return
	}
	c.JSON(http.StatusAccepted, pendingView(p))
}

func (s *Server) listOutbox(c *gin.Context) {
	pending := s.outbox.List()
	out := make([]pendingJSON, 0, len(pending))
	for _, p := range pending {
		out = append(out, pendingView(p))
	}
	c.JSON(http.StatusOK, gin.H{"frames": out})
}

func (s *Server) listNotifications(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"notifications": s.notes.List()})
}
