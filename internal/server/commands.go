package server

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/pumpctl/internal/protocol/app"
	"github.com/danmuck/pumpctl/internal/protocol/session"
)

// commandRequest carries the parameters of every command that takes any.
// Fields a command does not use are ignored.
type commandRequest struct {
	Percentage      uint16  `json:"percentage"`
	DurationMinutes int     `json:"duration_minutes"`
	BolusType       string  `json:"bolus_type"`
	Immediate       float64 `json:"immediate"`
	Extended        float64 `json:"extended"`
	BolusID         uint16  `json:"bolus_id"`
	Direction       string  `json:"direction"`
	Offset          uint32  `json:"offset"`
	Service         uint8   `json:"service"`
	Password        string  `json:"password"`
}

func buildMessage(variant app.Variant, req commandRequest) (app.Message, error) {
	duration := time.Duration(req.DurationMinutes) * time.Minute
	switch variant.Kind {
	case app.KindSetTBR:
		return &app.SetTBRMessage{Percentage: req.Percentage, Duration: duration}, nil
	case app.KindDeliverBolus:
		t, err := parseBolusType(req.BolusType)
		if err != nil {
			return nil, err
		}
		return &app.DeliverBolusMessage{Type: t, Immediate: req.Immediate, Extended: req.Extended, Duration: duration}, nil
	case app.KindCancelBolus:
		return &app.CancelBolusMessage{BolusID: req.BolusID}, nil
	case app.KindStartReadingHistory:
		d := app.HistoryForward
		switch req.Direction {
		case "", "forward":
		case "backward":
			d = app.HistoryBackward
		default:
			return nil, fmt.Errorf("unknown history direction %q", req.Direction)
		}
		return &app.StartReadingHistoryMessage{Direction: d, Offset: req.Offset}, nil
	case app.KindActivateService:
		svc, ok := app.LookupService(req.Service)
		if !ok {
			return nil, fmt.Errorf("unknown service 0x%02X", req.Service)
		}
		return app.NewActivateService(svc, []byte(req.Password)), nil
	default:
		return variant.New(), nil
	}
}

func parseBolusType(raw string) (app.BolusType, error) {
	switch raw {
	case "", "standard":
		return app.BolusStandard, nil
	case "extended":
		return app.BolusExtended, nil
	case "multiwave":
		return app.BolusMultiwave, nil
	default:
		return 0, fmt.Errorf("unknown bolus type %q", raw)
	}
}

type pendingJSON struct {
	ID        string    `json:"id"`
	Command   string    `json:"command"`
	Priority  string    `json:"priority"`
	Frame     string    `json:"frame"`
	QueuedAt  time.Time `json:"queued_at"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
}

func pendingView(p session.Pending) pendingJSON {
	return pendingJSON{
		ID:        p.ID,
		Command:   p.Command,
		Priority:  p.Priority.String(),
		Frame:     fmt.Sprintf("%x", p.Frame),
		QueuedAt:  p.QueuedAt,
		Attempts:  p.Attempts,
		LastError: p.LastError,
	}
}

// retryRequest echoes a drained frame back with the delivery failure.
type retryRequest struct {
	ID       string    `json:"id"`
	Command  string    `json:"command"`
	Frame    string    `json:"frame"`
	QueuedAt time.Time `json:"queued_at"`
	Attempts int       `json:"attempts"`
	Error    string    `json:"error"`
}

func (r retryRequest) pending() (session.Pending, error) {
	variant, ok := app.LookupName(r.Command)
	if !ok {
		return session.Pending{}, fmt.Errorf("unknown command %q", r.Command)
	}
	raw, err := hex.DecodeString(r.Frame)
	if err != nil {
		return session.Pending{}, fmt.Errorf("frame: %w", err)
	}
	if len(raw) == 0 {
		return session.Pending{}, errors.New("frame: empty")
	}
	if r.ID == "" {
		return session.Pending{}, errors.New("id: required")
	}
	return session.Pending{
		ID:       r.ID,
		Command:  variant.Name,
		Priority: variant.Priority,
		Frame:    raw,
		QueuedAt: r.QueuedAt,
		Attempts: r.Attempts,
	}, nil
}
