package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/pumpctl/internal/protocol/bytebuf"
)

var (
	ErrInvalidTBR   = errors.New("app: invalid temporary basal request")
	ErrInvalidBolus = errors.New("app: invalid bolus request")
)

// Limits the pump enforces on temporary basal requests.
const (
	MaxTBRPercentage = 250
	TBRDurationStep  = 15 * time.Minute
	MaxTBRDuration   = 24 * time.Hour
)

// SetTBRMessage starts a relative temporary basal rate.
type SetTBRMessage struct {
	Percentage uint16
	Duration   time.Duration
}

func (*SetTBRMessage) Kind() Kind { return KindSetTBR }

func (m *SetTBRMessage) Encode() ([]byte, error) {
	if m.Percentage > MaxTBRPercentage {
		return nil, fmt.Errorf("%w: percentage %d above %d", ErrInvalidTBR, m.Percentage, MaxTBRPercentage)
	}
	if m.Duration <= 0 || m.Duration > MaxTBRDuration || m.Duration%TBRDurationStep != 0 {
		return nil, fmt.Errorf("%w: duration %s", ErrInvalidTBR, m.Duration)
	}
	return bytebuf.NewWriter(4).
		Uint16(m.Percentage).
		Uint16(uint16(m.Duration / time.Minute)).
		Finish(), nil
}

func (*SetTBRMessage) Decode(payload []byte) error { return nil }

// CancelTBRMessage stops the running temporary basal rate.
type CancelTBRMessage struct{}

func (*CancelTBRMessage) Kind() Kind                  { return KindCancelTBR }
func (*CancelTBRMessage) Encode() ([]byte, error)     { return nil, nil }
func (*CancelTBRMessage) Decode(payload []byte) error { return nil }

// BolusType is the delivery shape of a bolus.
type BolusType uint16

const (
	BolusStandard  BolusType = 0x0001
	BolusExtended  BolusType = 0x0002
	BolusMultiwave BolusType = 0x0003
)

func (t BolusType) String() string {
	switch t {
	case BolusStandard:
		return "standard"
	case BolusExtended:
		return "extended"
	case BolusMultiwave:
		return "multiwave"
	default:
		return fmt.Sprintf("bolus_type(0x%04X)", uint16(t))
	}
}

func parseBolusType(v uint16) (BolusType, error) {
	switch t := BolusType(v); t {
	case BolusStandard, BolusExtended, BolusMultiwave:
		return t, nil
	default:
		return 0, fmt.Errorf("app: unknown bolus type 0x%04X", v)
	}
}

// DeliverBolusMessage programs a bolus. The pump answers with its bolus id.
type DeliverBolusMessage struct {
	Type      BolusType
	Immediate float64
	Extended  float64
	Duration  time.Duration

	BolusID uint16
}

func (*DeliverBolusMessage) Kind() Kind { return KindDeliverBolus }

func (m *DeliverBolusMessage) Encode() ([]byte, error) {
	switch m.Type {
	case BolusStandard:
		if m.Immediate <= 0 || m.Extended != 0 || m.Duration != 0 {
			return nil, fmt.Errorf("%w: standard bolus needs only an immediate amount", ErrInvalidBolus)
		}
	case BolusExtended:
		if m.Immediate != 0 || m.Extended <= 0 || m.Duration <= 0 {
			return nil, fmt.Errorf("%w: extended bolus needs an extended amount and duration", ErrInvalidBolus)
		}
	case BolusMultiwave:
		if m.Immediate <= 0 || m.Extended <= 0 || m.Duration <= 0 {
			return nil, fmt.Errorf("%w: multiwave bolus needs both amounts and a duration", ErrInvalidBolus)
		}
	default:
		return nil, fmt.Errorf("%w: type %s", ErrInvalidBolus, m.Type)
	}
	return bytebuf.NewWriter(8).
		Uint16(uint16(m.Type)).
		Uint16(uint16(centiFromUnits(m.Immediate))).
		Uint16(uint16(centiFromUnits(m.Extended))).
		Uint16(uint16(m.Duration / time.Minute)).
		Finish(), nil
}

func (m *DeliverBolusMessage) Decode(payload []byte) error {
	id, err := bytebuf.NewReader(payload).Uint16()
	if err != nil {
		return err
	}
	m.BolusID = id
	return nil
}

func (m *DeliverBolusMessage) EncodeResponse() ([]byte, error) {
	return bytebuf.NewWriter(2).Uint16(m.BolusID).Finish(), nil
}

// CancelBolusMessage stops a running bolus by id.
type CancelBolusMessage struct {
	BolusID uint16
}

func (*CancelBolusMessage) Kind() Kind { return KindCancelBolus }

func (m *CancelBolusMessage) Encode() ([]byte, error) {
	return bytebuf.NewWriter(2).Uint16(m.BolusID).Finish(), nil
}

func (m *CancelBolusMessage) Decode(payload []byte) error {
	id, err := bytebuf.NewReader(payload).Uint16()
	if err != nil {
		return err
	}
	m.BolusID = id
	return nil
}

func (m *CancelBolusMessage) EncodeResponse() ([]byte, error) {
	return bytebuf.NewWriter(2).Uint16(m.BolusID).Finish(), nil
}
