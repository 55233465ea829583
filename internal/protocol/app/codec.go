package app

import (
	"fmt"

	"github.com/danmuck/pumpctl/internal/protocol"
	"github.com/danmuck/pumpctl/internal/protocol/crc"
	"github.com/danmuck/pumpctl/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

// State is a step of the inbound decode state machine.
type State uint8

const (
	StateReceiving State = iota
	StateValidatingVersion
	StateValidatingService
	StateValidatingError
	StateValidatingCRC
	StateParsed
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateReceiving:
		return "receiving"
	case StateValidatingVersion:
		return "validating_version"
	case StateValidatingService:
		return "validating_service"
	case StateValidatingError:
		return "validating_error"
	case StateValidatingCRC:
		return "validating_crc"
	case StateParsed:
		return "parsed"
	case StateRejected:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Outcome describes how one inbound frame left the state machine.
// FailedIn is the state that rejected the frame; it is StateParsed on success.
type Outcome struct {
	Header   frame.Header
	Variant  Variant
	FailedIn State
	Err      error
}

// Decoder runs the inbound state machine. The zero value is ready to use and
// safe for concurrent calls; Observe, when set, sees every outcome.
type Decoder struct {
	Observe func(Outcome)
}

// Deserialize decodes one inbound frame with a zero Decoder.
func Deserialize(b []byte) (Message, error) {
	return Decoder{}.Decode(b)
}

// Decode turns raw frame bytes into a typed message. Parser errors from the
// message itself are returned unwrapped.
func (d Decoder) Decode(b []byte) (Message, error) {
	var (
		state   = StateReceiving
		header  frame.Header
		body    []byte
		variant Variant
		payload []byte
		msg     Message
		err     error
	)

	fail := func(in State, e error) (Message, error) {
		d.report(Outcome{Header: header, Variant: variant, FailedIn: in, Err: e})
		log.Debug().
			Str("state", in.String()).
			Uint8("service", header.ServiceID).
			Uint16("command", header.CommandID).
			Err(e).
			Msg("app frame rejected")
		return nil, e
	}

	for {
		switch state {
		case StateReceiving:
			header, body, err = frame.Decode(b)
			if err != nil {
				return fail(state, err)
			}
			state = StateValidatingVersion

		case StateValidatingVersion:
			if header.Version != Version {
				return fail(state, fmt.Errorf("%w: got 0x%02X want 0x%02X", protocol.ErrIncompatibleVersion, header.Version, Version))
			}
			state = StateValidatingService

		case StateValidatingService:
			if _, ok := LookupService(header.ServiceID); !ok {
				return fail(state, fmt.Errorf("%w: 0x%02X", protocol.ErrUnknownService, header.ServiceID))
			}
			state = StateValidatingError

		case StateValidatingError:
			// an error frame is never crc checked
			if header.ErrorCode != 0 {
				return fail(state, errorForCode(header.ErrorCode))
			}
			var ok bool
			variant, ok = LookupCommand(Command(header.CommandID))
			if !ok {
				return fail(state, fmt.Errorf("%w: 0x%04X", protocol.ErrUnknownCommand, header.CommandID))
			}
			state = StateValidatingCRC

		case StateValidatingCRC:
			payload = body
			if variant.InboundCRC {
				var sum uint16
				payload, sum, err = frame.SplitCRC(body)
				if err != nil {
					return fail(state, err)
				}
				if !crc.Valid(payload, sum) {
					return fail(state, protocol.ErrInvalidCRC)
				}
			}
			state = StateParsed

		case StateParsed:
			msg = variant.New()
			if err := msg.Decode(payload); err != nil {
				return fail(state, err)
			}
			d.report(Outcome{Header: header, Variant: variant, FailedIn: StateParsed})
			return msg, nil

		default:
			return fail(StateRejected, fmt.Errorf("app: invalid decoder state %s", state))
		}
	}
}

func (d Decoder) report(o Outcome) {
	if d.Observe != nil {
		d.Observe(o)
	}
}

// Serialize builds the outbound frame for m.
func Serialize(m Message) ([]byte, error) {
	variant, ok := LookupKind(m.Kind())
	if !ok {
		return nil, fmt.Errorf("%w: kind %d", protocol.ErrUnregisteredMessage, m.Kind())
	}
	payload, err := m.Encode()
	if err != nil {
		return nil, fmt.Errorf("app: encode %s: %w", variant.Name, err)
	}
	h := frame.Header{
		Version:   Version,
		ServiceID: variant.Service.ID,
		CommandID: uint16(variant.Command),
	}
	return frame.Encode(h, payload, variant.OutboundCRC), nil
}

// SerializeResponse builds the inbound frame the pump would send in reply to
// m. errorCode is written as-is; a nonzero code carries no payload.
func SerializeResponse(m Message, errorCode uint16) ([]byte, error) {
	variant, ok := LookupKind(m.Kind())
	if !ok {
		return nil, fmt.Errorf("%w: kind %d", protocol.ErrUnregisteredMessage, m.Kind())
	}
	h := frame.Header{
		Version:   Version,
		ServiceID: variant.Service.ID,
		CommandID: uint16(variant.Command),
		ErrorCode: errorCode,
	}
	if errorCode != 0 {
		return frame.EncodeInbound(h, nil, false), nil
	}
	var payload []byte
	if re, ok := m.(ResponseEncoder); ok {
		var err error
		payload, err = re.EncodeResponse()
		if err != nil {
			return nil, fmt.Errorf("app: encode %s response: %w", variant.Name, err)
		}
	}
	return frame.EncodeInbound(h, payload, variant.InboundCRC), nil
}
