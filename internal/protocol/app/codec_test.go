package app

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/pumpctl/internal/protocol"
	"github.com/danmuck/pumpctl/internal/protocol/frame"
	"github.com/danmuck/pumpctl/internal/testutil/testlog"
)

func TestSerializeUsesRegistryHeader(t *testing.T) {
	testlog.Start(t)
	out, err := Serialize(&SetTBRMessage{Percentage: 150, Duration: 30 * time.Minute})
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if out[0] != Version || out[1] != ServiceRemoteControl.ID {
		t.Fatalf("unexpected header bytes %x", out[:2])
	}
	if cmd := uint16(out[2]) | uint16(out[3])<<8; Command(cmd) != CmdSetTBR {
		t.Fatalf("unexpected command 0x%04X", cmd)
	}
	// 4 header + 4 payload + 2 crc
	if len(out) != 10 {
		t.Fatalf("unexpected frame length %d", len(out))
	}
}

func TestSerializeNoCRCForPlainRequest(t *testing.T) {
	testlog.Start(t)
	out, err := Serialize(&ConnectMessage{})
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if len(out) != frame.OutboundHeaderLen {
		t.Fatalf("expected header only, got %x", out)
	}
}

func TestDeserializeRoundTripWithCRC(t *testing.T) {
	testlog.Start(t)
	want := &GetTotalDailyDoseMessage{Bolus: 12.5, Basal: 18.25, Total: 30.75}
	raw, err := SerializeResponse(want, 0)
	if err != nil {
		t.Fatalf("serialize response: %v", err)
	}
	msg, err := Deserialize(raw)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	got, ok := msg.(*GetTotalDailyDoseMessage)
	if !ok {
		t.Fatalf("unexpected message type %T", msg)
	}
	if *got != *want {
		t.Fatalf("payload mismatch: got=%+v want=%+v", got, want)
	}
}

func TestDeserializeFlippedPayloadByteFailsCRC(t *testing.T) {
	testlog.Start(t)
	raw, err := SerializeResponse(&GetTotalDailyDoseMessage{Bolus: 1, Basal: 2, Total: 3}, 0)
	if err != nil {
		t.Fatalf("serialize response: %v", err)
	}
	raw[frame.InboundHeaderLen+1] ^= 0xFF
	if _, err := Deserialize(raw); !errors.Is(err, protocol.ErrInvalidCRC) {
		t.Fatalf("expected ErrInvalidCRC, got %v", err)
	}
}

func TestDeserializeRejectsVersion(t *testing.T) {
	testlog.Start(t)
	raw := frame.EncodeInbound(frame.Header{Version: 0x10, ServiceID: ServiceStatus.ID, CommandID: uint16(CmdGetDateTime)}, nil, false)
	var seen Outcome
	_, err := Decoder{Observe: func(o Outcome) { seen = o }}.Decode(raw)
	if !errors.Is(err, protocol.ErrIncompatibleVersion) {
		t.Fatalf("expected ErrIncompatibleVersion, got %v", err)
	}
	if seen.FailedIn != StateValidatingVersion {
		t.Fatalf("expected failure in %s, got %s", StateValidatingVersion, seen.FailedIn)
	}
}

func TestDeserializeRejectsUnknownService(t *testing.T) {
	testlog.Start(t)
	raw := frame.EncodeInbound(frame.Header{Version: Version, ServiceID: 0xEE, CommandID: uint16(CmdGetDateTime)}, nil, false)
	if _, err := Deserialize(raw); !errors.Is(err, protocol.ErrUnknownService) {
		t.Fatalf("expected ErrUnknownService, got %v", err)
	}
}

func TestDeserializeRejectsUnknownCommand(t *testing.T) {
	testlog.Start(t)
	raw := frame.EncodeInbound(frame.Header{Version: Version, ServiceID: ServiceStatus.ID, CommandID: 0x0001}, nil, false)
	if _, err := Deserialize(raw); !errors.Is(err, protocol.ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
}

func TestDeserializeShortFrameIsMalformed(t *testing.T) {
	testlog.Start(t)
	if _, err := Deserialize([]byte{Version, 0x0F}); !errors.Is(err, protocol.ErrMalformedFrame) {
		t.Fatalf("expected ErrMalformedFrame, got %v", err)
	}
}

func TestDeserializeMissingCRCTrailerIsMalformed(t *testing.T) {
	testlog.Start(t)
	raw := frame.EncodeInbound(frame.Header{Version: Version, ServiceID: ServiceStatus.ID, CommandID: uint16(CmdGetOperatingMode)}, []byte{0x01}, false)
	if _, err := Deserialize(raw); !errors.Is(err, protocol.ErrMalformedFrame) {
		t.Fatalf("expected ErrMalformedFrame, got %v", err)
	}
}

func TestErrorFrameMapsDeterministicallyAndSkipsCRC(t *testing.T) {
	testlog.Start(t)
	h := frame.Header{Version: Version, ServiceID: ServiceRemoteControl.ID, CommandID: uint16(CmdDeliverBolus), ErrorCode: 0xF50C}
	// garbage payload and a wrong trailer: must not matter
	raw := frame.EncodeInbound(h, []byte{0xDE, 0xAD, 0x00, 0x00}, false)

	for i := 0; i < 3; i++ {
		_, err := Deserialize(raw)
		var devErr *DeviceError
		if !errors.As(err, &devErr) {
			t.Fatalf("expected DeviceError, got %v", err)
		}
		if devErr.Kind != ErrorPumpStopped || devErr.Code != 0xF50C {
			t.Fatalf("unexpected mapping %+v", devErr)
		}
		if errors.Is(err, protocol.ErrInvalidCRC) {
			t.Fatalf("error frame must not be crc checked")
		}
	}
}

func TestErrorFrameUnknownCode(t *testing.T) {
	testlog.Start(t)
	raw, err := SerializeResponse(&GetDateTimeMessage{}, 0x1234)
	if err != nil {
		t.Fatalf("serialize response: %v", err)
	}
	_, err = Deserialize(raw)
	var unknown *UnknownErrorCodeError
	if !errors.As(err, &unknown) || unknown.Code != 0x1234 {
		t.Fatalf("expected UnknownErrorCodeError(0x1234), got %v", err)
	}
}

func TestParserErrorPropagatesUnwrapped(t *testing.T) {
	testlog.Start(t)
	payload := []byte{0x34, 0x12} // unknown operating mode
	raw := frame.EncodeInbound(frame.Header{Version: Version, ServiceID: ServiceStatus.ID, CommandID: uint16(CmdGetOperatingMode)}, payload, true)

	_, err := Deserialize(raw)
	if err == nil {
		t.Fatalf("expected parser error")
	}
	parseErr := (&GetOperatingModeMessage{}).Decode(payload)
	if err.Error() != parseErr.Error() {
		t.Fatalf("parser error was rewrapped: got %q want %q", err, parseErr)
	}
}

func TestObserverSeesParsedOutcome(t *testing.T) {
	testlog.Start(t)
	raw, err := SerializeResponse(&GetBatteryStatusMessage{Percent: 80, Millivolt: 1450}, 0)
	if err != nil {
		t.Fatalf("serialize response: %v", err)
	}
	var outcomes []Outcome
	msg, err := Decoder{Observe: func(o Outcome) { outcomes = append(outcomes, o) }}.Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].FailedIn != StateParsed || outcomes[0].Err != nil {
		t.Fatalf("unexpected outcomes %+v", outcomes)
	}
	if outcomes[0].Variant.Kind != KindGetBatteryStatus {
		t.Fatalf("unexpected variant %s", outcomes[0].Variant.Name)
	}
	if got := msg.(*GetBatteryStatusMessage); got.Percent != 80 || got.Millivolt != 1450 {
		t.Fatalf("unexpected battery status %+v", got)
	}
}

func TestSerializeRejectsInvalidRequest(t *testing.T) {
	testlog.Start(t)
	_, err := Serialize(&SetTBRMessage{Percentage: 120, Duration: 20 * time.Minute})
	if !errors.Is(err, ErrInvalidTBR) {
		t.Fatalf("expected ErrInvalidTBR, got %v", err)
	}
	_, err = Serialize(&DeliverBolusMessage{Type: BolusStandard})
	if !errors.Is(err, ErrInvalidBolus) {
		t.Fatalf("expected ErrInvalidBolus, got %v", err)
	}
}

func TestActivateServicePadsPassword(t *testing.T) {
	testlog.Start(t)
	out, err := NewActivateService(ServiceHistory, []byte("secret")).Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(out) != 3+PasswordLen {
		t.Fatalf("unexpected length %d", len(out))
	}
	if !bytes.HasPrefix(out[3:], []byte("secret")) || out[len(out)-1] != 0 {
		t.Fatalf("password not padded: %x", out[3:])
	}
	if _, err := NewActivateService(ServiceHistory, bytes.Repeat([]byte{1}, PasswordLen+1)).Encode(); err == nil {
		t.Fatalf("expected oversized password to fail")
	}
}
