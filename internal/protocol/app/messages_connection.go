package app

import (
	"fmt"

	"github.com/danmuck/pumpctl/internal/protocol/bytebuf"
)

// ConnectMessage opens the application session.
type ConnectMessage struct{}

func (*ConnectMessage) Kind() Kind                  { return KindConnect }
func (*ConnectMessage) Encode() ([]byte, error)     { return nil, nil }
func (*ConnectMessage) Decode(payload []byte) error { return nil }

// DisconnectMessage closes the application session.
type DisconnectMessage struct{}

func (*DisconnectMessage) Kind() Kind                  { return KindDisconnect }
func (*DisconnectMessage) Encode() ([]byte, error)     { return nil, nil }
func (*DisconnectMessage) Decode(payload []byte) error { return nil }

// PasswordLen is the fixed width of a service activation password.
const PasswordLen = 16

// ActivateServiceMessage unlocks a service that needs activation.
type ActivateServiceMessage struct {
	ServiceID    uint8
	VersionMajor uint8
	VersionMinor uint8
	Password     []byte
}

// NewActivateService builds the activation request for s.
func NewActivateService(s Service, password []byte) *ActivateServiceMessage {
	return &ActivateServiceMessage{
		ServiceID:    s.ID,
		VersionMajor: s.VersionMajor,
		VersionMinor: s.VersionMinor,
		Password:     password,
	}
}

func (*ActivateServiceMessage) Kind() Kind { return KindActivateService }

func (m *ActivateServiceMessage) Encode() ([]byte, error) {
	if len(m.Password) > PasswordLen {
		return nil, fmt.Errorf("app: service password longer than %d bytes", PasswordLen)
	}
	pw := make([]byte, PasswordLen)
	copy(pw, m.Password)
	return bytebuf.NewWriter(3 + PasswordLen).
		Uint8(m.ServiceID).
		Uint8(m.VersionMajor).
		Uint8(m.VersionMinor).
		Bytes(pw).
		Finish(), nil
}

func (m *ActivateServiceMessage) Decode(payload []byte) error {
	r := bytebuf.NewReader(payload)
	var err error
	if m.ServiceID, err = r.Uint8(); err != nil {
		return err
	}
	if m.VersionMajor, err = r.Uint8(); err != nil {
		return err
	}
	m.VersionMinor, err = r.Uint8()
	return err
}

func (m *ActivateServiceMessage) EncodeResponse() ([]byte, error) {
	return bytebuf.NewWriter(3).
		Uint8(m.ServiceID).
		Uint8(m.VersionMajor).
		Uint8(m.VersionMinor).
		Finish(), nil
}
