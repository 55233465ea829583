package app

import (
	"fmt"

	"github.com/danmuck/pumpctl/internal/protocol/bytebuf"
)

// HistoryDirection selects the read order of the pump history log.
type HistoryDirection uint16

const (
	HistoryForward  HistoryDirection = 0x001F
	HistoryBackward HistoryDirection = 0x00E3
)

// StartReadingHistoryMessage positions the history cursor.
type StartReadingHistoryMessage struct {
	Direction HistoryDirection
	Offset    uint32
}

func (*StartReadingHistoryMessage) Kind() Kind { return KindStartReadingHistory }

func (m *StartReadingHistoryMessage) Encode() ([]byte, error) {
	if m.Direction != HistoryForward && m.Direction != HistoryBackward {
		return nil, fmt.Errorf("app: invalid history direction 0x%04X", uint16(m.Direction))
	}
	return bytebuf.NewWriter(6).Uint16(uint16(m.Direction)).Uint32(m.Offset).Finish(), nil
}

func (*StartReadingHistoryMessage) Decode(payload []byte) error { return nil }

// ReadHistoryEventsMessage fetches the next batch of history records.
type ReadHistoryEventsMessage struct {
	Events []HistoryEvent
}

func (*ReadHistoryEventsMessage) Kind() Kind              { return KindReadHistoryEvents }
func (*ReadHistoryEventsMessage) Encode() ([]byte, error) { return nil, nil }

func (m *ReadHistoryEventsMessage) Decode(payload []byte) error {
	r := bytebuf.NewReader(payload)
	count, err := r.Uint16()
	if err != nil {
		return err
	}
	events := make([]HistoryEvent, 0, count)
	for i := 0; i < int(count); i++ {
		rawType, err := r.Uint16()
		if err != nil {
			return err
		}
		position, err := r.Uint32()
		if err != nil {
			return err
		}
		at, err := readDateTime(r)
		if err != nil {
			return err
		}
		event, err := newHistoryEvent(HistoryEventType(rawType))
		if err != nil {
			return err
		}
		event.setMeta(EventMeta{Position: position, Time: at})
		if err := event.decodeBody(r); err != nil {
			return err
		}
		events = append(events, event)
	}
	m.Events = events
	return nil
}

func (m *ReadHistoryEventsMessage) EncodeResponse() ([]byte, error) {
	if len(m.Events) > int(^uint16(0)) {
		return nil, fmt.Errorf("app: %d history events exceed one frame", len(m.Events))
	}
	w := bytebuf.NewWriter(2 + len(m.Events)*16)
	w.Uint16(uint16(len(m.Events)))
	for _, e := range m.Events {
		meta := e.Meta()
		w.Uint16(uint16(e.Type())).Uint32(meta.Position)
		writeDateTime(w, meta.Time)
		e.encodeBody(w)
	}
	return w.Finish(), nil
}

// StopReadingHistoryMessage releases the history cursor.
type StopReadingHistoryMessage struct{}

func (*StopReadingHistoryMessage) Kind() Kind                  { return KindStopReadingHistory }
func (*StopReadingHistoryMessage) Encode() ([]byte, error)     { return nil, nil }
func (*StopReadingHistoryMessage) Decode(payload []byte) error { return nil }
