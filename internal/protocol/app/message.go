package app

import (
	"cmp"
	"sort"
)

// Version is the only application-layer version the pump speaks.
const Version uint8 = 0x20

// Priority orders messages waiting in the outbound queue.
type Priority uint8

const (
	PriorityNormal  Priority = 1
	PriorityHigher  Priority = 2
	PriorityHighest Priority = 3
)

func (p Priority) String() string {
	switch p {
	case PriorityNormal:
		return "normal"
	case PriorityHigher:
		return "higher"
	case PriorityHighest:
		return "highest"
	default:
		return "unknown"
	}
}

// Kind tags a concrete message type. The registry maps kinds to command ids.
type Kind uint8

const (
	KindConnect Kind = iota + 1
	KindDisconnect
	KindActivateService
	KindGetDateTime
	KindGetOperatingMode
	KindGetActiveTBR
	KindGetTotalDailyDose
	KindGetBatteryStatus
	KindSetTBR
	KindCancelTBR
	KindDeliverBolus
	KindCancelBolus
	KindStartReadingHistory
	KindReadHistoryEvents
	KindStopReadingHistory
)

// Message is one application-layer command. Encode produces the outbound
// request payload, Decode consumes the inbound response payload.
type Message interface {
	Kind() Kind
	Encode() ([]byte, error)
	Decode(payload []byte) error
}

// ResponseEncoder is implemented by messages whose response payload can be
// produced locally, which is how simulated pumps and tests build inbound
// frames.
type ResponseEncoder interface {
	EncodeResponse() ([]byte, error)
}

// PriorityOf returns the registered priority of m's variant.
func PriorityOf(m Message) Priority {
	v, ok := byKind[m.Kind()]
	if !ok {
		return PriorityNormal
	}
	return v.Priority
}

// Compare orders messages by priority only.
func Compare(a, b Message) int {
	return cmp.Compare(PriorityOf(a), PriorityOf(b))
}

// ByPriority sorts messages ascending by priority.
type ByPriority []Message

func (s ByPriority) Len() int           { return len(s) }
func (s ByPriority) Less(i, j int) bool { return Compare(s[i], s[j]) < 0 }
func (s ByPriority) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// SortByPriority sorts msgs in place, keeping equal priorities in order.
func SortByPriority(msgs []Message) {
	sort.Stable(ByPriority(msgs))
}
