// Package pump holds the domain records exchanged between the protocol
// bridge, the identity guard and the reconciliation layer.
//
// Timestamps and durations are epoch milliseconds, matching how pumps report
// them and how the store indexes them.
package pump

import (
	"strings"
	"time"
)

// Type identifies a pump model by its description.
type Type string

const (
	TypeUnknown         Type = ""
	TypeUser            Type = "USER"
	TypeVirtual         Type = "Virtual Pump"
	TypeAccuChekInsight Type = "Accu-Chek Insight"
	TypeAccuChekCombo   Type = "Accu-Chek Combo"
	TypeDanaRS          Type = "DanaRS"
	TypeOmnipodDash     Type = "Omnipod Dash"
	TypeMedtrum         Type = "Medtrum Nano"
)

var knownTypes = []Type{
	TypeUser,
	TypeVirtual,
	TypeAccuChekInsight,
	TypeAccuChekCombo,
	TypeDanaRS,
	TypeOmnipodDash,
	TypeMedtrum,
}

// ParseType resolves a description, case-insensitively.
func ParseType(raw string) (Type, bool) {
	raw = strings.TrimSpace(raw)
	for _, t := range knownTypes {
		if strings.EqualFold(string(t), raw) {
			return t, true
		}
	}
	return TypeUnknown, false
}

// Simulated reports whether t is the software pump that accepts any origin.
func (t Type) Simulated() bool { return t == TypeVirtual }

// Source is the audit source recorded for changes the pump causes.
func (t Type) Source() Source {
	switch t {
	case TypeAccuChekInsight:
		return SourceInsight
	case TypeAccuChekCombo:
		return SourceCombo
	case TypeDanaRS:
		return SourceDana
	case TypeOmnipodDash:
		return SourceOmnipod
	case TypeMedtrum:
		return SourceMedtrum
	case TypeVirtual:
		return SourceVirtualPump
	default:
		return SourcePump
	}
}

// Origin is the device an event came from.
type Origin struct {
	Type   Type   `json:"type"`
	Serial string `json:"serial"`
}

func (o Origin) Equal(other Origin) bool {
	return o.Type == other.Type && o.Serial == other.Serial
}

// Identity is the registered active pump. Only data at or after
// RegisteredAt is accepted from it.
type Identity struct {
	Type         Type
	Serial       string
	RegisteredAt int64
}

func (i Identity) Origin() Origin { return Origin{Type: i.Type, Serial: i.Serial} }

// IDs links a record to the pump that produced it. TemporaryID is assigned
// by the controller before the pump confirms, PumpID by the pump afterwards.
// EndID is the pump id of the event that closed a running record.
type IDs struct {
	TemporaryID *int64
	PumpID      *int64
	EndID       *int64
	Origin      Origin
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }

// Millis converts t to epoch milliseconds.
func Millis(t time.Time) int64 { return t.UnixMilli() }

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time
