package app

import (
	"fmt"
	"time"

	"github.com/danmuck/pumpctl/internal/protocol/bytebuf"
)

// dateTimeLen is year(u16) month day hour minute second.
const dateTimeLen = 7

// Pump clocks carry no zone; timestamps are read and written as UTC.
func readDateTime(r *bytebuf.Reader) (time.Time, error) {
	year, err := r.Uint16()
	if err != nil {
		return time.Time{}, err
	}
	var parts [5]uint8
	for i := range parts {
		if parts[i], err = r.Uint8(); err != nil {
			return time.Time{}, err
		}
	}
	month, day, hour, minute, second := parts[0], parts[1], parts[2], parts[3], parts[4]
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, fmt.Errorf("app: invalid pump date %04d-%02d-%02d %02d:%02d:%02d", year, month, day, hour, minute, second)
	}
	return time.Date(int(year), time.Month(month), int(day), int(hour), int(minute), int(second), 0, time.UTC), nil
}

func writeDateTime(w *bytebuf.Writer, t time.Time) {
	t = t.UTC()
	w.Uint16(uint16(t.Year())).
		Uint8(uint8(t.Month())).
		Uint8(uint8(t.Day())).
		Uint8(uint8(t.Hour())).
		Uint8(uint8(t.Minute())).
		Uint8(uint8(t.Second()))
}

// Insulin amounts travel as hundredths of a unit.
func unitsFromCenti(v uint32) float64 {
	return float64(v) / 100
}

func centiFromUnits(v float64) uint32 {
	if v <= 0 {
		return 0
	}
	return uint32(v*100 + 0.5)
}
