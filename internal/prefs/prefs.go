// Package prefs is the process-wide key/value preference store. The active
// pump identity lives here so it survives restarts.
package prefs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
)

// Keys owned by the identity guard.
const (
	KeyActivePumpType            = "active_pump_type"
	KeyActivePumpSerialNumber    = "active_pump_serial_number"
	KeyActivePumpChangeTimestamp = "active_pump_change_timestamp"
)

// Store is the preference surface callers depend on. Absent keys read as
// the zero value.
type Store interface {
	String(key string) string
	Int64(key string) int64
	PutString(key, value string) error
	PutInt64(key string, value int64) error
	// PutAll writes every value or none of them.
	PutAll(values map[string]any) error
	Remove(keys ...string) error
}

// Memory keeps preferences in process only.
type Memory struct {
	mu     sync.RWMutex
	values map[string]any
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string]any)}
}

func (m *Memory) String(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return asString(m.values[key])
}

func (m *Memory) Int64(key string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return asInt64(m.values[key])
}

func (m *Memory) PutString(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *Memory) PutInt64(key string, value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *Memory) PutAll(values map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.values[k] = v
	}
	return nil
}

func (m *Memory) Remove(keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

// File is a Memory persisted as a flat TOML table after every write.
type File struct {
	Memory
	path string
}

// OpenFile loads path if it exists. A missing file starts empty.
func OpenFile(path string) (*File, error) {
	f := &File{Memory: Memory{values: make(map[string]any)}, path: path}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return f, nil
	case err != nil:
		return nil, fmt.Errorf("prefs load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, &f.values); err != nil {
		return nil, fmt.Errorf("prefs parse failed (%s): %w", path, err)
	}
	log.Debug().Str("path", path).Int("keys", len(f.values)).Msg("prefs loaded")
	return f, nil
}

func (f *File) Path() string { return f.path }

func (f *File) PutString(key, value string) error {
	return f.PutAll(map[string]any{key: value})
}

func (f *File) PutInt64(key string, value int64) error {
	return f.PutAll(map[string]any{key: value})
}

// PutAll stages values and flushes once. A failed flush restores the
// previous values so memory never runs ahead of the file.
func (f *File) PutAll(values map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	prev := f.snapshotLocked(keys)
	for k, v := range values {
		f.values[k] = v
	}
	return f.commitLocked(prev)
}

func (f *File) Remove(keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev := f.snapshotLocked(keys)
	for _, k := range keys {
		delete(f.values, k)
	}
	return f.commitLocked(prev)
}

type priorValue struct {
	value any
	ok    bool
}

func (f *File) snapshotLocked(keys []string) map[string]priorValue {
	prev := make(map[string]priorValue, len(keys))
	for _, k := range keys {
		v, ok := f.values[k]
		prev[k] = priorValue{value: v, ok: ok}
	}
	return prev
}

func (f *File) commitLocked(prev map[string]priorValue) error {
	err := f.flushLocked()
	if err == nil {
		return nil
	}
	for k, p := range prev {
		if p.ok {
			f.values[k] = p.value
		} else {
			delete(f.values, k)
		}
	}
	return err
}

// Keys lists stored keys in order.
func (f *File) Keys() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.values))
	for k := range f.values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (f *File) flushLocked() error {
	data, err := toml.Marshal(f.values)
	if err != nil {
		return fmt.Errorf("prefs encode failed: %w", err)
	}
	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("prefs mkdir failed (%s): %w", dir, err)
		}
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("prefs write failed (%s): %w", tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("prefs replace failed (%s): %w", f.path, err)
	}
	return nil
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

func asInt64(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int:
		return int64(x)
	case float64:
		return int64(x)
	default:
		return 0
	}
}
