package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/pumpctl/internal/pump"
)

// Config is the pumpctl daemon configuration. An empty APIToken leaves the
// state-changing routes open.
type Config struct {
	Name        string
	Addr        string
	CorsOrigins []string
	APIToken    string
	Store       StoreConfig
	Prefs       PrefsConfig
	Pump        PumpConfig
	Notify      NotifyConfig
	Outbox      OutboxConfig
}

type StoreConfig struct {
	Path string
}

type PrefsConfig struct {
	Path string
}

// PumpConfig names the pump frames arrive from. Simulation accepts data
// from any origin.
type PumpConfig struct {
	Type       pump.Type
	Serial     string
	Simulation bool
}

type NotifyConfig struct {
	Buffer int
	Recent int
}

type OutboxConfig struct {
	Capacity      int
	MaxAttempts   int
	BackoffBaseMS int
}

// config.toml key mapping.
type fileConfig struct {
	Name        string     `toml:"name"`
	Addr        string     `toml:"addr"`
	CorsOrigins []string   `toml:"cors_origins"`
	APIToken    string     `toml:"api_token"`
	Store       fileStore  `toml:"store"`
	Prefs       filePrefs  `toml:"prefs"`
	Pump        filePump   `toml:"pump"`
	Notify      fileNotify `toml:"notify"`
	Outbox      fileOutbox `toml:"outbox"`
}

type fileStore struct {
	Path string `toml:"path"`
}

type filePrefs struct {
	Path string `toml:"path"`
}

type filePump struct {
	Type       string `toml:"type"`
	Serial     string `toml:"serial"`
	Simulation bool   `toml:"simulation"`
}

type fileNotify struct {
	Buffer int `toml:"buffer"`
	Recent int `toml:"recent"`
}

type fileOutbox struct {
	Capacity      int `toml:"capacity"`
	MaxAttempts   int `toml:"max_attempts"`
	BackoffBaseMS int `toml:"backoff_base_ms"`
}

func Default() Config {
	return Config{
		Name:        "pumpctl",
		Addr:        ":9200",
		CorsOrigins: []string{"http://localhost:3000"},
		Store:       StoreConfig{Path: "local/pumpctl.db"},
		Prefs:       PrefsConfig{Path: "local/prefs.toml"},
		Pump:        PumpConfig{Type: pump.TypeAccuChekInsight},
		Notify:      NotifyConfig{Buffer: 64, Recent: 50},
		Outbox:      OutboxConfig{Capacity: 64, MaxAttempts: 3, BackoffBaseMS: 250},
	}
}

// Load overlays the keys defined in path onto Default and validates the
// result.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("config parse failed (%s): unknown key %q", path, undecoded[0].String())
	}

	if meta.IsDefined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = raw.CorsOrigins
	}
	if meta.IsDefined("api_token") {
		cfg.APIToken = strings.TrimSpace(raw.APIToken)
	}
	if meta.IsDefined("store", "path") {
		cfg.Store.Path = strings.TrimSpace(raw.Store.Path)
	}
	if meta.IsDefined("prefs", "path") {
		cfg.Prefs.Path = strings.TrimSpace(raw.Prefs.Path)
	}
	if meta.IsDefined("pump", "type") {
		t, ok := pump.ParseType(raw.Pump.Type)
		if !ok {
			return Config{}, fmt.Errorf("config parse failed (%s): unknown pump type %q", path, raw.Pump.Type)
		}
		cfg.Pump.Type = t
	}
	if meta.IsDefined("pump", "serial") {
		cfg.Pump.Serial = strings.TrimSpace(raw.Pump.Serial)
	}
	if meta.IsDefined("pump", "simulation") {
		cfg.Pump.Simulation = raw.Pump.Simulation
	}
	if meta.IsDefined("notify", "buffer") {
		cfg.Notify.Buffer = raw.Notify.Buffer
	}
	if meta.IsDefined("notify", "recent") {
		cfg.Notify.Recent = raw.Notify.Recent
	}
	if meta.IsDefined("outbox", "capacity") {
		cfg.Outbox.Capacity = raw.Outbox.Capacity
	}
	if meta.IsDefined("outbox", "max_attempts") {
		cfg.Outbox.MaxAttempts = raw.Outbox.MaxAttempts
	}
	if meta.IsDefined("outbox", "backoff_base_ms") {
		cfg.Outbox.BackoffBaseMS = raw.Outbox.BackoffBaseMS
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("config missing name")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("config missing addr")
	}
	if strings.TrimSpace(cfg.Store.Path) == "" {
		return fmt.Errorf("config missing store.path")
	}
	if cfg.Pump.Type == pump.TypeUnknown {
		return fmt.Errorf("config missing pump.type")
	}
	if cfg.Notify.Buffer <= 0 {
		return fmt.Errorf("notify.buffer must be positive")
	}
	if cfg.Notify.Recent < 0 {
		return fmt.Errorf("notify.recent must not be negative")
	}
	if cfg.Outbox.Capacity <= 0 {
		return fmt.Errorf("outbox.capacity must be positive")
	}
	if cfg.Outbox.MaxAttempts <= 0 {
		return fmt.Errorf("outbox.max_attempts must be positive")
	}
	if cfg.Outbox.BackoffBaseMS < 0 {
		return fmt.Errorf("outbox.backoff_base_ms must not be negative")
	}
	return nil
}
