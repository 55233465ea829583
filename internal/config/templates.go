package config

import (
	"fmt"
	"os"
	"path/filepath"
)

func Template() string {
	return pumpctlTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config dir: %w", err)
		}
	}
	return os.WriteFile(path, []byte(pumpctlTemplate), 0o600)
}

const pumpctlTemplate = `name = "pumpctl"
addr = ":9200"
cors_origins = ["http://localhost:3000"]
api_token = ""

[store]
path = "local/pumpctl.db"

[prefs]
path = "local/prefs.toml"

[pump]
type = "Accu-Chek Insight"
serial = ""
simulation = false

[notify]
buffer = 64
recent = 50

[outbox]
capacity = 64
max_attempts = 3
backoff_base_ms = 250
`
