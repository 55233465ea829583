package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger tags the global logger with app. Level and format come from
// package logging, which must run first.
func InitLogger(app string) zerolog.Logger {
	log.Logger = log.With().Str("app", app).Logger()
	return log.Logger
}
