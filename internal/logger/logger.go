package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/bilal/v2x-telemetry-agent/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ParseLevel maps the config level onto zerolog, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	}
	return zerolog.InfoLevel
}

// New builds a logger writing to w in the configured format.
func New(lcfg config.LoggingConfig, w io.Writer) zerolog.Logger {
	if strings.ToLower(lcfg.Format) == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(ParseLevel(lcfg.Level)).With().Timestamp().Logger()
}

// Init replaces the global logger; components that are not handed a
// logger explicitly fall back to it.
func Init(lcfg config.LoggingConfig) {
	zerolog.SetGlobalLevel(ParseLevel(lcfg.Level))
	log.Logger = New(lcfg, os.Stderr)
}
