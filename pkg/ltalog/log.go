// Package ltalog configures the structured, newline-delimited JSON
// logging contract shared by every LTA worker: one JSON object per
// line, tagged with component_type and component_name, emitted to
// standard output.
package ltalog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Config controls how New builds a component-scoped logger.
type Config struct {
	// ComponentType is the role tag, e.g. "Picker", "Locator",
	// "RucioStager".
	ComponentType string
	// ComponentName is the operator-supplied instance label
	// (COMPONENT_NAME).
	ComponentName string
	// Level is the minimum level that will be emitted.
	Level zerolog.Level
	// Output defaults to os.Stdout when nil.
	Output io.Writer
}

// New builds a component-scoped logger per Config. Every record carries
// component_type and component_name fields, matching the log format
// documented in spec.md section 6.
func New(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	zerolog.TimestampFieldName = "timestamp"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "message"
	base := zerolog.New(out).Level(cfg.Level).With().Timestamp()
	if cfg.ComponentType != "" {
		base = base.Str("component_type", cfg.ComponentType)
	}
	if cfg.ComponentName != "" {
		base = base.Str("component_name", cfg.ComponentName)
	}
	return base.Logger()
}

// WithClaimant returns a child logger tagged with the claimant
// identifier ("<name>-<instance_uuid>") for an individual work cycle.
func WithClaimant(logger zerolog.Logger, claimant string) zerolog.Logger {
	return logger.With().Str("claimant", claimant).Logger()
}

// ParseLevel maps a spec-facing level string (matching zerolog's own
// vocabulary: debug, info, warn, error) to a zerolog.Level, defaulting
// to info on an empty or unrecognized value.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
