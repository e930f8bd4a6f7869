// Package parser turns UPPAAL traces into the common fact stream
// consumed by the converter. Two front-ends exist: XTR traces, which
// need the model, and human-readable trace dumps, which do not.
package parser

import (
	"context"
	"io"
	"log/slog"

	"github.com/logflow/uppaal2octopus/internal/model"
	"github.com/logflow/uppaal2octopus/pkg/uppaal"
)

// FactFunc receives facts in trace order. Returning an error stops parsing.
type FactFunc func(model.Fact) error

// Parser defines the interface for trace front-ends.
// Parsing is sequential: emit is called synchronously, in trace order.
type Parser interface {
	// Parse reads from r and passes every fact to emit.
	// It should respect context cancellation.
	Parse(ctx context.Context, r io.Reader, emit FactFunc) error
}

// Format represents a supported trace format.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatXTR
	FormatHuman
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatXTR:
		return "xtr"
	case FormatHuman:
		return "hr"
	default:
		return "unknown"
	}
}

// NeedsModel reports whether the format is decoded against a model.
func (f Format) NeedsModel() bool {
	return f == FormatXTR
}

// ParseFormat parses a format string.
func ParseFormat(s string) Format {
	switch s {
	case "xtr", "XTR":
		return FormatXTR
	case "hr", "HR", "human", "text", "txt":
		return FormatHuman
	default:
		return FormatUnknown
	}
}

// Config holds common parser configuration.
type Config struct {
	// OriginClock is the reference clock of XTR zones.
	OriginClock string

	// ActiveClock is the clock whose value timestamps facts.
	ActiveClock string

	// BufferSize is the size of the read buffer in bytes.
	BufferSize int

	// Logger receives debug output. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		OriginClock: uppaal.DefaultOriginClock,
		ActiveClock: uppaal.DefaultActiveClock,
		BufferSize:  64 * 1024,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.OriginClock == "" {
		c.OriginClock = d.OriginClock
	}
	if c.ActiveClock == "" {
		c.ActiveClock = d.ActiveClock
	}
	if c.BufferSize <= 0 {
		c.BufferSize = d.BufferSize
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// NewParser creates a parser for the given format. XTR traces require m.
func NewParser(format Format, cfg Config, m *uppaal.Model) (Parser, error) {
	switch format {
	case FormatXTR:
		if m == nil {
			return nil, ErrModelRequired
		}
		return NewXTRParser(m, cfg), nil
	case FormatHuman:
		return NewHumanParser(cfg), nil
	default:
		return nil, ErrUnsupportedFormat
	}
}
