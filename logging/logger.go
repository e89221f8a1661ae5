// Package logging wraps zerolog with the component-tagged console output used
// across plantbot.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Options configures the root logger
type Options struct {
	Level  string
	Format string // "console" or "json"
	Writer io.Writer
	RunID  string
}

// Logger is the project-wide logging type
type Logger = zerolog.Logger

var (
	mu     sync.Mutex
	root   atomic.Pointer[zerolog.Logger]
	inited atomic.Bool
)

// Init builds the root logger. Later calls replace it, which tests rely on to
// capture output.
func Init(opt Options) *Logger {
	mu.Lock()
	defer mu.Unlock()

	zerolog.TimeFieldFormat = time.RFC3339Nano

	var w io.Writer = os.Stdout
	if opt.Writer != nil {
		w = opt.Writer
	}
	if strings.ToLower(opt.Format) != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000", NoColor: opt.Writer != nil}
	}

	runID := opt.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	log := zerolog.New(w).Level(ParseLevel(opt.Level)).With().Timestamp().Str("run_id", runID).Logger()
	root.Store(&log)
	inited.Store(true)
	return &log
}

// Get returns the root logger, initializing a console logger on first use
func Get() *Logger {
	if !inited.Load() {
		Init(Options{Level: "info"})
	}
	return root.Load()
}

// Named returns a child logger with a component field
func Named(component string) *Logger {
	if component == "" {
		return Get()
	}
	l := Get().With().Str("component", component).Logger()
	return &l
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	l := zerolog.Nop()
	return &l
}

// ParseLevel maps a level name to a zerolog level, defaulting to info
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
