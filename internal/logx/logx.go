// Package logx configures the process-wide structured logger, grounded
// on ManuGH-xg2g's internal/log package but trimmed to what this
// service needs: one configurable base logger and per-component child
// loggers, with a request id helper for the HTTP middleware.
package logx

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	mu   sync.RWMutex
	base zerolog.Logger
	once sync.Once
)

// Configure initializes the global logger. level is a zerolog level
// name ("debug", "info", "warn", "error"); an unrecognized or empty
// value falls back to "info".
func Configure(level string) {
	// Mark ensure's default-config fallback as already satisfied, so an
	// explicit Configure call is never clobbered by the first L() call
	// that happens to run after it.
	once.Do(func() {})

	mu.Lock()
	defer mu.Unlock()

	lvl := zerolog.InfoLevel
	if level != "" {
		if parsed, err := zerolog.ParseLevel(level); err == nil {
			lvl = parsed
		}
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339

	base = zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "road-cctv-recanalyzer").
		Logger()
}

func ensure() {
	once.Do(func() { Configure("") })
}

// L returns the base logger.
func L() *zerolog.Logger {
	ensure()
	mu.RLock()
	defer mu.RUnlock()
	l := base
	return &l
}

// Component returns a child logger tagged with the given component
// name, e.g. logx.Component("record").Info().Msg("started").
func Component(name string) zerolog.Logger {
	return L().With().Str("component", name).Logger()
}

type ctxKey struct{}

// NewRequestID generates an opaque request identifier.
func NewRequestID() string {
	return uuid.New().String()
}

// WithRequestID attaches id to ctx for later retrieval by RequestID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// RequestID retrieves the request id stashed by WithRequestID, or "" if absent.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(ctxKey{}).(string)
	return v
}
