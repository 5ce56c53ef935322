package pool

import (
	"os"
	"reflect"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// logger holds a caller-supplied zerolog.Logger, stored as an atomic
// pointer so SetLogger and Logger are safe to call concurrently with
// pool operations. A nil value means no custom logger was set; Logger
// falls back to a cached default.
var logger atomic.Pointer[zerolog.Logger]

var defaultLogger atomic.Pointer[zerolog.Logger]

// Logger returns the package-level logger used by hook-failure,
// housekeeper, and unexpected-return log lines across every Pool. If no
// logger was set via SetLogger, it returns a cached logger writing to
// os.Stderr with a "component":"ppp" field.
func Logger() *zerolog.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	l := newDefaultLogger()
	if defaultLogger.CompareAndSwap(nil, &l) {
		return &l
	}
	if l2 := defaultLogger.Load(); l2 != nil {
		return l2
	}
	return &l
}

func newDefaultLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Str("component", "ppp").Logger()
}

// SetLogger replaces the package-level logger. Passing a zero value
// resets to the default. Safe to call concurrently.
func SetLogger(l zerolog.Logger) {
	if reflect.ValueOf(l).IsZero() {
		logger.Store(nil)
	} else {
		logger.Store(&l)
	}
	defaultLogger.Store(nil)
}

// SetLogLevel parses a zerolog level name (e.g. "debug", "info", "warn")
// and installs a default logger at that level. Unknown names fall back
// to "info". Intended for the binding layer to call once at startup
// from a loaded configuration's log_level field.
func SetLogLevel(name string) {
	lvl, err := zerolog.ParseLevel(name)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	l := newDefaultLogger().Level(lvl)
	SetLogger(l)
}
