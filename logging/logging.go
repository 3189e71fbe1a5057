// Package logging is a thin wrapper of the zap logging library.
//
// Each package obtains its logger once at init time:
//
//	var logger = logging.New("driver")
//
// Levels are configured through the environment: RINGSTACK_LOG sets the
// default level, RINGSTACK_LOG_<PKG> overrides it per package. Accepted
// values are zap level names ("debug", "info", "warn", "error").
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var root = func() *zap.Logger {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.Lock(os.Stderr),
		zap.DebugLevel,
	)
	return zap.New(core)
}()

// Named creates a named logger without level configuration.
func Named(pkg string) *zap.Logger {
	return root.Named(pkg)
}

// New creates a named logger with its level taken from the environment.
func New(pkg string) *zap.Logger {
	return Named(pkg).WithOptions(zap.IncreaseLevel(envLevel(pkg)))
}

func envLevel(pkg string) zapcore.Level {
	v, ok := os.LookupEnv("RINGSTACK_LOG_" + strings.ToUpper(pkg))
	if !ok {
		v = os.Getenv("RINGSTACK_LOG")
	}
	lvl, err := zapcore.ParseLevel(v)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}
