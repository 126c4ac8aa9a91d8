package logging

import (
	"fmt"

	"github.com/gofiber/contrib/fiberzap/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the process-wide zap logger. It stays a no-op until Setup runs.
var Log = zap.NewNop()

// NewLogger builds the zap logger for the given APP_ENV. prod gets JSON with
// ISO8601 timestamps, every other environment a colored console encoder.
func NewLogger(appEnv string) (*zap.Logger, error) {
	var config zap.Config
	if appEnv == "prod" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// Setup builds the logger and routes fiber's log package through it, so every
// log.Infof("[Component] ...") call ends up in zap.
func Setup(appEnv string) (*zap.Logger, error) {
	logger, err := NewLogger(appEnv)
	if err != nil {
		return nil, err
	}
	Log = logger
	log.SetLogger(fiberzap.NewLogger(fiberzap.LoggerConfig{
		SetLogger: logger,
	}))
	if appEnv != "prod" {
		log.SetLevel(log.LevelDebug)
	}
	return logger, nil
}

// RequestLogger is the access log middleware. Health and metrics probes are
// not logged.
func RequestLogger(logger *zap.Logger) fiber.Handler {
	return fiberzap.New(fiberzap.Config{
		Logger:   logger,
		SkipURIs: []string{"/metrics", "/api/v1/ping"},
		Fields:   []string{"requestId", "status", "method", "url", "latency", "ip", "error"},
	})
}

// Sync flushes buffered entries. Errors from syncing stdout are ignored.
func Sync() {
	_ = Log.Sync()
}
