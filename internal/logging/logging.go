// Package logging builds the zap loggers used by the xqflow binary.
//
// Libraries in this module take a *zap.Logger through a WithLogger option
// and default to zap.NewNop, so only the CLI constructs real loggers.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvLevel overrides the configured level when set.
const EnvLevel = "XQFLOW_LOG_LEVEL"

// DefaultLevel is used when neither the config nor the environment names one.
const DefaultLevel = "warn"

// Config selects the level and encoding of a logger.
type Config struct {
	Level string `yaml:"level" toml:"level" json:"level,omitempty"`
	JSON  bool   `yaml:"json" toml:"json" json:"json,omitempty"`
}

// ResolveLevel returns the effective level for cfg, honouring EnvLevel.
func ResolveLevel(cfg Config) (zapcore.Level, error) {
	name := cfg.Level
	if env := strings.TrimSpace(os.Getenv(EnvLevel)); env != "" {
		name = env
	}
	if name == "" {
		name = DefaultLevel
	}

	level, err := zapcore.ParseLevel(strings.ToLower(name))
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}

// New builds a logger writing to w. Console encoding is used unless
// cfg.JSON is set.
func New(cfg Config, w io.Writer) (*zap.Logger, error) {
	level, err := ResolveLevel(cfg)
	if err != nil {
		return nil, err
	}

	var enc zapcore.Encoder
	if cfg.JSON {
		ec := zap.NewProductionEncoderConfig()
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(ec)
	} else {
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		enc = zapcore.NewConsoleEncoder(ec)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(w), zap.NewAtomicLevelAt(level))
	return zap.New(core), nil
}
