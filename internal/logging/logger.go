// Package logging builds the zap loggers used across reposync.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dangazineu/reposync/internal/errors"
)

// Supported formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

var levels = map[string]zapcore.Level{
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"warn":  zapcore.WarnLevel,
	"error": zapcore.ErrorLevel,
}

// NewLogger returns a logger writing entries at level or above to w in the
// given format. w defaults to stderr.
func NewLogger(level, format string, w io.Writer) (*zap.Logger, error) {
	zapLevel, ok := levels[strings.ToLower(level)]
	if !ok {
		return nil, errors.New(errors.CodeConfiguration, fmt.Sprintf("unsupported log level: %s", level))
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch strings.ToLower(format) {
	case FormatJSON:
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	case FormatConsole:
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		return nil, errors.New(errors.CodeConfiguration, fmt.Sprintf("unsupported log format: %s", format))
	}

	if w == nil {
		w = os.Stderr
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(w)), zapLevel)
	return zap.New(core), nil
}
