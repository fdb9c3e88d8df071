// Package diag provides the progress logger used by the command line
// tools. Library packages return errors and never log.
package diag

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a console logger writing to w. With quiet set, only
// warnings and errors are emitted.
func New(w io.Writer, quiet bool) *zap.SugaredLogger {
	level := zapcore.InfoLevel
	if quiet {
		level = zapcore.WarnLevel
	}
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.TimeKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.AddSync(w), level)
	return zap.New(core).Sugar()
}
