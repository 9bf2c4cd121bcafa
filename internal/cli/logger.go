package cli

import (
	"io"
	"strings"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// initLogger installs the global logger. Without a log file, log lines go
// to w so that they do not interleave with the children's stdout.
func initLogger(level, file string, w io.Writer) error {
	cfg := &log.Config{
		Level:  strings.ToLower(strings.TrimSpace(level)),
		Format: "text",
	}
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	var (
		lg    *zap.Logger
		props *log.ZapProperties
		err   error
	)
	if file != "" {
		cfg.File = log.FileLogConfig{Filename: file}
		lg, props, err = log.InitLogger(cfg)
	} else {
		ws := zapcore.AddSync(w)
		lg, props, err = log.InitLoggerWithWriteSyncer(cfg, ws, ws)
	}
	if err != nil {
		return errors.Annotate(err, "init logger")
	}
	log.ReplaceGlobals(lg, props)
	return nil
}
