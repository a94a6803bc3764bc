// Package log builds the go-kit logger shared by the client packages and the
// command line tool.
package log

import (
	"flag"
	"io"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	dslog "github.com/grafana/dskit/log"
	"github.com/pkg/errors"
)

const (
	FormatLogfmt = "logfmt"
	FormatJSON   = "json"
)

// Config selects the level and output format of the logger.
type Config struct {
	Level  dslog.Level `yaml:"level"`
	Format string      `yaml:"format"`
}

// RegisterFlags registers the -log.level and -log.format flags.
func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	cfg.Level.RegisterFlags(f)
	f.StringVar(&cfg.Format, "log.format", FormatLogfmt, "Output log messages in the given format. Valid formats: [logfmt, json]")
}

// Validate checks the log format.
func (cfg *Config) Validate() error {
	switch cfg.Format {
	case "", FormatLogfmt, FormatJSON:
		return nil
	}
	return errors.Errorf("invalid log format %q", cfg.Format)
}

// NewLogger returns a leveled logger writing to stderr.
func NewLogger(cfg Config) log.Logger {
	return NewLoggerWithWriter(cfg, os.Stderr)
}

// NewLoggerWithWriter returns a leveled logger writing to w. A zero Level
// logs at info.
func NewLoggerWithWriter(cfg Config, w io.Writer) log.Logger {
	var logger log.Logger
	if cfg.Format == FormatJSON {
		logger = log.NewJSONLogger(log.NewSyncWriter(w))
	} else {
		logger = log.NewLogfmtLogger(log.NewSyncWriter(w))
	}

	option := cfg.Level.Option
	if option == nil {
		option = level.AllowInfo()
	}
	logger = level.NewFilter(logger, option)
	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
}
