// Package logger builds the process logger. Packages receive a
// zerolog.Logger value and never reach for a global one.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level string
	// File enables a rotated JSON log file in addition to stderr.
	File string
}

// New returns the root logger and a closer for the rotated file, if any.
func New(opts Options) (zerolog.Logger, io.Closer) {
	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var console io.Writer = os.Stderr
	if isatty.IsTerminal(os.Stderr.Fd()) {
		console = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime}
	}

	var closer io.Closer = nopCloser{}
	out := console
	if opts.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    20, // megabytes
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
		closer = rotated
		out = zerolog.MultiLevelWriter(console, rotated)
	}

	log := zerolog.New(out).Level(level).With().Timestamp().Logger()
	if err != nil && opts.Level != "" {
		log.Warn().Str("level", opts.Level).Msg("unknown LOG_LEVEL, using info")
	}
	return log, closer
}

// Nop is handy for tests.
func Nop() zerolog.Logger { return zerolog.Nop() }

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
