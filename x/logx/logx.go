// Package logx configures the process-wide logrus logger: level, format,
// console output and an optional size-rotated file.
package logx

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const timeFormat = "2006-01-02 15:04:05.000"

// Options mirrors the logger config section.
type Options struct {
	Level      string
	Format     string // text | json
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	Console    bool
}

// Setup applies opts to l and returns a closer for the file writer (a no-op
// when no file is configured). An unknown level falls back to info.
func Setup(l *logrus.Logger, opts Options) io.Closer {
	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if strings.EqualFold(opts.Format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: timeFormat})
	} else {
		l.SetFormatter(&logrus.TextFormatter{TimestampFormat: timeFormat, FullTimestamp: true})
	}

	var writers []io.Writer
	var closer io.Closer = nopCloser{}
	if opts.Console {
		writers = append(writers, os.Stdout)
	}
	if opts.File != "" {
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
			LocalTime:  true,
		}
		writers = append(writers, lj)
		closer = lj
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}
	l.SetOutput(io.MultiWriter(writers...))

	if err != nil && opts.Level != "" {
		l.WithField("level", opts.Level).Warn("unknown log level, using info")
	}
	return closer
}

// Service returns an entry tagged with the service name.
func Service(name string) *logrus.Entry {
	return logrus.WithField("svc", name)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
