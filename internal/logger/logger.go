package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	Level string
	File  string
	// MaxSize of the log file in megabytes before it is rotated.
	MaxSize   int
	Retention int
	Console   bool
}

const levelCritical = "critical"

// LevelFromString accepts both zerolog names and the python-style names
// found in existing config files.
func LevelFromString(level string) zerolog.Level {
	level = strings.ToLower(level)
	switch level {
	case levelCritical, "fatal", "error":
		return zerolog.ErrorLevel
	case "warning", "warn":
		return zerolog.WarnLevel
	case "info":
		return zerolog.InfoLevel
	case "debug":
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

// New builds a logger writing timestamped leveled lines to a rotating file
// and, optionally, to stderr. The returned closer flushes the file.
func New(cfg Config, console io.Writer) (zerolog.Logger, io.Closer) {
	var (
		writers []io.Writer
		closer  io.Closer = nopCloser{}
	)
	if cfg.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.Retention,
		}
		writers = append(writers, file)
		closer = file
	}
	if cfg.Console && console != nil {
		writers = append(writers, zerolog.SyncWriter(zerolog.ConsoleWriter{
			Out:        console,
			TimeFormat: time.DateTime,
			NoColor:    true,
		}))
	}
	var out io.Writer = io.Discard
	switch len(writers) {
	case 0:
	case 1:
		out = writers[0]
	default:
		out = zerolog.MultiLevelWriter(writers...)
	}
	logger := zerolog.New(out).
		Level(LevelFromString(cfg.Level)).
		With().
		Timestamp().
		Logger()
	if strings.EqualFold(cfg.Level, levelCritical) {
		logger = logger.Hook(criticalOnly{})
	}
	return logger, closer
}

// Setup replaces the global logger.
func Setup(cfg Config) io.Closer {
	logger, closer := New(cfg, os.Stderr)
	log.Logger = logger
	return closer
}

// Critical marks events an operator has to look at: failovers, recoveries
// and failed route updates.
func Critical(l *zerolog.Logger) *zerolog.Event {
	e := l.Error()
	return e.Ctx(context.WithValue(e.GetCtx(), criticalKey{}, true)).Bool("critical", true)
}

type criticalKey struct{}

// criticalOnly drops every event not built by Critical.
type criticalOnly struct{}

func (criticalOnly) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	if marked, _ := e.GetCtx().Value(criticalKey{}).(bool); !marked {
		e.Discard()
	}
}

type nopCloser struct{}

func (nopCloser) Close() error {
	return nil
}
