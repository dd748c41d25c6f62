package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// StageField names the pipeline stage a log line belongs to.
	StageField = "s"
	// ClientField holds a short subscriber id.
	ClientField = "c"
	// DirectionField shows the flow direction of network messages.
	DirectionField = "d"
)

const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
)

var pid = os.Getpid()

type Logger struct {
	logger *zerolog.Logger
}

func level(isDebug bool) zerolog.Level {
	if isDebug {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

// New creates a JSON logger writing into stderr.
func New(isDebug bool) *Logger {
	zerolog.SetGlobalLevel(level(isDebug))
	logger := zerolog.New(os.Stderr).With().Timestamp().Int("pid", pid).Logger()
	return &Logger{logger: &logger}
}

// NewConsole creates a human-friendly logger with the stage tag in front of each line.
func NewConsole(isDebug bool, tag string, noColor bool) *Logger {
	zerolog.SetGlobalLevel(level(isDebug))
	zerolog.TimeFieldFormat = time.RFC3339Nano
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05.0000", NoColor: noColor,
		PartsOrder: []string{
			zerolog.TimestampFieldName,
			zerolog.LevelFieldName,
			StageField,
			DirectionField,
			ClientField,
			zerolog.MessageFieldName,
		},
		FieldsExclude: []string{StageField, DirectionField, ClientField},
	}
	if noColor {
		output.FormatMessage = func(i any) string {
			if i == nil {
				return ""
			}
			return fmt.Sprintf("%v", i)
		}
	}
	logger := zerolog.New(output).With().
		Str(StageField, tag).
		Str(DirectionField, " ").
		Str(ClientField, " ").
		Timestamp().Logger()
	return &Logger{logger: &logger}
}

// NewWriter makes a logger for the given writer, mostly for tests.
func NewWriter(w io.Writer) *Logger {
	logger := zerolog.New(w).With().Timestamp().Logger()
	return &Logger{logger: &logger}
}

func Default() *Logger { return &Logger{logger: &log.Logger} }

// Nop discards everything.
func Nop() *Logger { l := zerolog.Nop(); return &Logger{logger: &l} }

// With creates a child logger context.
func (l *Logger) With() zerolog.Context { return l.logger.With() }

// Extend makes a new logger from the context built with With.
func (l *Logger) Extend(ctx zerolog.Context) *Logger {
	logger := ctx.Logger()
	return &Logger{logger: &logger}
}

// Stage is a shortcut for Extend(With().Str(StageField, name)).
func (l *Logger) Stage(name string) *Logger { return l.Extend(l.With().Str(StageField, name)) }

func (l *Logger) GetLevel() zerolog.Level { return l.logger.GetLevel() }

func (l *Logger) Debug() *zerolog.Event { return l.logger.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.logger.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.logger.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.logger.Error() }

// Fatal logs and calls os.Exit(1) on Msg.
func (l *Logger) Fatal() *zerolog.Event { return l.logger.Fatal() }

func (l *Logger) Printf(format string, v ...any) { l.logger.Printf(format, v...) }
