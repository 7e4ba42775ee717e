package logger

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger struct {
	zl        zerolog.Logger
	collector *LogCollector
}

type Config struct {
	Level      string // debug, info, warn, error, fatal, panic
	Format     string // json or console
	Output     string // stdout, stderr, or file path
	TimeFormat string // time format for log messages

	// Rotation settings, applied when Output is a file path.
	FileMaxSizeMB  int
	FileMaxBackups int
	FileMaxAgeDays int
}

func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer
	switch cfg.Output {
	case "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		// Anything else is treated as a file path and rotated.
		output = &lumberjack.Logger{
			Filename:   cfg.Output,
			MaxSize:    orDefault(cfg.FileMaxSizeMB, 100),
			MaxBackups: orDefault(cfg.FileMaxBackups, 3),
			MaxAge:     orDefault(cfg.FileMaxAgeDays, 28),
			Compress:   true,
		}
	}

	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339Nano
	}
	zerolog.TimeFieldFormat = cfg.TimeFormat

	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: cfg.TimeFormat,
			NoColor:    false,
		}
	}

	zl := zerolog.New(output).
		With().
		Timestamp().
		CallerWithSkipFrameCount(4).
		Logger()

	return &Logger{zl: zl}, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func (l *Logger) Debug(msg string, fields ...Field) { l.emit(l.zl.Debug(), "", msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.emit(l.zl.Info(), "", msg, fields) }

// Warn and Error additionally feed the attached collector, when one is set.
func (l *Logger) Warn(msg string, fields ...Field)  { l.emit(l.zl.Warn(), "warn", msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.emit(l.zl.Error(), "error", msg, fields) }

func (l *Logger) emit(event *zerolog.Event, collectAs, msg string, fields []Field) {
	for _, f := range fields {
		f.apply(event)
	}
	event.Msg(msg)

	if collectAs == "" || l.collector == nil {
		return
	}

	// Skip frames: emit -> Warn/Error -> caller.
	_, file, line, ok := runtime.Caller(2)
	caller := "unknown"
	if ok {
		parts := strings.Split(file, "FeedGate")
		caller = fmt.Sprintf("%s:%d", parts[len(parts)-1], line)
	}

	fieldMap := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		fieldMap[f.key] = f.val
	}
	l.collector.AddLog(collectAs, msg, fieldMap, caller)
}

// AddCollector attaches an in-memory collector, replacing any existing one.
func (l *Logger) AddCollector(config *CollectionConfig) {
	if l.collector != nil {
		l.collector.Close()
	}
	l.collector = NewLogCollector(config)
}

// Collector returns the attached log collector, nil when none is set.
func (l *Logger) Collector() *LogCollector {
	return l.collector
}

func (l *Logger) RemoveCollector() {
	if l.collector != nil {
		l.collector.Close()
	}
}

// Field is a typed key/value pair for structured log lines.
type Field struct {
	key   string
	val   interface{}
	apply func(*zerolog.Event)
}

func String(key, value string) Field {
	return Field{key, value, func(e *zerolog.Event) { e.Str(key, value) }}
}

func Strings(key string, value []string) Field {
	return String(key, strings.Join(value, ", "))
}

func Int(key string, value int) Field {
	return Field{key, value, func(e *zerolog.Event) { e.Int(key, value) }}
}

func Int64(key string, value int64) Field {
	return Field{key, value, func(e *zerolog.Event) { e.Int64(key, value) }}
}

func Error(err error) Field {
	return Field{"error", fmt.Sprint(err), func(e *zerolog.Event) { e.Err(err) }}
}

func Any(key string, value interface{}) Field {
	return Field{key, value, func(e *zerolog.Event) { e.Interface(key, value) }}
}

// Duration logs as integer milliseconds.
func Duration(key string, value time.Duration) Field {
	return Int(key, int(value/time.Millisecond))
}
