package pkg

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/diode"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Fields is a map of fields to add to log entries
type Fields map[string]any

var timeFormatOnce sync.Once

// Logger wraps zerolog. The root logger owns its writers; children created
// with WithFields or Component share them and own nothing.
type Logger struct {
	*zerolog.Logger

	sampleEvery uint32
	closers     []io.Closer
	closeOnce   sync.Once
}

// Config holds logger configuration
type Config struct {
	Level  string // trace, debug, info, warn, error
	Format string // json, console

	TimestampFormat string

	Console ConsoleConfig
	File    FileConfig

	// SampleEvery keeps one in N events on loggers returned by Sampled.
	// Values below 2 disable sampling.
	SampleEvery uint32

	// Fields are attached to every entry
	Fields Fields

	// AsyncWrite puts a diode in front of the writers so a slow disk never
	// stalls datagram handling; overflowing entries are dropped.
	AsyncWrite bool
	BufferSize int
}

// ConsoleConfig for console output
type ConsoleConfig struct {
	Enable     bool
	NoColor    bool
	TimeFormat string
	Output     string // stdout or stderr
}

// FileConfig for rotated file output
type FileConfig struct {
	Enable     bool
	Path       string
	MaxSize    int // megabytes
	MaxAge     int // days
	MaxBackups int
	Compress   bool
}

// DefaultConfig returns default logger configuration
func DefaultConfig() *Config {
	return &Config{
		Level:           "info",
		Format:          "console",
		TimestampFormat: time.RFC3339Nano,
		Console: ConsoleConfig{
			Enable:     true,
			TimeFormat: "15:04:05.000",
			Output:     "stderr",
		},
		File: FileConfig{
			Path:       "ringnode.log",
			MaxSize:    100,
			MaxAge:     30,
			MaxBackups: 10,
			Compress:   true,
		},
		SampleEvery: 10,
		Fields:      make(Fields),
		BufferSize:  10000,
	}
}

// New creates a root logger from config.
func New(config *Config) (*Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	level, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", config.Level, err)
	}

	writer, closers, err := openWriters(config)
	if err != nil {
		return nil, err
	}

	if config.TimestampFormat != "" {
		timeFormatOnce.Do(func() {
			zerolog.TimeFieldFormat = config.TimestampFormat
		})
	}

	ctx := zerolog.New(writer).Level(level).With().Timestamp()
	for k, v := range config.Fields {
		ctx = ctx.Interface(k, v)
	}
	zl := ctx.Logger()

	return &Logger{
		Logger:      &zl,
		sampleEvery: config.SampleEvery,
		closers:     closers,
	}, nil
}

// openWriters builds the console and file outputs. Closers are ordered so
// that the diode flushes before the file beneath it closes.
func openWriters(config *Config) (io.Writer, []io.Closer, error) {
	var (
		writers []io.Writer
		closers []io.Closer
	)

	if config.Console.Enable {
		var out io.Writer = os.Stdout
		if config.Console.Output == "stderr" {
			out = os.Stderr
		}
		if config.Format == "console" {
			out = zerolog.ConsoleWriter{
				Out:        out,
				TimeFormat: config.Console.TimeFormat,
				NoColor:    config.Console.NoColor,
			}
		}
		writers = append(writers, out)
	}

	if config.File.Enable {
		if config.File.Path == "" {
			return nil, nil, fmt.Errorf("file logging enabled without a path")
		}
		if err := os.MkdirAll(filepath.Dir(config.File.Path), 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		rotated := &lumberjack.Logger{
			Filename:   config.File.Path,
			MaxSize:    config.File.MaxSize,
			MaxAge:     config.File.MaxAge,
			MaxBackups: config.File.MaxBackups,
			Compress:   config.File.Compress,
		}
		writers = append(writers, rotated)
		closers = append(closers, rotated)
	}

	var w io.Writer
	switch len(writers) {
	case 0:
		return io.Discard, nil, nil
	case 1:
		w = writers[0]
	default:
		w = zerolog.MultiLevelWriter(writers...)
	}

	if config.AsyncWrite {
		dw := diode.NewWriter(w, config.BufferSize, 10*time.Millisecond, func(missed int) {
			fmt.Fprintf(os.Stderr, "logger dropped %d messages\n", missed)
		})
		return dw, append([]io.Closer{dw}, closers...), nil
	}
	return w, closers, nil
}

// Nop returns a logger that discards everything, for tests.
func Nop() *Logger {
	zl := zerolog.Nop()
	return &Logger{Logger: &zl}
}

// WithFields creates a child logger with additional fields.
func (l *Logger) WithFields(fields Fields) *Logger {
	ctx := l.Logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	zl := ctx.Logger()
	return &Logger{Logger: &zl, sampleEvery: l.sampleEvery}
}

// Component tags a child logger with the subsystem it belongs to.
func (l *Logger) Component(name string) *Logger {
	return l.WithFields(Fields{"component": name})
}

// Sampled returns a child that keeps one in SampleEvery events, for logs
// emitted once per datagram.
func (l *Logger) Sampled() *Logger {
	if l.sampleEvery < 2 {
		return l
	}
	zl := l.Logger.Sample(&zerolog.BasicSampler{N: l.sampleEvery})
	return &Logger{Logger: &zl, sampleEvery: l.sampleEvery}
}

// Close flushes async output and closes rotated log files. Closing a child
// logger is a no-op.
func (l *Logger) Close() error {
	var firstErr error
	l.closeOnce.Do(func() {
		for _, c := range l.closers {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	})
	return firstErr
}
