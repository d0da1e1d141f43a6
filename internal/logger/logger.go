package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu      sync.RWMutex
	log     = zerolog.Nop()
	logFile *os.File
)

// Options configures the process logger. An empty File logs to Writer
// (stderr when nil) through a console writer; a File gets JSON lines.
type Options struct {
	Level  string
	File   string
	Writer io.Writer
}

// ParseLevel maps a configured level name to zerolog. "off" disables logging.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "off", "none", "disabled":
		return zerolog.Disabled, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.Disabled, fmt.Errorf("unsupported log level %q", level)
	}
}

func Init(opts Options) error {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return err
	}
	Close()

	mu.Lock()
	defer mu.Unlock()
	if level == zerolog.Disabled {
		log = zerolog.Nop()
		return nil
	}
	if strings.TrimSpace(opts.File) != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		logFile = f
		log = zerolog.New(f).Level(level).With().Timestamp().Logger()
		return nil
	}
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	log = zerolog.New(consoleWriter(w)).Level(level).With().Timestamp().Logger()
	return nil
}

// SetOutput redirects logging to w at debug level.
func SetOutput(w io.Writer) {
	mu.Lock()
	log = zerolog.New(consoleWriter(w)).Level(zerolog.DebugLevel).With().Timestamp().Logger()
	mu.Unlock()
}

// Close closes the log file if one is open and disables logging.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
	log = zerolog.Nop()
}

// With returns a child logger tagged with a component name for structured fields.
func With(component string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log.With().Str("component", component).Logger()
}

func Debug(msg string, args ...interface{}) {
	current().Debug().Msgf(msg, args...)
}

func Info(msg string, args ...interface{}) {
	current().Info().Msgf(msg, args...)
}

func Warn(msg string, args ...interface{}) {
	current().Warn().Msgf(msg, args...)
}

func Error(msg string, args ...interface{}) {
	current().Error().Msgf(msg, args...)
}

func current() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := log
	return &l
}

func consoleWriter(w io.Writer) zerolog.ConsoleWriter {
	output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	output.FormatLevel = func(i interface{}) string {
		return fmt.Sprintf("[%s]", i)
	}
	output.FormatMessage = func(i interface{}) string {
		return fmt.Sprintf("%s", i)
	}
	return output
}
