package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/juju/errors"
)

// ErrAlreadyInitialized is returned by Init and InitWithWriter while a logger
// is installed. Close it first.
const ErrAlreadyInitialized = errors.ConstError("engine logger already initialized")

// Logger is the engine-wide logger. Nil until one of the Init functions runs;
// read it through GetLogger.
var Logger *slog.Logger

// sink owns the installed logger and the log file, if it opened one.
var sink struct {
	sync.RWMutex
	file *os.File
}

// LogLevel names a verbosity; matching is case-insensitive.
type LogLevel string

const (
	LevelDebug LogLevel = "DEBUG"
	LevelInfo  LogLevel = "INFO"
	LevelWarn  LogLevel = "WARN"
	LevelError LogLevel = "ERROR"
)

// Config is the logging section of the engine parameters.
type Config struct {
	Level LogLevel `yaml:"level"`
	// OutputPath is a file appended to; empty writes to stderr.
	OutputPath string `yaml:"output"`
	// Format is "json" or "text" (the default).
	Format string `yaml:"format"`
}

func (l LogLevel) slogLevel() slog.Level {
	switch LogLevel(strings.ToUpper(string(l))) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c Config) handler(w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.Level.slogLevel()}
	if strings.EqualFold(c.Format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Init installs the engine logger described by config, creating the log
// file's directory when needed.
func Init(config Config) error {
	sink.Lock()
	defer sink.Unlock()

	if Logger != nil {
		return ErrAlreadyInitialized
	}
	if config.OutputPath == "" {
		Logger = slog.New(config.handler(os.Stderr))
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(config.OutputPath), 0o750); err != nil {
		return errors.Annotatef(err, "creating log directory for %s", config.OutputPath)
	}
	f, err := os.OpenFile(config.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return errors.Annotate(err, "opening engine log")
	}
	sink.file = f
	Logger = slog.New(config.handler(f))
	return nil
}

// InitWithWriter installs a logger writing to w. Tests capture engine output
// with it.
func InitWithWriter(w io.Writer, config Config) error {
	sink.Lock()
	defer sink.Unlock()

	if Logger != nil {
		return ErrAlreadyInitialized
	}
	Logger = slog.New(config.handler(w))
	return nil
}

// InitDefault installs an INFO text logger on stderr unless one is already
// installed.
func InitDefault() {
	sink.Lock()
	defer sink.Unlock()

	if Logger == nil {
		Logger = slog.New(Config{}.handler(os.Stderr))
	}
}

// Close uninstalls the logger and closes its file. Init may be called again
// afterwards.
func Close() error {
	sink.Lock()
	defer sink.Unlock()

	Logger = nil
	if sink.file == nil {
		return nil
	}
	err := sink.file.Close()
	sink.file = nil
	return errors.Annotate(err, "closing engine log")
}

// GetLogger returns the installed logger, falling back to InitDefault.
func GetLogger() *slog.Logger {
	sink.RLock()
	l := Logger
	sink.RUnlock()
	if l != nil {
		return l
	}

	InitDefault()
	sink.RLock()
	defer sink.RUnlock()
	return Logger
}

func Debug(msg string, args ...any) { GetLogger().Debug(msg, args...) }

func Info(msg string, args ...any) { GetLogger().Info(msg, args...) }

func Warn(msg string, args ...any) { GetLogger().Warn(msg, args...) }

func Error(msg string, args ...any) { GetLogger().Error(msg, args...) }
