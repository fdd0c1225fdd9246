// Package logging owns the engine's application log: a slog logger writing
// to stdout and a size-rotated file under the repository's .jnkn/logs
// directory. The store and pipeline layers keep their structured logrus
// loggers; Writer exposes this package's sink so those can share the same
// file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Config controls the application logger.
type Config struct {
	Dir        string // log directory; empty means stdout only
	Debug      bool   // debug level, text format, source locations
	MaxSize    int64  // bytes before the current file is rotated
	MaxBackups int    // rotated files to keep
}

// DefaultConfig logs to a single jnkn.log in dir, appended across engine
// starts and rotated once it passes 10 MiB, keeping three backups.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:        dir,
		Debug:      os.Getenv("JNKN_DEBUG") != "",
		MaxSize:    10 * 1024 * 1024,
		MaxBackups: 3,
	}
}

// Logger is the slog-backed application logger.
type Logger struct {
	slog   *slog.Logger
	writer io.Writer
	file   *os.File
}

var (
	mu     sync.Mutex
	global *Logger
)

// Initialize installs the global logger. Safe to call more than once; a
// later call replaces the sink (and closes the previous file), which keeps
// repeated engine construction in one process well-defined.
func Initialize(cfg Config) error {
	logger, err := New(cfg)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	if global != nil && global.file != nil {
		global.file.Close()
	}
	global = logger
	return nil
}

// New builds a logger from cfg without touching the global.
func New(cfg Config) (*Logger, error) {
	writers := []io.Writer{os.Stdout}

	var file *os.File
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
			return nil, fmt.Errorf("create log directory %s: %w", cfg.Dir, err)
		}
		path := filepath.Join(cfg.Dir, "jnkn.log")
		if err := rotate(path, cfg.MaxSize, cfg.MaxBackups); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", path, err)
		}
		file = f
		writers = append(writers, f)
	}

	writer := io.MultiWriter(writers...)

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.Debug}

	var handler slog.Handler
	if cfg.Debug {
		handler = slog.NewTextHandler(writer, opts)
	} else {
		handler = slog.NewJSONHandler(writer, opts)
	}

	return &Logger{slog: slog.New(handler), writer: writer, file: file}, nil
}

// rotate shifts jnkn.log to jnkn.log.1 (and so on up to maxBackups) once
// the current file exceeds maxSize.
func rotate(path string, maxSize int64, maxBackups int) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat log file: %w", err)
	}
	if maxSize <= 0 || info.Size() < maxSize {
		return nil
	}

	for i := maxBackups - 1; i >= 1; i-- {
		os.Rename(fmt.Sprintf("%s.%d", path, i), fmt.Sprintf("%s.%d", path, i+1))
	}
	if err := os.Rename(path, path+".1"); err != nil {
		return fmt.Errorf("rotate log file: %w", err)
	}
	return nil
}

// Close releases the logger's file handle.
func (l *Logger) Close() error {
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.slog.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.slog.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// Writer returns the logger's combined sink, so sibling loggers (the
// store's logrus instance) can write to the same file. Nil when
// Initialize has not run.
func Writer() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		return nil
	}
	return global.writer
}

// Close closes the global logger's file.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		return nil
	}
	return global.Close()
}

// Debug, Info, Warn, and Error log through the global logger, falling back
// to the process-default slog handler before Initialize runs.
func Debug(msg string, args ...any) { pick().Debug(msg, args...) }
func Info(msg string, args ...any)  { pick().Info(msg, args...) }
func Warn(msg string, args ...any)  { pick().Warn(msg, args...) }
func Error(msg string, args ...any) { pick().Error(msg, args...) }

func pick() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if global != nil {
		return global.slog
	}
	return slog.Default()
}
