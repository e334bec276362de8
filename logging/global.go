// Package logging provides the service's structured logger: text to the
// console, JSON to weekly rotating files, plus package-level helpers.
package logging

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/medpricing/medical-data-service/config"
)

// Options configures InitLoggerWithOptions
type Options struct {
	LogDir         string // empty disables file logging
	Env            config.Environment
	Level          string
	Verbose        bool
	RetentionWeeks int
	MaxFileSize    int64
}

type LoggingService struct {
	Logger   *slog.Logger
	rotating *RotatingLogger
}

var DefaultLoggingService *LoggingService

// InitLogger initializes the global logger with development defaults
func InitLogger(logDir string) {
	InitLoggerWithOptions(Options{
		LogDir:         logDir,
		Env:            config.EnvDevelopment,
		RetentionWeeks: 4,
		MaxFileSize:    100 * 1024 * 1024,
	})
}

// InitLoggerWithOptions initializes the global logger instance
func InitLoggerWithOptions(opts Options) {
	if DefaultLoggingService != nil {
		_ = DefaultLoggingService.Close()
	}

	consoleHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: GetConsoleLogLevel(opts.Env, opts.Level, opts.Verbose),
	})

	service := &LoggingService{}
	handlers := []slog.Handler{consoleHandler}

	if opts.LogDir != "" {
		rotating, err := newFileLogger(opts)
		if err != nil {
			slog.New(consoleHandler).Error("File logging disabled", "log_dir", opts.LogDir, "error", err)
		} else {
			service.rotating = rotating
			handlers = append(handlers, slog.NewJSONHandler(rotating, &slog.HandlerOptions{
				Level: GetFileLogLevel(),
			}))
		}
	}

	service.Logger = slog.New(&multiHandler{handlers: handlers})
	DefaultLoggingService = service
	slog.SetDefault(service.Logger)
}

func newFileLogger(opts Options) (*RotatingLogger, error) {
	if err := os.MkdirAll(opts.LogDir, 0755); err != nil {
		return nil, err
	}

	retention := opts.RetentionWeeks
	if retention <= 0 {
		retention = 4
	}

	rl := NewRotatingLoggerWithSizeLimit(opts.LogDir, retention, opts.MaxFileSize)
	rl.mu.Lock()
	err := rl.doRotate(getWeekKey(time.Now()))
	rl.mu.Unlock()
	if err != nil {
		return nil, err
	}
	rl.startCleanup()
	return rl, nil
}

// Close releases the log file, if any
func (s *LoggingService) Close() error {
	if s == nil || s.rotating == nil {
		return nil
	}
	return s.rotating.Close()
}

// Close closes the global logger's file
func Close() error {
	return DefaultLoggingService.Close()
}

// parseLogLevel maps a level name to a slog level, defaulting to info
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetConsoleLogLevel returns the console level for an environment.
// Tests stay quiet unless verbose; an explicit level overrides the
// environment default everywhere else.
func GetConsoleLogLevel(env config.Environment, level string, verbose bool) slog.Level {
	if env == config.EnvTest {
		if verbose {
			return slog.LevelInfo
		}
		return slog.LevelError
	}
	if level != "" {
		return parseLogLevel(level)
	}
	switch env {
	case config.EnvProduction, config.EnvStaging:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// GetFileLogLevel returns the level of the file handler, which keeps everything
func GetFileLogLevel() slog.Level {
	return slog.LevelDebug
}

func logger() *slog.Logger {
	if DefaultLoggingService == nil || DefaultLoggingService.Logger == nil {
		// Fallback to console logger if not initialized
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return DefaultLoggingService.Logger
}

// Package-level functions for direct access

func Info(msg string, args ...any) {
	logger().Info(msg, args...)
}

func Error(msg string, args ...any) {
	logger().Error(msg, args...)
}

func Warn(msg string, args ...any) {
	logger().Warn(msg, args...)
}

func Debug(msg string, args ...any) {
	logger().Debug(msg, args...)
}
