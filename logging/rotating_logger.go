package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultFilePrefix is the name prefix of the service log files
const DefaultFilePrefix = "medical-data"

// RotatingLogger writes to one log file per ISO week, starts a numbered
// file when the size limit is reached and deletes files past retention.
type RotatingLogger struct {
	logDir      string
	prefix      string
	currentFile *os.File
	currentWeek string
	retention   time.Duration
	maxFileSize int64
	currentSize atomic.Int64
	mu          sync.Mutex
	numbered    *regexp.Regexp
	ctx         context.Context
	cancel      context.CancelFunc
	cleanupDone chan struct{}
}

// NewRotatingLogger creates a rotating logger with the default 100MB size limit
func NewRotatingLogger(logDir string, retentionWeeks int) *RotatingLogger {
	return NewRotatingLoggerWithSizeLimit(logDir, retentionWeeks, 100*1024*1024)
}

// NewRotatingLoggerWithSizeLimit creates a rotating logger with a custom size limit.
// A maxFileSize of 0 disables size based rotation.
func NewRotatingLoggerWithSizeLimit(logDir string, retentionWeeks int, maxFileSize int64) *RotatingLogger {
	ctx, cancel := context.WithCancel(context.Background())
	prefix := DefaultFilePrefix
	return &RotatingLogger{
		logDir:      logDir,
		prefix:      prefix,
		retention:   time.Duration(retentionWeeks) * 7 * 24 * time.Hour,
		maxFileSize: maxFileSize,
		numbered:    regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `-\d{4}-W\d{2}_(\d{2})\.log$`),
		ctx:         ctx,
		cancel:      cancel,
		cleanupDone: make(chan struct{}),
	}
}

// getWeekKey returns the week key in YYYY-Www format (ISO week)
func getWeekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

func (rl *RotatingLogger) baseFileName(week string) string {
	return fmt.Sprintf("%s-%s.log", rl.prefix, week)
}

// doRotate switches to the file for targetWeek (caller must hold the lock)
func (rl *RotatingLogger) doRotate(targetWeek string) error {
	if rl.currentFile != nil {
		if err := rl.currentFile.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close log file during rotation: %v\n", err)
		}
		rl.currentFile = nil
	}

	sizeRotation := rl.maxFileSize > 0 && rl.currentWeek == targetWeek && rl.currentSize.Load() >= rl.maxFileSize
	fileName, fresh := rl.pickFile(targetWeek, sizeRotation)

	logPath := filepath.Join(rl.logDir, fileName)
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", logPath, err)
	}

	rl.currentFile = file
	rl.currentWeek = targetWeek
	rl.currentSize.Store(0)
	if !fresh {
		if info, err := file.Stat(); err == nil {
			rl.currentSize.Store(info.Size())
		}
	}

	return nil
}

// pickFile chooses the file to write for a week. fresh reports a new numbered file.
func (rl *RotatingLogger) pickFile(week string, sizeRotation bool) (name string, fresh bool) {
	base := rl.baseFileName(week)

	highest, lastName, lastSize := rl.highestNumberedFile(week)
	if !sizeRotation {
		if lastName != "" && (rl.maxFileSize == 0 || lastSize < rl.maxFileSize) {
			return lastName, false
		}
		info, err := os.Stat(filepath.Join(rl.logDir, base))
		if lastName == "" && (err != nil || rl.maxFileSize == 0 || info.Size() < rl.maxFileSize) {
			return base, false
		}
	}

	return fmt.Sprintf("%s-%s_%02d.log", rl.prefix, week, highest+1), true
}

// highestNumberedFile returns the highest sequence number used for a week
func (rl *RotatingLogger) highestNumberedFile(week string) (int, string, int64) {
	pattern := filepath.Join(rl.logDir, fmt.Sprintf("%s-%s_??.log", rl.prefix, week))
	matches, _ := filepath.Glob(pattern)

	highest := 0
	var lastName string
	var lastSize int64

	for _, match := range matches {
		m := rl.numbered.FindStringSubmatch(filepath.Base(match))
		if len(m) < 2 {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		if num <= highest {
			continue
		}
		highest = num
		lastName = filepath.Base(match)
		lastSize = 0
		if info, err := os.Stat(match); err == nil {
			lastSize = info.Size()
		}
	}

	return highest, lastName, lastSize
}

// Write writes data to the current log file, rotating first when needed
func (rl *RotatingLogger) Write(p []byte) (int, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	week := getWeekKey(time.Now())
	needsRotation := rl.currentFile == nil || rl.currentWeek != week
	if !needsRotation && rl.maxFileSize > 0 {
		size := rl.currentSize.Load()
		if size > 0 && size+int64(len(p)) > rl.maxFileSize {
			rl.currentSize.Store(rl.maxFileSize)
			needsRotation = true
		}
	}

	if needsRotation {
		if err := rl.doRotate(week); err != nil {
			return 0, err
		}
	}

	n, err := rl.currentFile.Write(p)
	rl.currentSize.Add(int64(n))
	return n, err
}

// cleanupOldLogs removes log files older than the retention period
func (rl *RotatingLogger) cleanupOldLogs() (int, error) {
	entries, err := os.ReadDir(rl.logDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read log directory: %w", err)
	}

	cutoff := time.Now().Add(-rl.retention)
	deleted := 0

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, rl.prefix+"-") || !strings.HasSuffix(name, ".log") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(rl.logDir, name)); err == nil {
				deleted++
			}
		}
	}

	return deleted, nil
}

// startCleanup runs the retention cleanup once a day until Close
func (rl *RotatingLogger) startCleanup() {
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		defer close(rl.cleanupDone)

		for {
			select {
			case <-rl.ctx.Done():
				return
			case <-ticker.C:
				// Logged to stderr to avoid writing through ourselves
				if n, err := rl.cleanupOldLogs(); err != nil {
					fmt.Fprintf(os.Stderr, "failed to clean up old logs: %v\n", err)
				} else if n > 0 {
					fmt.Fprintf(os.Stderr, "cleaned up %d old log files\n", n)
				}
			}
		}
	}()
}

// Close stops the background cleanup and closes the current file
func (rl *RotatingLogger) Close() error {
	rl.cancel()

	select {
	case <-rl.cleanupDone:
	case <-time.After(time.Second):
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.currentFile != nil {
		err := rl.currentFile.Close()
		rl.currentFile = nil
		return err
	}
	return nil
}

// multiHandler implements slog.Handler to write to multiple handlers
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newHandlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		newHandlers[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: newHandlers}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	newHandlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		newHandlers[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: newHandlers}
}
