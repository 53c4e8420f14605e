package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/platinummonkey/chartpay/pkg/billing"
	"github.com/platinummonkey/chartpay/pkg/observability"
)

const currentFile = "audit.log"

// FileLogger appends payment request events to a JSON-lines file and
// rotates it by size.
type FileLogger struct {
	dir      string
	maxSize  int64
	maxFiles int
	logger   *observability.Logger

	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
}

// FileLoggerConfig configures the file logger
type FileLoggerConfig struct {
	Dir      string // Directory holding audit.log and its rotations
	MaxSize  int64  // Rotate once audit.log reaches this many bytes (default: 100MB)
	MaxFiles int    // Rotated files to keep (default: 10)
}

// DefaultFileLoggerConfig returns default configuration
func DefaultFileLoggerConfig() FileLoggerConfig {
	return FileLoggerConfig{
		Dir:      "/var/lib/chartpay/audit",
		MaxSize:  100 * 1024 * 1024,
		MaxFiles: 10,
	}
}

// NewFileLogger creates the directory if needed and opens audit.log for
// appending.
func NewFileLogger(config FileLoggerConfig, logger *observability.Logger) (*FileLogger, error) {
	if config.Dir == "" {
		return nil, fmt.Errorf("audit log directory is required")
	}
	if err := os.MkdirAll(config.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	l := &FileLogger{
		dir:      config.Dir,
		maxSize:  config.MaxSize,
		maxFiles: config.MaxFiles,
		logger:   logger,
	}
	if l.maxSize <= 0 {
		l.maxSize = 100 * 1024 * 1024
	}
	if l.maxFiles <= 0 {
		l.maxFiles = 10
	}

	if err := l.openLogFile(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *FileLogger) path() string {
	return filepath.Join(l.dir, currentFile)
}

// openLogFile opens audit.log, rotating it first when it is already full.
func (l *FileLogger) openLogFile() error {
	if info, err := os.Stat(l.path()); err == nil && info.Size() >= l.maxSize {
		if err := l.rotateFile(); err != nil {
			return fmt.Errorf("failed to rotate audit log: %w", err)
		}
	}

	file, err := os.OpenFile(l.path(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit log file: %w", err)
	}
	l.file = file
	l.encoder = json.NewEncoder(file)
	return nil
}

func (l *FileLogger) rotateFile() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	rotated := filepath.Join(l.dir, fmt.Sprintf("audit-%s.log", time.Now().UTC().Format("20060102-150405.000000000")))
	if err := os.Rename(l.path(), rotated); err != nil {
		return fmt.Errorf("failed to rename audit log: %w", err)
	}

	if err := l.cleanupOldFiles(); err != nil {
		l.logger.WithError(err).Warn("failed to clean up old audit logs")
	}
	return nil
}

// cleanupOldFiles keeps the newest maxFiles rotations. Rotated names sort
// by time.
func (l *FileLogger) cleanupOldFiles() error {
	files, err := filepath.Glob(filepath.Join(l.dir, "audit-*.log"))
	if err != nil {
		return err
	}
	if len(files) <= l.maxFiles {
		return nil
	}
	sort.Strings(files)
	for _, f := range files[:len(files)-l.maxFiles] {
		if err := os.Remove(f); err != nil {
			l.logger.WithError(err).WithField("file", f).Warn("failed to remove old audit log")
		}
	}
	return nil
}

// Publish writes one event. It satisfies billing.Publisher.
func (l *FileLogger) Publish(ctx context.Context, event billing.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("audit log is closed")
	}
	if info, err := l.file.Stat(); err == nil && info.Size() >= l.maxSize {
		if err := l.openLogFile(); err != nil {
			return err
		}
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// Query filters Recent. Zero fields match everything.
type Query struct {
	Limit     int
	RequestID string
	Type      billing.EventType
}

func (q Query) matches(e billing.Event) bool {
	if q.Type != "" && e.Type != q.Type {
		return false
	}
	if q.RequestID != "" && (e.Request == nil || e.Request.ID != q.RequestID) {
		return false
	}
	return true
}

// Recent returns matching events from the current file, newest first.
func (l *FileLogger) Recent(ctx context.Context, q Query) ([]billing.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.Open(l.path())
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer file.Close()

	var events []billing.Event
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var e billing.Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("failed to decode audit log entry: %w", err)
		}
		if !q.matches(e) {
			continue
		}
		events = append(events, e)
		if q.Limit > 0 && len(events) > q.Limit {
			events = events[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}

	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

// Close closes the file logger
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}
