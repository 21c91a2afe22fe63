package recorder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spachava753/promptbatch/internal/models"
)

// AuditLog appends one human-readable line per outcome to a text file.
type AuditLog struct {
	mu sync.Mutex
	f  *os.File
}

// OpenAuditLog opens path for appending, creating it if needed.
func OpenAuditLog(path string) (*AuditLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating audit log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return &AuditLog{f: f}, nil
}

// Append writes the line for o.
func (a *AuditLog) Append(ctx context.Context, o models.Outcome) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := fmt.Fprintln(a.f, AuditLine(o)); err != nil {
		return fmt.Errorf("writing audit log: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (a *AuditLog) Close() error {
	return a.f.Close()
}

// AuditLine formats an outcome as a single audit log line.
func AuditLine(o models.Outcome) string {
	ts := o.EndedAt.Format("2006-01-02 15:04:05")
	if o.Succeeded() {
		return fmt.Sprintf("[%s] Task %d - SUCCESS | Output: %s | Time: %.2fs", ts, o.Position, o.OutputName, o.ElapsedSec)
	}
	msg := "unknown error"
	if o.Error != nil {
		msg = o.Error.Error()
	}
	return fmt.Sprintf("[%s] Task %d - FAILED | Error: %s", ts, o.Position, msg)
}
