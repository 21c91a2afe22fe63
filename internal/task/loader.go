package task

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spachava753/promptbatch/internal/models"
)

// Loader loads tasks from a tabular source.
type Loader struct {
	cols       models.ColumnConfig
	sheet      string
	dateFormat string
}

// NewLoader creates a loader that maps the given columns.
func NewLoader(cols models.ColumnConfig, sheet, dateFormat string) *Loader {
	return &Loader{cols: cols, sheet: sheet, dateFormat: dateFormat}
}

// LoadTasks reads every row of the source at path as a task. It returns a
// Store that writes snapshots back to the same file.
func (l *Loader) LoadTasks(ctx context.Context, path string) (*Store, []models.Task, error) {
	t, err := ReadTable(path, l.sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("loading task source: %w", err)
	}

	var missing []string
	for _, name := range []string{l.cols.Category, l.cols.Content} {
		if t.Column(name) == -1 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, nil, &models.ConfigError{
			Kind:  models.MissingColumns,
			Items: missing,
			Err:   fmt.Errorf("task source %s", path),
		}
	}

	// Result columns are created when the source lacks them.
	header := append([]string(nil), t.Header...)
	for _, name := range l.resultColumns() {
		if t.Column(name) == -1 {
			header = append(header, name)
		}
	}

	tasks := make([]models.Task, 0, len(t.Rows))
	for i, row := range t.Rows {
		task := l.parseRow(t.Header, row)
		task.Position = i + 1
		tasks = append(tasks, task)
	}

	store := &Store{
		path:       path,
		sheet:      l.sheet,
		header:     header,
		cols:       l.cols,
		dateFormat: l.dateFormat,
	}
	return store, tasks, nil
}

// ValidateTask checks that a task carries the fields needed to dispatch it.
func (l *Loader) ValidateTask(task *models.Task) error {
	var empty []string
	if strings.TrimSpace(task.Category) == "" {
		empty = append(empty, l.cols.Category)
	}
	if strings.TrimSpace(task.Content) == "" {
		empty = append(empty, l.cols.Content)
	}
	if len(empty) > 0 {
		return &models.TaskError{
			Type:    models.ErrTaskInvalid,
			Message: fmt.Sprintf("empty required field(s): %s", strings.Join(empty, ", ")),
		}
	}
	return nil
}

func (l *Loader) resultColumns() []string {
	return []string{l.cols.OutputName, l.cols.Seed, l.cols.Status, l.cols.Date, l.cols.Error}
}

func (l *Loader) parseRow(header, row []string) models.Task {
	task := models.Task{
		Status:   models.StatusPending,
		Metadata: make(map[string]string),
	}

	for i, name := range header {
		cell := strings.TrimSpace(row[i])
		switch name {
		case l.cols.Category:
			task.Category = cell
		case l.cols.Content:
			task.Content = cell
		case l.cols.OutputName:
			task.OutputName = cell
		case l.cols.Status:
			task.Status = models.ParseTaskStatus(cell)
		case l.cols.Error:
			task.ErrorMessage = cell
		case l.cols.Seed:
			if cell == "" {
				continue
			}
			seed, ok := parseSeed(cell)
			if !ok {
				// Kept as-is, like an unreadable date; the next draw replaces it.
				slog.Warn("ignoring unreadable seed", "column", name, "value", cell)
				task.Metadata[name] = row[i]
				continue
			}
			task.Seed = &seed
		case l.cols.Date:
			if cell == "" {
				continue
			}
			ts, err := time.ParseInLocation(l.dateFormat, cell, time.Local)
			if err != nil {
				// Keep whatever the sheet held so a snapshot writes it back.
				task.Metadata[name] = row[i]
				continue
			}
			task.Timestamp = ts
		default:
			task.Metadata[name] = row[i]
		}
	}
	return task
}

// parseSeed accepts plain integers and integral floats such as "12.0", which
// spreadsheet tools write for numeric columns.
func parseSeed(cell string) (uint64, bool) {
	if v, err := strconv.ParseUint(cell, 10, 64); err == nil {
		return v, true
	}
	f, err := strconv.ParseFloat(cell, 64)
	if err != nil || f < 0 || f >= math.MaxUint64 || f != math.Trunc(f) {
		return 0, false
	}
	return uint64(f), true
}
