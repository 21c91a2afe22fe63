package task

import (
	"strconv"

	"github.com/spachava753/promptbatch/internal/models"
)

// Store writes full snapshots of a task list back to its tabular source.
type Store struct {
	path       string
	sheet      string
	header     []string
	cols       models.ColumnConfig
	dateFormat string
}

// Path returns the file the store writes to.
func (s *Store) Path() string {
	return s.path
}

// Save overwrites the source with the current state of every task, in
// position order. Saving the same tasks twice yields the same file.
func (s *Store) Save(tasks []models.Task) error {
	t := &Table{Header: s.header, Rows: make([][]string, 0, len(tasks))}
	for i := range tasks {
		t.Rows = append(t.Rows, s.row(&tasks[i]))
	}
	return WriteTable(s.path, s.sheet, t)
}

func (s *Store) row(task *models.Task) []string {
	row := make([]string, len(s.header))
	for i, name := range s.header {
		switch name {
		case s.cols.Category:
			row[i] = task.Category
		case s.cols.Content:
			row[i] = task.Content
		case s.cols.OutputName:
			row[i] = task.OutputName
		case s.cols.Seed:
			if task.Seed != nil {
				row[i] = strconv.FormatUint(*task.Seed, 10)
			} else {
				row[i] = task.Metadata[name]
			}
		case s.cols.Status:
			if task.Status != models.StatusPending {
				row[i] = string(task.Status)
			}
		case s.cols.Date:
			if !task.Timestamp.IsZero() {
				row[i] = task.Timestamp.Format(s.dateFormat)
			} else {
				row[i] = task.Metadata[name]
			}
		case s.cols.Error:
			row[i] = task.ErrorMessage
		default:
			row[i] = task.Metadata[name]
		}
	}
	return row
}
