package dataset

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spachava753/promptbatch/internal/models"
)

// Loader builds task lists from plain-text list files.
type Loader struct{}

// NewLoader creates a new list loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadLists reads one category per line and one content per line and returns
// their cartesian product, category-major: every content for the first
// category, then every content for the second, and so on.
func (l *Loader) LoadLists(ctx context.Context, categoriesPath, contentsPath string) ([]models.Task, error) {
	categories, err := readLines(categoriesPath)
	if err != nil {
		return nil, fmt.Errorf("reading categories: %w", err)
	}
	contents, err := readLines(contentsPath)
	if err != nil {
		return nil, fmt.Errorf("reading contents: %w", err)
	}

	if len(categories) == 0 {
		return nil, fmt.Errorf("no categories found in %s", categoriesPath)
	}
	if len(contents) == 0 {
		return nil, fmt.Errorf("no contents found in %s", contentsPath)
	}

	tasks := make([]models.Task, 0, len(categories)*len(contents))
	for _, category := range categories {
		for _, content := range contents {
			tasks = append(tasks, models.Task{
				Position: len(tasks) + 1,
				Category: category,
				Content:  content,
				Status:   models.StatusPending,
			})
		}
	}
	return tasks, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	return lines, nil
}
