package task_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"

	"github.com/spachava753/promptbatch/internal/models"
	"github.com/spachava753/promptbatch/internal/task"
)

var columns = models.ColumnConfig{
	Category:   "category",
	Content:    "content",
	OutputName: "output_name",
	Seed:       "seed",
	Status:     "status",
	Date:       "date",
	Error:      "error",
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadTasksCSV(t *testing.T) {
	path := writeFile(t, "prompts.csv", "category,content,notes\nportrait,a red fox,first\nlandscape, misty hills ,\n")

	loader := task.NewLoader(columns, "", "2006-01-02")
	_, tasks, err := loader.LoadTasks(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadTasks failed: %v", err)
	}

	want := []models.Task{
		{Position: 1, Category: "portrait", Content: "a red fox", Status: models.StatusPending, Metadata: map[string]string{"notes": "first"}},
		{Position: 2, Category: "landscape", Content: "misty hills", Status: models.StatusPending, Metadata: map[string]string{"notes": ""}},
	}
	if diff := cmp.Diff(want, tasks); diff != "" {
		t.Errorf("tasks mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadTasksMissingColumns(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   []string
	}{
		{name: "category absent", header: "content,notes", want: []string{"category"}},
		{name: "content absent", header: "category", want: []string{"content"}},
		{name: "both absent", header: "notes", want: []string{"category", "content"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "prompts.csv", tt.header+"\n")
			_, _, err := task.NewLoader(columns, "", "2006-01-02").LoadTasks(context.Background(), path)

			var cfgErr *models.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if cfgErr.Kind != models.MissingColumns {
				t.Errorf("expected kind %s, got %s", models.MissingColumns, cfgErr.Kind)
			}
			if diff := cmp.Diff(tt.want, cfgErr.Items); diff != "" {
				t.Errorf("missing columns mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadTasksSeedCells(t *testing.T) {
	path := writeFile(t, "prompts.csv", "category,content,seed\nlora_a,a cat,12\nlora_b,a dog,12.0\nlora_c,a fox,abc\nlora_d,an owl,\n")
	loader := task.NewLoader(columns, "", "2006-01-02")

	store, tasks, err := loader.LoadTasks(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadTasks failed: %v", err)
	}
	if len(tasks) != 4 {
		t.Fatalf("expected every row to load, got %d tasks", len(tasks))
	}

	tests := []struct {
		row  int
		want *uint64
	}{
		{row: 0, want: ptr(uint64(12))},
		{row: 1, want: ptr(uint64(12))},
		{row: 2, want: nil},
		{row: 3, want: nil},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, tasks[tt.row].Seed); diff != "" {
			t.Errorf("row %d seed mismatch (-want +got):\n%s", tt.row+1, diff)
		}
	}
	if got := tasks[2].Metadata["seed"]; got != "abc" {
		t.Errorf("expected unreadable seed kept as %q, got %q", "abc", got)
	}

	// The unreadable cell is written back untouched.
	if err := store.Save(tasks); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	_, reloaded, err := loader.LoadTasks(context.Background(), path)
	if err != nil {
		t.Fatalf("reloading failed: %v", err)
	}
	if got := reloaded[2].Metadata["seed"]; got != "abc" {
		t.Errorf("expected unreadable seed to survive a save, got %q", got)
	}
}

func ptr[T any](v T) *T {
	return &v
}

func TestLoadTasksUnsupportedFormat(t *testing.T) {
	path := writeFile(t, "prompts.txt", "category,content\n")
	if _, _, err := task.NewLoader(columns, "", "2006-01-02").LoadTasks(context.Background(), path); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestStoreSaveCSV(t *testing.T) {
	path := writeFile(t, "prompts.csv", "category,content,notes\nportrait,a red fox,first\nlandscape,misty hills,second\n")
	loader := task.NewLoader(columns, "", "2006-01-02")
	store, tasks, err := loader.LoadTasks(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadTasks failed: %v", err)
	}

	seed := uint64(18446744073709551615)
	tasks[0].Status = models.StatusSuccess
	tasks[0].Seed = &seed
	tasks[0].OutputName = "portrait_18446744073709551615.png"
	tasks[0].Timestamp = time.Date(2026, 10, 15, 9, 30, 0, 0, time.Local)
	tasks[1].Status = models.StatusFailed
	tasks[1].ErrorMessage = "dispatch_failed: engine returned 500"

	if err := store.Save(tasks); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	want := "category,content,notes,output_name,seed,status,date,error\n" +
		"portrait,a red fox,first,portrait_18446744073709551615.png,18446744073709551615,SUCCESS,2026-10-15,\n" +
		"landscape,misty hills,second,,,FAILED,,dispatch_failed: engine returned 500\n"
	if string(first) != want {
		t.Errorf("snapshot mismatch:\nwant %q\ngot  %q", want, string(first))
	}

	// A second save of the same state must not change the file.
	if err := store.Save(tasks); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}
	second, _ := os.ReadFile(path)
	if !bytes.Equal(first, second) {
		t.Error("saving the same tasks twice changed the file")
	}

	_, reloaded, err := loader.LoadTasks(context.Background(), path)
	if err != nil {
		t.Fatalf("reloading failed: %v", err)
	}
	if reloaded[0].Status != models.StatusSuccess || reloaded[0].Seed == nil || *reloaded[0].Seed != seed {
		t.Errorf("unexpected reloaded task 1: %+v", reloaded[0])
	}
	if !reloaded[0].Done() || reloaded[1].Done() {
		t.Error("expected only task 1 to be done after reload")
	}
	if reloaded[1].ErrorMessage != "dispatch_failed: engine returned 500" {
		t.Errorf("unexpected reloaded error %q", reloaded[1].ErrorMessage)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected no temp files left behind, found %d entries", len(entries))
	}
}

func TestStoreSaveXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.xlsx")

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", "Prompts"); err != nil {
		t.Fatal(err)
	}
	if err := f.SetSheetRow("Prompts", "A1", &[]any{"category", "content"}); err != nil {
		t.Fatal(err)
	}
	if err := f.SetSheetRow("Prompts", "A2", &[]any{"portrait", "a red fox"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.NewSheet("Notes"); err != nil {
		t.Fatal(err)
	}
	if err := f.SetCellValue("Notes", "A1", "keep me"); err != nil {
		t.Fatal(err)
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	f.Close()

	loader := task.NewLoader(columns, "Prompts", "2006-01-02")
	store, tasks, err := loader.LoadTasks(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadTasks failed: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Content != "a red fox" {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}

	seed := uint64(42)
	tasks[0].Status = models.StatusSuccess
	tasks[0].Seed = &seed
	if err := store.Save(tasks); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	out, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()

	rows, err := out.GetRows("Prompts")
	if err != nil {
		t.Fatal(err)
	}
	// Trailing empty cells may or may not be reported.
	for i := range rows {
		for len(rows[i]) < 7 {
			rows[i] = append(rows[i], "")
		}
	}
	wantRows := [][]string{
		{"category", "content", "output_name", "seed", "status", "date", "error"},
		{"portrait", "a red fox", "", "42", "SUCCESS", "", ""},
	}
	if diff := cmp.Diff(wantRows, rows); diff != "" {
		t.Errorf("sheet mismatch (-want +got):\n%s", diff)
	}

	note, err := out.GetCellValue("Notes", "A1")
	if err != nil {
		t.Fatal(err)
	}
	if note != "keep me" {
		t.Errorf("expected other sheet to survive, got %q", note)
	}
}

func TestValidateTask(t *testing.T) {
	loader := task.NewLoader(columns, "", "2006-01-02")

	if err := loader.ValidateTask(&models.Task{Category: "portrait", Content: "fox"}); err != nil {
		t.Errorf("expected valid task, got %v", err)
	}

	err := loader.ValidateTask(&models.Task{Category: "portrait", Content: "   "})
	var taskErr *models.TaskError
	if !errors.As(err, &taskErr) {
		t.Fatalf("expected TaskError, got %v", err)
	}
	if taskErr.Type != models.ErrTaskInvalid {
		t.Errorf("expected %s, got %s", models.ErrTaskInvalid, taskErr.Type)
	}
}
