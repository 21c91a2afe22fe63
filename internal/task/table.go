package task

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Table is a row-oriented document: a header row and data rows.
type Table struct {
	Header []string
	Rows   [][]string
}

// Column returns the index of name in the header, or -1.
func (t *Table) Column(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Format returns the table format implied by a path's extension.
func Format(path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx", ".xlsm":
		return "xlsx", nil
	case ".csv":
		return "csv", nil
	default:
		return "", fmt.Errorf("unsupported table format %q", ext)
	}
}

// ReadTable reads a CSV or XLSX file. sheet is ignored for CSV; an empty sheet
// selects the first one.
func ReadTable(path, sheet string) (*Table, error) {
	format, err := Format(path)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	switch format {
	case "csv":
		rows, err = readCSV(path)
	default:
		rows, err = readXLSX(path, sheet)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s has no header row", path)
	}

	t := &Table{Header: trimAll(rows[0])}
	for _, r := range rows[1:] {
		t.Rows = append(t.Rows, pad(r, len(t.Header)))
	}
	return t, nil
}

// WriteTable overwrites the table at path with a full snapshot. The file is
// replaced atomically; other sheets of an existing workbook are kept.
func WriteTable(path, sheet string, t *Table) error {
	return writeTable(path, sheet, t, true)
}

// WriteNewTable atomically replaces the file at path with a workbook (or CSV)
// holding only t.
func WriteNewTable(path, sheet string, t *Table) error {
	return writeTable(path, sheet, t, false)
}

func writeTable(path, sheet string, t *Table, merge bool) error {
	format, err := Format(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating table directory: %w", err)
	}

	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp"+filepath.Ext(path))
	switch format {
	case "csv":
		err = writeCSV(tmp, t)
	default:
		err = writeXLSX(path, tmp, sheet, t, merge)
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return rows, nil
}

func writeCSV(path string, t *Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	w.Write(t.Header)
	for _, r := range t.Rows {
		w.Write(r)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func readXLSX(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q of %s: %w", sheet, path, err)
	}
	return rows, nil
}

func writeXLSX(path, tmp, sheet string, t *Table, merge bool) error {
	var f *excelize.File
	if _, err := os.Stat(path); err == nil && merge {
		f, err = excelize.OpenFile(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
	} else {
		f = excelize.NewFile()
		if sheet != "" {
			if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
				f.Close()
				return fmt.Errorf("naming sheet: %w", err)
			}
		}
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return fmt.Errorf("looking up sheet %q: %w", sheet, err)
	}
	if idx == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("creating sheet %q: %w", sheet, err)
		}
	}

	// Rows are never removed between snapshots and the header only grows,
	// so overwriting every cell of the full width replaces the old content.
	if err := setRow(f, sheet, 1, t.Header); err != nil {
		return err
	}
	for i, r := range t.Rows {
		if err := setRow(f, sheet, i+2, pad(r, len(t.Header))); err != nil {
			return err
		}
	}

	if err := f.SaveAs(tmp); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, cells []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	values := make([]any, len(cells))
	for i, c := range cells {
		values[i] = c
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("writing row %d: %w", row, err)
	}
	return nil
}

func pad(r []string, n int) []string {
	if len(r) >= n {
		return r
	}
	out := make([]string, n)
	copy(out, r)
	return out
}

func trimAll(r []string) []string {
	out := make([]string, len(r))
	for i, s := range r {
		out[i] = strings.TrimSpace(s)
	}
	return out
}
