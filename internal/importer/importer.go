// Package importer reads catalog word lists from JSON, CSV or Excel files.
//
// Tabular files need a header row; columns are matched by name
// (id, word, definition, part_of_speech, frequency, priority, example,
// collocations, phrases) in any order. List columns are separated by ";".
package importer

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kailas-cloud/lexdrill/internal/domain"
)

// ErrUnsupportedFormat is returned for file extensions other than .json, .csv and .xlsx.
var ErrUnsupportedFormat = errors.New("unsupported import format")

// Options tune tabular imports.
type Options struct {
	// SheetName selects the Excel sheet (default: first sheet).
	SheetName string
}

// Result holds parsed items and per-row problems. Rows with errors are skipped.
type Result struct {
	Items   []domain.LearningItem
	Skipped int
	Errors  []string
}

// Load parses the file at path according to its extension.
func Load(path string, opts Options) (*Result, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return loadJSON(path)
	case ".csv":
		return loadCSV(path)
	case ".xlsx", ".xlsm":
		return loadExcel(path, opts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

func loadJSON(path string) (*Result, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var items []domain.LearningItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	res := &Result{}
	for i, it := range items {
		if err := validate(it); err != nil {
			res.Skipped++
			res.Errors = append(res.Errors, fmt.Sprintf("item %d: %v", i, err))
			continue
		}
		res.Items = append(res.Items, it)
	}
	return res, nil
}

func loadCSV(path string) (*Result, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		rows = append(rows, row)
	}
	return fromRows(rows)
}

func loadExcel(path string, opts Options) (*Result, error) {
	f, err := excelize.OpenFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	sheet := opts.SheetName
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return fromRows(rows)
}

// fromRows maps a header row plus data rows to items.
func fromRows(rows [][]string) (*Result, error) {
	if len(rows) == 0 {
		return &Result{}, nil
	}
	cols := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"id", "word"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("header is missing column %q", required)
		}
	}

	res := &Result{}
	for i, row := range rows[1:] {
		line := i + 2
		if blank(row) {
			continue
		}
		it, err := parseRow(cols, row)
		if err == nil {
			err = validate(it)
		}
		if err != nil {
			res.Skipped++
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: %v", line, err))
			continue
		}
		res.Items = append(res.Items, it)
	}
	return res, nil
}

func parseRow(cols map[string]int, row []string) (domain.LearningItem, error) {
	cell := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var it domain.LearningItem
	id, err := strconv.ParseInt(cell("id"), 10, 64)
	if err != nil {
		return it, fmt.Errorf("bad id %q", cell("id"))
	}
	it.ID = id
	it.Word = cell("word")
	it.Definition = cell("definition")
	it.PartOfSpeech = cell("part_of_speech")

	if v := cell("frequency"); v != "" {
		if it.Frequency, err = strconv.ParseFloat(v, 64); err != nil {
			return it, fmt.Errorf("bad frequency %q", v)
		}
	}
	if v := cell("priority"); v != "" {
		if it.Priority, err = strconv.Atoi(v); err != nil {
			return it, fmt.Errorf("bad priority %q", v)
		}
	}
	if v := cell("example"); v != "" {
		it.Example = &v
	}
	it.Collocations = splitList(cell("collocations"))
	it.Phrases = splitList(cell("phrases"))
	return it, nil
}

func validate(it domain.LearningItem) error {
	if it.ID <= 0 || it.Word == "" {
		return errors.New("id and word are required")
	}
	return nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ";") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
