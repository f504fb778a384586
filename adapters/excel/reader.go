// Package excel loads trial tables from .xlsx workbooks and .csv files
package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"gamelearn/domain/core"
	"gamelearn/domain/experiment"
	apperrors "gamelearn/internal/errors"
)

// Columns the loader requires in the header row. Extra columns are
// ignored; header matching is case-insensitive.
var requiredColumns = []string{
	"subject", "block", "condition", "gamified", "group",
	"gamified_first", "item", "phase",
}

var optionalColumns = []string{"question", "correct", "rt_ms", "rating"}

// Reader reads trial records from a tabular file. It implements
// ports.TrialSource.
type Reader struct {
	path string
}

// NewReader creates a reader for an .xlsx or .csv trial file
func NewReader(path string) *Reader {
	return &Reader{path: path}
}

// ReadTrials loads and validates the whole trial table. Empty cells in
// the nullable columns become nil values, never zeros.
func (r *Reader) ReadTrials(ctx context.Context) (experiment.Sample, error) {
	rows, err := r.readRows()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperrors.NewDatasetError("trial file is empty", nil)
	}

	cols, err := headerIndex(rows[0])
	if err != nil {
		return nil, err
	}

	sample := make(experiment.Sample, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if blankRow(row) {
			continue
		}
		rec, err := parseRecord(cols, row)
		if err != nil {
			return nil, apperrors.NewDatasetError(fmt.Sprintf("row %d: %v", i+2, err), err)
		}
		sample = append(sample, rec)
	}
	if len(sample) == 0 {
		return nil, apperrors.NewDatasetError("trial file has no data rows", nil)
	}
	return sample, nil
}

func (r *Reader) readRows() ([][]string, error) {
	switch strings.ToLower(filepath.Ext(r.path)) {
	case ".xlsx":
		return r.readExcel()
	case ".csv":
		return r.readCSV()
	}
	return nil, apperrors.NewDatasetError(fmt.Sprintf("unsupported trial file format %q", filepath.Ext(r.path)), nil)
}

func (r *Reader) readExcel() ([][]string, error) {
	f, err := excelize.OpenFile(r.path)
	if err != nil {
		return nil, apperrors.NewDatasetError(fmt.Sprintf("open %s", r.path), err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperrors.NewDatasetError("workbook has no sheets", nil)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, apperrors.NewDatasetError(fmt.Sprintf("read sheet %q", sheets[0]), err)
	}
	return rows, nil
}

func (r *Reader) readCSV() ([][]string, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, apperrors.NewDatasetError(fmt.Sprintf("open %s", r.path), err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.NewDatasetError("malformed csv", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func headerIndex(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	var missing []string
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, apperrors.NewDatasetError(fmt.Sprintf("missing columns: %s", strings.Join(missing, ", ")), nil)
	}
	return cols, nil
}

func parseRecord(cols map[string]int, row []string) (experiment.TrialRecord, error) {
	var rec experiment.TrialRecord
	var err error

	rec.Subject = core.SubjectID(cell(cols, row, "subject"))
	if rec.Subject == "" {
		return rec, fmt.Errorf("empty subject id")
	}
	if v := cell(cols, row, "block"); v != "" {
		rec.Block, err = strconv.Atoi(v)
		if err != nil {
			return rec, fmt.Errorf("block %q: %w", v, err)
		}
	}
	rec.Condition = cell(cols, row, "condition")
	rec.Gamified, err = parseBool(cell(cols, row, "gamified"))
	if err != nil {
		return rec, fmt.Errorf("gamified: %w", err)
	}
	rec.Group = cell(cols, row, "group")
	rec.GamifiedFirst, err = parseBool(cell(cols, row, "gamified_first"))
	if err != nil {
		return rec, fmt.Errorf("gamified_first: %w", err)
	}
	rec.Item = core.ItemID(cell(cols, row, "item"))
	phase := experiment.Phase(strings.ToLower(cell(cols, row, "phase")))
	switch phase {
	case experiment.PhasePractice, experiment.PhasePostTest, experiment.PhaseSurvey:
		rec.Phase = phase
	default:
		return rec, fmt.Errorf("unknown phase %q", phase)
	}
	rec.Question = cell(cols, row, "question")

	if v := cell(cols, row, "correct"); v != "" {
		b, err := parseBool(v)
		if err != nil {
			return rec, fmt.Errorf("correct: %w", err)
		}
		rec.Correct = &b
	}
	if v := cell(cols, row, "rt_ms"); v != "" {
		rt, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return rec, fmt.Errorf("rt_ms %q: %w", v, err)
		}
		rec.RTMillis = &rt
	}
	if v := cell(cols, row, "rating"); v != "" {
		rating, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return rec, fmt.Errorf("rating %q: %w", v, err)
		}
		rec.Rating = &rating
	}
	return rec, nil
}

func blankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func cell(cols map[string]int, row []string, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", v)
}
