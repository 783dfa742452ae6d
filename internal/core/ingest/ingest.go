// Package ingest turns uploaded spreadsheets into row-oriented datasets.
package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"conciliacion-service/internal/core/headers"
	"conciliacion-service/internal/core/sources"
	"conciliacion-service/internal/domain"
)

var (
	// ErrUnsupportedFormat is returned for files that are not xlsx, xls or csv.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrEmptyFile is returned when no header row or no data rows are found.
	ErrEmptyFile = errors.New("file has no data")
	// ErrMissingColumn is wrapped by MissingColumnError.
	ErrMissingColumn = errors.New("required column not found")
)

// MissingColumnError names a required field no header could be resolved to.
type MissingColumnError struct {
	Kind       domain.SourceKind
	Field      string
	Candidates []string
	Suggestion string
}

func (e *MissingColumnError) Error() string {
	msg := fmt.Sprintf("%s: column %q not found (expected one of %s)", e.Kind, e.Field, strings.Join(e.Candidates, ", "))
	if e.Suggestion != "" {
		msg += fmt.Sprintf("; closest header is %q", e.Suggestion)
	}
	return msg
}

func (e *MissingColumnError) Unwrap() error { return ErrMissingColumn }

// maxHeaderSearchRows bounds the scan for the header row; exports often
// start with a title block.
const maxHeaderSearchRows = 40

// Service parses and validates uploads.
type Service interface {
	Parse(file io.Reader, filename string) (domain.Dataset, error)
	Load(kind domain.SourceKind, file io.Reader, filename string) (domain.Dataset, error)
	Validate(kind domain.SourceKind, ds domain.Dataset) error
}

type service struct{}

// NewService creates a new ingest service.
func NewService() Service {
	return &service{}
}

// Parse reads the first sheet of file, detects its header row and returns
// the rows below it keyed by header.
func (svc *service) Parse(file io.Reader, filename string) (domain.Dataset, error) {
	return svc.parse("", file, filename)
}

// Load parses file as a dataset of kind and validates its required columns.
func (svc *service) Load(kind domain.SourceKind, file io.Reader, filename string) (domain.Dataset, error) {
	ds, err := svc.parse(kind, file, filename)
	if err != nil {
		return domain.Dataset{}, err
	}
	if err := svc.Validate(kind, ds); err != nil {
		return domain.Dataset{}, err
	}
	return ds, nil
}

func (svc *service) parse(kind domain.SourceKind, file io.Reader, filename string) (domain.Dataset, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return domain.Dataset{}, fmt.Errorf("read upload: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return domain.Dataset{}, ErrEmptyFile
	}

	var grid [][]any
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".xlsx", ".xlsm":
		grid, err = readXLSX(data)
	case ".xls":
		grid, err = readXLS(data)
	case ".csv", ".txt":
		grid, err = readCSV(data)
	default:
		return domain.Dataset{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return domain.Dataset{}, err
	}

	ds, err := buildDataset(grid, kind)
	if err != nil {
		return domain.Dataset{}, err
	}
	ds.Kind = kind
	return ds, nil
}

// Validate checks that every required column of kind resolves.
func (svc *service) Validate(kind domain.SourceKind, ds domain.Dataset) error {
	required := sources.RequiredColumns(kind)
	if required == nil {
		return fmt.Errorf("%w: unknown source %q", ErrUnsupportedFormat, kind)
	}

	fields := make([]string, 0, len(required))
	for f := range required {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	r := headers.NewResolver(ds.Headers)
	for _, f := range fields {
		candidates := required[f]
		if r.Find(candidates...) != "" {
			continue
		}
		return &MissingColumnError{
			Kind:       kind,
			Field:      f,
			Candidates: candidates,
			Suggestion: r.Suggest(candidates[0]),
		}
	}
	return nil
}

func nonEmpty(row []any) int {
	n := 0
	for _, v := range row {
		if !isBlank(v) {
			n++
		}
	}
	return n
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func textCells(row []any) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = sources.Text(v)
	}
	return out
}

// findHeaderRow picks the header row among the first rows of grid. With a
// known kind the first row whose cells name the identifying column wins.
// Otherwise, or when none does, the first row with the most filled cells wins.
func findHeaderRow(grid [][]any, kind domain.SourceKind) int {
	limit := len(grid)
	if limit > maxHeaderSearchRows {
		limit = maxHeaderSearchRows
	}

	if candidates := sources.IdentityCandidates(kind); candidates != nil {
		for i := 0; i < limit; i++ {
			if headers.NewResolver(textCells(grid[i])).Exact(candidates...) != "" {
				return i
			}
		}
	}

	best, bestCount := -1, 0
	for i := 0; i < limit; i++ {
		if n := nonEmpty(grid[i]); n > bestCount {
			best, bestCount = i, n
		}
	}
	return best
}

// buildDataset keys the rows under the header row by header text. Blank
// headers are named after their position and repeated ones get a suffix.
func buildDataset(grid [][]any, kind domain.SourceKind) (domain.Dataset, error) {
	h := findHeaderRow(grid, kind)
	if h < 0 {
		return domain.Dataset{}, ErrEmptyFile
	}

	raw := textCells(grid[h])
	hs := make([]string, len(raw))
	seen := make(map[string]int, len(raw))
	for i, name := range raw {
		if name == "" {
			name = "Columna " + strconv.Itoa(i+1)
		}
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s (%d)", name, n)
		}
		hs[i] = name
	}

	var rows []domain.Row
	for _, cells := range grid[h+1:] {
		if nonEmpty(cells) == 0 {
			continue
		}
		row := make(domain.Row, len(hs))
		for i, name := range hs {
			if i < len(cells) && !isBlank(cells[i]) {
				row[name] = cells[i]
			}
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return domain.Dataset{}, ErrEmptyFile
	}
	return domain.Dataset{Headers: hs, Rows: rows}, nil
}
