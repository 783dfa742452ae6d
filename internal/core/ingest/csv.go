package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// detectDelimiter picks the most frequent of ; , and tab on the first line.
func detectDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	best, bestCount := ';', -1
	for _, d := range []rune{';', ',', '\t'} {
		if n := strings.Count(string(line), string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// readCSV reads a delimited export. Files that are not valid UTF-8 are
// decoded as ISO-8859-1.
func readCSV(data []byte) ([][]any, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	var r io.Reader = bytes.NewReader(data)
	if !utf8.Valid(data) {
		r = transform.NewReader(r, charmap.ISO8859_1.NewDecoder())
	}

	reader := csv.NewReader(r)
	reader.Comma = detectDelimiter(data)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	grid := make([][]any, len(records))
	for i, rec := range records {
		cells := make([]any, len(rec))
		for j, v := range rec {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			cells[j] = v
		}
		grid[i] = cells
	}
	return grid, nil
}
