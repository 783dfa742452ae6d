package store

import (
	"fmt"
	"strconv"
	"time"

	"conciliacion-service/internal/domain"
)

// cell keeps the Go type of a row value through JSON, so a reloaded dataset
// hashes the same as the uploaded one.
type cell struct {
	T string `json:"t"`
	V string `json:"v,omitempty"`
}

func encodeCell(v any) cell {
	switch x := v.(type) {
	case nil:
		return cell{T: "n"}
	case string:
		return cell{T: "s", V: x}
	case float64:
		return cell{T: "f", V: strconv.FormatFloat(x, 'g', -1, 64)}
	case int:
		return cell{T: "i", V: strconv.Itoa(x)}
	case int64:
		return cell{T: "i", V: strconv.FormatInt(x, 10)}
	case bool:
		return cell{T: "b", V: strconv.FormatBool(x)}
	case time.Time:
		return cell{T: "t", V: x.UTC().Format(time.RFC3339Nano)}
	default:
		return cell{T: "s", V: fmt.Sprint(x)}
	}
}

func decodeCell(c cell) (any, error) {
	switch c.T {
	case "n":
		return nil, nil
	case "s":
		return c.V, nil
	case "f":
		return strconv.ParseFloat(c.V, 64)
	case "i":
		return strconv.Atoi(c.V)
	case "b":
		return strconv.ParseBool(c.V)
	case "t":
		return time.Parse(time.RFC3339Nano, c.V)
	}
	return nil, fmt.Errorf("unknown cell type %q", c.T)
}

func encodeRows(rows []domain.Row) []map[string]cell {
	out := make([]map[string]cell, len(rows))
	for i, row := range rows {
		m := make(map[string]cell, len(row))
		for k, v := range row {
			m[k] = encodeCell(v)
		}
		out[i] = m
	}
	return out
}

func decodeRows(rows []map[string]cell) ([]domain.Row, error) {
	out := make([]domain.Row, len(rows))
	for i, m := range rows {
		row := make(domain.Row, len(m))
		for k, c := range m {
			v, err := decodeCell(c)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", i+1, k, err)
			}
			row[k] = v
		}
		out[i] = row
	}
	return out, nil
}
