// Package merge folds an uploaded dataset into the stored one.
package merge

import (
	"strings"

	"conciliacion-service/internal/core/headers"
	"conciliacion-service/internal/core/reference"
	"conciliacion-service/internal/core/sources"
	"conciliacion-service/internal/domain"
)

// Stats counts what a merge did with the incoming rows.
type Stats struct {
	Kind       domain.SourceKind `json:"kind"`
	Received   int               `json:"received"`
	Inserted   int               `json:"inserted"`
	Updated    int               `json:"updated"`
	Rejected   int               `json:"rejected"`
	Duplicates int               `json:"duplicates"`
	Total      int               `json:"total"`
}

// Apply merges incoming into existing following the rule of kind.
func Apply(kind domain.SourceKind, existing, incoming domain.Dataset) (domain.Dataset, Stats) {
	switch kind {
	case domain.KindOrders:
		return Orders(existing, incoming)
	case domain.KindPayments:
		return Payments(existing, incoming)
	case domain.KindBank:
		return Bank(incoming)
	default:
		return Marketplace(incoming)
	}
}

// alignHeaders renames incoming columns that normalize to an existing header
// and returns the union of both header rows, existing first.
func alignHeaders(existing []string, incoming domain.Dataset) ([]string, []domain.Row) {
	byNorm := make(map[string]string, len(existing))
	for _, h := range existing {
		n := headers.Normalize(h)
		if _, ok := byNorm[n]; !ok {
			byNorm[n] = h
		}
	}

	union := append([]string(nil), existing...)
	rename := make(map[string]string, len(incoming.Headers))
	for _, h := range incoming.Headers {
		if target, ok := byNorm[headers.Normalize(h)]; ok {
			rename[h] = target
			continue
		}
		rename[h] = h
		byNorm[headers.Normalize(h)] = h
		union = append(union, h)
	}

	rows := make([]domain.Row, len(incoming.Rows))
	for i, row := range incoming.Rows {
		out := make(domain.Row, len(row))
		for k, v := range row {
			if target, ok := rename[k]; ok {
				out[target] = v
			} else {
				out[k] = v
			}
		}
		rows[i] = out
	}
	return union, rows
}

// upsert merges rows keyed by keyOf. Existing rows keep their position and
// take the incoming content; unknown keys are appended. Rows whose key is
// empty are rejected.
func upsert(kind domain.SourceKind, existing domain.Dataset, incoming domain.Dataset, keyOf func(hs []string) func(domain.Row) string) (domain.Dataset, Stats) {
	st := Stats{Kind: kind, Received: len(incoming.Rows)}
	union, rows := alignHeaders(existing.Headers, incoming)
	key := keyOf(union)

	out := make([]domain.Row, 0, len(existing.Rows)+len(rows))
	pos := make(map[string]int, len(existing.Rows))
	for _, row := range existing.Rows {
		k := key(row)
		if k == "" {
			continue
		}
		if i, ok := pos[k]; ok {
			out[i] = row
			continue
		}
		pos[k] = len(out)
		out = append(out, row)
	}

	for _, row := range rows {
		k := key(row)
		if k == "" {
			st.Rejected++
			continue
		}
		if i, ok := pos[k]; ok {
			out[i] = row
			st.Updated++
			continue
		}
		pos[k] = len(out)
		out = append(out, row)
		st.Inserted++
	}

	st.Total = len(out)
	return domain.Dataset{Kind: kind, Headers: union, Rows: out}, st
}

// Orders replaces each order wholesale by order number, last write wins.
func Orders(existing, incoming domain.Dataset) (domain.Dataset, Stats) {
	return upsert(domain.KindOrders, existing, incoming, func(hs []string) func(domain.Row) string {
		col := sources.ResolveOrderColumns(hs).Orden
		return func(row domain.Row) string {
			if col == "" {
				return ""
			}
			return sources.Text(row[col])
		}
	})
}

// Payments upserts by (orden, cuota pagada). Rows missing either are rejected.
func Payments(existing, incoming domain.Dataset) (domain.Dataset, Stats) {
	return upsert(domain.KindPayments, existing, incoming, func(hs []string) func(domain.Row) string {
		c := sources.ResolvePaymentColumns(hs)
		return func(row domain.Row) string {
			if c.Orden == "" || c.CuotaPagada == "" {
				return ""
			}
			orden := sources.Text(row[c.Orden])
			cuota := strings.ReplaceAll(sources.Text(row[c.CuotaPagada]), " ", "")
			if orden == "" || cuota == "" {
				return ""
			}
			return orden + "\x00" + cuota
		}
	})
}

// Bank replaces the statement, dropping repeated lines by normalized
// reference. The last occurrence wins and keeps its position; lines without
// a reference are kept.
func Bank(incoming domain.Dataset) (domain.Dataset, Stats) {
	st := Stats{Kind: domain.KindBank, Received: len(incoming.Rows)}
	col := sources.ResolveBankColumns(incoming.Headers).Referencia

	keys := make([]string, len(incoming.Rows))
	last := make(map[string]int, len(incoming.Rows))
	for i, row := range incoming.Rows {
		if col == "" {
			continue
		}
		k := reference.NormalizeReference(sources.Text(row[col]))
		keys[i] = k
		if k != "" {
			last[k] = i
		}
	}

	out := make([]domain.Row, 0, len(incoming.Rows))
	for i, row := range incoming.Rows {
		if k := keys[i]; k != "" && last[k] != i {
			st.Duplicates++
			continue
		}
		out = append(out, row)
	}

	st.Inserted = len(out)
	st.Total = len(out)
	return domain.Dataset{Kind: domain.KindBank, Headers: append([]string(nil), incoming.Headers...), Rows: out}, st
}

// Marketplace replaces the dataset wholesale.
func Marketplace(incoming domain.Dataset) (domain.Dataset, Stats) {
	st := Stats{Kind: domain.KindMarketplace, Received: len(incoming.Rows), Inserted: len(incoming.Rows), Total: len(incoming.Rows)}
	return domain.Dataset{
		Kind:    domain.KindMarketplace,
		Headers: append([]string(nil), incoming.Headers...),
		Rows:    append([]domain.Row(nil), incoming.Rows...),
	}, st
}
