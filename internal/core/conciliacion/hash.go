package conciliacion

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"sort"
	"strconv"
	"time"

	"conciliacion-service/internal/domain"
)

// ContentHash fingerprints the four datasets. Row key order does not
// matter; header order, row order and value types do.
func ContentHash(src domain.Sources) string {
	h := sha256.New()
	for _, kind := range domain.AllSourceKinds() {
		ds := src.Get(kind)
		writeField(h, string(kind))
		writeField(h, strconv.Itoa(len(ds.Headers)))
		for _, hd := range ds.Headers {
			writeField(h, hd)
		}
		writeField(h, strconv.Itoa(len(ds.Rows)))
		for _, row := range ds.Rows {
			writeRow(h, row)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeField(h hash.Hash, s string) {
	fmt.Fprintf(h, "%d:%s;", len(s), s)
}

func writeRow(h hash.Hash, row domain.Row) {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	writeField(h, strconv.Itoa(len(keys)))
	for _, k := range keys {
		writeField(h, k)
		writeValue(h, row[k])
	}
}

func writeValue(w io.Writer, v any) {
	var tag, s string
	switch x := v.(type) {
	case nil:
		tag = "n"
	case string:
		tag, s = "s", x
	case float64:
		tag, s = "f", strconv.FormatFloat(x, 'g', -1, 64)
	case int:
		tag, s = "i", strconv.Itoa(x)
	case int64:
		tag, s = "i", strconv.FormatInt(x, 10)
	case bool:
		tag, s = "b", strconv.FormatBool(x)
	case time.Time:
		tag, s = "t", x.UTC().Format(time.RFC3339Nano)
	default:
		tag, s = "x", fmt.Sprint(x)
	}
	fmt.Fprintf(w, "%s%d:%s;", tag, len(s), s)
}
