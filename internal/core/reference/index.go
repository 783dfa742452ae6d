package reference

import "sort"

// Index buckets positions of a dataset by normalized reference and by every
// WindowSize-digit run of it. Candidates returns a superset of the positions
// whose reference can satisfy ReferencesMatch, so callers keep the exact
// predicate while skipping most of the scan.
type Index struct {
	exact   map[string][]int
	windows map[string][]int
	short   []int
	all     []int
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		exact:   make(map[string][]int),
		windows: make(map[string][]int),
	}
}

// Add registers position pos under ref. Positions must be added in ascending order.
func (ix *Index) Add(pos int, ref string) {
	n := NormalizeReference(ref)
	if n == "" {
		return
	}
	ix.all = append(ix.all, pos)
	ix.exact[n] = append(ix.exact[n], pos)

	d := Digits(n)
	if len(d) < WindowSize {
		ix.short = append(ix.short, pos)
		return
	}
	seen := make(map[string]bool, len(d)-WindowSize+1)
	for i := 0; i+WindowSize <= len(d); i++ {
		w := d[i : i+WindowSize]
		if seen[w] {
			continue
		}
		seen[w] = true
		ix.windows[w] = append(ix.windows[w], pos)
	}
}

// Len returns the number of indexed positions.
func (ix *Index) Len() int { return len(ix.all) }

// Candidates returns, in ascending order, the positions that may match ref.
func (ix *Index) Candidates(ref string) []int {
	n := NormalizeReference(ref)
	if n == "" || len(ix.all) == 0 {
		return nil
	}

	d := Digits(n)
	if len(d) < WindowSize {
		// A short reference can still be contained in a long one.
		return ix.all
	}

	set := make(map[int]struct{})
	for _, pos := range ix.exact[n] {
		set[pos] = struct{}{}
	}
	for _, pos := range ix.short {
		set[pos] = struct{}{}
	}
	for i := 0; i+WindowSize <= len(d); i++ {
		for _, pos := range ix.windows[d[i:i+WindowSize]] {
			set[pos] = struct{}{}
		}
	}

	out := make([]int, 0, len(set))
	for pos := range set {
		out = append(out, pos)
	}
	sort.Ints(out)
	return out
}
