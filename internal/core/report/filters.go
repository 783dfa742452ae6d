package report

import (
	"time"

	"github.com/shopspring/decimal"

	"conciliacion-service/internal/core/normalize"
)

// DateRange is an inclusive day range. A nil bound is open.
type DateRange struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// Open reports whether the range has no bounds at all.
func (r DateRange) Open() bool { return r.From == nil && r.To == nil }

// Contains reports whether t falls in the range. An absent date is only
// contained in an open range.
func (r DateRange) Contains(t *time.Time) bool {
	if t == nil {
		return r.Open()
	}
	day := normalize.Midnight(t.UTC())
	if r.From != nil && day.Before(normalize.Midnight(r.From.UTC())) {
		return false
	}
	if r.To != nil && day.After(normalize.Midnight(r.To.UTC())) {
		return false
	}
	return true
}

// Intersect returns the most restrictive combination of a and b.
func Intersect(a, b DateRange) DateRange {
	out := DateRange{From: a.From, To: a.To}
	if b.From != nil && (out.From == nil || b.From.After(*out.From)) {
		out.From = b.From
	}
	if b.To != nil && (out.To == nil || b.To.Before(*out.To)) {
		out.To = b.To
	}
	return out
}

// Filters select the slice of data a summary covers. Master is the global
// period; Local narrows it for one view. Orders, when set, restricts every
// figure to those order numbers.
type Filters struct {
	Master DateRange `json:"master"`
	Local  DateRange `json:"local"`
	Orders []string  `json:"orders,omitempty"`
}

// Effective is the intersection of the master and local ranges.
func (f Filters) Effective() DateRange { return Intersect(f.Master, f.Local) }

type orderSet map[string]struct{}

func (f Filters) orderSet() orderSet {
	if len(f.Orders) == 0 {
		return nil
	}
	s := make(orderSet, len(f.Orders))
	for _, o := range f.Orders {
		s[o] = struct{}{}
	}
	return s
}

func (s orderSet) has(orden string) bool {
	if s == nil {
		return true
	}
	_, ok := s[orden]
	return ok
}

// Overrides are the line items supplied from outside the computation.
// Zero values leave the placeholders at 0.
type Overrides struct {
	IVA          decimal.Decimal `json:"iva"`
	ISLR         decimal.Decimal `json:"islr"`
	Factoring    decimal.Decimal `json:"factoring"`
	Cupones      decimal.Decimal `json:"cupones"`
	Devoluciones decimal.Decimal `json:"devoluciones"`
}
