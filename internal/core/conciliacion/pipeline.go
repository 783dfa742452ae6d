// Package conciliacion runs reconciliation passes over the four sources and
// owns the current result snapshot.
package conciliacion

import (
	"time"

	"github.com/google/uuid"

	"conciliacion-service/internal/core/installments"
	"conciliacion-service/internal/core/payments"
	"conciliacion-service/internal/core/reference"
	"conciliacion-service/internal/core/report"
	"conciliacion-service/internal/core/sources"
	"conciliacion-service/internal/core/status"
	"conciliacion-service/internal/core/verification"
	"conciliacion-service/internal/domain"
)

// Options tune a pass.
type Options struct {
	Tolerance float64
	Policy    status.Policy
	Now       func() time.Time
}

// DefaultOptions uses a 0.01 tolerance and the default timing policy.
func DefaultOptions() Options {
	return Options{
		Tolerance: reference.DefaultTolerance,
		Policy:    status.DefaultPolicy,
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Tolerance <= 0 {
		o.Tolerance = d.Tolerance
	}
	if o.Policy == (status.Policy{}) {
		o.Policy = d.Policy
	}
	if o.Now == nil {
		o.Now = d.Now
	}
	return o
}

// Run computes a full pass. It has no side effects on src.
func Run(src domain.Sources, opts Options) *domain.Result {
	opts = opts.withDefaults()

	orders := sources.Orders(src.Orders)
	records := sources.Payments(src.Payments)
	bank := sources.Bank(src.Bank)
	market := sources.Marketplace(src.Marketplace)

	schedule := installments.ExtractInstallments(orders)

	cancelled := cancelledOrders(orders)
	v := verification.NewVerifier(bank, records, opts.Tolerance,
		verification.WithGroupFilter(func(p domain.PaymentRecord) bool { return !cancelled[p.Orden] }))
	v.Payments(records)

	payments.EnrichInstallments(schedule, records)
	synthesized := payments.SynthesizeInstallments(activeRecords(cancelled, records), installments.NewSchedule(schedule))

	opts.Policy.Apply(schedule)
	opts.Policy.Apply(synthesized)

	v.BankLines(bank)

	res := &domain.Result{
		ID:                  uuid.NewString(),
		GeneratedAt:         opts.Now(),
		Orders:              orders,
		Marketplace:         market,
		Installments:        schedule,
		PaymentInstallments: synthesized,
		Payments:            records,
		BankLines:           bank,
		Splits:              payments.CalculatePaymentSplits(records, orders),
	}
	res.Summary = report.Compute(report.InputFromResult(res), report.Filters{}, report.Overrides{})
	res.Weekly = report.Weekly(schedule, res.GeneratedAt)
	return res
}

func cancelledOrders(orders []domain.Order) map[string]bool {
	cancelled := make(map[string]bool)
	for _, o := range orders {
		if o.Cancelled {
			cancelled[o.Orden] = true
		}
	}
	return cancelled
}

// activeRecords drops the payments of cancelled orders. Payments of unknown
// orders are kept; they become other-channel installments.
func activeRecords(cancelled map[string]bool, records []domain.PaymentRecord) []domain.PaymentRecord {
	if len(cancelled) == 0 {
		return records
	}
	out := make([]domain.PaymentRecord, 0, len(records))
	for _, p := range records {
		if !cancelled[p.Orden] {
			out = append(out, p)
		}
	}
	return out
}
