package payments

import (
	"conciliacion-service/internal/core/normalize"
	"conciliacion-service/internal/core/reference"
	"conciliacion-service/internal/domain"
)

// CalculatePaymentSplits groups payment records by normalized reference and
// returns the groups with more than one record, keyed by that reference.
// Payments of cancelled orders are left out.
func CalculatePaymentSplits(records []domain.PaymentRecord, orders []domain.Order) map[string]domain.SplitInfo {
	cancelled := make(map[string]bool)
	for _, o := range orders {
		if o.Cancelled {
			cancelled[o.Orden] = true
		}
	}
	groups := make(map[string]*domain.SplitInfo)
	seenOrder := make(map[string]map[string]bool)

	for _, p := range records {
		key := reference.NormalizeReference(p.Referencia)
		if key == "" || cancelled[p.Orden] {
			continue
		}
		g, ok := groups[key]
		if !ok {
			g = &domain.SplitInfo{Reference: p.Referencia}
			groups[key] = g
			seenOrder[key] = make(map[string]bool)
		}
		g.Records++
		g.TotalUSD += normalize.OrZero(p.MontoUSD)
		g.TotalVES += normalize.OrZero(p.MontoVES)
		if p.Orden != "" && !seenOrder[key][p.Orden] {
			seenOrder[key][p.Orden] = true
			g.Orders = append(g.Orders, p.Orden)
		}
		for _, n := range ParseCuotaList(p.CuotaPagada) {
			g.Installments = append(g.Installments, domain.InstallmentKey{Orden: p.Orden, Cuota: n})
		}
	}

	out := make(map[string]domain.SplitInfo)
	for key, g := range groups {
		if g.IsSplit() {
			out[key] = *g
		}
	}
	return out
}
