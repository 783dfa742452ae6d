// Package installments expands wide order rows into per-installment records.
package installments

import (
	"conciliacion-service/internal/domain"
)

// ExtractInstallments returns the scheduled installments of every
// non-cancelled order. A slot is materialized only when its amount is
// positive and it has a due date. The initial payment is not a slot.
func ExtractInstallments(orders []domain.Order) []domain.Installment {
	out := make([]domain.Installment, 0, len(orders)*4)
	for _, o := range orders {
		if o.Cancelled {
			continue
		}
		for _, s := range o.Slots {
			if !(s.Amount > 0) || s.DueDate == nil {
				continue
			}
			out = append(out, domain.Installment{
				Orden:       o.Orden,
				NumeroCuota: s.Number,
				Monto:       s.Amount,
				FechaCuota:  s.DueDate,
				EstadoCuota: s.State,
				FechaPago:   s.PaidDate,
			})
		}
	}
	return out
}

// ActiveOrders returns the orders that are not cancelled.
func ActiveOrders(orders []domain.Order) []domain.Order {
	out := make([]domain.Order, 0, len(orders))
	for _, o := range orders {
		if !o.Cancelled {
			out = append(out, o)
		}
	}
	return out
}

// Schedule indexes installments by (orden, cuota).
type Schedule map[domain.InstallmentKey]*domain.Installment

// NewSchedule indexes items. Pointers refer into items.
func NewSchedule(items []domain.Installment) Schedule {
	s := make(Schedule, len(items))
	for i := range items {
		k := items[i].Key()
		if _, ok := s[k]; !ok {
			s[k] = &items[i]
		}
	}
	return s
}

// Lookup returns the scheduled installment for (orden, cuota).
func (s Schedule) Lookup(orden string, cuota int) (*domain.Installment, bool) {
	inst, ok := s[domain.InstallmentKey{Orden: orden, Cuota: cuota}]
	return inst, ok
}
