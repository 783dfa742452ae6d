// Package status classifies the timing of an installment payment.
package status

import (
	"math"
	"strings"
	"time"

	"conciliacion-service/internal/core/normalize"
	"conciliacion-service/internal/domain"
)

// Policy holds the timing thresholds, in days.
type Policy struct {
	// EarlyDays is how many days before the due date a payment must land,
	// in an earlier month, to count as ADELANTADO.
	EarlyDays int
	// GraceDays is how many days after the due date a payment is still A TIEMPO.
	GraceDays int
}

// DefaultPolicy is 15 days early and 2 days of grace.
var DefaultPolicy = Policy{EarlyDays: 15, GraceDays: 2}

var doneStates = []string{"done", "pagado", "pagada", "paid"}
var delayedStates = []string{"delayed", "atrasado", "atrasada", "vencido", "vencida", "late"}

func stateIn(state string, set []string) bool {
	s := strings.ToLower(strings.TrimSpace(state))
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

// CalculateInstallmentStatus classifies an installment with DefaultPolicy.
func CalculateInstallmentStatus(fechaCuota, fechaPagoReal, fechaPago *time.Time, estadoCuota string) domain.Status {
	return DefaultPolicy.Classify(fechaCuota, fechaPagoReal, fechaPago, estadoCuota)
}

// Classify maps the due date, the payment dates and the recorded state to a
// status. The real payment date takes precedence over the recorded one.
func (p Policy) Classify(fechaCuota, fechaPagoReal, fechaPago *time.Time, estadoCuota string) domain.Status {
	paid := fechaPagoReal
	if paid == nil {
		paid = fechaPago
	}

	if paid == nil {
		switch {
		case stateIn(estadoCuota, doneStates):
			return domain.StatusNoDepositado
		case stateIn(estadoCuota, delayedStates):
			return domain.StatusAtrasado
		}
		return domain.StatusNone
	}
	if fechaCuota == nil {
		return domain.StatusOtroAliado
	}

	due := normalize.Midnight(*fechaCuota)
	pay := normalize.Midnight(*paid)
	days := int(math.Round(pay.Sub(due).Hours() / 24))

	if days <= -p.EarlyDays && monthAfter(due, pay) {
		return domain.StatusAdelantado
	}
	if days > p.GraceDays {
		return domain.StatusAtrasado
	}
	return domain.StatusATiempo
}

// monthAfter reports whether a falls in a calendar month strictly after b.
func monthAfter(a, b time.Time) bool {
	if a.Year() != b.Year() {
		return a.Year() > b.Year()
	}
	return a.Month() > b.Month()
}

// Apply sets the status of every installment in place.
func (p Policy) Apply(items []domain.Installment) {
	for i := range items {
		it := &items[i]
		it.Status = p.Classify(it.FechaCuota, it.FechaPagoReal, it.FechaPago, it.EstadoCuota)
	}
}
