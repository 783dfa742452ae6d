// Package payments matches payment records to scheduled installments and
// synthesizes installments from payments.
package payments

import (
	"math"
	"strconv"
	"strings"

	"conciliacion-service/internal/core/installments"
	"conciliacion-service/internal/core/normalize"
	"conciliacion-service/internal/domain"
)

// ParseCuotaList splits a "cuota pagada" cell such as "3,4,5" into
// installment numbers. Empty or unparseable input yields the unassigned sentinel.
func ParseCuotaList(raw string) []int {
	var out []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if n, err := strconv.Atoi(part); err == nil {
			out = append(out, n)
			continue
		}
		// Numeric cells may arrive as "3.0".
		if f := normalize.NormalizeNumber(part); normalize.Valid(f) && f == math.Trunc(f) {
			out = append(out, int(f))
		}
	}
	if len(out) == 0 {
		return []int{domain.UnassignedInstallment}
	}
	return out
}

// FirstPayments maps every (orden, cuota) to the position of the first
// payment record covering it, in file order.
func FirstPayments(records []domain.PaymentRecord) map[domain.InstallmentKey]int {
	first := make(map[domain.InstallmentKey]int, len(records))
	for i, p := range records {
		if p.Orden == "" {
			continue
		}
		for _, n := range ParseCuotaList(p.CuotaPagada) {
			k := domain.InstallmentKey{Orden: p.Orden, Cuota: n}
			if _, ok := first[k]; !ok {
				first[k] = i
			}
		}
	}
	return first
}

func detailsOf(p domain.PaymentRecord) *domain.PaymentDetails {
	return &domain.PaymentDetails{
		Referencia:     p.Referencia,
		MetodoPago:     p.MetodoPago,
		MontoPagadoUSD: p.MontoUSD,
		MontoPagadoVES: p.MontoVES,
		TasaCambio:     p.TasaCambio,
	}
}

// EnrichInstallments attaches the real payment date, the payment details and
// the verification flag of the first covering payment to each scheduled
// installment. Payments without a parseable date are ignored. Installments
// left without a payment are flagged "-".
func EnrichInstallments(schedule []domain.Installment, records []domain.PaymentRecord) int {
	first := FirstPayments(records)
	n := 0
	for i := range schedule {
		pos, ok := first[schedule[i].Key()]
		if !ok || records[pos].FechaTransaccion == nil {
			schedule[i].Verificacion = domain.VerifiedNone
			continue
		}
		p := records[pos]
		schedule[i].FechaPagoReal = p.FechaTransaccion
		schedule[i].PaymentDetails = detailsOf(p)
		schedule[i].Verificacion = p.Verificacion
		n++
	}
	return n
}

type aggregate struct {
	inst     domain.Installment
	total    float64
	verified bool
}

// SynthesizeInstallments emits one payment-based installment per distinct
// (orden, cuota) covered by the payment records. A payment listing N cuotas
// contributes USD/N to each. Identity fields come from the first contributor,
// amounts are summed, and the record is verified if any contributor is.
// When the schedule holds the installment its amount and due date win.
func SynthesizeInstallments(records []domain.PaymentRecord, schedule installments.Schedule) []domain.Installment {
	var order []domain.InstallmentKey
	byKey := make(map[domain.InstallmentKey]*aggregate)

	for _, p := range records {
		if p.Orden == "" {
			continue
		}
		cuotas := ParseCuotaList(p.CuotaPagada)
		share := normalize.OrZero(p.MontoUSD) / float64(len(cuotas))

		for _, n := range cuotas {
			k := domain.InstallmentKey{Orden: p.Orden, Cuota: n}
			agg, ok := byKey[k]
			if !ok {
				agg = &aggregate{inst: domain.Installment{
					Orden:          p.Orden,
					NumeroCuota:    n,
					FechaPago:      p.FechaTransaccion,
					FechaPagoReal:  p.FechaTransaccion,
					IsPaymentBased: true,
					PaymentDetails: detailsOf(p),
					Verificacion:   p.Verificacion,
				}}
				byKey[k] = agg
				order = append(order, k)
			}
			agg.total += share
			if p.Verificacion.IsVerified() {
				agg.verified = true
			}
		}
	}

	out := make([]domain.Installment, 0, len(order))
	for _, k := range order {
		agg := byKey[k]
		inst := agg.inst
		inst.Monto = agg.total
		if agg.verified {
			inst.Verificacion = domain.VerifiedYes
		}
		if sched, ok := schedule.Lookup(k.Orden, k.Cuota); ok {
			inst.Monto = sched.Monto
			inst.FechaCuota = sched.FechaCuota
			inst.EstadoCuota = sched.EstadoCuota
		}
		out = append(out, inst)
	}
	return out
}
