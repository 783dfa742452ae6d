// Package report folds reconciled records into the monthly summary and the
// weekly expected income.
package report

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"conciliacion-service/internal/core/normalize"
	"conciliacion-service/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Input is the reconciled data a summary is computed from.
type Input struct {
	Orders              []domain.Order
	Marketplace         []domain.MarketplaceOrder
	Installments        []domain.Installment
	PaymentInstallments []domain.Installment
	Payments            []domain.PaymentRecord
}

// InputFromResult adapts a pipeline result.
func InputFromResult(r *domain.Result) Input {
	return Input{
		Orders:              r.Orders,
		Marketplace:         r.Marketplace,
		Installments:        r.Installments,
		PaymentInstallments: r.PaymentInstallments,
		Payments:            r.Payments,
	}
}

func dec(f float64) decimal.Decimal {
	return decimal.NewFromFloat(normalize.OrZero(f))
}

// Compute builds the waterfall summary. NaN amounts count as zero.
func Compute(in Input, f Filters, o Overrides) domain.Summary {
	var s domain.Summary
	window := f.Effective()
	orders := f.orderSet()

	known := make(map[string]struct{}, len(in.Orders))
	cancelled := make(map[string]struct{})
	for _, ord := range in.Orders {
		if ord.Cancelled {
			cancelled[ord.Orden] = struct{}{}
			continue
		}
		known[ord.Orden] = struct{}{}
		if !orders.has(ord.Orden) || !window.Contains(ord.PurchaseDate) {
			continue
		}
		s.VentasTotales = s.VentasTotales.Add(dec(ord.Total))
		s.MontoPagadoEnCaja = s.MontoPagadoEnCaja.Add(dec(ord.InitialPayment))
	}
	s.MontoFinanciado = s.VentasTotales.Sub(s.MontoPagadoEnCaja)
	if !s.VentasTotales.IsZero() {
		s.PorcentajeFinanciado = s.MontoFinanciado.Div(s.VentasTotales).Mul(hundred).Round(2)
	}

	for _, p := range in.Payments {
		if !p.Verificacion.IsVerified() || !orders.has(p.Orden) || !window.Contains(p.FechaTransaccion) {
			continue
		}
		if _, ok := cancelled[p.Orden]; ok {
			continue
		}
		s.RecibidoEnBanco = s.RecibidoEnBanco.Add(dec(p.MontoUSD))
		if _, ok := known[p.Orden]; ok && strings.TrimSpace(p.CuotaPagada) == "0" {
			s.PagoInicialApp = s.PagoInicialApp.Add(dec(p.MontoUSD))
		}
	}

	for _, inst := range in.Installments {
		if !orders.has(inst.Orden) {
			continue
		}
		// Advance installments follow the master period only.
		if inst.Status == domain.StatusAdelantado && f.Master.Contains(inst.FechaCuota) {
			s.CuotasAdelantadas = s.CuotasAdelantadas.Add(dec(inst.Monto))
		}
		if window.Contains(inst.FechaCuota) {
			s.CuentasPorCobrar = s.CuentasPorCobrar.Add(dec(inst.Monto))
		}
	}

	for _, inst := range in.PaymentInstallments {
		if !orders.has(inst.Orden) || !window.Contains(inst.PaymentDate()) {
			continue
		}
		if inst.FechaCuota == nil && inst.NumeroCuota != domain.InitialInstallment && inst.Verificacion.IsVerified() {
			s.DepositosOtrosAliados = s.DepositosOtrosAliados.Add(dec(inst.Monto))
		}
		if inst.Status == domain.StatusAdelantado {
			s.CuotasAdelantadasPagos = s.CuotasAdelantadasPagos.Add(dec(inst.Monto))
		}
	}

	for _, m := range in.Marketplace {
		if m.Cancelled || !window.Contains(m.Fecha) {
			continue
		}
		s.VentasMarketplace = s.VentasMarketplace.Add(dec(m.Total))
		s.OrdenesMarketplace++
	}

	s.Devoluciones = o.Devoluciones
	s.BancoNeto = s.RecibidoEnBanco.
		Sub(s.CuotasAdelantadas).
		Sub(s.PagoInicialApp).
		Sub(s.Devoluciones).
		Sub(s.DepositosOtrosAliados)
	s.CuentasPorCobrarNeto = s.CuentasPorCobrar.Sub(s.CuotasAdelantadasPagos)
	s.Subtotal = s.BancoNeto.Sub(s.CuentasPorCobrarNeto)

	s.IVA = o.IVA
	s.ISLR = o.ISLR
	s.Factoring = o.Factoring
	s.Cupones = o.Cupones
	s.Resultado = s.Subtotal.Sub(s.IVA).Sub(s.ISLR).Sub(s.Factoring).Sub(s.Cupones)
	return s
}

// Weekly sums the unpaid scheduled installments due in the ISO week of today,
// over Monday to Friday and over the whole week.
func Weekly(schedule []domain.Installment, today time.Time) domain.WeeklyExpectation {
	today = today.UTC()
	w := domain.WeeklyExpectation{
		Monday: normalize.GetMonday(today),
		Friday: normalize.GetFriday(today),
		Sunday: normalize.GetSunday(today),
	}
	workweek := DateRange{From: &w.Monday, To: &w.Friday}
	week := DateRange{From: &w.Monday, To: &w.Sunday}

	for _, inst := range schedule {
		if inst.FechaCuota == nil || inst.PaymentDate() != nil {
			continue
		}
		if week.Contains(inst.FechaCuota) {
			w.WeekTotal = w.WeekTotal.Add(dec(inst.Monto))
			w.WeekCount++
		}
		if workweek.Contains(inst.FechaCuota) {
			w.WorkweekTotal = w.WorkweekTotal.Add(dec(inst.Monto))
			w.WorkweekCount++
		}
	}
	return w
}
