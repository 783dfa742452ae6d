// Package sources decodes raw spreadsheet datasets into typed records.
// Columns are resolved once per dataset; a dataset whose identifying column
// cannot be found decodes to an empty slice.
package sources

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"conciliacion-service/internal/core/headers"
	"conciliacion-service/internal/core/normalize"
	"conciliacion-service/internal/domain"
)

// Column candidates, in priority order.
var (
	OrdenCandidates        = []string{"# Orden", "#Orden", "Orden", "Order", "Numero de orden"}
	OrderStatusCandidates  = []string{"Status Orden", "Estado Orden", "Status", "Estado"}
	OrderTotalCandidates   = []string{"Venta total", "Total de la orden", "Monto total", "Total"}
	InitialCandidates      = []string{"Pago inicial", "Cuota 0", "Inicial"}
	OrderDateCandidates    = []string{"Fecha de compra", "Fecha orden", "Fecha de la orden", "Fecha"}
	CuotaPagadaCandidates  = []string{"# Cuota Pagada", "Cuota pagada", "Cuotas pagadas", "Cuota"}
	ReferenciaCandidates   = []string{"# Referencia", "Referencia", "Nro. Referencia", "Numero de referencia", "Ref"}
	FechaPagoCandidates    = []string{"Fecha de Transaccion", "Fecha de pago", "Fecha transaccion", "Fecha"}
	MontoUSDCandidates     = []string{"Monto Pagado en USD", "Monto USD", "Monto en USD", "USD"}
	MontoVESCandidates     = []string{"Monto Pagado en VES", "Monto VES", "Monto en VES", "Monto Bs", "VES"}
	MetodoPagoCandidates   = []string{"Metodo de pago", "Metodo", "Forma de pago"}
	TasaCambioCandidates   = []string{"Tasa de cambio", "Tasa"}
	BankDateCandidates     = []string{"Fecha", "Fecha valor", "Fecha operacion"}
	BankRefCandidates      = []string{"Referencia", "Nro. Referencia", "Numero de referencia", "Ref"}
	DebeCandidates         = []string{"Debe", "Debito", "Cargo", "Cargos"}
	HaberCandidates        = []string{"Haber", "Credito", "Abono", "Abonos"}
	SaldoCandidates        = []string{"Saldo"}
	DescripcionCandidates  = []string{"Descripcion", "Concepto", "Detalle"}
	MarketOrdenCandidates  = []string{"# Orden", "#Orden", "Orden", "Order", "Pedido"}
	MarketDateCandidates   = []string{"Fecha de compra", "Fecha", "Fecha orden"}
	MarketTotalCandidates  = []string{"Total", "Monto", "Venta"}
	MarketStatusCandidates = []string{"Estado", "Status"}
)

// Slot column name patterns. They are resolved by exact name only.
const (
	slotDueDateFmt  = "Fecha cuota %d"
	slotAmountFmt   = "Cuota %d"
	slotStateFmt    = "Estado cuota %d"
	slotPaidDateFmt = "Fecha de pago cuota %d"
)

// IdentityCandidates returns the candidates of the column that identifies a row of kind.
func IdentityCandidates(kind domain.SourceKind) []string {
	switch kind {
	case domain.KindOrders:
		return OrdenCandidates
	case domain.KindPayments:
		return OrdenCandidates
	case domain.KindBank:
		return BankRefCandidates
	case domain.KindMarketplace:
		return MarketOrdenCandidates
	}
	return nil
}

// RequiredColumns returns the logical fields an upload of kind must carry,
// keyed by field name.
func RequiredColumns(kind domain.SourceKind) map[string][]string {
	switch kind {
	case domain.KindOrders:
		return map[string][]string{"orden": OrdenCandidates}
	case domain.KindPayments:
		return map[string][]string{
			"orden":       OrdenCandidates,
			"cuotaPagada": CuotaPagadaCandidates,
			"referencia":  ReferenciaCandidates,
		}
	case domain.KindBank:
		return map[string][]string{
			"referencia": BankRefCandidates,
			"fecha":      BankDateCandidates,
		}
	case domain.KindMarketplace:
		return map[string][]string{"orden": MarketOrdenCandidates}
	}
	return nil
}

// Text renders a cell value as trimmed text. Whole floats print without a
// fraction so that numeric order and reference cells keep their digits.
func Text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return ""
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case time.Time:
		return normalize.FormatISODate(&x)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// IsCancelled reports whether an order status marks the order as cancelled.
func IsCancelled(status string) bool {
	return strings.Contains(strings.ToLower(status), "cancel")
}

func cell(row domain.Row, col string) any {
	if col == "" {
		return nil
	}
	return row[col]
}

func number(row domain.Row, col string) float64 {
	if col == "" {
		return math.NaN()
	}
	return normalize.NormalizeNumber(row[col])
}

// OrderColumns are the resolved headers of an orders dataset.
type OrderColumns struct {
	Orden        string
	Status       string
	Total        string
	Initial      string
	PurchaseDate string
	DueDate      [domain.MaxInstallments]string
	Amount       [domain.MaxInstallments]string
	State        [domain.MaxInstallments]string
	PaidDate     [domain.MaxInstallments]string
}

// ResolveOrderColumns finds the order columns in headers.
func ResolveOrderColumns(hs []string) OrderColumns {
	r := headers.NewResolver(hs)
	c := OrderColumns{
		Orden:        r.Find(OrdenCandidates...),
		Status:       r.Exact(OrderStatusCandidates...),
		Total:        r.Find(OrderTotalCandidates...),
		Initial:      r.Exact(InitialCandidates...),
		PurchaseDate: r.Exact(OrderDateCandidates...),
	}
	if c.Status == "" {
		// "Estado" alone would bind to the "Estado cuota N" columns.
		c.Status = r.Find(OrderStatusCandidates[:2]...)
	}
	for i := 0; i < domain.MaxInstallments; i++ {
		n := i + 1
		c.DueDate[i] = r.Exact(fmt.Sprintf(slotDueDateFmt, n))
		c.Amount[i] = r.Exact(fmt.Sprintf(slotAmountFmt, n))
		c.State[i] = r.Exact(fmt.Sprintf(slotStateFmt, n))
		c.PaidDate[i] = r.Exact(fmt.Sprintf(slotPaidDateFmt, n))
	}
	return c
}

// Orders decodes an orders dataset. Rows without an order number are skipped.
func Orders(ds domain.Dataset) []domain.Order {
	c := ResolveOrderColumns(ds.Headers)
	if c.Orden == "" {
		return nil
	}

	out := make([]domain.Order, 0, len(ds.Rows))
	for idx, row := range ds.Rows {
		orden := Text(row[c.Orden])
		if orden == "" {
			continue
		}
		status := Text(cell(row, c.Status))
		o := domain.Order{
			Row:            idx,
			Orden:          orden,
			Status:         status,
			Cancelled:      IsCancelled(status),
			Total:          number(row, c.Total),
			InitialPayment: number(row, c.Initial),
			PurchaseDate:   normalize.ParseDatePtr(cell(row, c.PurchaseDate)),
		}
		for i := 0; i < domain.MaxInstallments; i++ {
			o.Slots[i] = domain.Slot{
				Number:   i + 1,
				Amount:   number(row, c.Amount[i]),
				DueDate:  normalize.ParseDatePtr(cell(row, c.DueDate[i])),
				State:    Text(cell(row, c.State[i])),
				PaidDate: normalize.ParseDatePtr(cell(row, c.PaidDate[i])),
			}
		}
		out = append(out, o)
	}
	return out
}

// PaymentColumns are the resolved headers of a payments dataset.
type PaymentColumns struct {
	Orden       string
	CuotaPagada string
	Referencia  string
	Fecha       string
	MontoUSD    string
	MontoVES    string
	MetodoPago  string
	TasaCambio  string
}

// ResolvePaymentColumns finds the payment columns in headers.
func ResolvePaymentColumns(hs []string) PaymentColumns {
	r := headers.NewResolver(hs)
	return PaymentColumns{
		Orden:       r.Find(OrdenCandidates...),
		CuotaPagada: r.Find(CuotaPagadaCandidates...),
		Referencia:  r.Find(ReferenciaCandidates...),
		Fecha:       r.Find(FechaPagoCandidates...),
		MontoUSD:    r.Find(MontoUSDCandidates...),
		MontoVES:    r.Find(MontoVESCandidates...),
		MetodoPago:  r.Find(MetodoPagoCandidates...),
		TasaCambio:  r.Find(TasaCambioCandidates...),
	}
}

// Payments decodes a payments dataset, keeping file order.
func Payments(ds domain.Dataset) []domain.PaymentRecord {
	c := ResolvePaymentColumns(ds.Headers)
	if c.Orden == "" {
		return nil
	}

	out := make([]domain.PaymentRecord, 0, len(ds.Rows))
	for idx, row := range ds.Rows {
		out = append(out, domain.PaymentRecord{
			Row:              idx,
			Orden:            Text(row[c.Orden]),
			CuotaPagada:      Text(cell(row, c.CuotaPagada)),
			Referencia:       Text(cell(row, c.Referencia)),
			FechaTransaccion: normalize.ParseDatePtr(cell(row, c.Fecha)),
			MontoUSD:         number(row, c.MontoUSD),
			MontoVES:         number(row, c.MontoVES),
			MetodoPago:       Text(cell(row, c.MetodoPago)),
			TasaCambio:       number(row, c.TasaCambio),
		})
	}
	return out
}

// BankColumns are the resolved headers of a bank statement dataset.
type BankColumns struct {
	Fecha       string
	Referencia  string
	Debe        string
	Haber       string
	Saldo       string
	Descripcion string
}

// ResolveBankColumns finds the bank statement columns in headers.
func ResolveBankColumns(hs []string) BankColumns {
	r := headers.NewResolver(hs)
	return BankColumns{
		Fecha:       r.Find(BankDateCandidates...),
		Referencia:  r.Find(BankRefCandidates...),
		Debe:        r.Find(DebeCandidates...),
		Haber:       r.Find(HaberCandidates...),
		Saldo:       r.Find(SaldoCandidates...),
		Descripcion: r.Find(DescripcionCandidates...),
	}
}

// Bank decodes a bank statement dataset, keeping file order.
func Bank(ds domain.Dataset) []domain.BankLine {
	c := ResolveBankColumns(ds.Headers)
	if c.Referencia == "" {
		return nil
	}

	out := make([]domain.BankLine, 0, len(ds.Rows))
	for idx, row := range ds.Rows {
		out = append(out, domain.BankLine{
			Row:         idx,
			Fecha:       normalize.ParseDatePtr(cell(row, c.Fecha)),
			Referencia:  Text(row[c.Referencia]),
			Debe:        number(row, c.Debe),
			Haber:       number(row, c.Haber),
			Saldo:       number(row, c.Saldo),
			Descripcion: Text(cell(row, c.Descripcion)),
		})
	}
	return out
}

// MarketplaceColumns are the resolved headers of a marketplace dataset.
type MarketplaceColumns struct {
	Orden  string
	Fecha  string
	Total  string
	Estado string
}

// ResolveMarketplaceColumns finds the marketplace columns in headers.
func ResolveMarketplaceColumns(hs []string) MarketplaceColumns {
	r := headers.NewResolver(hs)
	return MarketplaceColumns{
		Orden:  r.Find(MarketOrdenCandidates...),
		Fecha:  r.Find(MarketDateCandidates...),
		Total:  r.Find(MarketTotalCandidates...),
		Estado: r.Find(MarketStatusCandidates...),
	}
}

// Marketplace decodes a marketplace orders dataset.
func Marketplace(ds domain.Dataset) []domain.MarketplaceOrder {
	c := ResolveMarketplaceColumns(ds.Headers)
	if c.Orden == "" {
		return nil
	}

	out := make([]domain.MarketplaceOrder, 0, len(ds.Rows))
	for idx, row := range ds.Rows {
		orden := Text(row[c.Orden])
		if orden == "" {
			continue
		}
		estado := Text(cell(row, c.Estado))
		out = append(out, domain.MarketplaceOrder{
			Row:       idx,
			Orden:     orden,
			Fecha:     normalize.ParseDatePtr(cell(row, c.Fecha)),
			Total:     number(row, c.Total),
			Estado:    estado,
			Cancelled: IsCancelled(estado),
		})
	}
	return out
}
