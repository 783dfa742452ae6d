// package domain/models.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SourceKind identifies one of the four spreadsheet sources.
type SourceKind string

// Constants for the supported sources.
const (
	KindOrders      SourceKind = "orders"
	KindPayments    SourceKind = "payments"
	KindBank        SourceKind = "bank"
	KindMarketplace SourceKind = "marketplace"
)

// IsValid reports whether k names a known source.
func (k SourceKind) IsValid() bool {
	switch k {
	case KindOrders, KindPayments, KindBank, KindMarketplace:
		return true
	}
	return false
}

// AllSourceKinds returns the sources in pipeline order.
func AllSourceKinds() []SourceKind {
	return []SourceKind{KindOrders, KindPayments, KindBank, KindMarketplace}
}

// Row is one spreadsheet row keyed by its original header text.
// Values are string, float64, int, time.Time or nil.
type Row map[string]any

// Dataset is a row-oriented source as delivered by the upload layer.
type Dataset struct {
	Kind    SourceKind `json:"kind"`
	Headers []string   `json:"headers"`
	Rows    []Row      `json:"rows"`
}

// Len returns the number of rows.
func (d Dataset) Len() int { return len(d.Rows) }

// Sources groups the four datasets a reconciliation pass reads.
type Sources struct {
	Orders      Dataset
	Payments    Dataset
	Bank        Dataset
	Marketplace Dataset
}

// Get returns the dataset for kind.
func (s *Sources) Get(kind SourceKind) Dataset {
	switch kind {
	case KindOrders:
		return s.Orders
	case KindPayments:
		return s.Payments
	case KindBank:
		return s.Bank
	case KindMarketplace:
		return s.Marketplace
	}
	return Dataset{Kind: kind}
}

// Set replaces the dataset for kind.
func (s *Sources) Set(kind SourceKind, ds Dataset) {
	ds.Kind = kind
	switch kind {
	case KindOrders:
		s.Orders = ds
	case KindPayments:
		s.Payments = ds
	case KindBank:
		s.Bank = ds
	case KindMarketplace:
		s.Marketplace = ds
	}
}

// --- Installments ---

// MaxInstallments is the number of positional installment slots on an order row.
const MaxInstallments = 14

// Installment numbers with special meaning.
const (
	InitialInstallment    = 0
	UnassignedInstallment = -1
)

// Verification is the SI/NO flag shared by VERIFICACION and CONCILIADO.
type Verification string

// Constants for verification flags.
const (
	VerifiedYes  Verification = "SI"
	VerifiedNo   Verification = "NO"
	VerifiedNone Verification = "-"
)

// IsVerified reports whether v is SI.
func (v Verification) IsVerified() bool { return v == VerifiedYes }

// Status is the timing classification of an installment.
type Status string

// Constants for installment statuses. StatusNone means pending, not yet due.
const (
	StatusNone         Status = ""
	StatusAdelantado   Status = "ADELANTADO"
	StatusATiempo      Status = "A TIEMPO"
	StatusAtrasado     Status = "ATRASADO"
	StatusOtroAliado   Status = "OTRO ALIADO"
	StatusNoDepositado Status = "NO DEPOSITADO"
)

// Slot is one positional installment column group of an order row.
type Slot struct {
	Number   int
	Amount   float64 // NaN when the cell is empty or unparseable
	DueDate  *time.Time
	State    string
	PaidDate *time.Time
}

// Order is a decoded order row.
type Order struct {
	Row            int
	Orden          string
	Status         string
	Cancelled      bool
	Total          float64
	InitialPayment float64
	PurchaseDate   *time.Time
	Slots          [MaxInstallments]Slot
}

// PaymentDetails carries the payment that settled an installment.
type PaymentDetails struct {
	Referencia     string  `json:"referencia"`
	MetodoPago     string  `json:"metodoPago"`
	MontoPagadoUSD float64 `json:"montoPagadoUSD"`
	MontoPagadoVES float64 `json:"montoPagadoVES"`
	TasaCambio     float64 `json:"tasaCambio"`
}

// InstallmentKey identifies an installment within an order.
type InstallmentKey struct {
	Orden string `json:"orden"`
	Cuota int    `json:"cuota"`
}

// Installment is the long-format record derived from orders and payments.
type Installment struct {
	Orden          string
	NumeroCuota    int
	Monto          float64
	FechaCuota     *time.Time
	EstadoCuota    string
	FechaPago      *time.Time
	FechaPagoReal  *time.Time
	IsPaymentBased bool
	PaymentDetails *PaymentDetails
	Verificacion   Verification
	Status         Status
}

// Key returns the (orden, cuota) identity of the installment.
func (i Installment) Key() InstallmentKey {
	return InstallmentKey{Orden: i.Orden, Cuota: i.NumeroCuota}
}

// PaymentDate returns the real payment date, falling back to the recorded one.
func (i Installment) PaymentDate() *time.Time {
	if i.FechaPagoReal != nil {
		return i.FechaPagoReal
	}
	return i.FechaPago
}

// --- Source records ---

// PaymentRecord is a decoded payment transaction row.
type PaymentRecord struct {
	Row              int
	Orden            string
	CuotaPagada      string
	Referencia       string
	FechaTransaccion *time.Time
	MontoUSD         float64 // NaN when absent
	MontoVES         float64 // NaN when absent
	MetodoPago       string
	TasaCambio       float64
	Verificacion     Verification
}

// BankLine is a decoded bank statement line.
type BankLine struct {
	Row         int
	Fecha       *time.Time
	Referencia  string
	Debe        float64 // NaN when absent
	Haber       float64 // NaN when absent
	Saldo       float64 // NaN when absent
	Descripcion string
	Conciliado  Verification
	// Orden and CuotaPagada come from the first matching payment record.
	Orden       string
	CuotaPagada string
}

// MarketplaceOrder is a decoded marketplace order row.
type MarketplaceOrder struct {
	Row       int
	Orden     string
	Fecha     *time.Time
	Total     float64
	Estado    string
	Cancelled bool
}

// SplitInfo groups payment records that share one normalized reference.
type SplitInfo struct {
	Reference    string           `json:"reference"`
	Records      int              `json:"records"`
	Orders       []string         `json:"orders"`
	Installments []InstallmentKey `json:"installments"`
	TotalUSD     float64          `json:"totalUSD"`
	TotalVES     float64          `json:"totalVES"`
}

// IsSplit reports whether more than one record shares the reference.
func (s SplitInfo) IsSplit() bool { return s.Records > 1 }

// --- Results ---

// Summary is the waterfall monthly reconciliation statement.
type Summary struct {
	VentasTotales          decimal.Decimal `json:"ventasTotales"`
	MontoPagadoEnCaja      decimal.Decimal `json:"montoPagadoEnCaja"`
	MontoFinanciado        decimal.Decimal `json:"montoFinanciado"`
	PorcentajeFinanciado   decimal.Decimal `json:"porcentajeFinanciado"`
	RecibidoEnBanco        decimal.Decimal `json:"recibidoEnBanco"`
	CuotasAdelantadas      decimal.Decimal `json:"cuotasAdelantadas"`
	PagoInicialApp         decimal.Decimal `json:"pagoInicialApp"`
	Devoluciones           decimal.Decimal `json:"devoluciones"`
	DepositosOtrosAliados  decimal.Decimal `json:"depositosOtrosAliados"`
	BancoNeto              decimal.Decimal `json:"bancoNeto"`
	CuentasPorCobrar       decimal.Decimal `json:"cuentasPorCobrar"`
	CuotasAdelantadasPagos decimal.Decimal `json:"cuotasAdelantadasPagos"`
	CuentasPorCobrarNeto   decimal.Decimal `json:"cuentasPorCobrarNeto"`
	Subtotal               decimal.Decimal `json:"subtotal"`
	IVA                    decimal.Decimal `json:"iva"`
	ISLR                   decimal.Decimal `json:"islr"`
	Factoring              decimal.Decimal `json:"factoring"`
	Cupones                decimal.Decimal `json:"cupones"`
	Resultado              decimal.Decimal `json:"resultado"`
	VentasMarketplace      decimal.Decimal `json:"ventasMarketplace"`
	OrdenesMarketplace     int             `json:"ordenesMarketplace"`
}

// WeeklyExpectation is the expected income for one ISO week.
type WeeklyExpectation struct {
	Monday        time.Time       `json:"monday"`
	Friday        time.Time       `json:"friday"`
	Sunday        time.Time       `json:"sunday"`
	WorkweekTotal decimal.Decimal `json:"workweekTotal"`
	WeekTotal     decimal.Decimal `json:"weekTotal"`
	WorkweekCount int             `json:"workweekCount"`
	WeekCount     int             `json:"weekCount"`
}

// Result is one complete reconciliation pass.
type Result struct {
	ID                  string
	Hash                string
	GeneratedAt         time.Time
	Orders              []Order
	Marketplace         []MarketplaceOrder
	Installments        []Installment
	PaymentInstallments []Installment
	Payments            []PaymentRecord
	BankLines           []BankLine
	Splits              map[string]SplitInfo
	Summary             Summary
	Weekly              WeeklyExpectation
}

// VerifiedPayments counts payments flagged SI.
func (r *Result) VerifiedPayments() int {
	n := 0
	for _, p := range r.Payments {
		if p.Verificacion.IsVerified() {
			n++
		}
	}
	return n
}
