package store

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"conciliacion-service/internal/core/normalize"
	"conciliacion-service/internal/domain"
)

// The cache shape renders dates as YYYY-MM-DD and amounts as strings, with
// "" for an absent amount or date. It is the JSON served by the API and the
// payload stored in the result caches and snapshots.

// OrderDTO is an order without its positional installment slots.
type OrderDTO struct {
	Row            int    `json:"row"`
	Orden          string `json:"orden"`
	Status         string `json:"status"`
	Cancelled      bool   `json:"cancelled"`
	Total          string `json:"total"`
	InitialPayment string `json:"pagoInicial"`
	PurchaseDate   string `json:"fechaCompra"`
}

// MarketplaceDTO is a marketplace order.
type MarketplaceDTO struct {
	Row       int    `json:"row"`
	Orden     string `json:"orden"`
	Fecha     string `json:"fecha"`
	Total     string `json:"total"`
	Estado    string `json:"estado"`
	Cancelled bool   `json:"cancelled"`
}

// PaymentDetailsDTO is the payment that settled an installment.
type PaymentDetailsDTO struct {
	Referencia     string `json:"referencia"`
	MetodoPago     string `json:"metodoPago"`
	MontoPagadoUSD string `json:"montoPagadoUSD"`
	MontoPagadoVES string `json:"montoPagadoVES"`
	TasaCambio     string `json:"tasaCambio"`
}

// InstallmentDTO is one installment row.
type InstallmentDTO struct {
	Orden          string             `json:"orden"`
	NumeroCuota    int                `json:"numeroCuota"`
	Monto          string             `json:"monto"`
	FechaCuota     string             `json:"fechaCuota"`
	EstadoCuota    string             `json:"estadoCuota"`
	FechaPago      string             `json:"fechaPago"`
	FechaPagoReal  string             `json:"fechaPagoReal"`
	IsPaymentBased bool               `json:"isPaymentBased"`
	PaymentDetails *PaymentDetailsDTO `json:"paymentDetails,omitempty"`
	Verificacion   string             `json:"verificacion"`
	Status         string             `json:"status"`
}

// PaymentDTO is one payment record.
type PaymentDTO struct {
	Row              int    `json:"row"`
	Orden            string `json:"orden"`
	CuotaPagada      string `json:"cuotaPagada"`
	Referencia       string `json:"referencia"`
	FechaTransaccion string `json:"fechaTransaccion"`
	MontoUSD         string `json:"montoUSD"`
	MontoVES         string `json:"montoVES"`
	MetodoPago       string `json:"metodoPago"`
	TasaCambio       string `json:"tasaCambio"`
	Verificacion     string `json:"verificacion"`
}

// BankLineDTO is one bank statement line.
type BankLineDTO struct {
	Row         int    `json:"row"`
	Fecha       string `json:"fecha"`
	Referencia  string `json:"referencia"`
	Debe        string `json:"debe"`
	Haber       string `json:"haber"`
	Saldo       string `json:"saldo"`
	Descripcion string `json:"descripcion"`
	Conciliado  string `json:"conciliado"`
	Orden       string `json:"orden"`
	CuotaPagada string `json:"cuotaPagada"`
}

// SplitDTO is a group of payment records sharing one reference.
type SplitDTO struct {
	Key          string                  `json:"key"`
	Reference    string                  `json:"reference"`
	Records      int                     `json:"records"`
	Orders       []string                `json:"orders"`
	Installments []domain.InstallmentKey `json:"installments"`
	TotalUSD     string                  `json:"totalUSD"`
	TotalVES     string                  `json:"totalVES"`
}

// WeeklyDTO is the expected income of one week.
type WeeklyDTO struct {
	Monday        string `json:"monday"`
	Friday        string `json:"friday"`
	Sunday        string `json:"sunday"`
	WorkweekTotal string `json:"workweekTotal"`
	WeekTotal     string `json:"weekTotal"`
	WorkweekCount int    `json:"workweekCount"`
	WeekCount     int    `json:"weekCount"`
}

// ResultDTO is a complete reconciliation result in cache shape.
type ResultDTO struct {
	ID                  string           `json:"id"`
	Hash                string           `json:"hash"`
	GeneratedAt         time.Time        `json:"generatedAt"`
	Orders              []OrderDTO       `json:"orders"`
	Marketplace         []MarketplaceDTO `json:"marketplace"`
	Installments        []InstallmentDTO `json:"installments"`
	PaymentInstallments []InstallmentDTO `json:"paymentInstallments"`
	Payments            []PaymentDTO     `json:"payments"`
	BankLines           []BankLineDTO    `json:"bankLines"`
	Splits              []SplitDTO       `json:"splits"`
	Summary             domain.Summary   `json:"summary"`
	Weekly              WeeklyDTO        `json:"weekly"`
}

// FormatAmount renders f without trailing zeros, or "" for NaN.
func FormatAmount(f float64) string {
	if math.IsNaN(f) {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func parseAmount(s string) (float64, error) {
	if s == "" {
		return math.NaN(), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return f, nil
}

func parseDay(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return &t, nil
}

// decoder collects the first parse error so conversions read linearly.
type decoder struct{ err error }

func (d *decoder) amount(s string) float64 {
	f, err := parseAmount(s)
	if err != nil && d.err == nil {
		d.err = err
	}
	return f
}

func (d *decoder) day(s string) *time.Time {
	t, err := parseDay(s)
	if err != nil && d.err == nil {
		d.err = err
	}
	return t
}

// NewInstallmentDTO converts one installment.
func NewInstallmentDTO(i domain.Installment) InstallmentDTO {
	out := InstallmentDTO{
		Orden:          i.Orden,
		NumeroCuota:    i.NumeroCuota,
		Monto:          FormatAmount(i.Monto),
		FechaCuota:     normalize.FormatISODate(i.FechaCuota),
		EstadoCuota:    i.EstadoCuota,
		FechaPago:      normalize.FormatISODate(i.FechaPago),
		FechaPagoReal:  normalize.FormatISODate(i.FechaPagoReal),
		IsPaymentBased: i.IsPaymentBased,
		Verificacion:   string(i.Verificacion),
		Status:         string(i.Status),
	}
	if pd := i.PaymentDetails; pd != nil {
		out.PaymentDetails = &PaymentDetailsDTO{
			Referencia:     pd.Referencia,
			MetodoPago:     pd.MetodoPago,
			MontoPagadoUSD: FormatAmount(pd.MontoPagadoUSD),
			MontoPagadoVES: FormatAmount(pd.MontoPagadoVES),
			TasaCambio:     FormatAmount(pd.TasaCambio),
		}
	}
	return out
}

func (d *decoder) installment(in InstallmentDTO) domain.Installment {
	out := domain.Installment{
		Orden:          in.Orden,
		NumeroCuota:    in.NumeroCuota,
		Monto:          d.amount(in.Monto),
		FechaCuota:     d.day(in.FechaCuota),
		EstadoCuota:    in.EstadoCuota,
		FechaPago:      d.day(in.FechaPago),
		FechaPagoReal:  d.day(in.FechaPagoReal),
		IsPaymentBased: in.IsPaymentBased,
		Verificacion:   domain.Verification(in.Verificacion),
		Status:         domain.Status(in.Status),
	}
	if pd := in.PaymentDetails; pd != nil {
		out.PaymentDetails = &domain.PaymentDetails{
			Referencia:     pd.Referencia,
			MetodoPago:     pd.MetodoPago,
			MontoPagadoUSD: d.amount(pd.MontoPagadoUSD),
			MontoPagadoVES: d.amount(pd.MontoPagadoVES),
			TasaCambio:     d.amount(pd.TasaCambio),
		}
	}
	return out
}

// NewInstallmentDTOs converts a list of installments.
func NewInstallmentDTOs(in []domain.Installment) []InstallmentDTO {
	out := make([]InstallmentDTO, len(in))
	for i, inst := range in {
		out[i] = NewInstallmentDTO(inst)
	}
	return out
}

// NewPaymentDTOs converts payment records.
func NewPaymentDTOs(in []domain.PaymentRecord) []PaymentDTO {
	out := make([]PaymentDTO, len(in))
	for i, p := range in {
		out[i] = PaymentDTO{
			Row:              p.Row,
			Orden:            p.Orden,
			CuotaPagada:      p.CuotaPagada,
			Referencia:       p.Referencia,
			FechaTransaccion: normalize.FormatISODate(p.FechaTransaccion),
			MontoUSD:         FormatAmount(p.MontoUSD),
			MontoVES:         FormatAmount(p.MontoVES),
			MetodoPago:       p.MetodoPago,
			TasaCambio:       FormatAmount(p.TasaCambio),
			Verificacion:     string(p.Verificacion),
		}
	}
	return out
}

// NewBankLineDTOs converts bank lines.
func NewBankLineDTOs(in []domain.BankLine) []BankLineDTO {
	out := make([]BankLineDTO, len(in))
	for i, b := range in {
		out[i] = BankLineDTO{
			Row:         b.Row,
			Fecha:       normalize.FormatISODate(b.Fecha),
			Referencia:  b.Referencia,
			Debe:        FormatAmount(b.Debe),
			Haber:       FormatAmount(b.Haber),
			Saldo:       FormatAmount(b.Saldo),
			Descripcion: b.Descripcion,
			Conciliado:  string(b.Conciliado),
			Orden:       b.Orden,
			CuotaPagada: b.CuotaPagada,
		}
	}
	return out
}

// NewWeeklyDTO converts a weekly expectation.
func NewWeeklyDTO(w domain.WeeklyExpectation) WeeklyDTO {
	return WeeklyDTO{
		Monday:        normalize.FormatISODate(&w.Monday),
		Friday:        normalize.FormatISODate(&w.Friday),
		Sunday:        normalize.FormatISODate(&w.Sunday),
		WorkweekTotal: w.WorkweekTotal.String(),
		WeekTotal:     w.WeekTotal.String(),
		WorkweekCount: w.WorkweekCount,
		WeekCount:     w.WeekCount,
	}
}

// NewResultDTO converts a result into cache shape.
func NewResultDTO(r *domain.Result) ResultDTO {
	out := ResultDTO{
		ID:                  r.ID,
		Hash:                r.Hash,
		GeneratedAt:         r.GeneratedAt.UTC(),
		Orders:              make([]OrderDTO, len(r.Orders)),
		Marketplace:         make([]MarketplaceDTO, len(r.Marketplace)),
		Installments:        NewInstallmentDTOs(r.Installments),
		PaymentInstallments: NewInstallmentDTOs(r.PaymentInstallments),
		Payments:            NewPaymentDTOs(r.Payments),
		BankLines:           NewBankLineDTOs(r.BankLines),
		Splits:              NewSplitDTOs(r.Splits),
		Summary:             r.Summary,
		Weekly:              NewWeeklyDTO(r.Weekly),
	}
	for i, o := range r.Orders {
		out.Orders[i] = OrderDTO{
			Row:            o.Row,
			Orden:          o.Orden,
			Status:         o.Status,
			Cancelled:      o.Cancelled,
			Total:          FormatAmount(o.Total),
			InitialPayment: FormatAmount(o.InitialPayment),
			PurchaseDate:   normalize.FormatISODate(o.PurchaseDate),
		}
	}
	for i, m := range r.Marketplace {
		out.Marketplace[i] = MarketplaceDTO{
			Row:       m.Row,
			Orden:     m.Orden,
			Fecha:     normalize.FormatISODate(m.Fecha),
			Total:     FormatAmount(m.Total),
			Estado:    m.Estado,
			Cancelled: m.Cancelled,
		}
	}
	return out
}

// NewSplitDTOs converts split groups, sorted by key.
func NewSplitDTOs(splits map[string]domain.SplitInfo) []SplitDTO {
	out := make([]SplitDTO, 0, len(splits))
	for key, s := range splits {
		out = append(out, SplitDTO{
			Key:          key,
			Reference:    s.Reference,
			Records:      s.Records,
			Orders:       s.Orders,
			Installments: s.Installments,
			TotalUSD:     FormatAmount(s.TotalUSD),
			TotalVES:     FormatAmount(s.TotalVES),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Result converts the cache shape back into a result. Order slots are not
// part of the cache shape and come back empty.
func (r ResultDTO) Result() (*domain.Result, error) {
	var d decoder
	out := &domain.Result{
		ID:                  r.ID,
		Hash:                r.Hash,
		GeneratedAt:         r.GeneratedAt,
		Orders:              make([]domain.Order, len(r.Orders)),
		Marketplace:         make([]domain.MarketplaceOrder, len(r.Marketplace)),
		Installments:        make([]domain.Installment, len(r.Installments)),
		PaymentInstallments: make([]domain.Installment, len(r.PaymentInstallments)),
		Payments:            make([]domain.PaymentRecord, len(r.Payments)),
		BankLines:           make([]domain.BankLine, len(r.BankLines)),
		Splits:              make(map[string]domain.SplitInfo, len(r.Splits)),
		Summary:             r.Summary,
	}
	for i, o := range r.Orders {
		out.Orders[i] = domain.Order{
			Row:            o.Row,
			Orden:          o.Orden,
			Status:         o.Status,
			Cancelled:      o.Cancelled,
			Total:          d.amount(o.Total),
			InitialPayment: d.amount(o.InitialPayment),
			PurchaseDate:   d.day(o.PurchaseDate),
		}
	}
	for i, m := range r.Marketplace {
		out.Marketplace[i] = domain.MarketplaceOrder{
			Row:       m.Row,
			Orden:     m.Orden,
			Fecha:     d.day(m.Fecha),
			Total:     d.amount(m.Total),
			Estado:    m.Estado,
			Cancelled: m.Cancelled,
		}
	}
	for i, inst := range r.Installments {
		out.Installments[i] = d.installment(inst)
	}
	for i, inst := range r.PaymentInstallments {
		out.PaymentInstallments[i] = d.installment(inst)
	}
	for i, p := range r.Payments {
		out.Payments[i] = domain.PaymentRecord{
			Row:              p.Row,
			Orden:            p.Orden,
			CuotaPagada:      p.CuotaPagada,
			Referencia:       p.Referencia,
			FechaTransaccion: d.day(p.FechaTransaccion),
			MontoUSD:         d.amount(p.MontoUSD),
			MontoVES:         d.amount(p.MontoVES),
			MetodoPago:       p.MetodoPago,
			TasaCambio:       d.amount(p.TasaCambio),
			Verificacion:     domain.Verification(p.Verificacion),
		}
	}
	for i, b := range r.BankLines {
		out.BankLines[i] = domain.BankLine{
			Row:         b.Row,
			Fecha:       d.day(b.Fecha),
			Referencia:  b.Referencia,
			Debe:        d.amount(b.Debe),
			Haber:       d.amount(b.Haber),
			Saldo:       d.amount(b.Saldo),
			Descripcion: b.Descripcion,
			Conciliado:  domain.Verification(b.Conciliado),
			Orden:       b.Orden,
			CuotaPagada: b.CuotaPagada,
		}
	}
	for _, s := range r.Splits {
		out.Splits[s.Key] = domain.SplitInfo{
			Reference:    s.Reference,
			Records:      s.Records,
			Orders:       s.Orders,
			Installments: s.Installments,
			TotalUSD:     d.amount(s.TotalUSD),
			TotalVES:     d.amount(s.TotalVES),
		}
	}
	out.Weekly = d.weekly(r.Weekly)
	if d.err != nil {
		return nil, d.err
	}
	return out, nil
}

func (d *decoder) weekly(w WeeklyDTO) domain.WeeklyExpectation {
	out := domain.WeeklyExpectation{WorkweekCount: w.WorkweekCount, WeekCount: w.WeekCount}
	if t := d.day(w.Monday); t != nil {
		out.Monday = *t
	}
	if t := d.day(w.Friday); t != nil {
		out.Friday = *t
	}
	if t := d.day(w.Sunday); t != nil {
		out.Sunday = *t
	}
	var err error
	if out.WorkweekTotal, err = parseDecimal(w.WorkweekTotal); err != nil && d.err == nil {
		d.err = err
	}
	if out.WeekTotal, err = parseDecimal(w.WeekTotal); err != nil && d.err == nil {
		d.err = err
	}
	return out
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return v, nil
}
