package verification

import (
	"conciliacion-service/internal/core/normalize"
	"conciliacion-service/internal/core/reference"
	"conciliacion-service/internal/domain"
)

// refGroup is the set of payment records sharing one normalized reference.
// One bank deposit may cover all of them.
type refGroup struct {
	first int
	count int
	usd   float64
	ves   float64
}

// Verifier answers the same questions as the package functions through
// reference indexes built once per pass. Results are identical to the
// linear scans, except that a bank line whose amount equals the total of a
// split group is conciliated against the group. The payments of the group
// keep their own verification.
type Verifier struct {
	tolerance float64
	bank      []domain.BankLine
	payments  []domain.PaymentRecord
	bankIdx   *reference.Index
	payIdx    *reference.Index
	groups    map[string]*refGroup
	inGroup   func(domain.PaymentRecord) bool
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithGroupFilter restricts split groups to the payment records keep accepts.
// Rejected records still match bank lines on their own amounts.
func WithGroupFilter(keep func(domain.PaymentRecord) bool) Option {
	return func(v *Verifier) {
		v.inGroup = keep
	}
}

// NewVerifier indexes bank lines and payment records.
func NewVerifier(bank []domain.BankLine, payments []domain.PaymentRecord, tolerance float64, opts ...Option) *Verifier {
	v := &Verifier{
		tolerance: tolerance,
		bank:      bank,
		payments:  payments,
		bankIdx:   reference.NewIndex(),
		payIdx:    reference.NewIndex(),
		groups:    make(map[string]*refGroup),
	}
	for _, opt := range opts {
		opt(v)
	}
	for i, l := range bank {
		v.bankIdx.Add(i, l.Referencia)
	}
	for i, p := range payments {
		v.payIdx.Add(i, p.Referencia)
		key := reference.NormalizeReference(p.Referencia)
		if key == "" || (v.inGroup != nil && !v.inGroup(p)) {
			continue
		}
		g, ok := v.groups[key]
		if !ok {
			g = &refGroup{first: i}
			v.groups[key] = g
		}
		g.count++
		g.usd += normalize.OrZero(p.MontoUSD)
		g.ves += normalize.OrZero(p.MontoVES)
	}
	return v
}

func (v *Verifier) splitGroup(ref string) (*refGroup, bool) {
	g, ok := v.groups[reference.NormalizeReference(ref)]
	if !ok || g.count < 2 {
		return nil, false
	}
	return g, true
}

// VerifyPayment flags a payment SI when a bank line backs its own amounts.
func (v *Verifier) VerifyPayment(p domain.PaymentRecord) domain.Verification {
	return v.VerifyAmounts(p.Referencia, p.MontoVES, p.MontoUSD)
}

// VerifyAmounts is the indexed form of VerifyInBankStatements.
func (v *Verifier) VerifyAmounts(ref string, amountVES, amountUSD float64) domain.Verification {
	if len(v.bank) == 0 || missing(ref, amountVES, amountUSD) {
		return domain.VerifiedNo
	}
	for _, pos := range v.bankIdx.Candidates(ref) {
		l := v.bank[pos]
		if reference.ReferencesMatch(ref, l.Referencia) && amountsLinked(l.Debe, l.Haber, amountVES, amountUSD, v.tolerance) {
			return domain.VerifiedYes
		}
	}
	return domain.VerifiedNo
}

// MatchBankLine returns the position of the first payment record linked to
// l. When no single record matches, the first record of a split group whose
// total matches is returned. It returns -1 when nothing is linked.
func (v *Verifier) MatchBankLine(l domain.BankLine) int {
	if len(v.payments) == 0 || missing(l.Referencia, l.Debe, l.Haber) {
		return -1
	}
	candidates := v.payIdx.Candidates(l.Referencia)

	groupHit := -1
	for _, pos := range candidates {
		p := v.payments[pos]
		if !reference.ReferencesMatch(l.Referencia, p.Referencia) {
			continue
		}
		if amountsLinked(l.Debe, l.Haber, p.MontoVES, p.MontoUSD, v.tolerance) {
			return pos
		}
		if groupHit < 0 {
			if g, ok := v.splitGroup(p.Referencia); ok && amountsLinked(l.Debe, l.Haber, g.ves, g.usd, v.tolerance) {
				groupHit = g.first
			}
		}
	}
	return groupHit
}

// VerifyBankLine is the CONCILIADO flag of a bank line.
func (v *Verifier) VerifyBankLine(l domain.BankLine) domain.Verification {
	if v.MatchBankLine(l) >= 0 {
		return domain.VerifiedYes
	}
	return domain.VerifiedNo
}

// Payments verifies every payment record in place and returns the count flagged SI.
func (v *Verifier) Payments(records []domain.PaymentRecord) int {
	n := 0
	for i := range records {
		records[i].Verificacion = v.VerifyPayment(records[i])
		if records[i].Verificacion.IsVerified() {
			n++
		}
	}
	return n
}

// BankLines flags every line in place and copies orden/cuota from the
// matched payment record.
func (v *Verifier) BankLines(lines []domain.BankLine) int {
	n := 0
	for i := range lines {
		pos := v.MatchBankLine(lines[i])
		if pos < 0 {
			lines[i].Conciliado = domain.VerifiedNo
			continue
		}
		lines[i].Conciliado = domain.VerifiedYes
		lines[i].Orden = v.payments[pos].Orden
		lines[i].CuotaPagada = v.payments[pos].CuotaPagada
		n++
	}
	return n
}
