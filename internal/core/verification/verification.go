// Package verification links payment records and bank statement lines.
// A payment and a bank line are linked when their references match and one
// of the line's debit/credit amounts equals one of the payment's VES/USD
// amounts within tolerance.
package verification

import (
	"conciliacion-service/internal/core/normalize"
	"conciliacion-service/internal/core/reference"
	"conciliacion-service/internal/domain"
)

// amountsLinked runs the four debit/credit against VES/USD comparisons.
func amountsLinked(debe, haber, ves, usd, tolerance float64) bool {
	return reference.AmountsMatch(debe, ves, tolerance) ||
		reference.AmountsMatch(debe, usd, tolerance) ||
		reference.AmountsMatch(haber, ves, tolerance) ||
		reference.AmountsMatch(haber, usd, tolerance)
}

func missing(ref string, a, b float64) bool {
	return reference.NormalizeReference(ref) == "" || (!normalize.Valid(a) && !normalize.Valid(b))
}

// VerifyInBankStatements reports SI when a bank line matches the payment
// reference and one of its amounts. The first satisfying line wins.
func VerifyInBankStatements(ref string, amountVES, amountUSD float64, lines []domain.BankLine, tolerance float64) domain.Verification {
	if len(lines) == 0 || missing(ref, amountVES, amountUSD) {
		return domain.VerifiedNo
	}
	for _, l := range lines {
		if reference.ReferencesMatch(ref, l.Referencia) && amountsLinked(l.Debe, l.Haber, amountVES, amountUSD, tolerance) {
			return domain.VerifiedYes
		}
	}
	return domain.VerifiedNo
}

// FindMatchingPaymentRecord returns the position of the first payment record
// linked to a bank line with the given reference and amounts, or -1.
func FindMatchingPaymentRecord(ref string, debe, haber float64, payments []domain.PaymentRecord, tolerance float64) int {
	if len(payments) == 0 || missing(ref, debe, haber) {
		return -1
	}
	for i, p := range payments {
		if reference.ReferencesMatch(ref, p.Referencia) && amountsLinked(debe, haber, p.MontoVES, p.MontoUSD, tolerance) {
			return i
		}
	}
	return -1
}

// VerifyInPaymentRecords is the bank-side mirror of VerifyInBankStatements.
func VerifyInPaymentRecords(ref string, debe, haber float64, payments []domain.PaymentRecord, tolerance float64) domain.Verification {
	if FindMatchingPaymentRecord(ref, debe, haber, payments, tolerance) >= 0 {
		return domain.VerifiedYes
	}
	return domain.VerifiedNo
}
