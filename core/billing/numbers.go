package billing

import (
	"fmt"
	"time"
)

// Invoice numbers are monotonic within a calendar year, payment references
// within a day. Sequences come from an atomic repository counter, not from
// parsing the previous record's formatted string.

const (
	invoiceNumberPrefix    = "FAC"
	paymentReferencePrefix = "PAY"
)

// FormatInvoiceNumber renders eg. FAC-2026-00042.
func FormatInvoiceNumber(year, seq int) string {
	return fmt.Sprintf("%s-%d-%05d", invoiceNumberPrefix, year, seq)
}

// FormatPaymentReference renders eg. PAY-20260829-0007.
func FormatPaymentReference(day time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%04d", paymentReferencePrefix, PaymentSequenceKey(day), seq)
}

// PaymentSequenceKey is the yyyymmdd scope key of the per-day payment counter.
func PaymentSequenceKey(day time.Time) string {
	return day.UTC().Format("20060102")
}
