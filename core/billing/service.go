package billing

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kolisoft/makuta/core"
)

// Domain errors. The French messages are the user-facing contract and are
// returned verbatim by the API layer.
var (
	ErrInvoiceNotFound       = errors.New("Facture introuvable")
	ErrPaymentNotFound       = errors.New("Paiement introuvable")
	ErrDuplicatePeriod       = errors.New("Une facture existe déjà pour cette période")
	ErrNoActiveEnrollment    = errors.New("Aucune inscription active pour cette année scolaire")
	ErrInvoiceNotDraft       = errors.New("Seules les factures en brouillon peuvent être émises")
	ErrInvoicePartiallyPaid  = errors.New("Impossible d'annuler une facture partiellement payée")
	ErrPaymentNotPending     = errors.New("Seuls les paiements en attente peuvent être validés")
	ErrPaymentNotCancellable = errors.New("Seuls les paiements en attente ou validés peuvent être annulés")
	ErrInvalidAmount         = errors.New("Le montant doit être supérieur à 0")
)

type (
	Repository interface {
		// fee catalog & scholarships (read-only reference data)
		QueryMandatoryFeeTypes(ctx context.Context, cycle string, exec ...core.DBExecutor) ([]FeeType, error)
		QueryActiveScholarships(ctx context.Context, studentID, academicYearID string, exec ...core.DBExecutor) ([]Scholarship, error)

		// invoices
		CreateInvoice(ctx context.Context, inv Invoice, exec ...core.DBExecutor) (Invoice, error)
		GetInvoice(ctx context.Context, id string, exec ...core.DBExecutor) (Invoice, error)
		// GetInvoiceForUpdate locks the invoice row for the duration of the
		// surrounding transaction (no-op on non-transactional backends).
		GetInvoiceForUpdate(ctx context.Context, id string, exec ...core.DBExecutor) (Invoice, error)
		// GetActiveInvoice returns the one non-cancelled invoice for
		// (student, year, period), or ErrInvoiceNotFound.
		GetActiveInvoice(ctx context.Context, studentID, academicYearID, period string, exec ...core.DBExecutor) (Invoice, error)
		UpdateInvoice(ctx context.Context, inv Invoice, exec ...core.DBExecutor) (Invoice, error)
		// QueryUnpaidInvoices returns invoices with solde > 0 and statut != annulee,
		// oldest due date first.
		QueryUnpaidInvoices(ctx context.Context, exec ...core.DBExecutor) ([]Invoice, error)
		// NextInvoiceSequence atomically increments and returns the invoice
		// counter for the given calendar year.
		NextInvoiceSequence(ctx context.Context, year int, exec ...core.DBExecutor) (int, error)

		// payments
		CreatePayment(ctx context.Context, pmt Payment, exec ...core.DBExecutor) (Payment, error)
		GetPayment(ctx context.Context, id string, exec ...core.DBExecutor) (Payment, error)
		UpdatePayment(ctx context.Context, pmt Payment, exec ...core.DBExecutor) (Payment, error)
		QueryPayments(ctx context.Context, filter PaymentFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Payment, error)
		// SumValidatedPayments aggregates montant over the invoice's payments
		// with statut == valide, straight from the source rows.
		SumValidatedPayments(ctx context.Context, invoiceID string, exec ...core.DBExecutor) (decimal.Decimal, error)
		// SumValidatedStudentPayments aggregates a student's validated payments
		// for an academic year; also returns their count.
		SumValidatedStudentPayments(ctx context.Context, studentID, academicYearID string, exec ...core.DBExecutor) (decimal.Decimal, int, error)
		// NextPaymentSequence atomically increments and returns the payment
		// counter for the given yyyymmdd day key.
		NextPaymentSequence(ctx context.Context, day string, exec ...core.DBExecutor) (int, error)
	}

	// EnrollmentRepository looks up active class membership; owned by the
	// enrollment module, consumed here for fee scoping and guardian contacts.
	EnrollmentRepository interface {
		GetActiveEnrollment(ctx context.Context, studentID, academicYearID string, exec ...core.DBExecutor) (Enrollment, error)
		// QueryActiveEnrollments lists the academic year's roster,
		// ordered by student.
		QueryActiveEnrollments(ctx context.Context, academicYearID string, exec ...core.DBExecutor) ([]Enrollment, error)
	}
)

// DeriveInvoiceStatus is the status half of reconciliation: a pure function
// of the current status and the fresh (ttc, paid) pair.
//
//	solde <= 0 and something paid        -> payee
//	something paid but solde remains     -> partiellement_payee
//	nothing paid                         -> payee/partiellement_payee revert
//	                                        to emise; anything else unchanged
//
// The revert leg matters: cancelling an invoice's only validated payment
// must not leave it at payee.
func DeriveInvoiceStatus(current InvoiceStatus, ttc, paid decimal.Decimal) InvoiceStatus {
	switch {
	case !paid.IsPositive():
		if current == InvoiceStatusPaid || current == InvoiceStatusPartiallyPaid {
			return InvoiceStatusIssued
		}
		return current
	case !ttc.Sub(paid).IsPositive():
		return InvoiceStatusPaid
	default:
		return InvoiceStatusPartiallyPaid
	}
}

// reconcileInvoice recomputes montant_paye, solde and statut of one invoice
// from a fresh aggregate of its validated payments, then persists it.
// Always a full re-sum, never a delta: validations and cancellations may land
// in any order and a drifting counter would be unrecoverable.
// Callers own the transaction; the invoice row must already be locked.
func reconcileInvoice(ctx context.Context, repo Repository, inv Invoice, now time.Time, exec ...core.DBExecutor) (Invoice, error) {
	paid, err := repo.SumValidatedPayments(ctx, inv.ID, exec...)
	if err != nil {
		return Invoice{}, err
	}

	inv.MontantPaye = paid
	inv.Solde = inv.MontantTTC.Sub(paid)
	inv.Statut = DeriveInvoiceStatus(inv.Statut, inv.MontantTTC, paid)
	inv.UpdatedAt = now

	return repo.UpdateInvoice(ctx, inv, exec...)
}
