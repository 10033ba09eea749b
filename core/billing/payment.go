package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/kolisoft/makuta/core"
)

// PaymentService records, validates and cancels payments. Validation and
// cancellation reconcile the linked invoice inside the same transaction, so
// an invoice's paid amount only ever reflects validated payments.
type PaymentService struct {
	db          core.DB
	repo        Repository
	enrollments EnrollmentRepository
	smsSvc      core.SMSService
	logger      core.Logger
	now         func() time.Time
}

func NewPaymentService(
	db core.DB,
	repo Repository,
	enrollments EnrollmentRepository,
	smsSvc core.SMSService,
	logger core.Logger,
) *PaymentService {
	return &PaymentService{
		db:          db,
		repo:        repo,
		enrollments: enrollments,
		smsSvc:      smsSvc,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Record creates an en_attente payment with a generated reference.
// It deliberately leaves every invoice balance untouched: pending funds must
// never inflate an invoice's apparent paid amount.
func (svc *PaymentService) Record(ctx context.Context, np NewPayment, actor string) (Payment, error) {
	if !np.Montant.IsPositive() {
		return Payment{}, ErrInvalidAmount
	}

	tx, execs, err := core.BeginTx(ctx, svc.db)
	if err != nil {
		return Payment{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if np.InvoiceID != "" {
		inv, err := svc.repo.GetInvoice(ctx, np.InvoiceID, execs...)
		if err != nil {
			return Payment{}, err
		}
		if inv.Statut == InvoiceStatusCancelled {
			return Payment{}, ErrInvoiceNotFound
		}
	}

	now := svc.now()
	payDate := np.DatePaiement
	if payDate.IsZero() {
		payDate = now
	}
	seq, err := svc.repo.NextPaymentSequence(ctx, PaymentSequenceKey(now), execs...)
	if err != nil {
		return Payment{}, errors.Wrap(err, "next payment sequence")
	}

	pmt := Payment{
		ID:             uuid.New().String(),
		Reference:      FormatPaymentReference(now, seq),
		InvoiceID:      np.InvoiceID,
		StudentID:      np.StudentID,
		AcademicYearID: np.AcademicYearID,
		Montant:        np.Montant,
		ModePaiement:   np.ModePaiement,
		DatePaiement:   payDate,
		Statut:         PaymentStatusPending,
		ReceivedBy:     actor,
		Notes:          np.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if pmt, err = svc.repo.CreatePayment(ctx, pmt, execs...); err != nil {
		return Payment{}, errors.Wrap(err, "creating payment")
	}
	if err = tx.Commit(); err != nil {
		return Payment{}, errors.Wrap(err, "committing payment")
	}
	return pmt, nil
}

// Validate moves an en_attente payment to valide and reconciles the linked
// invoice in the same transaction.
func (svc *PaymentService) Validate(ctx context.Context, id, actor string) (Payment, error) {
	tx, execs, err := core.BeginTx(ctx, svc.db)
	if err != nil {
		return Payment{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	pmt, err := svc.repo.GetPayment(ctx, id, execs...)
	if err != nil {
		return Payment{}, err
	}
	if !pmt.Statut.CanTransitionTo(PaymentStatusValidated) {
		return Payment{}, ErrPaymentNotPending
	}

	now := svc.now()
	pmt.Statut = PaymentStatusValidated
	pmt.ValidatedBy = actor
	pmt.ValidatedAt = now
	pmt.UpdatedAt = now
	if pmt, err = svc.repo.UpdatePayment(ctx, pmt, execs...); err != nil {
		return Payment{}, errors.Wrap(err, "updating payment")
	}

	if err = svc.reconcileLinked(ctx, pmt, now, execs...); err != nil {
		return Payment{}, err
	}
	if err = tx.Commit(); err != nil {
		return Payment{}, errors.Wrap(err, "committing validation")
	}

	svc.sendReceipt(ctx, pmt)
	return pmt, nil
}

// Cancel voids an en_attente or valide payment, appends the reason to notes
// and reconciles the linked invoice. A cancelled-after-validated payment
// reduces the invoice's paid total and may revert its status.
func (svc *PaymentService) Cancel(ctx context.Context, id, reason, actor string) (Payment, error) {
	tx, execs, err := core.BeginTx(ctx, svc.db)
	if err != nil {
		return Payment{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	pmt, err := svc.repo.GetPayment(ctx, id, execs...)
	if err != nil {
		return Payment{}, err
	}
	if !pmt.Statut.CanTransitionTo(PaymentStatusCancelled) {
		return Payment{}, ErrPaymentNotCancellable
	}

	now := svc.now()
	pmt.Statut = PaymentStatusCancelled
	pmt.AppendNote(reason)
	pmt.UpdatedAt = now
	if pmt, err = svc.repo.UpdatePayment(ctx, pmt, execs...); err != nil {
		return Payment{}, errors.Wrap(err, "updating payment")
	}

	if err = svc.reconcileLinked(ctx, pmt, now, execs...); err != nil {
		return Payment{}, err
	}
	if err = tx.Commit(); err != nil {
		return Payment{}, errors.Wrap(err, "committing cancellation")
	}
	return pmt, nil
}

// CalculateBalance aggregates a student's validated payments for one
// academic year. Read-only projection.
func (svc *PaymentService) CalculateBalance(ctx context.Context, studentID, academicYearID string) (StudentBalance, error) {
	total, count, err := svc.repo.SumValidatedStudentPayments(ctx, studentID, academicYearID)
	if err != nil {
		return StudentBalance{}, errors.Wrap(err, "summing student payments")
	}
	return StudentBalance{
		StudentID:      studentID,
		AcademicYearID: academicYearID,
		TotalPaid:      total,
		PaymentsCount:  count,
	}, nil
}

func (svc *PaymentService) Get(ctx context.Context, id string) (Payment, error) {
	return svc.repo.GetPayment(ctx, id)
}

func (svc *PaymentService) Query(ctx context.Context, filter PaymentFilter, ordering []core.DBOrdering) ([]Payment, error) {
	return svc.repo.QueryPayments(ctx, filter, ordering)
}

func (svc *PaymentService) reconcileLinked(ctx context.Context, pmt Payment, now time.Time, execs ...core.DBExecutor) error {
	if pmt.InvoiceID == "" {
		return nil
	}
	inv, err := svc.repo.GetInvoiceForUpdate(ctx, pmt.InvoiceID, execs...)
	if err != nil {
		return errors.Wrap(err, "locking invoice")
	}
	if _, err = reconcileInvoice(ctx, svc.repo, inv, now, execs...); err != nil {
		return errors.Wrap(err, "reconciling invoice")
	}
	return nil
}

func (svc *PaymentService) sendReceipt(ctx context.Context, pmt Payment) {
	if svc.smsSvc == nil {
		return
	}
	enr, err := svc.enrollments.GetActiveEnrollment(ctx, pmt.StudentID, pmt.AcademicYearID)
	if err != nil {
		svc.logger.Warn("payment validated: no enrollment for receipt", err)
		return
	}
	if enr.GuardianPhone == "" {
		return
	}
	svc.smsSvc.SendMessages(&core.SMSMessage{
		To: enr.GuardianPhone,
		Body: fmt.Sprintf("Paiement %s reçu: %s %s. Merci.",
			pmt.Reference, pmt.Montant.StringFixed(2), core.Conf.DefaultCurrency),
	})
}
