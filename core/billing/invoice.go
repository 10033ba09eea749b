package billing

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/kolisoft/makuta/core"
)

// InvoiceService drives invoice generation, issuance, cancellation and
// reconciliation. Every mutating operation records the acting user and runs
// in a single transaction.
type InvoiceService struct {
	db          core.DB
	repo        Repository
	enrollments EnrollmentRepository
	smsSvc      core.SMSService
	mailSvc     core.EmailService
	logger      core.Logger
	now         func() time.Time
}

func NewInvoiceService(
	db core.DB,
	repo Repository,
	enrollments EnrollmentRepository,
	smsSvc core.SMSService,
	mailSvc core.EmailService,
	logger core.Logger,
) *InvoiceService {
	return &InvoiceService{
		db:          db,
		repo:        repo,
		enrollments: enrollments,
		smsSvc:      smsSvc,
		mailSvc:     mailSvc,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Generate creates a brouillon invoice for (student, year, period):
// mandatory fees for the student's cycle, minus active scholarships.
// Fails without any partial write when an active enrollment is missing or a
// non-cancelled invoice already covers the period.
func (svc *InvoiceService) Generate(ctx context.Context, ni NewInvoice, actor string) (Invoice, error) {
	tx, execs, err := core.BeginTx(ctx, svc.db)
	if err != nil {
		return Invoice{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	enr, err := svc.enrollments.GetActiveEnrollment(ctx, ni.StudentID, ni.AcademicYearID, execs...)
	if err != nil {
		if errors.Cause(err) == ErrNoActiveEnrollment {
			return Invoice{}, ErrNoActiveEnrollment
		}
		return Invoice{}, errors.Wrap(err, "looking up enrollment")
	}

	if _, err = svc.repo.GetActiveInvoice(ctx, ni.StudentID, ni.AcademicYearID, ni.Period, execs...); err == nil {
		return Invoice{}, ErrDuplicatePeriod
	} else if errors.Cause(err) != ErrInvoiceNotFound {
		return Invoice{}, errors.Wrap(err, "checking period uniqueness")
	}

	due, err := svc.calculateTotalDue(ctx, enr, ni.Period, execs...)
	if err != nil {
		return Invoice{}, err
	}

	now := svc.now()
	seq, err := svc.repo.NextInvoiceSequence(ctx, now.Year(), execs...)
	if err != nil {
		return Invoice{}, errors.Wrap(err, "next invoice sequence")
	}

	dueDate := ni.DateEcheance
	if dueDate.IsZero() {
		dueDate = now.AddDate(0, 1, 0)
	}

	inv := Invoice{
		ID:             uuid.New().String(),
		Number:         FormatInvoiceNumber(now.Year(), seq),
		StudentID:      ni.StudentID,
		AcademicYearID: ni.AcademicYearID,
		Period:         ni.Period,
		MontantHT:      due.TotalAmount,
		MontantTTC:     due.NetAmount,
		MontantPaye:    decimal.Zero,
		Solde:          due.NetAmount,
		Statut:         InvoiceStatusDraft,
		DateEcheance:   dueDate,
		Notes:          ni.Notes,
		GeneratedBy:    actor,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	// the partial unique index backs the check above under concurrency;
	// the repository maps its violation to ErrDuplicatePeriod
	if inv, err = svc.repo.CreateInvoice(ctx, inv, execs...); err != nil {
		if errors.Cause(err) == ErrDuplicatePeriod {
			return Invoice{}, ErrDuplicatePeriod
		}
		return Invoice{}, errors.Wrap(err, "creating invoice")
	}

	if err = tx.Commit(); err != nil {
		return Invoice{}, errors.Wrap(err, "committing invoice generation")
	}
	return inv, nil
}

// GenerateForRoster generates one invoice per active enrollment of the
// academic year. Students already holding a non-cancelled invoice for the
// period are skipped, so the command can be re-run to pick up late
// enrollments. Each invoice commits on its own; a failure returns the
// invoices generated so far.
func (svc *InvoiceService) GenerateForRoster(ctx context.Context, academicYearID, period string, dueDate time.Time, actor string) ([]Invoice, error) {
	enrs, err := svc.enrollments.QueryActiveEnrollments(ctx, academicYearID)
	if err != nil {
		return nil, errors.Wrap(err, "listing enrollments")
	}

	invs := make([]Invoice, 0, len(enrs))
	for _, enr := range enrs {
		inv, err := svc.Generate(ctx, NewInvoice{
			StudentID:      enr.StudentID,
			AcademicYearID: academicYearID,
			Period:         period,
			DateEcheance:   dueDate,
		}, actor)
		if err != nil {
			if errors.Cause(err) == ErrDuplicatePeriod {
				svc.logger.Info(fmt.Sprintf("roster generation: student %s already invoiced for %s", enr.StudentID, period))
				continue
			}
			return invs, errors.Wrapf(err, "generating invoice for student %s", enr.StudentID)
		}
		invs = append(invs, inv)
	}
	return invs, nil
}

// CalculateTotalDue returns the discount-aware breakdown for one
// student/year/period without mutating anything.
func (svc *InvoiceService) CalculateTotalDue(ctx context.Context, studentID, academicYearID, period string) (TotalDue, error) {
	enr, err := svc.enrollments.GetActiveEnrollment(ctx, studentID, academicYearID)
	if err != nil {
		if errors.Cause(err) == ErrNoActiveEnrollment {
			return TotalDue{}, ErrNoActiveEnrollment
		}
		return TotalDue{}, errors.Wrap(err, "looking up enrollment")
	}
	return svc.calculateTotalDue(ctx, enr, period)
}

func (svc *InvoiceService) calculateTotalDue(ctx context.Context, enr Enrollment, period string, exec ...core.DBExecutor) (TotalDue, error) {
	feeTypes, err := svc.repo.QueryMandatoryFeeTypes(ctx, enr.Cycle, exec...)
	if err != nil {
		return TotalDue{}, errors.Wrap(err, "querying fee catalog")
	}
	total := decimal.Zero
	for _, ft := range feeTypes {
		total = total.Add(ft.Amount)
	}

	scholarships, err := svc.repo.QueryActiveScholarships(ctx, enr.StudentID, enr.AcademicYearID, exec...)
	if err != nil {
		return TotalDue{}, errors.Wrap(err, "querying scholarships")
	}
	discount := decimal.Zero
	for _, sch := range scholarships {
		discount = discount.Add(sch.DiscountOn(total))
	}
	// cumulative scholarships never push the net amount below zero
	if discount.GreaterThan(total) {
		discount = total
	}
	net := total.Sub(discount)

	// payments already validated against this period's invoice, if any
	paid := decimal.Zero
	if inv, err := svc.repo.GetActiveInvoice(ctx, enr.StudentID, enr.AcademicYearID, period, exec...); err == nil {
		if paid, err = svc.repo.SumValidatedPayments(ctx, inv.ID, exec...); err != nil {
			return TotalDue{}, errors.Wrap(err, "summing validated payments")
		}
	} else if errors.Cause(err) != ErrInvoiceNotFound {
		return TotalDue{}, errors.Wrap(err, "looking up period invoice")
	}

	return TotalDue{
		TotalAmount:   total,
		TotalDiscount: discount,
		NetAmount:     net,
		TotalPaid:     paid,
		RemainingDue:  net.Sub(paid),
	}, nil
}

// Issue moves a brouillon invoice to emise and stamps date_emission.
// Guardian notification failures never roll the issuance back.
func (svc *InvoiceService) Issue(ctx context.Context, id string, notify bool, actor string) (Invoice, error) {
	tx, execs, err := core.BeginTx(ctx, svc.db)
	if err != nil {
		return Invoice{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	inv, err := svc.repo.GetInvoiceForUpdate(ctx, id, execs...)
	if err != nil {
		return Invoice{}, err
	}
	if inv.Statut != InvoiceStatusDraft {
		return Invoice{}, ErrInvoiceNotDraft
	}

	now := svc.now()
	inv.Statut = InvoiceStatusIssued
	inv.DateEmission = now
	inv.UpdatedAt = now
	if inv, err = svc.repo.UpdateInvoice(ctx, inv, execs...); err != nil {
		return Invoice{}, errors.Wrap(err, "updating invoice")
	}
	if err = tx.Commit(); err != nil {
		return Invoice{}, errors.Wrap(err, "committing issuance")
	}

	if notify {
		svc.notifyIssued(ctx, inv)
	}
	return inv, nil
}

// Cancel refuses when anything has been paid; otherwise sets annulee and
// appends the reason to notes.
func (svc *InvoiceService) Cancel(ctx context.Context, id, reason, actor string) (Invoice, error) {
	tx, execs, err := core.BeginTx(ctx, svc.db)
	if err != nil {
		return Invoice{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	inv, err := svc.repo.GetInvoiceForUpdate(ctx, id, execs...)
	if err != nil {
		return Invoice{}, err
	}
	// fresh aggregate, not the stored column
	paid, err := svc.repo.SumValidatedPayments(ctx, inv.ID, execs...)
	if err != nil {
		return Invoice{}, errors.Wrap(err, "summing validated payments")
	}
	if paid.IsPositive() {
		return Invoice{}, ErrInvoicePartiallyPaid
	}

	inv.Statut = InvoiceStatusCancelled
	inv.AppendNote(reason)
	inv.UpdatedAt = svc.now()
	if inv, err = svc.repo.UpdateInvoice(ctx, inv, execs...); err != nil {
		return Invoice{}, errors.Wrap(err, "updating invoice")
	}
	if err = tx.Commit(); err != nil {
		return Invoice{}, errors.Wrap(err, "committing cancellation")
	}
	return inv, nil
}

// Reconcile recomputes the invoice's paid amount, balance and status from
// its validated payments. Safe to call at any time; idempotent.
func (svc *InvoiceService) Reconcile(ctx context.Context, id string) (Invoice, error) {
	tx, execs, err := core.BeginTx(ctx, svc.db)
	if err != nil {
		return Invoice{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	inv, err := svc.repo.GetInvoiceForUpdate(ctx, id, execs...)
	if err != nil {
		return Invoice{}, err
	}
	if inv, err = reconcileInvoice(ctx, svc.repo, inv, svc.now(), execs...); err != nil {
		return Invoice{}, errors.Wrap(err, "reconciling invoice")
	}
	if err = tx.Commit(); err != nil {
		return Invoice{}, errors.Wrap(err, "committing reconciliation")
	}
	return inv, nil
}

// QueryUnpaid lists invoices still carrying a balance, oldest due first,
// flagging the ones past their due date.
func (svc *InvoiceService) QueryUnpaid(ctx context.Context) ([]UnpaidInvoice, error) {
	invs, err := svc.repo.QueryUnpaidInvoices(ctx)
	if err != nil {
		return nil, err
	}
	now := svc.now()
	unpaid := make([]UnpaidInvoice, 0, len(invs))
	for _, inv := range invs {
		unpaid = append(unpaid, UnpaidInvoice{Invoice: inv, IsOverdue: inv.IsOverdue(now)})
	}
	return unpaid, nil
}

func (svc *InvoiceService) Get(ctx context.Context, id string) (Invoice, error) {
	return svc.repo.GetInvoice(ctx, id)
}

func (svc *InvoiceService) notifyIssued(ctx context.Context, inv Invoice) {
	enr, err := svc.enrollments.GetActiveEnrollment(ctx, inv.StudentID, inv.AcademicYearID)
	if err != nil {
		svc.logger.Warn("invoice issued: no enrollment for notification", err)
		return
	}

	body := fmt.Sprintf(
		"Facture %s émise: %s %s. Échéance: %s.",
		inv.Number, inv.MontantTTC.StringFixed(2), core.Conf.DefaultCurrency,
		inv.DateEcheance.Format("02/01/2006"),
	)
	if svc.smsSvc != nil && enr.GuardianPhone != "" {
		svc.smsSvc.SendMessages(&core.SMSMessage{To: enr.GuardianPhone, Body: body})
	}
	if svc.mailSvc != nil && enr.GuardianEmail != "" {
		svc.mailSvc.SendMessages(&core.EmailMessage{
			To:      []mail.Address{{Address: enr.GuardianEmail}},
			Subject: "Facture " + inv.Number,
			BodyStr: body,
		})
	}
}
