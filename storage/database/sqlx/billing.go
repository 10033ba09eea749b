package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/kolisoft/makuta/core"
	"github.com/kolisoft/makuta/core/billing"
)

// uniqueActivePeriodConstraint is the partial unique index backing the
// one-active-invoice-per-period rule (see migrations).
const uniqueActivePeriodConstraint = "invoice_active_period_key"

type billingRepository struct {
	exec core.DBExecutor
}

var (
	_ billing.Repository           = (*billingRepository)(nil) // interface compliance check
	_ billing.EnrollmentRepository = (*billingRepository)(nil)
)

func NewBillingRepository(exec core.DBExecutor) *billingRepository {
	return &billingRepository{exec: exec}
}

func (repo billingRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.exec
}

// row types: null/v8 wraps the nullable columns

type invoiceRow struct {
	ID             string          `db:"id"`
	Number         string          `db:"number"`
	StudentID      string          `db:"student_id"`
	AcademicYearID string          `db:"academic_year_id"`
	Period         string          `db:"period"`
	MontantHT      decimal.Decimal `db:"montant_ht"`
	MontantTTC     decimal.Decimal `db:"montant_ttc"`
	MontantPaye    decimal.Decimal `db:"montant_paye"`
	Solde          decimal.Decimal `db:"solde"`
	Statut         string          `db:"statut"`
	DateEmission   null.Time       `db:"date_emission"`
	DateEcheance   null.Time       `db:"date_echeance"`
	Notes          string          `db:"notes"`
	GeneratedBy    string          `db:"generated_by"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

func (r invoiceRow) toDomain() billing.Invoice {
	return billing.Invoice{
		ID:             r.ID,
		Number:         r.Number,
		StudentID:      r.StudentID,
		AcademicYearID: r.AcademicYearID,
		Period:         r.Period,
		MontantHT:      r.MontantHT,
		MontantTTC:     r.MontantTTC,
		MontantPaye:    r.MontantPaye,
		Solde:          r.Solde,
		Statut:         billing.InvoiceStatus(r.Statut),
		DateEmission:   r.DateEmission.Time,
		DateEcheance:   r.DateEcheance.Time,
		Notes:          r.Notes,
		GeneratedBy:    r.GeneratedBy,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func newInvoiceRow(inv billing.Invoice) invoiceRow {
	return invoiceRow{
		ID:             inv.ID,
		Number:         inv.Number,
		StudentID:      inv.StudentID,
		AcademicYearID: inv.AcademicYearID,
		Period:         inv.Period,
		MontantHT:      inv.MontantHT,
		MontantTTC:     inv.MontantTTC,
		MontantPaye:    inv.MontantPaye,
		Solde:          inv.Solde,
		Statut:         string(inv.Statut),
		DateEmission:   null.NewTime(inv.DateEmission.UTC(), !inv.DateEmission.IsZero()),
		DateEcheance:   null.NewTime(inv.DateEcheance.UTC(), !inv.DateEcheance.IsZero()),
		Notes:          inv.Notes,
		GeneratedBy:    inv.GeneratedBy,
		CreatedAt:      inv.CreatedAt.UTC(),
		UpdatedAt:      inv.UpdatedAt.UTC(),
	}
}

type paymentRow struct {
	ID             string          `db:"id"`
	Reference      string          `db:"reference"`
	InvoiceID      null.String     `db:"invoice_id"`
	StudentID      string          `db:"student_id"`
	AcademicYearID string          `db:"academic_year_id"`
	Montant        decimal.Decimal `db:"montant"`
	ModePaiement   string          `db:"mode_paiement"`
	DatePaiement   time.Time       `db:"date_paiement"`
	Statut         string          `db:"statut"`
	ReceivedBy     string          `db:"received_by"`
	ValidatedBy    null.String     `db:"validated_by"`
	ValidatedAt    null.Time       `db:"validated_at"`
	Notes          string          `db:"notes"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

func (r paymentRow) toDomain() billing.Payment {
	return billing.Payment{
		ID:             r.ID,
		Reference:      r.Reference,
		InvoiceID:      r.InvoiceID.String,
		StudentID:      r.StudentID,
		AcademicYearID: r.AcademicYearID,
		Montant:        r.Montant,
		ModePaiement:   r.ModePaiement,
		DatePaiement:   r.DatePaiement,
		Statut:         billing.PaymentStatus(r.Statut),
		ReceivedBy:     r.ReceivedBy,
		ValidatedBy:    r.ValidatedBy.String,
		ValidatedAt:    r.ValidatedAt.Time,
		Notes:          r.Notes,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func newPaymentRow(pmt billing.Payment) paymentRow {
	return paymentRow{
		ID:             pmt.ID,
		Reference:      pmt.Reference,
		InvoiceID:      null.NewString(pmt.InvoiceID, pmt.InvoiceID != ""),
		StudentID:      pmt.StudentID,
		AcademicYearID: pmt.AcademicYearID,
		Montant:        pmt.Montant,
		ModePaiement:   pmt.ModePaiement,
		DatePaiement:   pmt.DatePaiement.UTC(),
		Statut:         string(pmt.Statut),
		ReceivedBy:     pmt.ReceivedBy,
		ValidatedBy:    null.NewString(pmt.ValidatedBy, pmt.ValidatedBy != ""),
		ValidatedAt:    null.NewTime(pmt.ValidatedAt.UTC(), !pmt.ValidatedAt.IsZero()),
		Notes:          pmt.Notes,
		CreatedAt:      pmt.CreatedAt.UTC(),
		UpdatedAt:      pmt.UpdatedAt.UTC(),
	}
}

// trapNoRowsErr maps psql "no rows" to the matching domain error.
func trapNoRowsErr(err, notFound error, msg string) error {
	if err == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// isUniqueViolation reports whether err is a violation of the named constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505" && pqErr.Constraint == constraint
	}
	return false
}

type enrollmentRow struct {
	StudentID      string `db:"student_id"`
	AcademicYearID string `db:"academic_year_id"`
	ClassName      string `db:"class_name"`
	Cycle          string `db:"cycle"`
	GuardianPhone  string `db:"guardian_phone"`
	GuardianEmail  string `db:"guardian_email"`
	IsActive       bool   `db:"is_active"`
}

type feeTypeRow struct {
	ID          string          `db:"id"`
	Name        string          `db:"name"`
	Amount      decimal.Decimal `db:"amount"`
	Cycle       string          `db:"cycle"`
	IsActive    bool            `db:"is_active"`
	IsMandatory bool            `db:"is_mandatory"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

type scholarshipRow struct {
	ID             string          `db:"id"`
	StudentID      string          `db:"student_id"`
	AcademicYearID string          `db:"academic_year_id"`
	Type           string          `db:"type"`
	Mode           string          `db:"mode"`
	Valeur         decimal.Decimal `db:"valeur"`
	Statut         string          `db:"statut"`
	CreatedAt      time.Time       `db:"created_at"`
}

// billing.EnrollmentRepository

func (repo billingRepository) GetActiveEnrollment(ctx context.Context, studentID, academicYearID string, exec ...core.DBExecutor) (billing.Enrollment, error) {
	const q = `
		SELECT e.student_id, e.academic_year_id, c.name AS class_name, c.cycle,
		       s.guardian_phone, s.guardian_email, e.is_active
		FROM enrollment e
		JOIN class c ON c.id = e.class_id
		JOIN student s ON s.id = e.student_id
		WHERE e.student_id = $1 AND e.academic_year_id = $2 AND e.is_active`

	var row enrollmentRow
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, studentID, academicYearID); err != nil {
		return billing.Enrollment{}, trapNoRowsErr(err, billing.ErrNoActiveEnrollment, "finding enrollment")
	}
	return billing.Enrollment(row), nil
}

func (repo billingRepository) QueryActiveEnrollments(ctx context.Context, academicYearID string, exec ...core.DBExecutor) ([]billing.Enrollment, error) {
	const q = `
		SELECT e.student_id, e.academic_year_id, c.name AS class_name, c.cycle,
		       s.guardian_phone, s.guardian_email, e.is_active
		FROM enrollment e
		JOIN class c ON c.id = e.class_id
		JOIN student s ON s.id = e.student_id
		WHERE e.academic_year_id = $1 AND e.is_active
		ORDER BY e.student_id`

	var rows []enrollmentRow
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, academicYearID); err != nil {
		return nil, errors.Wrap(err, "listing enrollments")
	}
	enrs := make([]billing.Enrollment, 0, len(rows))
	for _, r := range rows {
		enrs = append(enrs, billing.Enrollment(r))
	}
	return enrs, nil
}

// billing.Repository

func (repo billingRepository) QueryMandatoryFeeTypes(ctx context.Context, cycle string, exec ...core.DBExecutor) ([]billing.FeeType, error) {
	const q = `
		SELECT id, name, amount, cycle, is_active, is_mandatory, created_at, updated_at
		FROM fee_type
		WHERE is_active AND is_mandatory AND cycle = $1
		ORDER BY name`

	var rows []feeTypeRow
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, cycle); err != nil {
		return nil, errors.Wrap(err, "querying fee catalog")
	}
	fts := make([]billing.FeeType, 0, len(rows))
	for _, r := range rows {
		fts = append(fts, billing.FeeType(r))
	}
	return fts, nil
}

func (repo billingRepository) QueryActiveScholarships(ctx context.Context, studentID, academicYearID string, exec ...core.DBExecutor) ([]billing.Scholarship, error) {
	const q = `
		SELECT id, student_id, academic_year_id, type, mode, valeur, statut, created_at
		FROM scholarship
		WHERE student_id = $1 AND academic_year_id = $2 AND statut = $3
		ORDER BY id`

	var rows []scholarshipRow
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, studentID, academicYearID, billing.ScholarshipStatusActive); err != nil {
		return nil, errors.Wrap(err, "querying scholarships")
	}
	schs := make([]billing.Scholarship, 0, len(rows))
	for _, r := range rows {
		schs = append(schs, billing.Scholarship(r))
	}
	return schs, nil
}

const invoiceColumns = `id, number, student_id, academic_year_id, period,
	montant_ht, montant_ttc, montant_paye, solde, statut,
	date_emission, date_echeance, notes, generated_by, created_at, updated_at`

func (repo billingRepository) CreateInvoice(ctx context.Context, inv billing.Invoice, exec ...core.DBExecutor) (billing.Invoice, error) {
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	const q = `
		INSERT INTO invoice (` + invoiceColumns + `)
		VALUES (:id, :number, :student_id, :academic_year_id, :period,
		        :montant_ht, :montant_ttc, :montant_paye, :solde, :statut,
		        :date_emission, :date_echeance, :notes, :generated_by, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, newInvoiceRow(inv)); err != nil {
		if isUniqueViolation(err, uniqueActivePeriodConstraint) {
			return billing.Invoice{}, billing.ErrDuplicatePeriod
		}
		return billing.Invoice{}, errors.Wrap(err, "inserting invoice")
	}
	return inv, nil
}

func (repo billingRepository) getInvoice(ctx context.Context, id string, forUpdate bool, exec []core.DBExecutor) (billing.Invoice, error) {
	q := `SELECT ` + invoiceColumns + ` FROM invoice WHERE id = $1`
	if forUpdate {
		q += " FOR UPDATE"
	}
	var row invoiceRow
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, id); err != nil {
		return billing.Invoice{}, trapNoRowsErr(err, billing.ErrInvoiceNotFound, "finding invoice")
	}
	return row.toDomain(), nil
}

func (repo billingRepository) GetInvoice(ctx context.Context, id string, exec ...core.DBExecutor) (billing.Invoice, error) {
	return repo.getInvoice(ctx, id, false, exec)
}

func (repo billingRepository) GetInvoiceForUpdate(ctx context.Context, id string, exec ...core.DBExecutor) (billing.Invoice, error) {
	return repo.getInvoice(ctx, id, true, exec)
}

func (repo billingRepository) GetActiveInvoice(ctx context.Context, studentID, academicYearID, period string, exec ...core.DBExecutor) (billing.Invoice, error) {
	const q = `
		SELECT ` + invoiceColumns + `
		FROM invoice
		WHERE student_id = $1 AND academic_year_id = $2 AND period = $3 AND statut <> $4`

	var row invoiceRow
	err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, studentID, academicYearID, period, billing.InvoiceStatusCancelled)
	if err != nil {
		return billing.Invoice{}, trapNoRowsErr(err, billing.ErrInvoiceNotFound, "finding active invoice")
	}
	return row.toDomain(), nil
}

func (repo billingRepository) UpdateInvoice(ctx context.Context, inv billing.Invoice, exec ...core.DBExecutor) (billing.Invoice, error) {
	const q = `
		UPDATE invoice SET
			montant_ht = :montant_ht, montant_ttc = :montant_ttc,
			montant_paye = :montant_paye, solde = :solde, statut = :statut,
			date_emission = :date_emission, date_echeance = :date_echeance,
			notes = :notes, updated_at = :updated_at
		WHERE id = :id`

	res, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, newInvoiceRow(inv))
	if err != nil {
		return billing.Invoice{}, errors.Wrap(err, "updating invoice")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return billing.Invoice{}, billing.ErrInvoiceNotFound
	}
	return inv, nil
}

func (repo billingRepository) QueryUnpaidInvoices(ctx context.Context, exec ...core.DBExecutor) ([]billing.Invoice, error) {
	const q = `
		SELECT ` + invoiceColumns + `
		FROM invoice
		WHERE solde > 0 AND statut <> $1
		ORDER BY date_echeance ASC NULLS LAST`

	var rows []invoiceRow
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, billing.InvoiceStatusCancelled); err != nil {
		return nil, errors.Wrap(err, "querying unpaid invoices")
	}
	invs := make([]billing.Invoice, 0, len(rows))
	for _, r := range rows {
		invs = append(invs, r.toDomain())
	}
	return invs, nil
}

func (repo billingRepository) NextInvoiceSequence(ctx context.Context, year int, exec ...core.DBExecutor) (int, error) {
	return repo.nextSequence(ctx, "invoice", strconv.Itoa(year), exec)
}

const paymentColumns = `id, reference, invoice_id, student_id, academic_year_id,
	montant, mode_paiement, date_paiement, statut,
	received_by, validated_by, validated_at, notes, created_at, updated_at`

func (repo billingRepository) CreatePayment(ctx context.Context, pmt billing.Payment, exec ...core.DBExecutor) (billing.Payment, error) {
	if pmt.ID == "" {
		pmt.ID = uuid.New().String()
	}
	const q = `
		INSERT INTO payment (` + paymentColumns + `)
		VALUES (:id, :reference, :invoice_id, :student_id, :academic_year_id,
		        :montant, :mode_paiement, :date_paiement, :statut,
		        :received_by, :validated_by, :validated_at, :notes, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, newPaymentRow(pmt)); err != nil {
		return billing.Payment{}, errors.Wrap(err, "inserting payment")
	}
	return pmt, nil
}

func (repo billingRepository) GetPayment(ctx context.Context, id string, exec ...core.DBExecutor) (billing.Payment, error) {
	const q = `SELECT ` + paymentColumns + ` FROM payment WHERE id = $1`

	var row paymentRow
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, id); err != nil {
		return billing.Payment{}, trapNoRowsErr(err, billing.ErrPaymentNotFound, "finding payment")
	}
	return row.toDomain(), nil
}

func (repo billingRepository) UpdatePayment(ctx context.Context, pmt billing.Payment, exec ...core.DBExecutor) (billing.Payment, error) {
	const q = `
		UPDATE payment SET
			invoice_id = :invoice_id, montant = :montant, mode_paiement = :mode_paiement,
			date_paiement = :date_paiement, statut = :statut,
			validated_by = :validated_by, validated_at = :validated_at,
			notes = :notes, updated_at = :updated_at
		WHERE id = :id`

	res, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, newPaymentRow(pmt))
	if err != nil {
		return billing.Payment{}, errors.Wrap(err, "updating payment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return billing.Payment{}, billing.ErrPaymentNotFound
	}
	return pmt, nil
}

func (repo billingRepository) QueryPayments(ctx context.Context, filter billing.PaymentFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]billing.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payment WHERE true`
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.StudentID != "" {
		q += " AND student_id = " + arg(filter.StudentID)
	}
	if filter.AcademicYearID != "" {
		q += " AND academic_year_id = " + arg(filter.AcademicYearID)
	}
	if filter.InvoiceID != "" {
		q += " AND invoice_id = " + arg(filter.InvoiceID)
	}
	if filter.Statut != "" {
		q += " AND statut = " + arg(string(filter.Statut))
	}
	q += " ORDER BY " + paymentOrderBy(ordering)

	var rows []paymentRow
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying payments")
	}
	pmts := make([]billing.Payment, 0, len(rows))
	for _, r := range rows {
		pmts = append(pmts, r.toDomain())
	}
	return pmts, nil
}

// payment columns callers may order by; anything else is dropped
var paymentOrderableColumns = map[string]bool{
	"reference":     true,
	"date_paiement": true,
	"montant":       true,
	"statut":        true,
	"created_at":    true,
}

func paymentOrderBy(ordering []core.DBOrdering) string {
	orderList := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		if paymentOrderableColumns[ord.Field] {
			orderList = append(orderList, ord.String())
		}
	}
	if len(orderList) == 0 {
		return "reference"
	}
	return strings.Join(orderList, ", ")
}

func (repo billingRepository) SumValidatedPayments(ctx context.Context, invoiceID string, exec ...core.DBExecutor) (decimal.Decimal, error) {
	const q = `
		SELECT COALESCE(SUM(montant), 0)
		FROM payment
		WHERE invoice_id = $1 AND statut = $2`

	var sum decimal.Decimal
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &sum, q, invoiceID, billing.PaymentStatusValidated); err != nil {
		return decimal.Zero, errors.Wrap(err, "summing validated payments")
	}
	return sum, nil
}

func (repo billingRepository) SumValidatedStudentPayments(ctx context.Context, studentID, academicYearID string, exec ...core.DBExecutor) (decimal.Decimal, int, error) {
	const q = `
		SELECT COALESCE(SUM(montant), 0) AS total, COUNT(*) AS count
		FROM payment
		WHERE student_id = $1 AND academic_year_id = $2 AND statut = $3`

	var agg struct {
		Total decimal.Decimal `db:"total"`
		Count int             `db:"count"`
	}
	err := sqlx.GetContext(ctx, repo.getExec(exec), &agg, q, studentID, academicYearID, billing.PaymentStatusValidated)
	if err != nil {
		return decimal.Zero, 0, errors.Wrap(err, "summing student payments")
	}
	return agg.Total, agg.Count, nil
}

func (repo billingRepository) NextPaymentSequence(ctx context.Context, day string, exec ...core.DBExecutor) (int, error) {
	return repo.nextSequence(ctx, "payment", day, exec)
}

// nextSequence atomically bumps the (kind, scope) counter. Concurrent bumps
// serialize on the row; gaps from rolled-back transactions are acceptable.
func (repo billingRepository) nextSequence(ctx context.Context, kind, scope string, exec []core.DBExecutor) (int, error) {
	const q = `
		INSERT INTO billing_sequence (kind, scope, value)
		VALUES ($1, $2, 1)
		ON CONFLICT (kind, scope)
		DO UPDATE SET value = billing_sequence.value + 1
		RETURNING value`

	var seq int
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &seq, q, kind, scope); err != nil {
		return 0, errors.Wrap(err, "bumping sequence")
	}
	return seq, nil
}
