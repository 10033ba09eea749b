package dummydb

import (
	"context"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kolisoft/makuta/core"
	"github.com/kolisoft/makuta/core/billing"
)

type billingRepository struct {
	db *billingTables
}

var (
	_ billing.Repository           = (*billingRepository)(nil) // interface compliance check
	_ billing.EnrollmentRepository = (*billingRepository)(nil)
)

func NewBillingRepository(db *DB) *billingRepository {
	return &billingRepository{db: db.billing}
}

// Fixtures

// AddFeeType registers catalog reference data for tests.
func (repo *billingRepository) AddFeeType(ft billing.FeeType) billing.FeeType {
	repo.db.Lock()
	defer repo.db.Unlock()
	if ft.ID == "" {
		ft.ID = uuid.New().String()
	}
	repo.db.feeTypes[ft.ID] = &ft
	return ft
}

// AddScholarship registers a discount grant for tests.
func (repo *billingRepository) AddScholarship(sch billing.Scholarship) billing.Scholarship {
	repo.db.Lock()
	defer repo.db.Unlock()
	if sch.ID == "" {
		sch.ID = uuid.New().String()
	}
	repo.db.scholarships[sch.ID] = &sch
	return sch
}

// AddEnrollment registers an active class membership for tests.
func (repo *billingRepository) AddEnrollment(enr billing.Enrollment) billing.Enrollment {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.enrollments[enrollmentKey(enr.StudentID, enr.AcademicYearID)] = &enr
	return enr
}

func enrollmentKey(studentID, yearID string) string { return studentID + "/" + yearID }

// billing.EnrollmentRepository

func (repo *billingRepository) GetActiveEnrollment(_ context.Context, studentID, academicYearID string, _ ...core.DBExecutor) (billing.Enrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if enr, ok := repo.db.enrollments[enrollmentKey(studentID, academicYearID)]; ok && enr.IsActive {
		return *enr, nil
	}
	return billing.Enrollment{}, billing.ErrNoActiveEnrollment
}

func (repo *billingRepository) QueryActiveEnrollments(_ context.Context, academicYearID string, _ ...core.DBExecutor) ([]billing.Enrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	enrs := make([]billing.Enrollment, 0)
	for _, enr := range repo.db.enrollments {
		if enr.AcademicYearID == academicYearID && enr.IsActive {
			enrs = append(enrs, *enr)
		}
	}
	sort.Slice(enrs, func(i, j int) bool { return enrs[i].StudentID < enrs[j].StudentID })
	return enrs, nil
}

// billing.Repository

func (repo *billingRepository) QueryMandatoryFeeTypes(_ context.Context, cycle string, _ ...core.DBExecutor) ([]billing.FeeType, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	fts := make([]billing.FeeType, 0, len(repo.db.feeTypes))
	for _, ft := range repo.db.feeTypes {
		if ft.IsActive && ft.IsMandatory && ft.Cycle == cycle {
			fts = append(fts, *ft)
		}
	}
	sort.Slice(fts, func(i, j int) bool { return fts[i].Name < fts[j].Name })
	return fts, nil
}

func (repo *billingRepository) QueryActiveScholarships(_ context.Context, studentID, academicYearID string, _ ...core.DBExecutor) ([]billing.Scholarship, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	schs := make([]billing.Scholarship, 0)
	for _, sch := range repo.db.scholarships {
		if sch.StudentID == studentID && sch.AcademicYearID == academicYearID && sch.Statut == billing.ScholarshipStatusActive {
			schs = append(schs, *sch)
		}
	}
	sort.Slice(schs, func(i, j int) bool { return schs[i].ID < schs[j].ID })
	return schs, nil
}

func (repo *billingRepository) CreateInvoice(_ context.Context, inv billing.Invoice, _ ...core.DBExecutor) (billing.Invoice, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	for _, other := range repo.db.invoices {
		if other.StudentID == inv.StudentID &&
			other.AcademicYearID == inv.AcademicYearID &&
			other.Period == inv.Period &&
			other.Statut != billing.InvoiceStatusCancelled {
			return billing.Invoice{}, billing.ErrDuplicatePeriod
		}
	}
	repo.db.invoices[inv.ID] = &inv
	return inv, nil
}

func (repo *billingRepository) GetInvoice(_ context.Context, id string, _ ...core.DBExecutor) (billing.Invoice, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if inv, ok := repo.db.invoices[id]; ok {
		return *inv, nil
	}
	return billing.Invoice{}, billing.ErrInvoiceNotFound
}

func (repo *billingRepository) GetInvoiceForUpdate(ctx context.Context, id string, exec ...core.DBExecutor) (billing.Invoice, error) {
	// no row locks in-memory; the table mutex covers each call
	return repo.GetInvoice(ctx, id, exec...)
}

func (repo *billingRepository) GetActiveInvoice(_ context.Context, studentID, academicYearID, period string, _ ...core.DBExecutor) (billing.Invoice, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, inv := range repo.db.invoices {
		if inv.StudentID == studentID &&
			inv.AcademicYearID == academicYearID &&
			inv.Period == period &&
			inv.Statut != billing.InvoiceStatusCancelled {
			return *inv, nil
		}
	}
	return billing.Invoice{}, billing.ErrInvoiceNotFound
}

func (repo *billingRepository) UpdateInvoice(_ context.Context, inv billing.Invoice, _ ...core.DBExecutor) (billing.Invoice, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.invoices[inv.ID]; !ok {
		return billing.Invoice{}, billing.ErrInvoiceNotFound
	}
	repo.db.invoices[inv.ID] = &inv
	return inv, nil
}

func (repo *billingRepository) QueryUnpaidInvoices(_ context.Context, _ ...core.DBExecutor) ([]billing.Invoice, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	invs := make([]billing.Invoice, 0)
	for _, inv := range repo.db.invoices {
		if inv.Solde.IsPositive() && inv.Statut != billing.InvoiceStatusCancelled {
			invs = append(invs, *inv)
		}
	}
	sort.Slice(invs, func(i, j int) bool { return invs[i].DateEcheance.Before(invs[j].DateEcheance) })
	return invs, nil
}

func (repo *billingRepository) NextInvoiceSequence(_ context.Context, year int, _ ...core.DBExecutor) (int, error) {
	return repo.nextSequence("invoice/" + strconv.Itoa(year)), nil
}

func (repo *billingRepository) CreatePayment(_ context.Context, pmt billing.Payment, _ ...core.DBExecutor) (billing.Payment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if pmt.ID == "" {
		pmt.ID = uuid.New().String()
	}
	repo.db.payments[pmt.ID] = &pmt
	return pmt, nil
}

func (repo *billingRepository) GetPayment(_ context.Context, id string, _ ...core.DBExecutor) (billing.Payment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if pmt, ok := repo.db.payments[id]; ok {
		return *pmt, nil
	}
	return billing.Payment{}, billing.ErrPaymentNotFound
}

func (repo *billingRepository) UpdatePayment(_ context.Context, pmt billing.Payment, _ ...core.DBExecutor) (billing.Payment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.payments[pmt.ID]; !ok {
		return billing.Payment{}, billing.ErrPaymentNotFound
	}
	repo.db.payments[pmt.ID] = &pmt
	return pmt, nil
}

// QueryPayments ignores ordering, always sorting by reference.
func (repo *billingRepository) QueryPayments(_ context.Context, filter billing.PaymentFilter, _ []core.DBOrdering, _ ...core.DBExecutor) ([]billing.Payment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	pmts := make([]billing.Payment, 0)
	for _, pmt := range repo.db.payments {
		if filter.StudentID != "" && pmt.StudentID != filter.StudentID {
			continue
		}
		if filter.AcademicYearID != "" && pmt.AcademicYearID != filter.AcademicYearID {
			continue
		}
		if filter.InvoiceID != "" && pmt.InvoiceID != filter.InvoiceID {
			continue
		}
		if filter.Statut != "" && pmt.Statut != filter.Statut {
			continue
		}
		pmts = append(pmts, *pmt)
	}
	sort.Slice(pmts, func(i, j int) bool { return pmts[i].Reference < pmts[j].Reference })
	return pmts, nil
}

func (repo *billingRepository) SumValidatedPayments(_ context.Context, invoiceID string, _ ...core.DBExecutor) (decimal.Decimal, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	sum := decimal.Zero
	for _, pmt := range repo.db.payments {
		if pmt.InvoiceID == invoiceID && pmt.Statut == billing.PaymentStatusValidated {
			sum = sum.Add(pmt.Montant)
		}
	}
	return sum, nil
}

func (repo *billingRepository) SumValidatedStudentPayments(_ context.Context, studentID, academicYearID string, _ ...core.DBExecutor) (decimal.Decimal, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	sum := decimal.Zero
	var count int
	for _, pmt := range repo.db.payments {
		if pmt.StudentID == studentID && pmt.AcademicYearID == academicYearID && pmt.Statut == billing.PaymentStatusValidated {
			sum = sum.Add(pmt.Montant)
			count++
		}
	}
	return sum, count, nil
}

func (repo *billingRepository) NextPaymentSequence(_ context.Context, day string, _ ...core.DBExecutor) (int, error) {
	return repo.nextSequence("payment/" + day), nil
}

func (repo *billingRepository) nextSequence(key string) int {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.sequences[key]++
	return repo.db.sequences[key]
}
