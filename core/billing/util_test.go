package billing_test

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kolisoft/makuta/core"
	"github.com/kolisoft/makuta/core/billing"
	dummydb "github.com/kolisoft/makuta/storage/database/dummy"
)

var testClock = func() time.Time {
	return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
}

type testRepo interface {
	billing.Repository
	billing.EnrollmentRepository

	AddFeeType(billing.FeeType) billing.FeeType
	AddScholarship(billing.Scholarship) billing.Scholarship
	AddEnrollment(billing.Enrollment) billing.Enrollment
}

type fixtures struct {
	repo       testRepo
	invoiceSvc *billing.InvoiceService
	paymentSvc *billing.PaymentService
	sms        *smsRecorder
	mail       *mailRecorder
}

func setup(t *testing.T) fixtures {
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	repo := dummydb.NewBillingRepository(db)
	sms := new(smsRecorder)
	mail := new(mailRecorder)
	logger := nopLogger{}

	return fixtures{
		repo:       repo,
		invoiceSvc: billing.NewInvoiceServiceMock(nil, repo, repo, sms, mail, logger, testClock),
		paymentSvc: billing.NewPaymentServiceMock(nil, repo, repo, sms, logger, testClock),
		sms:        sms,
		mail:       mail,
	}
}

func dec(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

// addPrimaryFees registers the standard primaire catalog: 300000 + 150000.
func addPrimaryFees(fx fixtures) {
	fx.repo.AddFeeType(billing.FeeType{Name: "Frais scolaires", Amount: dec(300000), Cycle: billing.CyclePrimaire, IsActive: true, IsMandatory: true})
	fx.repo.AddFeeType(billing.FeeType{Name: "Frais connexes", Amount: dec(150000), Cycle: billing.CyclePrimaire, IsActive: true, IsMandatory: true})
	// inactive and optional fees never count
	fx.repo.AddFeeType(billing.FeeType{Name: "Ancien tarif", Amount: dec(999999), Cycle: billing.CyclePrimaire, IsActive: false, IsMandatory: true})
	fx.repo.AddFeeType(billing.FeeType{Name: "Cantine", Amount: dec(80000), Cycle: billing.CyclePrimaire, IsActive: true, IsMandatory: false})
}

func addEnrollment(fx fixtures, studentID, yearID string) billing.Enrollment {
	return fx.repo.AddEnrollment(billing.Enrollment{
		StudentID:      studentID,
		AcademicYearID: yearID,
		ClassName:      "5eme A",
		Cycle:          billing.CyclePrimaire,
		GuardianPhone:  "+243810000001",
		GuardianEmail:  "parent@test.cd",
		IsActive:       true,
	})
}

// recorders capture notifications synchronously

type smsRecorder struct {
	mu   sync.Mutex
	msgs []core.SMSMessage
}

var _ core.SMSService = (*smsRecorder)(nil)

func (r *smsRecorder) SendMessages(messages ...*core.SMSMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range messages {
		r.msgs = append(r.msgs, *msg)
	}
}

func (r *smsRecorder) sent() []core.SMSMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.SMSMessage(nil), r.msgs...)
}

type mailRecorder struct {
	mu   sync.Mutex
	msgs []core.EmailMessage
}

var _ core.EmailService = (*mailRecorder)(nil)

func (r *mailRecorder) SendMessages(messages ...*core.EmailMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range messages {
		r.msgs = append(r.msgs, *msg)
	}
}

func (r *mailRecorder) sent() []core.EmailMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.EmailMessage(nil), r.msgs...)
}

type nopLogger struct{}

var _ core.Logger = (*nopLogger)(nil)

func (nopLogger) Enable(bool)                  {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}
