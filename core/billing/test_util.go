package billing

import (
	"time"

	"github.com/kolisoft/makuta/core"
)

// NewInvoiceServiceMock is NewInvoiceService with an injectable clock, for
// deterministic timestamps, numbers and references in tests.
func NewInvoiceServiceMock(
	db core.DB,
	repo Repository,
	enrollments EnrollmentRepository,
	smsSvc core.SMSService,
	mailSvc core.EmailService,
	logger core.Logger,
	clock func() time.Time,
) *InvoiceService {
	svc := NewInvoiceService(db, repo, enrollments, smsSvc, mailSvc, logger)
	if clock != nil {
		svc.now = clock
	}
	return svc
}

// NewPaymentServiceMock is NewPaymentService with an injectable clock.
func NewPaymentServiceMock(
	db core.DB,
	repo Repository,
	enrollments EnrollmentRepository,
	smsSvc core.SMSService,
	logger core.Logger,
	clock func() time.Time,
) *PaymentService {
	svc := NewPaymentService(db, repo, enrollments, smsSvc, logger)
	if clock != nil {
		svc.now = clock
	}
	return svc
}
