package billing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolisoft/makuta/core/billing"
)

func issueInvoice(t *testing.T, fx fixtures, studentID, period string) billing.Invoice {
	t.Helper()
	ctx := context.Background()
	inv, err := fx.invoiceSvc.Generate(ctx, billing.NewInvoice{StudentID: studentID, AcademicYearID: "y2026", Period: period}, "bursar")
	require.NoError(t, err)
	inv, err = fx.invoiceSvc.Issue(ctx, inv.ID, false, "bursar")
	require.NoError(t, err)
	return inv
}

func TestPaymentService_Record(t *testing.T) {
	ctx := context.Background()
	fx := setup(t)
	addPrimaryFees(fx)
	addEnrollment(fx, "std1", "y2026")
	inv := issueInvoice(t, fx, "std1", billing.PeriodAnnual)

	t.Run("zero amount", func(t *testing.T) {
		_, err := fx.paymentSvc.Record(ctx, billing.NewPayment{
			StudentID: "std1", AcademicYearID: "y2026",
			Montant: dec(0), ModePaiement: billing.ModeEspeces,
		}, "cashier")
		assert.Equal(t, billing.ErrInvalidAmount, err)
	})

	t.Run("negative amount", func(t *testing.T) {
		_, err := fx.paymentSvc.Record(ctx, billing.NewPayment{
			StudentID: "std1", AcademicYearID: "y2026",
			Montant: dec(-5000), ModePaiement: billing.ModeEspeces,
		}, "cashier")
		assert.Equal(t, billing.ErrInvalidAmount, err)
	})

	t.Run("unknown invoice", func(t *testing.T) {
		_, err := fx.paymentSvc.Record(ctx, billing.NewPayment{
			StudentID: "std1", AcademicYearID: "y2026", InvoiceID: "nope",
			Montant: dec(1000), ModePaiement: billing.ModeEspeces,
		}, "cashier")
		assert.Equal(t, billing.ErrInvoiceNotFound, err)
	})

	t.Run("ok, linked", func(t *testing.T) {
		pmt, err := fx.paymentSvc.Record(ctx, billing.NewPayment{
			StudentID: "std1", AcademicYearID: "y2026", InvoiceID: inv.ID,
			Montant: dec(150000), ModePaiement: billing.ModeMobileMoney,
		}, "cashier")
		require.NoError(t, err)

		assert.Equal(t, "PAY-20260310-0001", pmt.Reference)
		assert.Equal(t, billing.PaymentStatusPending, pmt.Statut)
		assert.Equal(t, "cashier", pmt.ReceivedBy)
		assert.Equal(t, testClock(), pmt.DatePaiement) // defaulted

		// pending funds never touch the invoice
		refreshed, err := fx.invoiceSvc.Get(ctx, inv.ID)
		require.NoError(t, err)
		assert.True(t, refreshed.MontantPaye.IsZero())
		assert.Equal(t, billing.InvoiceStatusIssued, refreshed.Statut)
	})

	t.Run("ok, unapplied", func(t *testing.T) {
		pmt, err := fx.paymentSvc.Record(ctx, billing.NewPayment{
			StudentID: "std1", AcademicYearID: "y2026",
			Montant: dec(50000), ModePaiement: billing.ModeEspeces,
		}, "cashier")
		require.NoError(t, err)
		assert.Equal(t, "PAY-20260310-0002", pmt.Reference)
		assert.Empty(t, pmt.InvoiceID)
	})

	t.Run("cancelled invoice refused", func(t *testing.T) {
		dead, err := fx.invoiceSvc.Generate(ctx, billing.NewInvoice{StudentID: "std1", AcademicYearID: "y2026", Period: billing.PeriodTerm1}, "bursar")
		require.NoError(t, err)
		_, err = fx.invoiceSvc.Cancel(ctx, dead.ID, "doublon", "bursar")
		require.NoError(t, err)

		_, err = fx.paymentSvc.Record(ctx, billing.NewPayment{
			StudentID: "std1", AcademicYearID: "y2026", InvoiceID: dead.ID,
			Montant: dec(1000), ModePaiement: billing.ModeEspeces,
		}, "cashier")
		assert.Equal(t, billing.ErrInvoiceNotFound, err)
	})
}

func TestPaymentService_Validate(t *testing.T) {
	ctx := context.Background()
	fx := setup(t)
	addPrimaryFees(fx)
	addEnrollment(fx, "std1", "y2026")
	inv := issueInvoice(t, fx, "std1", billing.PeriodAnnual) // ttc 450000

	record := func(t *testing.T, amount int64) billing.Payment {
		t.Helper()
		pmt, err := fx.paymentSvc.Record(ctx, billing.NewPayment{
			StudentID: "std1", AcademicYearID: "y2026", InvoiceID: inv.ID,
			Montant: dec(amount), ModePaiement: billing.ModeVirement,
		}, "cashier")
		require.NoError(t, err)
		return pmt
	}

	t.Run("partial payment", func(t *testing.T) {
		pmt := record(t, 150000)
		pmt, err := fx.paymentSvc.Validate(ctx, pmt.ID, "bursar")
		require.NoError(t, err)
		assert.Equal(t, billing.PaymentStatusValidated, pmt.Statut)
		assert.Equal(t, "bursar", pmt.ValidatedBy)
		assert.Equal(t, testClock(), pmt.ValidatedAt)

		refreshed, err := fx.invoiceSvc.Get(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, billing.InvoiceStatusPartiallyPaid, refreshed.Statut)
		assert.True(t, refreshed.MontantPaye.Equal(dec(150000)))
		assert.True(t, refreshed.Solde.Equal(dec(300000)))
		// montant_ttc == montant_paye + solde always
		assert.True(t, refreshed.MontantTTC.Equal(refreshed.MontantPaye.Add(refreshed.Solde)))

		// receipt goes out to the guardian
		require.NotEmpty(t, fx.sms.sent())
		assert.Contains(t, fx.sms.sent()[len(fx.sms.sent())-1].Body, pmt.Reference)
	})

	t.Run("already validated", func(t *testing.T) {
		pmt := record(t, 10000)
		_, err := fx.paymentSvc.Validate(ctx, pmt.ID, "bursar")
		require.NoError(t, err)
		_, err = fx.paymentSvc.Validate(ctx, pmt.ID, "bursar")
		assert.Equal(t, billing.ErrPaymentNotPending, err)
	})

	t.Run("completing payment settles the invoice", func(t *testing.T) {
		refreshed, err := fx.invoiceSvc.Get(ctx, inv.ID)
		require.NoError(t, err)

		pmt := record(t, 290000) // 150000 + 10000 already in
		_, err = fx.paymentSvc.Validate(ctx, pmt.ID, "bursar")
		require.NoError(t, err)

		refreshed, err = fx.invoiceSvc.Get(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, billing.InvoiceStatusPaid, refreshed.Statut)
		assert.True(t, refreshed.MontantPaye.Equal(dec(450000)))
		assert.True(t, refreshed.Solde.IsZero())
	})

	t.Run("not found", func(t *testing.T) {
		_, err := fx.paymentSvc.Validate(ctx, "nope", "bursar")
		assert.Equal(t, billing.ErrPaymentNotFound, err)
	})
}

func TestPaymentService_Validate_overpayment(t *testing.T) {
	ctx := context.Background()
	fx := setup(t)
	addPrimaryFees(fx)
	addEnrollment(fx, "std1", "y2026")
	inv := issueInvoice(t, fx, "std1", billing.PeriodAnnual)

	pmt, err := fx.paymentSvc.Record(ctx, billing.NewPayment{
		StudentID: "std1", AcademicYearID: "y2026", InvoiceID: inv.ID,
		Montant: dec(500000), ModePaiement: billing.ModeVirement,
	}, "cashier")
	require.NoError(t, err)
	_, err = fx.paymentSvc.Validate(ctx, pmt.ID, "bursar")
	require.NoError(t, err)

	// overpayment leaves a credit: negative solde, invoice payee
	refreshed, err := fx.invoiceSvc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceStatusPaid, refreshed.Statut)
	assert.True(t, refreshed.Solde.Equal(dec(-50000)), "solde = %s", refreshed.Solde)
}

func TestPaymentService_Cancel(t *testing.T) {
	ctx := context.Background()
	fx := setup(t)
	addPrimaryFees(fx)
	addEnrollment(fx, "std1", "y2026")
	inv := issueInvoice(t, fx, "std1", billing.PeriodAnnual)

	t.Run("cancelled validated payment reverts the invoice", func(t *testing.T) {
		pmt, err := fx.paymentSvc.Record(ctx, billing.NewPayment{
			StudentID: "std1", AcademicYearID: "y2026", InvoiceID: inv.ID,
			Montant: dec(450000), ModePaiement: billing.ModeCheque,
		}, "cashier")
		require.NoError(t, err)
		_, err = fx.paymentSvc.Validate(ctx, pmt.ID, "bursar")
		require.NoError(t, err)

		refreshed, err := fx.invoiceSvc.Get(ctx, inv.ID)
		require.NoError(t, err)
		require.Equal(t, billing.InvoiceStatusPaid, refreshed.Statut)

		pmt, err = fx.paymentSvc.Cancel(ctx, pmt.ID, "cheque sans provision", "bursar")
		require.NoError(t, err)
		assert.Equal(t, billing.PaymentStatusCancelled, pmt.Statut)
		assert.Equal(t, "cheque sans provision", pmt.Notes)

		refreshed, err = fx.invoiceSvc.Get(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, billing.InvoiceStatusIssued, refreshed.Statut)
		assert.True(t, refreshed.MontantPaye.IsZero())
		assert.True(t, refreshed.Solde.Equal(refreshed.MontantTTC))
	})

	t.Run("pending payment cancellable", func(t *testing.T) {
		pmt, err := fx.paymentSvc.Record(ctx, billing.NewPayment{
			StudentID: "std1", AcademicYearID: "y2026",
			Montant: dec(1000), ModePaiement: billing.ModeEspeces,
		}, "cashier")
		require.NoError(t, err)
		pmt, err = fx.paymentSvc.Cancel(ctx, pmt.ID, "erreur", "bursar")
		require.NoError(t, err)
		assert.Equal(t, billing.PaymentStatusCancelled, pmt.Statut)
	})

	t.Run("cancelled payment not cancellable again", func(t *testing.T) {
		pmt, err := fx.paymentSvc.Record(ctx, billing.NewPayment{
			StudentID: "std1", AcademicYearID: "y2026",
			Montant: dec(1000), ModePaiement: billing.ModeEspeces,
		}, "cashier")
		require.NoError(t, err)
		_, err = fx.paymentSvc.Cancel(ctx, pmt.ID, "erreur", "bursar")
		require.NoError(t, err)
		_, err = fx.paymentSvc.Cancel(ctx, pmt.ID, "encore", "bursar")
		assert.Equal(t, billing.ErrPaymentNotCancellable, err)
	})
}

func TestPaymentService_CalculateBalance(t *testing.T) {
	ctx := context.Background()
	fx := setup(t)
	addPrimaryFees(fx)
	addEnrollment(fx, "std1", "y2026")
	inv := issueInvoice(t, fx, "std1", billing.PeriodAnnual)

	amounts := []int64{100000, 50000, 25000}
	for _, amount := range amounts {
		pmt, err := fx.paymentSvc.Record(ctx, billing.NewPayment{
			StudentID: "std1", AcademicYearID: "y2026", InvoiceID: inv.ID,
			Montant: dec(amount), ModePaiement: billing.ModeEspeces,
		}, "cashier")
		require.NoError(t, err)
		_, err = fx.paymentSvc.Validate(ctx, pmt.ID, "bursar")
		require.NoError(t, err)
	}
	// pending payments never count
	_, err := fx.paymentSvc.Record(ctx, billing.NewPayment{
		StudentID: "std1", AcademicYearID: "y2026",
		Montant: dec(77777), ModePaiement: billing.ModeEspeces,
	}, "cashier")
	require.NoError(t, err)

	bal, err := fx.paymentSvc.CalculateBalance(ctx, "std1", "y2026")
	require.NoError(t, err)
	assert.True(t, bal.TotalPaid.Equal(dec(175000)), "total_paid = %s", bal.TotalPaid)
	assert.Equal(t, 3, bal.PaymentsCount)

	empty, err := fx.paymentSvc.CalculateBalance(ctx, "ghost", "y2026")
	require.NoError(t, err)
	assert.True(t, empty.TotalPaid.IsZero())
	assert.Zero(t, empty.PaymentsCount)
}

func TestPaymentService_Query(t *testing.T) {
	ctx := context.Background()
	fx := setup(t)
	addPrimaryFees(fx)
	addEnrollment(fx, "std1", "y2026")
	inv := issueInvoice(t, fx, "std1", billing.PeriodAnnual)

	linked, err := fx.paymentSvc.Record(ctx, billing.NewPayment{
		StudentID: "std1", AcademicYearID: "y2026", InvoiceID: inv.ID,
		Montant: dec(1000), ModePaiement: billing.ModeEspeces,
	}, "cashier")
	require.NoError(t, err)
	_, err = fx.paymentSvc.Record(ctx, billing.NewPayment{
		StudentID: "std1", AcademicYearID: "y2026",
		Montant: dec(2000), ModePaiement: billing.ModeEspeces,
	}, "cashier")
	require.NoError(t, err)

	all, err := fx.paymentSvc.Query(ctx, billing.PaymentFilter{StudentID: "std1"}, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byInvoice, err := fx.paymentSvc.Query(ctx, billing.PaymentFilter{InvoiceID: inv.ID}, nil)
	require.NoError(t, err)
	require.Len(t, byInvoice, 1)
	assert.Equal(t, linked.ID, byInvoice[0].ID)
}

func TestPaymentStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from billing.PaymentStatus
		to   billing.PaymentStatus
		want bool
	}{
		{billing.PaymentStatusPending, billing.PaymentStatusValidated, true},
		{billing.PaymentStatusPending, billing.PaymentStatusRejected, true},
		{billing.PaymentStatusPending, billing.PaymentStatusCancelled, true},
		{billing.PaymentStatusValidated, billing.PaymentStatusCancelled, true},
		{billing.PaymentStatusValidated, billing.PaymentStatusPending, false},
		{billing.PaymentStatusRejected, billing.PaymentStatusValidated, false},
		{billing.PaymentStatusCancelled, billing.PaymentStatusValidated, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestInvoiceStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from billing.InvoiceStatus
		to   billing.InvoiceStatus
		want bool
	}{
		{billing.InvoiceStatusDraft, billing.InvoiceStatusIssued, true},
		{billing.InvoiceStatusDraft, billing.InvoiceStatusCancelled, true},
		{billing.InvoiceStatusDraft, billing.InvoiceStatusPaid, false},
		{billing.InvoiceStatusIssued, billing.InvoiceStatusPartiallyPaid, true},
		{billing.InvoiceStatusIssued, billing.InvoiceStatusPaid, true},
		{billing.InvoiceStatusPartiallyPaid, billing.InvoiceStatusIssued, true},
		{billing.InvoiceStatusPaid, billing.InvoiceStatusIssued, true},
		{billing.InvoiceStatusCancelled, billing.InvoiceStatusIssued, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}
