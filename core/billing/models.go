package billing

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/kolisoft/makuta/core"
)

// School cycles
const (
	CycleMaternelle = "maternelle"
	CyclePrimaire   = "primaire"
	CycleCollege    = "college"
	CycleLycee      = "lycee"
)

var AllCycles = []string{CycleMaternelle, CyclePrimaire, CycleCollege, CycleLycee}

// Billing periods: one invoice per student per academic year per period.
const (
	PeriodAnnual = "annuel"
	PeriodTerm1  = "trimestriel_1"
	PeriodTerm2  = "trimestriel_2"
	PeriodTerm3  = "trimestriel_3"
)

var AllPeriods = []string{PeriodAnnual, PeriodTerm1, PeriodTerm2, PeriodTerm3}

// Payment modes
const (
	ModeEspeces     = "especes"
	ModeCheque      = "cheque"
	ModeVirement    = "virement"
	ModeMobileMoney = "mobile_money"
)

var AllPaymentModes = []string{ModeEspeces, ModeCheque, ModeVirement, ModeMobileMoney}

// InvoiceStatus is the closed set of invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "brouillon"
	InvoiceStatusIssued        InvoiceStatus = "emise"
	InvoiceStatusPartiallyPaid InvoiceStatus = "partiellement_payee"
	InvoiceStatusPaid          InvoiceStatus = "payee"
	InvoiceStatusCancelled     InvoiceStatus = "annulee"
)

// invoiceTransitions lists the allowed forward moves for each state.
// Paid/PartiallyPaid may move back to Issued when every backing payment
// gets cancelled (reconciliation rule).
var invoiceTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusDraft:         {InvoiceStatusIssued, InvoiceStatusCancelled},
	InvoiceStatusIssued:        {InvoiceStatusPartiallyPaid, InvoiceStatusPaid, InvoiceStatusCancelled},
	InvoiceStatusPartiallyPaid: {InvoiceStatusPaid, InvoiceStatusIssued},
	InvoiceStatusPaid:          {InvoiceStatusPartiallyPaid, InvoiceStatusIssued},
	InvoiceStatusCancelled:     {},
}

func (s InvoiceStatus) CanTransitionTo(target InvoiceStatus) bool {
	for _, t := range invoiceTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// PaymentStatus is the closed set of payment lifecycle states.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "en_attente"
	PaymentStatusValidated PaymentStatus = "valide"
	PaymentStatusRejected  PaymentStatus = "rejete"
	PaymentStatusCancelled PaymentStatus = "annule"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:   {PaymentStatusValidated, PaymentStatusRejected, PaymentStatusCancelled},
	PaymentStatusValidated: {PaymentStatusCancelled},
	PaymentStatusRejected:  {},
	PaymentStatusCancelled: {},
}

func (s PaymentStatus) CanTransitionTo(target PaymentStatus) bool {
	for _, t := range paymentTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// FeeType is an item of the chargeable catalog, scoped to a school cycle.
// Reference data: billing only ever reads it.
type FeeType struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Amount      decimal.Decimal `json:"amount"`
	Cycle       string          `json:"cycle"`
	IsActive    bool            `json:"is_active"`
	IsMandatory bool            `json:"is_mandatory"`
	CreatedAt   time.Time       `json:"created_at"` // UTC
	UpdatedAt   time.Time       `json:"updated_at"` // UTC
}

// Scholarship modes
const (
	ScholarshipModePercentage = "percentage"
	ScholarshipModeFixed      = "fixed"

	ScholarshipStatusActive = "active"
)

// Scholarship is a per-student discount grant for one academic year.
// Granted by an approval workflow elsewhere; read-only here.
type Scholarship struct {
	ID             string          `json:"id"`
	StudentID      string          `json:"student_id"`
	AcademicYearID string          `json:"academic_year_id"`
	Type           string          `json:"type"`
	Mode           string          `json:"mode"` // percentage | fixed
	Valeur         decimal.Decimal `json:"valeur"`
	Statut         string          `json:"statut"`
	CreatedAt      time.Time       `json:"created_at"` // UTC
}

// DiscountOn returns the discount this scholarship contributes on total.
// A fixed grant never discounts more than the total itself.
func (s Scholarship) DiscountOn(total decimal.Decimal) decimal.Decimal {
	switch s.Mode {
	case ScholarshipModePercentage:
		return total.Mul(s.Valeur).Div(decimal.NewFromInt(100))
	case ScholarshipModeFixed:
		if s.Valeur.GreaterThan(total) {
			return total
		}
		return s.Valeur
	}
	return decimal.Zero
}

// Enrollment is the projection of a student's active class membership this
// billing cluster needs: the fee-scoping cycle and guardian contact points.
type Enrollment struct {
	StudentID      string `json:"student_id"`
	AcademicYearID string `json:"academic_year_id"`
	ClassName      string `json:"class_name"`
	Cycle          string `json:"cycle"`
	GuardianPhone  string `json:"guardian_phone"`
	GuardianEmail  string `json:"guardian_email"`
	IsActive       bool   `json:"is_active"`
}

// Invoice is one billable statement per student and period.
// Solde is always derived: solde == montant_ttc - montant_paye.
type Invoice struct {
	ID             string          `json:"id"`
	Number         string          `json:"number"`
	StudentID      string          `json:"student_id"`
	AcademicYearID string          `json:"academic_year_id"`
	Period         string          `json:"period"`
	MontantHT      decimal.Decimal `json:"montant_ht"`
	MontantTTC     decimal.Decimal `json:"montant_ttc"`
	MontantPaye    decimal.Decimal `json:"montant_paye"`
	Solde          decimal.Decimal `json:"solde"`
	Statut         InvoiceStatus   `json:"statut"`
	DateEmission   time.Time       `json:"date_emission"`
	DateEcheance   time.Time       `json:"date_echeance"`
	Notes          string          `json:"notes"`
	GeneratedBy    string          `json:"generated_by"`
	CreatedAt      time.Time       `json:"created_at"` // UTC
	UpdatedAt      time.Time       `json:"updated_at"` // UTC
}

// AppendNote adds note on its own line, preserving prior notes.
func (inv *Invoice) AppendNote(note string) {
	note = core.CleanString(note)
	if note == "" {
		return
	}
	if inv.Notes == "" {
		inv.Notes = note
		return
	}
	inv.Notes = inv.Notes + "\n" + note
}

func (inv *Invoice) IsOverdue(now time.Time) bool {
	return inv.Solde.IsPositive() &&
		inv.Statut != InvoiceStatusCancelled &&
		!inv.DateEcheance.IsZero() &&
		inv.DateEcheance.Before(now)
}

// UnpaidInvoice is an invoice in the unpaid listing, flagged when its
// due date has passed.
type UnpaidInvoice struct {
	Invoice
	IsOverdue bool `json:"is_overdue"`
}

// Payment is one received-funds record, optionally applied to an invoice.
type Payment struct {
	ID             string          `json:"id"`
	Reference      string          `json:"reference"`
	InvoiceID      string          `json:"invoice_id,omitempty"` // empty = unapplied
	StudentID      string          `json:"student_id"`
	AcademicYearID string          `json:"academic_year_id"`
	Montant        decimal.Decimal `json:"montant"`
	ModePaiement   string          `json:"mode_paiement"`
	DatePaiement   time.Time       `json:"date_paiement"`
	Statut         PaymentStatus   `json:"statut"`
	ReceivedBy     string          `json:"received_by"`
	ValidatedBy    string          `json:"validated_by,omitempty"`
	ValidatedAt    time.Time       `json:"validated_at"`
	Notes          string          `json:"notes"`
	CreatedAt      time.Time       `json:"created_at"` // UTC
	UpdatedAt      time.Time       `json:"updated_at"` // UTC
}

// AppendNote adds note on its own line, preserving prior notes.
func (p *Payment) AppendNote(note string) {
	note = core.CleanString(note)
	if note == "" {
		return
	}
	if p.Notes == "" {
		p.Notes = note
		return
	}
	p.Notes = p.Notes + "\n" + note
}

// TotalDue is the discount-aware amount breakdown for one student/period.
type TotalDue struct {
	TotalAmount   decimal.Decimal `json:"total_amount"`
	TotalDiscount decimal.Decimal `json:"total_discount"`
	NetAmount     decimal.Decimal `json:"net_amount"`
	TotalPaid     decimal.Decimal `json:"total_paid"`
	RemainingDue  decimal.Decimal `json:"remaining_due"`
}

// StudentBalance is a read-only aggregate of a student's validated payments.
type StudentBalance struct {
	StudentID      string          `json:"student_id"`
	AcademicYearID string          `json:"academic_year_id"`
	TotalPaid      decimal.Decimal `json:"total_paid"`
	PaymentsCount  int             `json:"payments_count"`
}

// NewInvoice contains information needed to generate an Invoice.
type NewInvoice struct {
	StudentID      string    `json:"student_id" validate:"required"`
	AcademicYearID string    `json:"academic_year_id" validate:"required"`
	Period         string    `json:"period" validate:"required,billingperiod"`
	DateEcheance   time.Time `json:"date_echeance"`
	Notes          string    `json:"notes"`
}

func (ni *NewInvoice) Validate(validate *validator.Validate) error {
	ni.StudentID = core.CleanString(ni.StudentID)
	ni.AcademicYearID = core.CleanString(ni.AcademicYearID)
	ni.Period = core.CleanString(ni.Period, true /* lower */)
	ni.Notes = core.CleanString(ni.Notes)
	return validate.Struct(ni)
}

// NewPayment contains information needed to record a Payment.
type NewPayment struct {
	StudentID      string          `json:"student_id" validate:"required"`
	AcademicYearID string          `json:"academic_year_id" validate:"required"`
	InvoiceID      string          `json:"invoice_id"`
	Montant        decimal.Decimal `json:"montant"`
	ModePaiement   string          `json:"mode_paiement" validate:"required,paymentmode"`
	DatePaiement   time.Time       `json:"date_paiement"`
	Notes          string          `json:"notes"`
}

func (np *NewPayment) Validate(validate *validator.Validate) error {
	np.StudentID = core.CleanString(np.StudentID)
	np.AcademicYearID = core.CleanString(np.AcademicYearID)
	np.InvoiceID = core.CleanString(np.InvoiceID)
	np.ModePaiement = core.CleanString(np.ModePaiement, true /* lower */)
	np.Notes = core.CleanString(np.Notes)

	if err := validate.Struct(np); err != nil {
		return err
	}
	// validator tags cannot introspect decimal.Decimal; checked by hand
	if !np.Montant.IsPositive() {
		return core.NewValidationError(ErrInvalidAmount, core.FieldError{Field: "montant", Error: ErrInvalidAmount.Error()})
	}
	return nil
}

// PaymentFilter narrows payment queries. Zero-valued fields are ignored.
type PaymentFilter struct {
	StudentID      string        `query:"student_id"`
	AcademicYearID string        `query:"academic_year_id"`
	InvoiceID      string        `query:"invoice_id"`
	Statut         PaymentStatus `query:"statut"`
}

func (pf *PaymentFilter) IsEmpty() bool {
	return pf.StudentID == "" && pf.AcademicYearID == "" && pf.InvoiceID == "" && pf.Statut == ""
}
