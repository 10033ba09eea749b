package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/kolisoft/makuta/core"
	"github.com/kolisoft/makuta/core/billing"
	dummydb "github.com/kolisoft/makuta/storage/database/dummy"
)

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

type nopLogger struct{}

func (nopLogger) Enable(bool)                  {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

var _ core.Logger = (*nopLogger)(nil)

func setup(t *testing.T) (*commandLine, *dummyRepo) {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags)

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	repo := dummydb.NewBillingRepository(db)

	clock := func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) }
	cli := &commandLine{
		db:         &sqlx.DB{},
		invoiceSvc: billing.NewInvoiceServiceMock(nil, repo, repo, nil, nil, nopLogger{}, clock),
	}
	return cli, &dummyRepo{repo}
}

type dummyRepo struct {
	inner interface {
		billing.Repository
		billing.EnrollmentRepository
		AddFeeType(billing.FeeType) billing.FeeType
		AddEnrollment(billing.Enrollment) billing.Enrollment
	}
}

func (r *dummyRepo) addStudent(studentID, yearID string) {
	r.inner.AddFeeType(billing.FeeType{
		Name: "Frais scolaires", Amount: decimal.NewFromInt(450000),
		Cycle: billing.CyclePrimaire, IsActive: true, IsMandatory: true,
	})
	r.inner.AddEnrollment(billing.Enrollment{
		StudentID: studentID, AcademicYearID: yearID,
		Cycle: billing.CyclePrimaire, IsActive: true,
	})
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s requires a VERSION argument", command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create requires a NAME argument")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to requires a VERSION argument"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create requires a NAME argument"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "payment_index", "sql"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != nil {
				if tt.wantErr != nil {
					if err != tt.wantErr {
						t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
					}
				} else if tt.wantErrStr != "" {
					if err.Error() != tt.wantErrStr {
						t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
					}
				} else {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
			}
		})
	}
}

func Test_commandLine_genInvoice(t *testing.T) {
	cli, repo := setup(t)
	repo.addStudent("std1", "y2026")

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "missing year", args: []string{"geninvoice", "-student", "std1"}, wantErr: errHelp},
		{name: "bad due date", args: []string{"geninvoice", "-student", "std1", "-year", "y2026", "-due", "lol"}, wantErrStr: `due must be of form YYYY-MM-DD (got "lol")`},
		{name: "no enrollment", args: []string{"geninvoice", "-student", "ghost", "-year", "y2026"}, wantErr: billing.ErrNoActiveEnrollment},
		{name: "ok", args: []string{"geninvoice", "-student", "std1", "-year", "y2026"}},
		{name: "duplicate period", args: []string{"geninvoice", "-student", "std1", "-year", "y2026"}, wantErr: billing.ErrDuplicatePeriod},
		{name: "ok and issue", args: []string{"geninvoice", "-student", "std1", "-year", "y2026", "-period", billing.PeriodTerm1, "-issue"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if tt.wantErr != nil {
				if err != tt.wantErr {
					t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if tt.wantErrStr != "" {
				if err == nil || err.Error() != tt.wantErrStr {
					t.Errorf("cli.run() error = %v, wantErrStr %s", err, tt.wantErrStr)
				}
				return
			}
			if err != nil {
				t.Errorf("cli.run() unexpected error = %v", err)
			}
		})
	}

	// the -issue run left an emise invoice behind
	inv, err := cli.invoiceSvc.Get(context.Background(), mustActiveInvoiceID(t, repo, "std1", "y2026", billing.PeriodTerm1))
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if inv.Statut != billing.InvoiceStatusIssued {
		t.Errorf("invoice statut = %s, want %s", inv.Statut, billing.InvoiceStatusIssued)
	}
}

func Test_commandLine_genRosterInvoices(t *testing.T) {
	cli, repo := setup(t)
	repo.addStudent("std1", "y2026")
	repo.inner.AddEnrollment(billing.Enrollment{
		StudentID: "std2", AcademicYearID: "y2026",
		Cycle: billing.CyclePrimaire, IsActive: true,
	})

	if err := cli.run([]string{"admin", "geninvoice", "-year", "y2026", "-due", "lol"}); err == nil ||
		err.Error() != `due must be of form YYYY-MM-DD (got "lol")` {
		t.Errorf("cli.run() error = %v, want due date error", err)
	}

	// pre-invoice std1 so the roster run has a duplicate to skip over
	if err := cli.run([]string{"admin", "geninvoice", "-student", "std1", "-year", "y2026"}); err != nil {
		t.Fatalf("geninvoice failed: %v", err)
	}

	if err := cli.run([]string{"admin", "geninvoice", "-year", "y2026", "-issue"}); err != nil {
		t.Fatalf("roster geninvoice failed: %v", err)
	}

	ctx := context.Background()
	inv2, err := cli.invoiceSvc.Get(ctx, mustActiveInvoiceID(t, repo, "std2", "y2026", billing.PeriodAnnual))
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if inv2.Statut != billing.InvoiceStatusIssued {
		t.Errorf("std2 invoice statut = %s, want %s", inv2.Statut, billing.InvoiceStatusIssued)
	}

	// std1 was already invoiced; the roster run must leave it alone
	inv1, err := cli.invoiceSvc.Get(ctx, mustActiveInvoiceID(t, repo, "std1", "y2026", billing.PeriodAnnual))
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if inv1.Statut != billing.InvoiceStatusDraft {
		t.Errorf("std1 invoice statut = %s, want %s", inv1.Statut, billing.InvoiceStatusDraft)
	}

	// re-running with everyone invoiced is a no-op, not an error
	if err := cli.run([]string{"admin", "geninvoice", "-year", "y2026"}); err != nil {
		t.Errorf("second roster run failed: %v", err)
	}
}

func mustActiveInvoiceID(t *testing.T, repo *dummyRepo, studentID, yearID, period string) string {
	t.Helper()
	inv, err := repo.inner.GetActiveInvoice(context.Background(), studentID, yearID, period)
	if err != nil {
		t.Fatalf("GetActiveInvoice() failed: %v", err)
	}
	return inv.ID
}

func Test_commandLine_listUnpaid(t *testing.T) {
	cli, repo := setup(t)
	repo.addStudent("std1", "y2026")

	// due date already past, so the listing takes the overdue branch
	if err := cli.run([]string{"admin", "geninvoice", "-student", "std1", "-year", "y2026", "-due", "2026-01-15", "-issue"}); err != nil {
		t.Fatalf("geninvoice failed: %v", err)
	}
	if err := cli.run([]string{"admin", "unpaid"}); err != nil {
		t.Errorf("unpaid failed: %v", err)
	}
}
