package main

import (
	"context"
	"fmt"
	"time"

	"github.com/kolisoft/makuta/core"
	"github.com/kolisoft/makuta/core/billing"
)

const cliActor = "admin-cli"

func parseDueDate(due string) (time.Time, error) {
	if due == "" {
		return time.Time{}, nil
	}
	dueDate, err := time.Parse("2006-01-02", due)
	if err != nil {
		return time.Time{}, fmt.Errorf("due must be of form YYYY-MM-DD (got %q)", due)
	}
	return dueDate, nil
}

// genInvoice generates (and optionally issues) one invoice.
func (cli *commandLine) genInvoice(studentID, yearID, period, due string, issue bool) error {
	ctx := context.Background()

	dueDate, err := parseDueDate(due)
	if err != nil {
		return err
	}
	inv, err := cli.invoiceSvc.Generate(ctx, billing.NewInvoice{
		StudentID:      core.CleanString(studentID),
		AcademicYearID: core.CleanString(yearID),
		Period:         core.CleanString(period, true /* lower */),
		DateEcheance:   dueDate,
	}, cliActor)
	if err != nil {
		return err
	}
	logger.Printf("generated invoice %s (%s): montant_ttc=%s", inv.Number, inv.ID, inv.MontantTTC)

	if issue {
		if inv, err = cli.invoiceSvc.Issue(ctx, inv.ID, false /* notify */, cliActor); err != nil {
			return err
		}
		logger.Printf("issued invoice %s", inv.Number)
	}
	return nil
}

// genRosterInvoices invoices every active enrollment of the year at once.
func (cli *commandLine) genRosterInvoices(yearID, period, due string, issue bool) error {
	ctx := context.Background()

	dueDate, err := parseDueDate(due)
	if err != nil {
		return err
	}
	invs, err := cli.invoiceSvc.GenerateForRoster(ctx,
		core.CleanString(yearID), core.CleanString(period, true /* lower */), dueDate, cliActor)
	for _, inv := range invs {
		logger.Printf("generated invoice %s (%s): student=%s montant_ttc=%s", inv.Number, inv.ID, inv.StudentID, inv.MontantTTC)
	}
	if err != nil {
		return err
	}

	if issue {
		for _, inv := range invs {
			if inv, err = cli.invoiceSvc.Issue(ctx, inv.ID, false /* notify */, cliActor); err != nil {
				return err
			}
			logger.Printf("issued invoice %s", inv.Number)
		}
	}
	logger.Printf("%d invoice(s) generated", len(invs))
	return nil
}

func (cli *commandLine) listUnpaid() error {
	invs, err := cli.invoiceSvc.QueryUnpaid(context.Background())
	if err != nil {
		return err
	}
	for _, inv := range invs {
		marker := ""
		if inv.IsOverdue {
			marker = " EN RETARD"
		}
		logger.Printf("%s student=%s period=%s solde=%s statut=%s%s",
			inv.Number, inv.StudentID, inv.Period, inv.Solde, inv.Statut, marker)
	}
	logger.Printf("%d unpaid invoice(s)", len(invs))
	return nil
}
