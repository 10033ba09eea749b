package main

import (
	"errors"
	"flag"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/kolisoft/makuta/core/billing"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db         *sqlx.DB
	invoiceSvc *billing.InvoiceService
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run a migration command (up, down, status, ...)")
	fmt.Println("  geninvoice -year ID [-student ID] -period PERIOD [-due YYYY-MM-DD] [-issue] - generate invoices; whole roster when -student is omitted")
	fmt.Println("  unpaid - list unpaid invoices")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	genInvoiceCmd := flag.NewFlagSet("geninvoice", flag.ExitOnError)
	genInvoiceStudent := genInvoiceCmd.String("student", "", "The student's ID.")
	genInvoiceYear := genInvoiceCmd.String("year", "", "The academic year's ID.")
	genInvoicePeriod := genInvoiceCmd.String("period", billing.PeriodAnnual, "The billing period.")
	genInvoiceDue := genInvoiceCmd.String("due", "", "Optional due date, YYYY-MM-DD.")
	genInvoiceIssue := genInvoiceCmd.Bool("issue", false, "Issue the invoice right after generating it.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "geninvoice":
		if err := genInvoiceCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *genInvoiceYear == "" {
			genInvoiceCmd.Usage()
			return errHelp
		}
		if *genInvoiceStudent == "" {
			return cli.genRosterInvoices(*genInvoiceYear, *genInvoicePeriod, *genInvoiceDue, *genInvoiceIssue)
		}
		return cli.genInvoice(*genInvoiceStudent, *genInvoiceYear, *genInvoicePeriod, *genInvoiceDue, *genInvoiceIssue)
	case "unpaid":
		return cli.listUnpaid()
	default:
		cli.printUsage()
		return errHelp
	}
}
