package main

import (
	"log"
	"os"

	"github.com/kolisoft/makuta/core"
	"github.com/kolisoft/makuta/core/billing"
	emailsvc "github.com/kolisoft/makuta/services/email"
	logsvc "github.com/kolisoft/makuta/services/logger"
	smssvc "github.com/kolisoft/makuta/services/sms"
	"github.com/kolisoft/makuta/storage/database"
	sqlxrepos "github.com/kolisoft/makuta/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	// set up DB
	db, err := database.Open(core.Conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(db.Ping())

	rollbar := logsvc.NewRollbarLogger(logger, core.Conf)
	rollbar.Enable(false)

	repo := sqlxrepos.NewBillingRepository(db)
	smsSvc := smssvc.NewConsoleService()
	mailSvc := emailsvc.NewConsoleService()

	// start CLI
	cli := commandLine{
		db:         db,
		invoiceSvc: billing.NewInvoiceService(db, repo, repo, smsSvc, mailSvc, rollbar),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
