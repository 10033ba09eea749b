package dummydb

import (
	"sync"

	"github.com/kolisoft/makuta/core/billing"
)

type (
	DB struct {
		billing *billingTables
	}

	billingTables struct {
		sync.RWMutex
		feeTypes     map[string]*billing.FeeType
		scholarships map[string]*billing.Scholarship
		enrollments  map[string]*billing.Enrollment // keyed studentID+"/"+yearID
		invoices     map[string]*billing.Invoice
		payments     map[string]*billing.Payment
		sequences    map[string]int // "invoice/<year>" | "payment/<yyyymmdd>"
	}
)

func Open() (*DB, error) {
	db := &DB{
		billing: &billingTables{
			feeTypes:     make(map[string]*billing.FeeType),
			scholarships: make(map[string]*billing.Scholarship),
			enrollments:  make(map[string]*billing.Enrollment),
			invoices:     make(map[string]*billing.Invoice),
			payments:     make(map[string]*billing.Payment),
			sequences:    make(map[string]int),
		},
	}
	return db, nil
}
