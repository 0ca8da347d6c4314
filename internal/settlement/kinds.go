package settlement

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
)

// kindSpec captures everything that differs between payables and receivables.
type kindSpec struct {
	kind        Kind
	label       string
	module      string
	journalType journals.JournalType
	reference   string
	terminal    []Status
	writeOff    Status
	tables      tables
}

type tables struct {
	document       string
	counterparty   string
	settled        string
	record         string
	recordDocument string
	recordDate     string
	recordAmount   string
	recordMethod   string
}

var payables = kindSpec{
	kind:        KindPayable,
	label:       "AP",
	module:      mappings.ModuleAP,
	journalType: journals.JournalTypePayment,
	reference:   journals.ReferenceAPPayment,
	terminal:    []Status{StatusPaid, StatusCancelled},
	writeOff:    StatusCancelled,
	tables: tables{
		document:       "accounts_payable",
		counterparty:   "supplier_id",
		settled:        "paid_amount",
		record:         "ap_payments",
		recordDocument: "ap_id",
		recordDate:     "payment_date",
		recordAmount:   "payment_amount",
		recordMethod:   "payment_method",
	},
}

var receivables = kindSpec{
	kind:        KindReceivable,
	label:       "AR",
	module:      mappings.ModuleAR,
	journalType: journals.JournalTypeReceipt,
	reference:   journals.ReferenceARCollection,
	terminal:    []Status{StatusPaid, StatusBadDebt},
	writeOff:    StatusBadDebt,
	tables: tables{
		document:       "accounts_receivable",
		counterparty:   "customer_id",
		settled:        "received_amount",
		record:         "ar_collections",
		recordDocument: "ar_id",
		recordDate:     "collection_date",
		recordAmount:   "amount",
		recordMethod:   "collection_method",
	},
}

func specFor(k Kind) (kindSpec, bool) {
	switch k {
	case KindPayable:
		return payables, true
	case KindReceivable:
		return receivables, true
	}
	return kindSpec{}, false
}

func (k kindSpec) isTerminal(s Status) bool {
	for _, t := range k.terminal {
		if t == s {
			return true
		}
	}
	return false
}

func (k kindSpec) description(doc Document) string {
	if k.kind == KindPayable {
		return fmt.Sprintf("Payment for AP #%s", doc.InvoiceNumber)
	}
	return fmt.Sprintf("Collection for AR #%s", doc.InvoiceNumber)
}

// lines builds the two-line settlement journal: a payment debits the payable control account and
// credits cash, a collection debits cash and credits the receivable control account.
func (k kindSpec) lines(doc Document, method string, controlID, cashID int64, amount decimal.Decimal) []journals.LineInput {
	if k.kind == KindPayable {
		return []journals.LineInput{
			{AccountID: controlID, Description: "Debit AP - " + doc.InvoiceNumber, Debit: amount},
			{AccountID: cashID, Description: "Credit " + method, Credit: amount},
		}
	}
	return []journals.LineInput{
		{AccountID: cashID, Description: "Debit Cash", Debit: amount},
		{AccountID: controlID, Description: "Credit AR - " + doc.InvoiceNumber, Credit: amount},
	}
}
