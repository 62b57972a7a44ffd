package domain

import "time"

// RawAccountingRecord is one observation as it arrives from the source panel,
// before duplicate resolution. Corresponds to raw_records table in PostgreSQL.
// A (gvkey, report date) key may carry up to two raw records; more than two is
// a data-integrity violation handled by the resolver.
type RawAccountingRecord struct {
	RecordID        string           // sha256 hash of (gvkey, report date, source line)
	GVKey           string           // firm identifier
	ReportDate      time.Time        // last day of the fiscal quarter, UTC midnight
	FiscalYear      int              // fiscal year as reported
	FiscalQuarter   int              // fiscal quarter-of-year, 1-4
	ReportedQuarter string           // reported calendar-quarter label, "YYYYQn"
	SIC             string           // four-digit industry code, may be empty
	Fields          AccountingFields // nullable numeric items
	SourceLine      int              // 1-based data row in the source file
	LoadedAt        int64            // ingestion timestamp (ms)
}

// AccountingFields holds the reported balance-sheet and income-statement items.
// A nil pointer means the source reported a missing value. Mnemonics follow the
// quarterly Compustat naming.
type AccountingFields struct {
	ATQ    *float64 // total assets
	CHEQ   *float64 // cash and short-term investments
	DLCQ   *float64 // debt in current liabilities
	DLTTQ  *float64 // long-term debt
	SALEQ  *float64 // net sales
	IBQ    *float64 // income before extraordinary items
	DPQ    *float64 // depreciation and amortization
	PPENTQ *float64 // property, plant and equipment, net
	XRDQ   *float64 // research and development expense
}

// FieldNames lists the accounting field mnemonics in canonical order.
// The resolver compares and merges fields in this order, and override entries
// reference fields by these names.
var FieldNames = []string{
	"atq", "cheq", "dlcq", "dlttq", "saleq", "ibq", "dpq", "ppentq", "xrdq",
}

// Get returns the value pointer for a field mnemonic, nil for unknown names.
func (f *AccountingFields) Get(name string) *float64 {
	switch name {
	case "atq":
		return f.ATQ
	case "cheq":
		return f.CHEQ
	case "dlcq":
		return f.DLCQ
	case "dlttq":
		return f.DLTTQ
	case "saleq":
		return f.SALEQ
	case "ibq":
		return f.IBQ
	case "dpq":
		return f.DPQ
	case "ppentq":
		return f.PPENTQ
	case "xrdq":
		return f.XRDQ
	}
	return nil
}

// Set assigns the value pointer for a field mnemonic. Unknown names are ignored.
func (f *AccountingFields) Set(name string, v *float64) {
	switch name {
	case "atq":
		f.ATQ = v
	case "cheq":
		f.CHEQ = v
	case "dlcq":
		f.DLCQ = v
	case "dlttq":
		f.DLTTQ = v
	case "saleq":
		f.SALEQ = v
	case "ibq":
		f.IBQ = v
	case "dpq":
		f.DPQ = v
	case "ppentq":
		f.PPENTQ = v
	case "xrdq":
		f.XRDQ = v
	}
}
