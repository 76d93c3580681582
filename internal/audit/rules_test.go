package audit_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/JaimeStill/tally/internal/audit"
	"github.com/JaimeStill/tally/internal/failure"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func intp(v int) *int { return &v }

func reasons(flags []audit.Flag) []audit.Reason {
	out := make([]audit.Reason, len(flags))
	for i, f := range flags {
		out[i] = f.Reason
	}
	return out
}

func TestFlags(t *testing.T) {
	p := audit.DefaultPolicy

	tests := []struct {
		name string
		txn  audit.Txn
		want []audit.Reason
	}{
		{
			"venmo in vendor",
			audit.Txn{AccountName: "Meals", Vendor: "Venmo *J Smith", Amount: d("85")},
			[]audit.Reason{audit.ReasonVenmo},
		},
		{
			"atm withdrawal is cash",
			audit.Txn{AccountName: "Office Expense", Description: "ATM WITHDRAWAL 0412", Amount: d("-300")},
			[]audit.Reason{audit.ReasonCash},
		},
		{
			"earlier keyword wins",
			audit.Txn{AccountName: "Owner Draw", Description: "Personal cash advance", Amount: d("500")},
			[]audit.Reason{audit.ReasonCash},
		},
		{
			"reimbursement",
			audit.Txn{AccountName: "Travel", Description: "Reimbursement - conference", Amount: d("420")},
			[]audit.Reason{audit.ReasonReimbursement},
		},
		{
			"peer payment apps are personal",
			audit.Txn{AccountName: "Misc", Description: "Zelle to M. Jones", Amount: d("150")},
			[]audit.Reason{audit.ReasonPersonal},
		},
		{
			"cashapp is not cash",
			audit.Txn{AccountName: "Misc", Vendor: "CashApp", Amount: d("40")},
			[]audit.Reason{audit.ReasonPersonal},
		},
		{
			"keywords are word bounded",
			audit.Txn{AccountName: "Consulting", Description: "Cashflow forecasting engagement", Vendor: "Transferwise Advisory", Amount: d("900")},
			nil,
		},
		{
			"large repair",
			audit.Txn{AccountName: "R&M", COAName: "Repairs & Maintenance", COACategory: "opex", Amount: d("3000")},
			[]audit.Reason{audit.ReasonCapex},
		},
		{
			"negative amounts use their size",
			audit.Txn{AccountName: "Equipment", COAName: "Equipment Rental", Amount: d("-4000")},
			[]audit.Reason{audit.ReasonCapex},
		},
		{
			"threshold itself is not flagged",
			audit.Txn{AccountName: "R&M", COAName: "Repairs & Maintenance", Amount: d("2500")},
			nil,
		},
		{
			"capitalized asset accounts",
			audit.Txn{AccountName: "Fixed Assets", COAName: "Property and Equipment", COACategory: "asset", Amount: d("9000")},
			nil,
		},
		{
			"large spend on other accounts",
			audit.Txn{AccountName: "Rent", COAName: "Rent Expense", Amount: d("12000")},
			nil,
		},
		{
			"low confidence",
			audit.Txn{AccountName: "Sundry", COAName: "Other Expense", Amount: d("10"), Confidence: intp(65)},
			[]audit.Reason{audit.ReasonLowConfidence},
		},
		{
			"confidence at threshold",
			audit.Txn{AccountName: "Sundry", COAName: "Other Expense", Amount: d("10"), Confidence: intp(70)},
			nil,
		},
		{
			"every rule",
			audit.Txn{AccountName: "Equipment", Description: "Personal laptop", COAName: "Office Equipment", Amount: d("2600"), Confidence: intp(40)},
			[]audit.Reason{audit.ReasonPersonal, audit.ReasonCapex, audit.ReasonLowConfidence},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := audit.Flags(tt.txn, p)
			if tt.want == nil {
				assert.Empty(t, flags)
				return
			}
			assert.Equal(t, tt.want, reasons(flags))
		})
	}
}

func TestFlagDetails(t *testing.T) {
	flags := audit.Flags(audit.Txn{
		AccountName: "R&M",
		Description: "Venmo payment",
		COAName:     "Repairs & Maintenance",
		Amount:      d("-3250.5"),
		Confidence:  intp(55),
	}, audit.DefaultPolicy)

	assert.Equal(t, []audit.Flag{
		{Reason: audit.ReasonVenmo, Detail: `Transaction text mentions "venmo"`},
		{Reason: audit.ReasonCapex, Detail: "Large Repairs & Maintenance expense ($3250.50) may require capitalization review"},
		{Reason: audit.ReasonLowConfidence, Detail: "Low confidence mapping (55%). Manual review recommended."},
	}, flags)
}

func TestFlagsCustomPolicy(t *testing.T) {
	p := audit.Policy{
		CapexThreshold: d("10000"),
		CapexAccounts:  []string{"Vehicles"},
		LowConfidence:  90,
	}

	txn := audit.Txn{AccountName: "Truck", COAName: "Vehicle Expense - Vehicles", Amount: d("12000"), Confidence: intp(85)}
	assert.Equal(t, []audit.Reason{audit.ReasonCapex, audit.ReasonLowConfidence}, reasons(audit.Flags(txn, p)))

	txn = audit.Txn{AccountName: "R&M", COAName: "Repairs & Maintenance", Amount: d("9000"), Confidence: intp(95)}
	assert.Empty(t, audit.Flags(txn, p))
}

func TestQuestion(t *testing.T) {
	txn := audit.Txn{ID: uuid.New(), Date: time.Now(), AccountName: "Meals", Description: "Venmo to J Smith"}
	assert.Equal(t, "Please provide documentation or clarification for this transaction: Venmo to J Smith", audit.Question(txn))

	txn.Description = ""
	assert.Equal(t, "Please provide documentation or clarification for this transaction: Meals", audit.Question(txn))
}

func TestTransition(t *testing.T) {
	tests := []struct {
		from, to audit.Status
		ok       bool
	}{
		{audit.StatusDraft, audit.StatusSent, true},
		{audit.StatusDraft, audit.StatusResolved, true},
		{audit.StatusSent, audit.StatusResolved, true},
		{audit.StatusSent, audit.StatusDraft, false},
		{audit.StatusResolved, audit.StatusSent, false},
		{audit.StatusResolved, audit.StatusDraft, false},
		{audit.StatusDraft, audit.StatusDraft, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			err := audit.Transition(tt.from, tt.to)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, audit.ErrInvalidTransition)
			assert.ErrorIs(t, err, failure.InvalidTransition)
		})
	}
}
