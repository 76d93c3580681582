package adjustments_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/tally/internal/adjustments"
)

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertAmount(t *testing.T, want string, got decimal.Decimal, label string) {
	t.Helper()
	assert.True(t, got.Equal(amount(want)), "%s: want %s, got %s", label, want, got)
}

var sampleLedger = adjustments.LedgerTotals{
	Rows: []adjustments.LedgerTotal{
		{Category: "revenue", Subcategory: "operating", Name: "Service Revenue", Amount: amount("100000")},
		{Category: "revenue", Subcategory: "other", Name: "Interest Income", Amount: amount("2000")},
		{Category: "cogs", Subcategory: "direct", Name: "Cost of Services", Amount: amount("-40000")},
		{Category: "opex", Subcategory: "payroll", Name: "Salaries and Wages", Amount: amount("30000")},
		{Category: "opex", Subcategory: "non_cash", Name: "Depreciation Expense", Amount: amount("5000")},
		{Category: "other_expense", Subcategory: "other", Name: "Bank Fees", Amount: amount("1000")},
		{Category: "other_expense", Subcategory: "financing", Name: "Interest Expense", Amount: amount("3000")},
		{Category: "other_expense", Subcategory: "tax", Name: "Income Tax Expense", Amount: amount("4000")},
		{Category: "asset", Subcategory: "current", Name: "Cash", Amount: amount("50000")},
	},
	Unmapped:       2,
	UnmappedAmount: amount("725.40"),
}

func TestBuildBridge(t *testing.T) {
	dealID := uuid.New()

	t.Run("reported figures", func(t *testing.T) {
		b := adjustments.BuildBridge(dealID, sampleLedger, nil)

		assert.Equal(t, dealID, b.DealID)
		assertAmount(t, "100000", b.Revenue, "revenue")
		assertAmount(t, "60000", b.GrossProfit, "gross profit")
		assertAmount(t, "31000", b.EBITDA, "ebitda")
		assertAmount(t, "26000", b.OperatingIncome, "operating income")
		assertAmount(t, "19000", b.NetIncome, "net income")
		assertAmount(t, "0", b.Adjustments, "adjustments")
		assertAmount(t, "31000", b.AdjustedEBITDA, "adjusted ebitda")
		assert.Equal(t, 2, b.Unmapped)
		assertAmount(t, "725.40", b.UnmappedAmount, "unmapped amount")

		labels := make([]string, len(b.Steps))
		for i, s := range b.Steps {
			labels[i] = s.Label
		}
		assert.Equal(t, []string{
			"Revenue", "COGS", "Gross Profit", "Operating Expenses",
			"Other Income/Expense", "EBITDA", "Adjusted EBITDA",
		}, labels)

		assertAmount(t, "-40000", b.Steps[1].Value, "cogs step")
		assert.Equal(t, adjustments.StepSubtraction, b.Steps[1].Type)
		assertAmount(t, "30000", b.Steps[3].RunningTotal, "after opex")
		assertAmount(t, "1000", b.Steps[4].Value, "other step")
		assert.Equal(t, adjustments.StepAddition, b.Steps[4].Type)
	})

	t.Run("approved adjustments in taxonomy order", func(t *testing.T) {
		b := adjustments.BuildBridge(dealID, sampleLedger, map[adjustments.Category]decimal.Decimal{
			adjustments.CategoryPersonalExpense:   amount("-500"),
			adjustments.CategoryProfessionalFees:  amount("11000"),
			adjustments.CategoryOwnerCompensation: amount("45000"),
		})

		steps := b.Steps[6:]
		require.Len(t, steps, 4)

		tests := []struct {
			label   string
			value   string
			running string
			kind    adjustments.StepType
		}{
			{"Owner Compensation", "45000", "76000", adjustments.StepAddition},
			{"Professional Fees", "11000", "87000", adjustments.StepAddition},
			{"Personal Expense", "-500", "86500", adjustments.StepSubtraction},
			{"Adjusted EBITDA", "86500", "86500", adjustments.StepTotal},
		}
		for i, tt := range tests {
			assert.Equal(t, tt.label, steps[i].Label)
			assertAmount(t, tt.value, steps[i].Value, tt.label)
			assertAmount(t, tt.running, steps[i].RunningTotal, tt.label)
			assert.Equal(t, tt.kind, steps[i].Type, tt.label)
		}

		assertAmount(t, "55500", b.Adjustments, "adjustments")
		assertAmount(t, "86500", b.AdjustedEBITDA, "adjusted ebitda")
		assertAmount(t, "31000", b.EBITDA, "ebitda")
	})

	t.Run("other expense exceeding other income", func(t *testing.T) {
		b := adjustments.BuildBridge(dealID, adjustments.LedgerTotals{
			Rows: []adjustments.LedgerTotal{
				{Category: "revenue", Name: "Sales", Amount: amount("1000")},
				{Category: "other_expense", Subcategory: "other", Name: "Loss on Disposal", Amount: amount("-300")},
			},
		}, nil)

		assertAmount(t, "700", b.EBITDA, "ebitda")
		assertAmount(t, "-300", b.Steps[4].Value, "other step")
		assert.Equal(t, adjustments.StepSubtraction, b.Steps[4].Type)
	})

	t.Run("empty ledger", func(t *testing.T) {
		b := adjustments.BuildBridge(dealID, adjustments.LedgerTotals{}, nil)
		assertAmount(t, "0", b.EBITDA, "ebitda")
		assert.Len(t, b.Steps, 7)
	})
}

func TestBridge(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.store.ledger[f.deal] = sampleLedger

	approved := f.draft(t)
	_, err := f.sys.Transition(ctx, testScope, approved.ID, adjustments.StatusPending, "")
	require.NoError(t, err)
	_, err = f.sys.Transition(ctx, testScope, approved.ID, adjustments.StatusApproved, "")
	require.NoError(t, err)

	f.draft(t)

	b, err := f.sys.Bridge(ctx, testScope, f.deal)
	require.NoError(t, err)
	assertAmount(t, "31000", b.EBITDA, "ebitda")
	assertAmount(t, "11000", b.Adjustments, "only approved adjustments count")
	assertAmount(t, "42000", b.AdjustedEBITDA, "adjusted ebitda")

	_, err = f.sys.Bridge(ctx, testScope, uuid.New())
	assert.ErrorIs(t, err, adjustments.ErrDealNotFound)
}
