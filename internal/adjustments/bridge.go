package adjustments

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StepType tells a waterfall chart how to draw a bridge step.
type StepType string

const (
	StepTotal       StepType = "total"
	StepAddition    StepType = "addition"
	StepSubtraction StepType = "subtraction"
)

// LedgerTotal is the GL sum of one COA.
type LedgerTotal struct {
	Category    string          `json:"category"`
	Subcategory string          `json:"subcategory"`
	Name        string          `json:"name"`
	Amount      decimal.Decimal `json:"amount"`
}

// LedgerTotals is a deal's GL summed per COA, plus what is still unmapped.
type LedgerTotals struct {
	Rows           []LedgerTotal
	Unmapped       int
	UnmappedAmount decimal.Decimal
}

// BridgeStep is one bar of the EBITDA waterfall.
type BridgeStep struct {
	Label        string          `json:"label"`
	Value        decimal.Decimal `json:"value"`
	RunningTotal decimal.Decimal `json:"running_total"`
	Type         StepType        `json:"step_type"`
}

// Bridge walks from revenue to reported EBITDA and on to adjusted EBITDA.
type Bridge struct {
	DealID          uuid.UUID       `json:"deal_id"`
	Steps           []BridgeStep    `json:"steps"`
	Revenue         decimal.Decimal `json:"revenue"`
	GrossProfit     decimal.Decimal `json:"gross_profit"`
	EBITDA          decimal.Decimal `json:"ebitda"`
	Adjustments     decimal.Decimal `json:"adjustments"`
	AdjustedEBITDA  decimal.Decimal `json:"adjusted_ebitda"`
	OperatingIncome decimal.Decimal `json:"operating_income"`
	NetIncome       decimal.Decimal `json:"net_income"`
	Unmapped        int             `json:"unmapped_transactions"`
	UnmappedAmount  decimal.Decimal `json:"unmapped_amount"`
}

type bucket int

const (
	bucketNone bucket = iota
	bucketRevenue
	bucketCOGS
	bucketOpex
	bucketDA
	bucketOtherIncome
	bucketOtherExpense
	bucketInterest
	bucketTaxes
)

// bucketOf places a COA on the income statement. Balance sheet accounts
// fall outside it.
func bucketOf(t LedgerTotal) bucket {
	name := strings.ToLower(t.Name)

	switch t.Category {
	case "revenue":
		if t.Subcategory == "other" {
			return bucketOtherIncome
		}
		return bucketRevenue
	case "cogs":
		return bucketCOGS
	case "opex":
		if t.Subcategory == "non_cash" || strings.Contains(name, "depreciation") || strings.Contains(name, "amortization") {
			return bucketDA
		}
		return bucketOpex
	case "other_expense":
		switch {
		case t.Subcategory == "financing" || strings.Contains(name, "interest"):
			return bucketInterest
		case t.Subcategory == "tax" || strings.Contains(name, "tax"):
			return bucketTaxes
		}
		return bucketOtherExpense
	}
	return bucketNone
}

var categoryLabels = map[Category]string{
	CategoryOwnerCompensation: "Owner Compensation",
	CategoryNonRecurring:      "Non-Recurring",
	CategoryProfessionalFees:  "Professional Fees",
	CategoryRelatedParty:      "Related Party",
	CategoryProForma:          "Pro Forma",
	CategoryOutOfPeriod:       "Out of Period",
	CategoryPersonalExpense:   "Personal Expense",
	CategoryOther:             "Other Adjustments",
}

// BuildBridge computes the waterfall. Cost buckets are taken by absolute
// value; other income keeps its sign and other expense reduces it. Approved
// adjustments are added to EBITDA in taxonomy order, one step per category.
func BuildBridge(dealID uuid.UUID, ledger LedgerTotals, approved map[Category]decimal.Decimal) Bridge {
	sums := make(map[bucket]decimal.Decimal)
	for _, row := range ledger.Rows {
		b := bucketOf(row)
		if b == bucketNone {
			continue
		}
		sums[b] = sums[b].Add(row.Amount)
	}

	revenue := sums[bucketRevenue]
	cogs := sums[bucketCOGS].Abs()
	opex := sums[bucketOpex].Abs()
	other := sums[bucketOtherIncome].Sub(sums[bucketOtherExpense].Abs())

	gross := revenue.Sub(cogs)
	ebitda := gross.Sub(opex).Add(other)
	operating := ebitda.Sub(sums[bucketDA].Abs())
	net := operating.Sub(sums[bucketInterest].Abs()).Sub(sums[bucketTaxes].Abs())

	steps := []BridgeStep{
		{Label: "Revenue", Value: revenue, RunningTotal: revenue, Type: StepTotal},
		{Label: "COGS", Value: cogs.Neg(), RunningTotal: gross, Type: StepSubtraction},
		{Label: "Gross Profit", Value: gross, RunningTotal: gross, Type: StepTotal},
		{Label: "Operating Expenses", Value: opex.Neg(), RunningTotal: gross.Sub(opex), Type: StepSubtraction},
		{Label: "Other Income/Expense", Value: other, RunningTotal: ebitda, Type: direction(other)},
		{Label: "EBITDA", Value: ebitda, RunningTotal: ebitda, Type: StepTotal},
	}

	running := ebitda
	total := decimal.Zero
	for _, c := range Categories {
		amount, ok := approved[c]
		if !ok {
			continue
		}
		running = running.Add(amount)
		total = total.Add(amount)
		steps = append(steps, BridgeStep{
			Label:        categoryLabels[c],
			Value:        amount,
			RunningTotal: running,
			Type:         direction(amount),
		})
	}
	steps = append(steps, BridgeStep{Label: "Adjusted EBITDA", Value: running, RunningTotal: running, Type: StepTotal})

	return Bridge{
		DealID:          dealID,
		Steps:           steps,
		Revenue:         revenue,
		GrossProfit:     gross,
		EBITDA:          ebitda,
		Adjustments:     total,
		AdjustedEBITDA:  running,
		OperatingIncome: operating,
		NetIncome:       net,
		Unmapped:        ledger.Unmapped,
		UnmappedAmount:  ledger.UnmappedAmount,
	}
}

func direction(v decimal.Decimal) StepType {
	if v.IsNegative() {
		return StepSubtraction
	}
	return StepAddition
}
