package anomalies

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JaimeStill/tally/pkg/formatting"
)

// Policy tunes trailing-average detection.
type Policy struct {
	Window            int
	MinHistory        int
	AddbackCategories []string
}

// DefaultPolicy is the policy used when none is configured.
var DefaultPolicy = Policy{
	Window:     3,
	MinHistory: 2,
	AddbackCategories: []string{
		"legal",
		"professional fees",
		"consulting",
		"severance",
		"litigation",
		"settlement",
		"one-time",
		"non-recurring",
		"restructuring",
		"transaction costs",
		"owner compensation",
		"relocation",
	},
}

// Finding is the result of evaluating one line item.
type Finding struct {
	Type            Type
	Severity        Severity
	TrailingAverage *decimal.Decimal
	Multiple        *decimal.Decimal
}

var (
	three = decimal.NewFromInt(3)
	two   = decimal.NewFromInt(2)
	one   = decimal.NewFromInt(1)
)

// Evaluate compares current against its priors, the most recent values of
// the same series. earlier is the number of deal periods before the current
// one, which decides whether a series without history is a new line item.
func Evaluate(current decimal.Decimal, priors []decimal.Decimal, earlier int, p Policy) (Finding, bool) {
	if len(priors) < p.MinHistory {
		if len(priors) == 0 && earlier >= p.MinHistory && !current.IsZero() {
			return Finding{Type: TypeNewLineItem, Severity: SeverityLow}, true
		}
		return Finding{}, false
	}

	sum := decimal.Zero
	for _, v := range priors {
		sum = sum.Add(v)
	}
	avg := sum.Div(decimal.NewFromInt(int64(len(priors))))

	if avg.IsZero() {
		if current.IsZero() {
			return Finding{}, false
		}
		kind := TypeSpike
		if current.IsNegative() {
			kind = TypeDrop
		}
		return Finding{Type: kind, Severity: SeverityHigh, TrailingAverage: &avg}, true
	}

	multiple := current.Div(avg)

	var severity Severity
	switch {
	case multiple.GreaterThanOrEqual(three) || multiple.Mul(three).LessThanOrEqual(one):
		severity = SeverityHigh
	case multiple.GreaterThanOrEqual(two) || multiple.Mul(two).LessThanOrEqual(one):
		severity = SeverityMedium
	default:
		return Finding{}, false
	}

	kind := TypeDrop
	if multiple.GreaterThanOrEqual(one) {
		kind = TypeSpike
	}

	m := multiple.Round(4)
	return Finding{Type: kind, Severity: severity, TrailingAverage: &avg, Multiple: &m}, true
}

// SeriesKey groups line items of the same P&L line across periods.
func SeriesKey(category, name string) string {
	return formatting.Normalize(category) + " | " + formatting.Normalize(name)
}

// IsAddback reports whether the line matches the non-recurring taxonomy.
func (p Policy) IsAddback(category, name string) bool {
	c, n := strings.ToLower(category), strings.ToLower(name)
	for _, term := range p.AddbackCategories {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		if strings.Contains(c, term) || strings.Contains(n, term) {
			return true
		}
	}
	return false
}

// Scan evaluates every non-subtotal line item of period against its series.
// It returns the candidates and the number of line items evaluated.
func Scan(h History, period time.Time, p Policy) ([]Candidate, int) {
	earlier := 0
	for _, start := range h.Periods {
		if start.Before(period) {
			earlier++
		}
	}

	series := make(map[string][]Point)
	for _, pt := range h.Points {
		if pt.IsSubtotal {
			continue
		}
		key := SeriesKey(pt.LineCategory, pt.LineName)
		series[key] = append(series[key], pt)
	}

	var candidates []Candidate
	evaluated := 0

	for _, pt := range h.Points {
		if pt.IsSubtotal || !pt.PeriodStart.Equal(period) {
			continue
		}
		evaluated++

		priors := priorValues(series[SeriesKey(pt.LineCategory, pt.LineName)], period, p.Window)
		finding, ok := Evaluate(pt.Amount, priors, earlier, p)
		if !ok {
			continue
		}

		c := Candidate{
			Point:   pt,
			Finding: finding,
			Priors:  len(priors),
			Addback: p.IsAddback(pt.LineCategory, pt.LineName),
		}
		c.Summary = Summarize(c)
		candidates = append(candidates, c)
	}

	return candidates, evaluated
}

// priorValues returns up to window values of the series immediately before
// period, oldest first.
func priorValues(points []Point, period time.Time, window int) []decimal.Decimal {
	before := make([]Point, 0, len(points))
	for _, pt := range points {
		if pt.PeriodStart.Before(period) {
			before = append(before, pt)
		}
	}
	slices.SortFunc(before, func(a, b Point) int {
		return a.PeriodStart.Compare(b.PeriodStart)
	})

	if window > 0 && len(before) > window {
		before = before[len(before)-window:]
	}

	values := make([]decimal.Decimal, len(before))
	for i, pt := range before {
		values[i] = pt.Amount
	}
	return values
}

// Summarize renders the deterministic summary of a candidate.
func Summarize(c Candidate) string {
	name := c.Point.LineName
	amount := c.Point.Amount.StringFixed(2)
	f := c.Finding

	switch {
	case f.Type == TypeNewLineItem:
		return fmt.Sprintf("%s of %s appears with no history in the preceding periods", name, amount)
	case f.Multiple == nil:
		return fmt.Sprintf(
			"%s of %s against a trailing %d-period average of %s",
			name, amount, c.Priors, f.TrailingAverage.StringFixed(2),
		)
	default:
		return fmt.Sprintf(
			"%s of %s is %sx the trailing %d-period average of %s",
			name, amount, f.Multiple.StringFixed(2), c.Priors, f.TrailingAverage.StringFixed(2),
		)
	}
}

// Reconcile compares each line with the GL total of its COA. A COA with no
// GL rows in the period contributes zero.
func Reconcile(lines []ReconLine, totals map[string]decimal.Decimal) []Reconciled {
	out := make([]Reconciled, 0, len(lines))
	for _, l := range lines {
		derived, ok := totals[l.COACode]
		if !ok {
			derived = decimal.Zero
		}
		out = append(out, Reconciled{
			LineItemID:      l.LineItemID,
			LineName:        l.LineName,
			COACode:         l.COACode,
			Amount:          l.Amount,
			GLDerivedAmount: derived,
			Variance:        l.Amount.Sub(derived),
		})
	}
	return out
}
