// Package audit flags GL transactions that need a question to the client
// before diligence can close: personal or cash-like spending, large repairs
// that may need capitalizing, and mappings with low confidence. Each flag is
// stored as an open item with a draft question.
package audit

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JaimeStill/tally/pkg/formatting"
)

// Reason names the rule that raised an open item.
type Reason string

const (
	ReasonPersonal      Reason = "keyword_personal"
	ReasonCash          Reason = "keyword_cash"
	ReasonVenmo         Reason = "keyword_venmo"
	ReasonReimbursement Reason = "keyword_reimbursement"
	ReasonCapex         Reason = "capex_threshold"
	ReasonLowConfidence Reason = "low_confidence"
)

// Status is the lifecycle state of an open item.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusSent     Status = "sent"
	StatusResolved Status = "resolved"
)

// OpenItem is a stored question about one GL transaction.
type OpenItem struct {
	ID              uuid.UUID `json:"id"`
	OrganizationID  uuid.UUID `json:"organization_id"`
	DealID          uuid.UUID `json:"deal_id"`
	GLTransactionID uuid.UUID `json:"gl_transaction_id"`
	Reason          Reason    `json:"reason"`
	Detail          string    `json:"detail"`
	Question        string    `json:"question"`
	Status          Status    `json:"status"`
	Resolution      *string   `json:"resolution"`
	UpdatedBy       *string   `json:"updated_by"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Txn is a GL transaction with the COA it is mapped to, either directly or
// through its client account's mapping.
type Txn struct {
	ID          uuid.UUID
	Date        time.Time
	AccountName string
	Description string
	Vendor      string
	Amount      decimal.Decimal
	COACode     *string
	COAName     string
	COACategory string
	Confidence  *int
}

// Deal describes the engagement for question drafting.
type Deal struct {
	Name     string
	Industry string
}

// Inputs is everything a scan reads.
type Inputs struct {
	Deal         Deal
	Transactions []Txn
}

// Flag is one rule hit on a transaction.
type Flag struct {
	Reason Reason `json:"reason"`
	Detail string `json:"detail"`
}

// Policy holds the rule thresholds.
type Policy struct {
	// CapexThreshold is the absolute amount above which a transaction on a
	// capex-prone account is flagged.
	CapexThreshold decimal.Decimal

	// CapexAccounts are name fragments of COA entries that usually hold
	// repairs, maintenance or equipment spend.
	CapexAccounts []string

	// LowConfidence flags mappings whose confidence is below it.
	LowConfidence int
}

// DefaultPolicy is used when a Policy leaves LowConfidence unset.
var DefaultPolicy = Policy{
	CapexThreshold: decimal.NewFromInt(2500),
	CapexAccounts:  []string{"repairs", "maintenance", "equipment"},
	LowConfidence:  70,
}

// balanceSheet categories already hold capitalized amounts.
var balanceSheet = map[string]bool{"asset": true, "liability": true, "equity": true}

type keyword struct {
	pattern *regexp.Regexp
	reason  Reason
}

// keywords are checked in order; the first match decides the reason.
var keywords = func() []keyword {
	entries := []struct {
		word   string
		reason Reason
	}{
		{"venmo", ReasonVenmo},
		{"cash", ReasonCash},
		{"reimbursement", ReasonReimbursement},
		{"personal", ReasonPersonal},
		{"atm", ReasonCash},
		{"withdrawal", ReasonCash},
		{"transfer", ReasonPersonal},
		{"zelle", ReasonPersonal},
		{"paypal", ReasonPersonal},
		{"cashapp", ReasonPersonal},
	}

	out := make([]keyword, len(entries))
	for i, e := range entries {
		out[i] = keyword{
			pattern: regexp.MustCompile(`(?i)\b` + e.word + `\b`),
			reason:  e.reason,
		}
	}
	return out
}()

// Flags evaluates every rule against t. A transaction raises at most one
// keyword flag, plus the capex and low confidence flags independently.
func Flags(t Txn, p Policy) []Flag {
	var out []Flag

	text := strings.Join([]string{t.Description, t.Vendor, t.AccountName}, " ")
	for _, k := range keywords {
		if m := k.pattern.FindString(text); m != "" {
			out = append(out, Flag{
				Reason: k.reason,
				Detail: fmt.Sprintf("Transaction text mentions %q", strings.ToLower(m)),
			})
			break
		}
	}

	if t.COAName != "" && !balanceSheet[t.COACategory] && t.Amount.Abs().GreaterThan(p.CapexThreshold) {
		name := formatting.Normalize(t.COAName)
		for _, fragment := range p.CapexAccounts {
			if fragment != "" && strings.Contains(name, formatting.Normalize(fragment)) {
				out = append(out, Flag{
					Reason: ReasonCapex,
					Detail: fmt.Sprintf("Large %s expense ($%s) may require capitalization review", t.COAName, t.Amount.Abs().StringFixed(2)),
				})
				break
			}
		}
	}

	if t.Confidence != nil && *t.Confidence < p.LowConfidence {
		out = append(out, Flag{
			Reason: ReasonLowConfidence,
			Detail: fmt.Sprintf("Low confidence mapping (%d%%). Manual review recommended.", *t.Confidence),
		})
	}

	return out
}

// Question is the deterministic client question for a flagged transaction.
func Question(t Txn) string {
	subject := t.Description
	if subject == "" {
		subject = t.AccountName
	}
	return "Please provide documentation or clarification for this transaction: " + subject
}

// Candidate is a flag ready to be stored.
type Candidate struct {
	Txn      Txn
	Flag     Flag
	Question string
	Drafted  bool
}

// ScanResult reports one scan of a deal.
type ScanResult struct {
	DealID           uuid.UUID      `json:"deal_id"`
	Scanned          int            `json:"scanned"`
	Flagged          int            `json:"flagged"`
	Existing         int            `json:"existing"`
	QuestionsDrafted int            `json:"questions_drafted"`
	ByReason         map[Reason]int `json:"by_reason"`
	Created          []OpenItem     `json:"created"`
}

// TransitionCommand moves an open item to a new status.
type TransitionCommand struct {
	Status     Status `json:"status"`
	Resolution string `json:"resolution"`
}
