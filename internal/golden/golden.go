// Package golden maintains the shared knowledge base of verified account to
// chart-of-accounts mappings. The corpus pools learning across organizations,
// so unlike every other table it is not tenant-scoped. It is append-only:
// rows are inserted by seeding, import, and promotion of approved mappings,
// and never updated.
package golden

import (
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/pkg/similarity"
)

// Source records how a golden mapping entered the corpus.
type Source string

const (
	SourceSeed      Source = "seed"
	SourcePromotion Source = "promotion"
	SourceImport    Source = "import"
)

// Mapping is a verified (account features -> COA) example.
type Mapping struct {
	ID          uuid.UUID `json:"id"`
	AccountName string    `json:"account_name"`
	Description string    `json:"description"`
	Vendor      string    `json:"vendor"`
	COACode     string    `json:"coa_code"`
	Category    string    `json:"category"`
	Embedding   []float32 `json:"-"`
	Source      Source    `json:"source"`
	CreatedAt   time.Time `json:"created_at"`
}

// Match is a golden mapping retrieved for a query vector.
type Match = similarity.Match[Mapping]

// Candidate is a mapping offered for insertion. The category is taken from
// the chart of accounts at insert time.
type Candidate struct {
	AccountName string
	Description string
	Vendor      string
	COACode     string
	Embedding   []float32
	Source      Source
}

// Outcome is the result of offering a Candidate to the corpus.
type Outcome string

const (
	OutcomeInserted      Outcome = "inserted"
	OutcomeDuplicate     Outcome = "duplicate"
	OutcomeNearDuplicate Outcome = "near_duplicate"
)

// ImportEntry is one row of a golden import file.
type ImportEntry struct {
	AccountName string `json:"account_name"`
	Description string `json:"description"`
	Vendor      string `json:"vendor"`
	COACode     string `json:"coa_code"`
}

// ImportCommand carries a batch of entries and the source to record them under.
type ImportCommand struct {
	Source  Source        `json:"source"`
	Entries []ImportEntry `json:"entries"`
}

// ImportResult summarizes an import.
type ImportResult struct {
	Total      int             `json:"total"`
	Inserted   int             `json:"inserted"`
	Duplicates int             `json:"duplicates"`
	Failures   []ImportFailure `json:"failures"`
}

// ImportFailure reports an entry that could not be imported.
type ImportFailure struct {
	Index       int    `json:"index"`
	AccountName string `json:"account_name"`
	Error       string `json:"error"`
}
