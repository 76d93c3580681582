package mappings

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// Hit sources.
const (
	SourceGolden   = "golden"
	SourceVerified = "verified"
)

// Hit is one retrieved reference mapping.
type Hit struct {
	COACode     string  `json:"coa_code"`
	Similarity  float64 `json:"similarity"`
	Source      string  `json:"source"`
	AccountName string  `json:"account_name"`
}

// Policy holds the thresholds of the decision rule.
type Policy struct {
	HighSimilarity float64
	MinSimilarity  float64
	GreenThreshold int
}

// DefaultPolicy is the policy used when none is configured.
var DefaultPolicy = Policy{
	HighSimilarity: 0.92,
	MinSimilarity:  0.50,
	GreenThreshold: 90,
}

// Decision is the outcome of Decide.
type Decision struct {
	COACode    *string  `json:"coa_code"`
	Confidence int      `json:"confidence"`
	Similarity float64  `json:"similarity"`
	Ambiguous  bool     `json:"ambiguous"`
	Tied       []string `json:"tied,omitempty"`
	Top        *Hit     `json:"top,omitempty"`
	Rationale  string   `json:"rationale"`
}

const tieEpsilon = 1e-9

// Confidence converts a similarity in [0,1] to the 0-100 integer scale,
// truncating toward zero.
func Confidence(similarity float64) int {
	c := int(math.Floor(similarity*100 + 1e-9))
	return max(0, min(100, c))
}

// TierFor returns the proposal tier for a confidence under the default policy.
func TierFor(confidence int) Status {
	return DefaultPolicy.TierFor(confidence)
}

// TierFor returns green at or above the green threshold and yellow otherwise.
func (p Policy) TierFor(confidence int) Status {
	if confidence >= p.GreenThreshold {
		return StatusGreen
	}
	return StatusYellow
}

// Decide picks a COA from retrieved hits. Hits below the minimum similarity
// are ignored. When several hits share the top similarity but name different
// COAs, the lexicographically smallest code wins and the tie is recorded.
func Decide(hits []Hit, p Policy) Decision {
	eligible := make([]Hit, 0, len(hits))
	for _, h := range hits {
		if h.Similarity >= p.MinSimilarity && h.COACode != "" {
			eligible = append(eligible, h)
		}
	}

	if len(eligible) == 0 {
		return Decision{
			Rationale: fmt.Sprintf("no match found at or above similarity %.2f", p.MinSimilarity),
		}
	}

	top := eligible[0].Similarity
	for _, h := range eligible[1:] {
		top = max(top, h.Similarity)
	}

	var leaders []Hit
	for _, h := range eligible {
		if top-h.Similarity <= tieEpsilon {
			leaders = append(leaders, h)
		}
	}

	slices.SortStableFunc(leaders, func(a, b Hit) int {
		return strings.Compare(a.COACode, b.COACode)
	})

	codes := make([]string, 0, len(leaders))
	for _, h := range leaders {
		codes = append(codes, h.COACode)
	}
	codes = slices.Compact(codes)

	chosen := leaders[0]
	d := Decision{
		COACode:    &chosen.COACode,
		Confidence: Confidence(top),
		Similarity: top,
		Ambiguous:  top < p.HighSimilarity,
		Top:        &chosen,
	}

	if d.Ambiguous {
		d.Rationale = fmt.Sprintf(
			"closest %s reference %q maps to %s at similarity %.3f, below the auto-accept threshold of %.2f",
			chosen.Source, chosen.AccountName, chosen.COACode, top, p.HighSimilarity,
		)
	} else {
		d.Rationale = fmt.Sprintf(
			"matched %s reference %q mapped to %s at similarity %.3f",
			chosen.Source, chosen.AccountName, chosen.COACode, top,
		)
	}

	if len(codes) > 1 {
		d.Tied = codes
		d.Rationale += tieNote(codes, chosen.COACode)
	}

	return d
}

func tieNote(codes []string, chosen string) string {
	return fmt.Sprintf("; tie between %s resolved to %s", strings.Join(codes, ", "), chosen)
}
