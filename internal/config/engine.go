package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EnvClassifierHighSimilarity  = "TALLY_CLASSIFIER_HIGH_SIMILARITY"
	EnvClassifierMinSimilarity   = "TALLY_CLASSIFIER_MIN_SIMILARITY"
	EnvClassifierDedupSimilarity = "TALLY_CLASSIFIER_DEDUP_SIMILARITY"
	EnvClassifierTopK            = "TALLY_CLASSIFIER_TOP_K"
	EnvClassifierWorkers         = "TALLY_CLASSIFIER_WORKERS"
	EnvClassifierCorpusTTL       = "TALLY_CLASSIFIER_CORPUS_TTL"
	EnvAnomalyWindow             = "TALLY_ANOMALY_WINDOW"
	EnvAnomalyMinHistory         = "TALLY_ANOMALY_MIN_HISTORY"
	EnvAnomalyAddbackCategories  = "TALLY_ANOMALY_ADDBACK_CATEGORIES"
	EnvAuditCapexThreshold       = "TALLY_AUDIT_CAPEX_THRESHOLD"
	EnvAuditLowConfidence        = "TALLY_AUDIT_LOW_CONFIDENCE"
)

// EngineConfig holds the decision thresholds of the mapping and review engine.
type EngineConfig struct {
	Classifier ClassifierConfig `toml:"classifier"`
	Anomaly    AnomalyConfig    `toml:"anomaly"`
	Audit      AuditConfig      `toml:"audit"`
}

// ClassifierConfig tunes retrieval and confidence tiering.
// Similarities are cosine values in [0, 1]; GreenThreshold is on the 0-100 confidence scale.
type ClassifierConfig struct {
	HighSimilarity  float64 `toml:"high_similarity"`
	MinSimilarity   float64 `toml:"min_similarity"`
	DedupSimilarity float64 `toml:"dedup_similarity"`
	TopK            int     `toml:"top_k"`
	GreenThreshold  int     `toml:"green_threshold"`
	Workers         int     `toml:"workers"`
	CorpusTTL       string  `toml:"corpus_ttl"`
}

// AnomalyConfig tunes trailing-average anomaly detection.
type AnomalyConfig struct {
	Window            int      `toml:"window"`
	MinHistory        int      `toml:"min_history"`
	AddbackCategories []string `toml:"addback_categories"`
}

// AuditConfig tunes the rule-based transaction audit. CapexThreshold is in
// deal currency; LowConfidence is on the 0-100 confidence scale.
type AuditConfig struct {
	CapexThreshold float64  `toml:"capex_threshold"`
	CapexAccounts  []string `toml:"capex_accounts"`
	LowConfidence  int      `toml:"low_confidence"`
}

// CorpusTTLDuration returns CorpusTTL as a time.Duration.
func (c *ClassifierConfig) CorpusTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.CorpusTTL)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *EngineConfig) Finalize() error {
	c.Classifier.loadDefaults()
	c.Classifier.loadEnv()
	if err := c.Classifier.validate(); err != nil {
		return fmt.Errorf("classifier: %w", err)
	}

	c.Anomaly.loadDefaults()
	c.Anomaly.loadEnv()
	if err := c.Anomaly.validate(); err != nil {
		return fmt.Errorf("anomaly: %w", err)
	}

	c.Audit.loadDefaults()
	c.Audit.loadEnv()
	if err := c.Audit.validate(); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	return nil
}

// Merge overwrites non-zero fields from overlay.
func (c *EngineConfig) Merge(overlay *EngineConfig) {
	o := overlay.Classifier
	if o.HighSimilarity != 0 {
		c.Classifier.HighSimilarity = o.HighSimilarity
	}
	if o.MinSimilarity != 0 {
		c.Classifier.MinSimilarity = o.MinSimilarity
	}
	if o.DedupSimilarity != 0 {
		c.Classifier.DedupSimilarity = o.DedupSimilarity
	}
	if o.TopK != 0 {
		c.Classifier.TopK = o.TopK
	}
	if o.GreenThreshold != 0 {
		c.Classifier.GreenThreshold = o.GreenThreshold
	}
	if o.Workers != 0 {
		c.Classifier.Workers = o.Workers
	}
	if o.CorpusTTL != "" {
		c.Classifier.CorpusTTL = o.CorpusTTL
	}

	if overlay.Anomaly.Window != 0 {
		c.Anomaly.Window = overlay.Anomaly.Window
	}
	if overlay.Anomaly.MinHistory != 0 {
		c.Anomaly.MinHistory = overlay.Anomaly.MinHistory
	}
	if overlay.Anomaly.AddbackCategories != nil {
		c.Anomaly.AddbackCategories = overlay.Anomaly.AddbackCategories
	}

	if overlay.Audit.CapexThreshold != 0 {
		c.Audit.CapexThreshold = overlay.Audit.CapexThreshold
	}
	if overlay.Audit.CapexAccounts != nil {
		c.Audit.CapexAccounts = overlay.Audit.CapexAccounts
	}
	if overlay.Audit.LowConfidence != 0 {
		c.Audit.LowConfidence = overlay.Audit.LowConfidence
	}
}

func (c *ClassifierConfig) loadDefaults() {
	if c.HighSimilarity == 0 {
		c.HighSimilarity = 0.92
	}
	if c.MinSimilarity == 0 {
		c.MinSimilarity = 0.5
	}
	if c.DedupSimilarity == 0 {
		c.DedupSimilarity = 0.97
	}
	if c.TopK == 0 {
		c.TopK = 5
	}
	if c.GreenThreshold == 0 {
		c.GreenThreshold = 90
	}
	if c.Workers == 0 {
		c.Workers = 8
	}
	if c.CorpusTTL == "" {
		c.CorpusTTL = "1m"
	}
}

func (c *ClassifierConfig) loadEnv() {
	setFloat := func(env string, dst *float64) {
		if v := os.Getenv(env); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}
	setFloat(EnvClassifierHighSimilarity, &c.HighSimilarity)
	setFloat(EnvClassifierMinSimilarity, &c.MinSimilarity)
	setFloat(EnvClassifierDedupSimilarity, &c.DedupSimilarity)

	if v := os.Getenv(EnvClassifierTopK); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.TopK = n
		}
	}
	if v := os.Getenv(EnvClassifierWorkers); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Workers = n
		}
	}
	if v := os.Getenv(EnvClassifierCorpusTTL); v != "" {
		c.CorpusTTL = v
	}
}

func (c *ClassifierConfig) validate() error {
	if c.MinSimilarity <= 0 || c.MinSimilarity > 1 {
		return fmt.Errorf("min_similarity must be in (0, 1]: %v", c.MinSimilarity)
	}
	if c.HighSimilarity < c.MinSimilarity || c.HighSimilarity > 1 {
		return fmt.Errorf("high_similarity must be in [min_similarity, 1]: %v", c.HighSimilarity)
	}
	if c.DedupSimilarity <= 0 || c.DedupSimilarity > 1 {
		return fmt.Errorf("dedup_similarity must be in (0, 1]: %v", c.DedupSimilarity)
	}
	if c.TopK < 1 {
		return fmt.Errorf("top_k must be positive")
	}
	if c.GreenThreshold < 1 || c.GreenThreshold > 100 {
		return fmt.Errorf("green_threshold must be in [1, 100]: %d", c.GreenThreshold)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive")
	}
	if _, err := time.ParseDuration(c.CorpusTTL); err != nil {
		return fmt.Errorf("invalid corpus_ttl: %w", err)
	}
	return nil
}

func (c *AnomalyConfig) loadDefaults() {
	if c.Window == 0 {
		c.Window = 3
	}
	if c.MinHistory == 0 {
		c.MinHistory = 2
	}
	if c.AddbackCategories == nil {
		c.AddbackCategories = []string{
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
		}
	}
}

func (c *AnomalyConfig) loadEnv() {
	if v := os.Getenv(EnvAnomalyWindow); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Window = n
		}
	}
	if v := os.Getenv(EnvAnomalyMinHistory); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MinHistory = n
		}
	}
	if v := os.Getenv(EnvAnomalyAddbackCategories); v != "" {
		parts := strings.Split(v, ",")
		c.AddbackCategories = make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				c.AddbackCategories = append(c.AddbackCategories, trimmed)
			}
		}
	}
}

func (c *AnomalyConfig) validate() error {
	if c.MinHistory < 1 {
		return fmt.Errorf("min_history must be positive")
	}
	if c.Window < c.MinHistory {
		return fmt.Errorf("window (%d) must be at least min_history (%d)", c.Window, c.MinHistory)
	}
	return nil
}

func (c *AuditConfig) loadDefaults() {
	if c.CapexThreshold == 0 {
		c.CapexThreshold = 2500
	}
	if c.CapexAccounts == nil {
		c.CapexAccounts = []string{"repairs", "maintenance", "equipment"}
	}
	if c.LowConfidence == 0 {
		c.LowConfidence = 70
	}
}

func (c *AuditConfig) loadEnv() {
	if v := os.Getenv(EnvAuditCapexThreshold); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.CapexThreshold = f
		}
	}
	if v := os.Getenv(EnvAuditLowConfidence); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.LowConfidence = n
		}
	}
}

func (c *AuditConfig) validate() error {
	if c.CapexThreshold < 0 {
		return fmt.Errorf("capex_threshold cannot be negative")
	}
	if c.LowConfidence < 1 || c.LowConfidence > 100 {
		return fmt.Errorf("low_confidence must be in [1, 100]: %d", c.LowConfidence)
	}
	return nil
}
