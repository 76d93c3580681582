package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	EnvProvidersEnabled        = "TALLY_PROVIDERS_ENABLED"
	EnvProvidersBackend        = "TALLY_PROVIDERS_BACKEND"
	EnvProvidersAPIKey         = "TALLY_PROVIDERS_API_KEY"
	EnvProvidersProject        = "TALLY_PROVIDERS_PROJECT"
	EnvProvidersLocation       = "TALLY_PROVIDERS_LOCATION"
	EnvProvidersEmbeddingModel = "TALLY_PROVIDERS_EMBEDDING_MODEL"
	EnvProvidersReasoningModel = "TALLY_PROVIDERS_REASONING_MODEL"
	EnvProvidersDimensions     = "TALLY_PROVIDERS_DIMENSIONS"
	EnvProvidersTimeout        = "TALLY_PROVIDERS_TIMEOUT"
	EnvProvidersMaxRetries     = "TALLY_PROVIDERS_MAX_RETRIES"
	EnvProvidersCacheTTL       = "TALLY_PROVIDERS_CACHE_TTL"
)

// Provider backends.
const (
	BackendGemini = "gemini"
	BackendVertex = "vertex"
)

// ProvidersConfig configures the external embedding and reasoning services.
// When Enabled is false the engine runs without them: accounts stay
// unembedded and rationales are produced deterministically.
type ProvidersConfig struct {
	Enabled        bool   `toml:"enabled"`
	Backend        string `toml:"backend"`
	APIKey         string `toml:"api_key"`
	Project        string `toml:"project"`
	Location       string `toml:"location"`
	EmbeddingModel string `toml:"embedding_model"`
	ReasoningModel string `toml:"reasoning_model"`
	Dimensions     int    `toml:"dimensions"`
	Timeout        string `toml:"timeout"`
	MaxRetries     int    `toml:"max_retries"`
	CacheTTL       string `toml:"cache_ttl"`
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *ProvidersConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// CacheTTLDuration returns CacheTTL as a time.Duration.
func (c *ProvidersConfig) CacheTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.CacheTTL)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *ProvidersConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay. Enabled only turns on.
func (c *ProvidersConfig) Merge(overlay *ProvidersConfig) {
	if overlay.Enabled {
		c.Enabled = true
	}
	if overlay.Backend != "" {
		c.Backend = overlay.Backend
	}
	if overlay.APIKey != "" {
		c.APIKey = overlay.APIKey
	}
	if overlay.Project != "" {
		c.Project = overlay.Project
	}
	if overlay.Location != "" {
		c.Location = overlay.Location
	}
	if overlay.EmbeddingModel != "" {
		c.EmbeddingModel = overlay.EmbeddingModel
	}
	if overlay.ReasoningModel != "" {
		c.ReasoningModel = overlay.ReasoningModel
	}
	if overlay.Dimensions != 0 {
		c.Dimensions = overlay.Dimensions
	}
	if overlay.Timeout != "" {
		c.Timeout = overlay.Timeout
	}
	if overlay.MaxRetries != 0 {
		c.MaxRetries = overlay.MaxRetries
	}
	if overlay.CacheTTL != "" {
		c.CacheTTL = overlay.CacheTTL
	}
}

func (c *ProvidersConfig) loadDefaults() {
	if c.Backend == "" {
		c.Backend = BackendGemini
	}
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = "text-embedding-004"
	}
	if c.ReasoningModel == "" {
		c.ReasoningModel = "gemini-2.5-flash"
	}
	if c.Dimensions == 0 {
		c.Dimensions = 768
	}
	if c.Timeout == "" {
		c.Timeout = "10s"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.CacheTTL == "" {
		c.CacheTTL = "30m"
	}
}

func (c *ProvidersConfig) loadEnv() {
	if v := os.Getenv(EnvProvidersEnabled); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Enabled = b
		}
	}
	if v := os.Getenv(EnvProvidersBackend); v != "" {
		c.Backend = v
	}
	if v := os.Getenv(EnvProvidersAPIKey); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv(EnvProvidersProject); v != "" {
		c.Project = v
	}
	if v := os.Getenv(EnvProvidersLocation); v != "" {
		c.Location = v
	}
	if v := os.Getenv(EnvProvidersEmbeddingModel); v != "" {
		c.EmbeddingModel = v
	}
	if v := os.Getenv(EnvProvidersReasoningModel); v != "" {
		c.ReasoningModel = v
	}
	if v := os.Getenv(EnvProvidersDimensions); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Dimensions = n
		}
	}
	if v := os.Getenv(EnvProvidersTimeout); v != "" {
		c.Timeout = v
	}
	if v := os.Getenv(EnvProvidersMaxRetries); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxRetries = n
		}
	}
	if v := os.Getenv(EnvProvidersCacheTTL); v != "" {
		c.CacheTTL = v
	}
}

func (c *ProvidersConfig) validate() error {
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.CacheTTL); err != nil {
		return fmt.Errorf("invalid cache_ttl: %w", err)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative")
	}
	if c.Dimensions < 1 {
		return fmt.Errorf("dimensions must be positive")
	}
	if !c.Enabled {
		return nil
	}

	switch c.Backend {
	case BackendGemini:
		if c.APIKey == "" {
			return fmt.Errorf("api_key required for %s backend", c.Backend)
		}
	case BackendVertex:
		if c.Project == "" || c.Location == "" {
			return fmt.Errorf("project and location required for %s backend", c.Backend)
		}
	default:
		return fmt.Errorf("unknown backend: %s", c.Backend)
	}
	return nil
}
