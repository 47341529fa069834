// Package config loads and validates CaseGrounds configuration.
//
// Configuration is applied in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/casegrounds/config.yaml)
//  3. Project config (.casegrounds.yaml in the working directory)
//  4. Environment variables (CASES_DIR, LLM_MODEL, ...)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete CaseGrounds configuration.
type Config struct {
	Storage Storage `yaml:"storage" json:"storage"`
	Chunk   Chunk   `yaml:"chunking" json:"chunking"`
	Search  Search  `yaml:"search" json:"search"`
	Embed   Embed   `yaml:"embeddings" json:"embeddings"`
	LLM     LLM     `yaml:"llm" json:"llm"`
	Legal   Legal   `yaml:"legal" json:"legal"`
	Answer  Answer  `yaml:"answer" json:"answer"`
	Server  Server  `yaml:"server" json:"server"`
}

// Storage configures on-disk data locations.
type Storage struct {
	// CasesDir is the root directory holding one subdirectory per case.
	CasesDir string `yaml:"cases_dir" json:"cases_dir"`
	// LegalCacheDir holds snapshots of fetched legal web sources.
	LegalCacheDir string `yaml:"legal_cache_dir" json:"legal_cache_dir"`
	// VectorDir holds per-case vector index files.
	VectorDir string `yaml:"vector_dir" json:"vector_dir"`
}

// Chunk configures document chunking.
type Chunk struct {
	// TargetWords is the sliding window size in words.
	TargetWords int `yaml:"target_words" json:"target_words"`
	// OverlapWords is the window overlap in words. Must be < TargetWords.
	OverlapWords int `yaml:"overlap_words" json:"overlap_words"`
	// OCRTextThreshold is the average chars per page below which a PDF
	// is considered scanned and OCR is attempted.
	OCRTextThreshold int `yaml:"ocr_text_threshold" json:"ocr_text_threshold"`
	// OCRTimeout bounds a single OCR run.
	OCRTimeout time.Duration `yaml:"ocr_timeout" json:"ocr_timeout"`
}

// Search configures hybrid retrieval.
type Search struct {
	// TopK is the default number of results returned.
	TopK int `yaml:"top_k" json:"top_k"`
	// KeywordWeight is the fused weight of the lexical score (0.0-1.0).
	KeywordWeight float64 `yaml:"keyword_weight" json:"keyword_weight"`
	// VectorWeight is the fused weight of the vector score (0.0-1.0).
	VectorWeight float64 `yaml:"vector_weight" json:"vector_weight"`
	// MaxChunksPerDoc caps results per source document.
	MaxChunksPerDoc int `yaml:"max_chunks_per_doc" json:"max_chunks_per_doc"`
	// DedupeThreshold is the Jaccard similarity above which a result is
	// considered a near-duplicate (0.0-1.0).
	DedupeThreshold float64 `yaml:"dedupe_threshold" json:"dedupe_threshold"`
}

// Embed configures the embedding provider.
type Embed struct {
	// BaseURL is an OpenAI-compatible embeddings endpoint.
	BaseURL string `yaml:"base_url" json:"base_url"`
	// APIKey authenticates against the endpoint.
	APIKey string `yaml:"api_key" json:"api_key"`
	// Model is the embedding model name.
	Model string `yaml:"model" json:"model"`
	// Dimension is the embedding vector dimension.
	Dimension int `yaml:"dimension" json:"dimension"`
	// CacheSize is the LRU embedding cache capacity.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// LLM configures the chat completion provider.
type LLM struct {
	// BaseURL is an OpenAI-compatible chat completions endpoint.
	BaseURL string `yaml:"base_url" json:"base_url"`
	// APIKey authenticates against the endpoint.
	APIKey string `yaml:"api_key" json:"api_key"`
	// Model is the chat model name.
	Model string `yaml:"model" json:"model"`
	// Temperature for answer generation.
	Temperature float64 `yaml:"temperature" json:"temperature"`
}

// Legal configures the whitelisted legal web fetcher.
type Legal struct {
	// WhitelistDomains are the registrable domains fetching is allowed
	// from. Subdomains of an entry are allowed.
	WhitelistDomains []string `yaml:"whitelist_domains" json:"whitelist_domains"`
	// FetchTimeout bounds a single page fetch.
	FetchTimeout time.Duration `yaml:"fetch_timeout" json:"fetch_timeout"`
	// UserAgent identifies the fetcher to remote sites.
	UserAgent string `yaml:"user_agent" json:"user_agent"`
}

// Answer configures the grounded answer engine.
type Answer struct {
	// MaxCitationRetries is the number of regeneration attempts after a
	// failed citation validation, not counting the initial attempt.
	MaxCitationRetries int `yaml:"max_citation_retries" json:"max_citation_retries"`
	// RetrievalTopK is the number of chunks retrieved as evidence.
	RetrievalTopK int `yaml:"retrieval_top_k" json:"retrieval_top_k"`
}

// Server configures the HTTP API server.
type Server struct {
	// Addr is the listen address.
	Addr string `yaml:"addr" json:"addr"`
	// LogLevel is the minimum log level (debug, info, warn, error).
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// defaultWhitelist holds the trusted UK legal information sources.
var defaultWhitelist = []string{
	"acas.org.uk",
	"gov.uk",
	"citizensadvice.org.uk",
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Storage: Storage{
			CasesDir:      defaultDataPath("cases"),
			LegalCacheDir: defaultDataPath("legal_cache"),
			VectorDir:     defaultDataPath("vectors"),
		},
		Chunk: Chunk{
			TargetWords:      500,
			OverlapWords:     80,
			OCRTextThreshold: 100,
			OCRTimeout:       300 * time.Second,
		},
		Search: Search{
			TopK:            10,
			KeywordWeight:   0.5,
			VectorWeight:    0.5,
			MaxChunksPerDoc: 3,
			DedupeThreshold: 0.9,
		},
		Embed: Embed{
			BaseURL:   "http://localhost:11434/v1",
			Model:     "nomic-embed-text",
			Dimension: 1536,
			CacheSize: 10000,
		},
		LLM: LLM{
			BaseURL:     "http://localhost:11434/v1",
			Model:       "gpt-4o-mini",
			Temperature: 0.3,
		},
		Legal: Legal{
			WhitelistDomains: append([]string(nil), defaultWhitelist...),
			FetchTimeout:     15 * time.Second,
			UserAgent:        "CaseGroundsBot/1.0 (legal research)",
		},
		Answer: Answer{
			MaxCitationRetries: 2,
			RetrievalTopK:      8,
		},
		Server: Server{
			Addr:     "127.0.0.1:8642",
			LogLevel: "info",
		},
	}
}

// defaultDataPath returns a path under ~/.casegrounds/.
func defaultDataPath(sub string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".casegrounds", sub)
	}
	return filepath.Join(home, ".casegrounds", sub)
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/casegrounds/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/casegrounds/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "casegrounds", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "casegrounds", "config.yaml")
	}
	return filepath.Join(home, ".config", "casegrounds", "config.yaml")
}

// Load loads configuration from the specified directory.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	// User/global config first
	userPath := GetUserConfigPath()
	if fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	// Project config overrides user config
	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	// Environment variables have highest precedence
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .casegrounds.yaml or .casegrounds.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".casegrounds.yaml")
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".casegrounds.yml")
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}

	// No config file is fine - use defaults
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Storage.CasesDir != "" {
		c.Storage.CasesDir = other.Storage.CasesDir
	}
	if other.Storage.LegalCacheDir != "" {
		c.Storage.LegalCacheDir = other.Storage.LegalCacheDir
	}
	if other.Storage.VectorDir != "" {
		c.Storage.VectorDir = other.Storage.VectorDir
	}

	if other.Chunk.TargetWords != 0 {
		c.Chunk.TargetWords = other.Chunk.TargetWords
	}
	if other.Chunk.OverlapWords != 0 {
		c.Chunk.OverlapWords = other.Chunk.OverlapWords
	}
	if other.Chunk.OCRTextThreshold != 0 {
		c.Chunk.OCRTextThreshold = other.Chunk.OCRTextThreshold
	}
	if other.Chunk.OCRTimeout != 0 {
		c.Chunk.OCRTimeout = other.Chunk.OCRTimeout
	}

	if other.Search.TopK != 0 {
		c.Search.TopK = other.Search.TopK
	}
	if other.Search.KeywordWeight != 0 {
		c.Search.KeywordWeight = other.Search.KeywordWeight
	}
	if other.Search.VectorWeight != 0 {
		c.Search.VectorWeight = other.Search.VectorWeight
	}
	if other.Search.MaxChunksPerDoc != 0 {
		c.Search.MaxChunksPerDoc = other.Search.MaxChunksPerDoc
	}
	if other.Search.DedupeThreshold != 0 {
		c.Search.DedupeThreshold = other.Search.DedupeThreshold
	}

	if other.Embed.BaseURL != "" {
		c.Embed.BaseURL = other.Embed.BaseURL
	}
	if other.Embed.APIKey != "" {
		c.Embed.APIKey = other.Embed.APIKey
	}
	if other.Embed.Model != "" {
		c.Embed.Model = other.Embed.Model
	}
	if other.Embed.Dimension != 0 {
		c.Embed.Dimension = other.Embed.Dimension
	}
	if other.Embed.CacheSize != 0 {
		c.Embed.CacheSize = other.Embed.CacheSize
	}

	if other.LLM.BaseURL != "" {
		c.LLM.BaseURL = other.LLM.BaseURL
	}
	if other.LLM.APIKey != "" {
		c.LLM.APIKey = other.LLM.APIKey
	}
	if other.LLM.Model != "" {
		c.LLM.Model = other.LLM.Model
	}
	if other.LLM.Temperature != 0 {
		c.LLM.Temperature = other.LLM.Temperature
	}

	if len(other.Legal.WhitelistDomains) > 0 {
		c.Legal.WhitelistDomains = other.Legal.WhitelistDomains
	}
	if other.Legal.FetchTimeout != 0 {
		c.Legal.FetchTimeout = other.Legal.FetchTimeout
	}
	if other.Legal.UserAgent != "" {
		c.Legal.UserAgent = other.Legal.UserAgent
	}

	if other.Answer.MaxCitationRetries != 0 {
		c.Answer.MaxCitationRetries = other.Answer.MaxCitationRetries
	}
	if other.Answer.RetrievalTopK != 0 {
		c.Answer.RetrievalTopK = other.Answer.RetrievalTopK
	}

	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CASES_DIR"); v != "" {
		c.Storage.CasesDir = v
	}
	if v := os.Getenv("LEGAL_CACHE_DIR"); v != "" {
		c.Storage.LegalCacheDir = v
	}
	if v := os.Getenv("VECTOR_DIR"); v != "" {
		c.Storage.VectorDir = v
	}

	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		c.Embed.Model = v
	}
	if v := os.Getenv("EMBEDDING_DIMENSION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embed.Dimension = n
		}
	}

	if v := os.Getenv("LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
		// The embeddings endpoint follows the chat endpoint unless set
		// separately.
		if os.Getenv("EMBEDDING_BASE_URL") == "" {
			c.Embed.BaseURL = v
		}
	}
	if v := os.Getenv("EMBEDDING_BASE_URL"); v != "" {
		c.Embed.BaseURL = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
		if c.Embed.APIKey == "" {
			c.Embed.APIKey = v
		}
	}

	if v := os.Getenv("WHITELIST_DOMAINS"); v != "" {
		var domains []string
		for _, d := range strings.Split(v, ",") {
			d = strings.TrimSpace(d)
			if d != "" {
				domains = append(domains, d)
			}
		}
		if len(domains) > 0 {
			c.Legal.WhitelistDomains = domains
		}
	}

	if v := os.Getenv("OCR_TEXT_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Chunk.OCRTextThreshold = n
		}
	}
	if v := os.Getenv("CHUNK_TARGET_WORDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Chunk.TargetWords = n
		}
	}
	if v := os.Getenv("CHUNK_OVERLAP_WORDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Chunk.OverlapWords = n
		}
	}

	if v := os.Getenv("HYBRID_SEARCH_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.TopK = n
		}
	}
	if v := os.Getenv("MAX_CHUNKS_PER_DOC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.MaxChunksPerDoc = n
		}
	}
	if v := os.Getenv("DEDUPE_SIMILARITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			c.Search.DedupeThreshold = f
		}
	}

	if v := os.Getenv("MAX_CITATION_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Answer.MaxCitationRetries = n
		}
	}

	if v := os.Getenv("FETCH_TIMEOUT"); v != "" {
		if d := parseDurationOrSeconds(v); d > 0 {
			c.Legal.FetchTimeout = d
		}
	}
	if v := os.Getenv("OCR_TIMEOUT"); v != "" {
		if d := parseDurationOrSeconds(v); d > 0 {
			c.Chunk.OCRTimeout = d
		}
	}
}

// parseDurationOrSeconds accepts either a Go duration ("15s") or a bare
// number of seconds ("15").
func parseDurationOrSeconds(s string) time.Duration {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return 0
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Storage.CasesDir == "" {
		return fmt.Errorf("storage.cases_dir must not be empty")
	}
	if c.Storage.LegalCacheDir == "" {
		return fmt.Errorf("storage.legal_cache_dir must not be empty")
	}
	if c.Storage.VectorDir == "" {
		return fmt.Errorf("storage.vector_dir must not be empty")
	}

	if c.Chunk.TargetWords <= 0 {
		return fmt.Errorf("chunking.target_words must be positive, got %d", c.Chunk.TargetWords)
	}
	if c.Chunk.OverlapWords < 0 || c.Chunk.OverlapWords >= c.Chunk.TargetWords {
		return fmt.Errorf("chunking.overlap_words must be in [0, target_words), got %d", c.Chunk.OverlapWords)
	}

	if c.Search.TopK <= 0 {
		return fmt.Errorf("search.top_k must be positive, got %d", c.Search.TopK)
	}
	if c.Search.KeywordWeight < 0 || c.Search.KeywordWeight > 1 {
		return fmt.Errorf("search.keyword_weight must be between 0 and 1, got %f", c.Search.KeywordWeight)
	}
	if c.Search.VectorWeight < 0 || c.Search.VectorWeight > 1 {
		return fmt.Errorf("search.vector_weight must be between 0 and 1, got %f", c.Search.VectorWeight)
	}
	if c.Search.DedupeThreshold < 0 || c.Search.DedupeThreshold > 1 {
		return fmt.Errorf("search.dedupe_threshold must be between 0 and 1, got %f", c.Search.DedupeThreshold)
	}
	if c.Search.MaxChunksPerDoc <= 0 {
		return fmt.Errorf("search.max_chunks_per_doc must be positive, got %d", c.Search.MaxChunksPerDoc)
	}

	if c.Embed.Dimension <= 0 {
		return fmt.Errorf("embeddings.dimension must be positive, got %d", c.Embed.Dimension)
	}

	if len(c.Legal.WhitelistDomains) == 0 {
		return fmt.Errorf("legal.whitelist_domains must not be empty")
	}
	for _, d := range c.Legal.WhitelistDomains {
		if strings.Contains(d, "/") || strings.Contains(d, ":") {
			return fmt.Errorf("legal.whitelist_domains entries must be bare hostnames, got %q", d)
		}
	}

	if c.Answer.MaxCitationRetries < 0 {
		return fmt.Errorf("answer.max_citation_retries must be non-negative, got %d", c.Answer.MaxCitationRetries)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
