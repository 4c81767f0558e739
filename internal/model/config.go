package model

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Config is the full tool configuration. Values come from (highest priority
// first) CLI flags, WUBIQ_* environment variables, ~/.wubiq/config.yaml,
// and the defaults below.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Query       QueryConfig       `yaml:"query"`
	Store       StoreConfig       `yaml:"store"`
	Classifier  ClassifierConfig  `yaml:"classifier"`
	Vision      VisionConfig      `yaml:"vision"`
	Consensus   ConsensusConfig   `yaml:"consensus"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Cache       CacheConfig       `yaml:"cache"`
	Output      OutputConfig      `yaml:"output"`
}

// HTTPConfig controls the HTTP client shared by all remote calls.
type HTTPConfig struct {
	Timeout           time.Duration `yaml:"timeout"`
	UserAgent         string        `yaml:"user_agent"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	HTTPProxy         string        `yaml:"http_proxy"`
	HTTPSProxy        string        `yaml:"https_proxy"`
}

// QueryConfig locates the remote query form and captcha endpoints.
type QueryConfig struct {
	BaseURL     string `yaml:"base_url"`
	PrimePath   string `yaml:"prime_path"`   // form page that issues the session cookie
	CaptchaPath string `yaml:"captcha_path"` // captcha bitmap bound to the session
	SubmitPath  string `yaml:"submit_path"`  // form target serving the result page
	MaxAttempts int    `yaml:"max_attempts"`
}

// StoreConfig locates the persisted template library.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// ClassifierConfig controls the Tesseract-backed classifier recognizer.
type ClassifierConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Language string `yaml:"language"` // trained-data name, e.g. "eng"
}

// VisionConfig controls the optional remote vision recognizer. Disabled by
// default; participates in batch consensus only, never the live retry loop.
type VisionConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Model      string  `yaml:"model"`
	APIKey     string  `yaml:"-"` // from OPENAI_API_KEY, never persisted
	BaseURL    string  `yaml:"base_url"`
	Confidence float64 `yaml:"confidence"` // nominal per-position confidence
	Timeout    int     `yaml:"timeout"`    // seconds
}

// ConsensusConfig controls batch-labeling decisions.
type ConsensusConfig struct {
	Strategy       string  `yaml:"strategy"` // strict, balanced, lenient
	HighConfidence float64 `yaml:"high_confidence"`
}

// ConcurrencyConfig controls batch parallelism.
type ConcurrencyConfig struct {
	Workers int `yaml:"workers"`
}

// CacheConfig controls the decomposition result cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Dir     string        `yaml:"dir"`
	TTL     time.Duration `yaml:"ttl"`
}

// OutputConfig controls rendering.
type OutputConfig struct {
	Verbose bool `yaml:"verbose"`
	JSON    bool `yaml:"json"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, ".wubiq")

	return &Config{
		HTTP: HTTPConfig{
			Timeout:           10 * time.Second,
			UserAgent:         "wubiq/0.3 (+https://github.com/yxzhu/wubiq)",
			MaxBodyBytes:      2_000_000,
			RequestsPerSecond: 2,
			Burst:             4,
		},
		Query: QueryConfig{
			BaseURL:     "http://www.wangma.com.cn",
			PrimePath:   "/query/wmhz1.asp",
			CaptchaPath: "/include/v.asp",
			SubmitPath:  "/query/wmhz2.asp",
			MaxAttempts: 5,
		},
		Store: StoreConfig{
			Path: filepath.Join(base, "templates.db"),
		},
		Classifier: ClassifierConfig{
			Enabled:  true,
			Language: "eng",
		},
		Vision: VisionConfig{
			Enabled:    false,
			Model:      "gpt-4o-mini",
			Confidence: 0.85,
			Timeout:    30,
		},
		Consensus: ConsensusConfig{
			Strategy:       "balanced",
			HighConfidence: 0.90,
		},
		Concurrency: ConcurrencyConfig{
			Workers: runtime.NumCPU(),
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     filepath.Join(base, "cache"),
			TTL:     30 * 24 * time.Hour,
		},
		Output: OutputConfig{},
	}
}
