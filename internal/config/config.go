package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for CommentGoat.
type Config struct {
	Engine    EngineConfig    `mapstructure:"engine"     yaml:"engine"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"    yaml:"fetcher"`
	Browser   BrowserConfig   `mapstructure:"browser"    yaml:"browser"`
	Proxy     ProxyConfig     `mapstructure:"proxy"      yaml:"proxy"`
	Patterns  PatternsConfig  `mapstructure:"patterns"   yaml:"patterns"`
	AI        AIConfig        `mapstructure:"ai"         yaml:"ai"`
	Storage   StorageConfig   `mapstructure:"storage"    yaml:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"    yaml:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"    yaml:"metrics"`
}

// Sufficiency rules deciding when stored patterns produced enough comments.
const (
	SufficiencyMax     = "max"      // at least the requested maximum
	SufficiencyAny     = "any"      // any non-empty result
	SufficiencyAtLeast = "at_least" // at least engine.min_comments
)

// EngineConfig controls the adaptive extraction engine.
type EngineConfig struct {
	MaxComments    int           `mapstructure:"max_comments"     yaml:"max_comments"`
	InterPagePause time.Duration `mapstructure:"inter_page_pause" yaml:"inter_page_pause"`
	Sufficiency    string        `mapstructure:"sufficiency"      yaml:"sufficiency"`
	MinComments    int           `mapstructure:"min_comments"     yaml:"min_comments"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"  yaml:"request_timeout"`
	CheckpointDir  string        `mapstructure:"checkpoint_dir"   yaml:"checkpoint_dir"`
}

// RateLimitConfig controls the adaptive request pacing.
type RateLimitConfig struct {
	InitialDelay time.Duration `mapstructure:"initial_delay" yaml:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"     yaml:"max_delay"`
	Factor       float64       `mapstructure:"factor"        yaml:"factor"`
	Jitter       float64       `mapstructure:"jitter"        yaml:"jitter"`
}

// FetcherConfig controls the light HTTP fetcher.
type FetcherConfig struct {
	FollowRedirects bool          `mapstructure:"follow_redirects"  yaml:"follow_redirects"`
	MaxRedirects    int           `mapstructure:"max_redirects"     yaml:"max_redirects"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	TLSInsecure     bool          `mapstructure:"tls_insecure"      yaml:"tls_insecure"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
	UserAgents      []string      `mapstructure:"user_agents"       yaml:"user_agents"`
	Referers        []string      `mapstructure:"referers"          yaml:"referers"`
}

// BrowserConfig controls the rendered fetch tier.
type BrowserConfig struct {
	Enabled        bool          `mapstructure:"enabled"         yaml:"enabled"`
	Headless       bool          `mapstructure:"headless"        yaml:"headless"`
	Stealth        bool          `mapstructure:"stealth"         yaml:"stealth"`
	ExpandRounds   int           `mapstructure:"expand_rounds"   yaml:"expand_rounds"`
	ScrollRounds   int           `mapstructure:"scroll_rounds"   yaml:"scroll_rounds"`
	ScrollStep     int           `mapstructure:"scroll_step"     yaml:"scroll_step"`
	ViewportWidth  int           `mapstructure:"viewport_width"  yaml:"viewport_width"`
	ViewportHeight int           `mapstructure:"viewport_height" yaml:"viewport_height"`
	Locale         string        `mapstructure:"locale"          yaml:"locale"`
	Timezone       string        `mapstructure:"timezone"        yaml:"timezone"`
	StableWait     time.Duration `mapstructure:"stable_wait"     yaml:"stable_wait"`
}

// ProxyConfig controls proxy rotation.
type ProxyConfig struct {
	Enabled           bool     `mapstructure:"enabled"            yaml:"enabled"`
	Rotation          string   `mapstructure:"rotation"           yaml:"rotation"`
	URLs              []string `mapstructure:"urls"               yaml:"urls"`
	ListFile          string   `mapstructure:"list_file"          yaml:"list_file"`
	RotationFrequency int      `mapstructure:"rotation_frequency" yaml:"rotation_frequency"`
}

// PatternsConfig controls where learned extraction patterns live.
type PatternsConfig struct {
	Backend        string `mapstructure:"backend"         yaml:"backend"`
	Path           string `mapstructure:"path"            yaml:"path"`
	LearnSelectors bool   `mapstructure:"learn_selectors" yaml:"learn_selectors"`
}

// AIConfig controls the content analyzer.
type AIConfig struct {
	Provider      string        `mapstructure:"provider"        yaml:"provider"`
	Model         string        `mapstructure:"model"           yaml:"model"`
	Endpoint      string        `mapstructure:"endpoint"        yaml:"endpoint"`
	APIKey        string        `mapstructure:"api_key"         yaml:"api_key"`
	MaxInputChars int           `mapstructure:"max_input_chars" yaml:"max_input_chars"`
	MaxTokens     int           `mapstructure:"max_tokens"      yaml:"max_tokens"`
	Temperature   float64       `mapstructure:"temperature"     yaml:"temperature"`
	Timeout       time.Duration `mapstructure:"timeout"         yaml:"timeout"`
}

// StorageConfig controls output.
type StorageConfig struct {
	Type            string `mapstructure:"type"             yaml:"type"`
	OutputDir       string `mapstructure:"output_dir"       yaml:"output_dir"`
	OutputFile      string `mapstructure:"output_file"      yaml:"output_file"`
	Dedup           bool   `mapstructure:"dedup"            yaml:"dedup"`
	MongoURI        string `mapstructure:"mongo_uri"        yaml:"mongo_uri"`
	MongoDatabase   string `mapstructure:"mongo_database"   yaml:"mongo_database"`
	MongoCollection string `mapstructure:"mongo_collection" yaml:"mongo_collection"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			MaxComments:    100,
			InterPagePause: 2 * time.Second,
			Sufficiency:    SufficiencyMax,
			MinComments:    1,
			RequestTimeout: 30 * time.Second,
			CheckpointDir:  ".commentgoat_checkpoints",
		},
		RateLimit: RateLimitConfig{
			InitialDelay: 2 * time.Second,
			MaxDelay:     10 * time.Second,
			Factor:       1.5,
			Jitter:       0.1,
		},
		Fetcher: FetcherConfig{
			FollowRedirects: true,
			MaxRedirects:    10,
			MaxBodySize:     10 * 1024 * 1024, // 10MB
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    100,
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
			},
			Referers: []string{
				"https://www.google.com/",
				"https://www.bing.com/",
				"https://www.facebook.com/",
				"https://www.reddit.com/",
			},
		},
		Browser: BrowserConfig{
			Enabled:        true,
			Headless:       true,
			Stealth:        true,
			ExpandRounds:   3,
			ScrollRounds:   5,
			ScrollStep:     500,
			ViewportWidth:  1920,
			ViewportHeight: 1080,
			Locale:         "en-US",
			Timezone:       "America/New_York",
			StableWait:     300 * time.Millisecond,
		},
		Proxy: ProxyConfig{
			Enabled:           false,
			Rotation:          "round_robin",
			RotationFrequency: 10,
		},
		Patterns: PatternsConfig{
			Backend: "file",
			Path:    "data/patterns/facebook_patterns.json",
		},
		AI: AIConfig{
			Provider:      "gemini",
			Model:         "gemini-1.5-pro",
			MaxInputChars: 30000,
			MaxTokens:     8192,
			Temperature:   0.1,
			Timeout:       120 * time.Second,
		},
		Storage: StorageConfig{
			Type:            "json",
			OutputDir:       "data/output",
			MongoDatabase:   "commentgoat",
			MongoCollection: "comments",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}
