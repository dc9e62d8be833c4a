package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file, environment, and CLI flags.
// Priority (highest to lowest): CLI flags > env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("COMMENTGOAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("commentgoat")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".commentgoat"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyProviderKeys(cfg)

	if cfg.Proxy.ListFile != "" {
		proxies, err := LoadProxyList(cfg.Proxy.ListFile)
		if err != nil {
			return nil, err
		}
		cfg.Proxy.URLs = append(cfg.Proxy.URLs, proxies...)
		cfg.Proxy.Enabled = len(cfg.Proxy.URLs) > 0
	}

	return cfg, nil
}

// applyProviderKeys falls back to the conventional vendor env vars when no
// api key was configured.
func applyProviderKeys(cfg *Config) {
	if cfg.AI.APIKey != "" {
		return
	}
	switch cfg.AI.Provider {
	case "gemini":
		cfg.AI.APIKey = os.Getenv("GEMINI_API_KEY")
	case "openai":
		cfg.AI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

// LoadProxyList reads one proxy URL per line. Blank lines and lines
// starting with # are skipped.
func LoadProxyList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open proxy list: %w", err)
	}
	defer f.Close()

	var proxies []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		proxies = append(proxies, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read proxy list: %w", err)
	}
	return proxies, nil
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("engine.max_comments", cfg.Engine.MaxComments)
	v.SetDefault("engine.inter_page_pause", cfg.Engine.InterPagePause)
	v.SetDefault("engine.sufficiency", cfg.Engine.Sufficiency)
	v.SetDefault("engine.min_comments", cfg.Engine.MinComments)
	v.SetDefault("engine.request_timeout", cfg.Engine.RequestTimeout)
	v.SetDefault("engine.checkpoint_dir", cfg.Engine.CheckpointDir)

	v.SetDefault("rate_limit.initial_delay", cfg.RateLimit.InitialDelay)
	v.SetDefault("rate_limit.max_delay", cfg.RateLimit.MaxDelay)
	v.SetDefault("rate_limit.factor", cfg.RateLimit.Factor)
	v.SetDefault("rate_limit.jitter", cfg.RateLimit.Jitter)

	v.SetDefault("fetcher.follow_redirects", cfg.Fetcher.FollowRedirects)
	v.SetDefault("fetcher.max_redirects", cfg.Fetcher.MaxRedirects)
	v.SetDefault("fetcher.max_body_size", cfg.Fetcher.MaxBodySize)
	v.SetDefault("fetcher.idle_conn_timeout", cfg.Fetcher.IdleConnTimeout)
	v.SetDefault("fetcher.max_idle_conns", cfg.Fetcher.MaxIdleConns)
	v.SetDefault("fetcher.user_agents", cfg.Fetcher.UserAgents)
	v.SetDefault("fetcher.referers", cfg.Fetcher.Referers)

	v.SetDefault("browser.enabled", cfg.Browser.Enabled)
	v.SetDefault("browser.headless", cfg.Browser.Headless)
	v.SetDefault("browser.stealth", cfg.Browser.Stealth)
	v.SetDefault("browser.expand_rounds", cfg.Browser.ExpandRounds)
	v.SetDefault("browser.scroll_rounds", cfg.Browser.ScrollRounds)
	v.SetDefault("browser.scroll_step", cfg.Browser.ScrollStep)
	v.SetDefault("browser.viewport_width", cfg.Browser.ViewportWidth)
	v.SetDefault("browser.viewport_height", cfg.Browser.ViewportHeight)
	v.SetDefault("browser.locale", cfg.Browser.Locale)
	v.SetDefault("browser.timezone", cfg.Browser.Timezone)
	v.SetDefault("browser.stable_wait", cfg.Browser.StableWait)

	v.SetDefault("proxy.enabled", cfg.Proxy.Enabled)
	v.SetDefault("proxy.rotation", cfg.Proxy.Rotation)
	v.SetDefault("proxy.rotation_frequency", cfg.Proxy.RotationFrequency)
	v.SetDefault("proxy.list_file", cfg.Proxy.ListFile)

	v.SetDefault("patterns.backend", cfg.Patterns.Backend)
	v.SetDefault("patterns.path", cfg.Patterns.Path)
	v.SetDefault("patterns.learn_selectors", cfg.Patterns.LearnSelectors)

	v.SetDefault("ai.provider", cfg.AI.Provider)
	v.SetDefault("ai.model", cfg.AI.Model)
	v.SetDefault("ai.endpoint", cfg.AI.Endpoint)
	v.SetDefault("ai.api_key", cfg.AI.APIKey)
	v.SetDefault("ai.max_input_chars", cfg.AI.MaxInputChars)
	v.SetDefault("ai.max_tokens", cfg.AI.MaxTokens)
	v.SetDefault("ai.temperature", cfg.AI.Temperature)
	v.SetDefault("ai.timeout", cfg.AI.Timeout)

	v.SetDefault("storage.type", cfg.Storage.Type)
	v.SetDefault("storage.output_dir", cfg.Storage.OutputDir)
	v.SetDefault("storage.output_file", cfg.Storage.OutputFile)
	v.SetDefault("storage.dedup", cfg.Storage.Dedup)
	v.SetDefault("storage.mongo_uri", cfg.Storage.MongoURI)
	v.SetDefault("storage.mongo_database", cfg.Storage.MongoDatabase)
	v.SetDefault("storage.mongo_collection", cfg.Storage.MongoCollection)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.output", cfg.Logging.Output)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
