package config

import (
	"fmt"
	"net/url"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Engine.MaxComments < 1 {
		return fmt.Errorf("engine.max_comments must be >= 1, got %d", cfg.Engine.MaxComments)
	}
	if cfg.Engine.InterPagePause < 0 {
		return fmt.Errorf("engine.inter_page_pause must be >= 0")
	}
	if cfg.Engine.RequestTimeout <= 0 {
		return fmt.Errorf("engine.request_timeout must be > 0")
	}
	switch cfg.Engine.Sufficiency {
	case SufficiencyMax, SufficiencyAny:
	case SufficiencyAtLeast:
		if cfg.Engine.MinComments < 1 {
			return fmt.Errorf("engine.min_comments must be >= 1 with sufficiency %q", SufficiencyAtLeast)
		}
	default:
		return fmt.Errorf("engine.sufficiency must be 'max', 'any' or 'at_least', got %q", cfg.Engine.Sufficiency)
	}

	if cfg.RateLimit.InitialDelay < 0 {
		return fmt.Errorf("rate_limit.initial_delay must be >= 0")
	}
	if cfg.RateLimit.MaxDelay < cfg.RateLimit.InitialDelay {
		return fmt.Errorf("rate_limit.max_delay (%s) must be >= initial_delay (%s)",
			cfg.RateLimit.MaxDelay, cfg.RateLimit.InitialDelay)
	}
	if cfg.RateLimit.Factor <= 1 {
		return fmt.Errorf("rate_limit.factor must be > 1, got %g", cfg.RateLimit.Factor)
	}
	if cfg.RateLimit.Jitter < 0 || cfg.RateLimit.Jitter >= 1 {
		return fmt.Errorf("rate_limit.jitter must be in [0, 1), got %g", cfg.RateLimit.Jitter)
	}

	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return fmt.Errorf("fetcher.max_redirects must be >= 0")
	}

	if cfg.Browser.Enabled {
		if cfg.Browser.ExpandRounds < 0 || cfg.Browser.ScrollRounds < 0 {
			return fmt.Errorf("browser.expand_rounds and browser.scroll_rounds must be >= 0")
		}
	}

	if cfg.Proxy.Enabled {
		if cfg.Proxy.Rotation != "round_robin" && cfg.Proxy.Rotation != "random" {
			return fmt.Errorf("proxy.rotation must be 'round_robin' or 'random', got %q", cfg.Proxy.Rotation)
		}
		if cfg.Proxy.RotationFrequency < 0 {
			return fmt.Errorf("proxy.rotation_frequency must be >= 0")
		}
		for _, proxyURL := range cfg.Proxy.URLs {
			if _, err := url.Parse(proxyURL); err != nil {
				return fmt.Errorf("invalid proxy URL %q: %w", proxyURL, err)
			}
		}
	}

	if cfg.Patterns.Backend != "file" && cfg.Patterns.Backend != "sqlite" {
		return fmt.Errorf("patterns.backend must be 'file' or 'sqlite', got %q", cfg.Patterns.Backend)
	}
	if cfg.Patterns.Path == "" {
		return fmt.Errorf("patterns.path must not be empty")
	}

	validProviders := map[string]bool{
		"gemini": true, "ollama": true, "openai": true, "custom": true,
	}
	if !validProviders[cfg.AI.Provider] {
		return fmt.Errorf("ai.provider %q is not supported (valid: gemini, ollama, openai, custom)", cfg.AI.Provider)
	}
	if cfg.AI.Provider == "custom" && cfg.AI.Endpoint == "" {
		return fmt.Errorf("ai.endpoint is required for the custom provider")
	}
	if cfg.AI.MaxInputChars < 1 {
		return fmt.Errorf("ai.max_input_chars must be >= 1, got %d", cfg.AI.MaxInputChars)
	}

	validStorageTypes := map[string]bool{
		"json": true, "jsonl": true, "csv": true, "mongodb": true,
	}
	if !validStorageTypes[cfg.Storage.Type] {
		return fmt.Errorf("storage.type %q is not supported (valid: json, jsonl, csv, mongodb)", cfg.Storage.Type)
	}
	if cfg.Storage.Type == "mongodb" && cfg.Storage.MongoURI == "" {
		return fmt.Errorf("storage.mongo_uri is required for mongodb storage")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	return nil
}

// ValidateURL checks if a URL string is a fetchable post URL.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
