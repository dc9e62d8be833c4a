package fetcher

import (
	"errors"
	"net/url"
	"strings"
)

// ErrChallenge marks a response that is a bot challenge instead of the page.
var ErrChallenge = errors.New("bot challenge page")

// CAPTCHAType identifies the type of CAPTCHA.
type CAPTCHAType string

const (
	CAPTCHAReCaptchaV2 CAPTCHAType = "recaptcha_v2"
	CAPTCHAReCaptchaV3 CAPTCHAType = "recaptcha_v3"
	CAPTCHAHCaptcha    CAPTCHAType = "hcaptcha"
	CAPTCHATurnstile   CAPTCHAType = "turnstile"
	CAPTCHACheckpoint  CAPTCHAType = "checkpoint"
)

// DetectCAPTCHA checks a page for common CAPTCHA indicators and returns
// the challenge type with its site key, if any.
func DetectCAPTCHA(html string) (CAPTCHAType, string) {
	htmlLower := strings.ToLower(html)

	// reCAPTCHA v2/v3
	if strings.Contains(htmlLower, "recaptcha") || strings.Contains(html, "g-recaptcha") {
		if siteKey := extractBetween(html, `data-sitekey="`, `"`); siteKey != "" {
			if strings.Contains(htmlLower, "recaptcha/api.js?render=") {
				return CAPTCHAReCaptchaV3, siteKey
			}
			return CAPTCHAReCaptchaV2, siteKey
		}
	}

	// hCaptcha
	if strings.Contains(htmlLower, "hcaptcha") || strings.Contains(html, "h-captcha") {
		if siteKey := extractBetween(html, `data-sitekey="`, `"`); siteKey != "" {
			return CAPTCHAHCaptcha, siteKey
		}
	}

	// Cloudflare Turnstile
	if strings.Contains(htmlLower, "turnstile") || strings.Contains(html, "cf-turnstile") {
		if siteKey := extractBetween(html, `data-sitekey="`, `"`); siteKey != "" {
			return CAPTCHATurnstile, siteKey
		}
	}

	return "", ""
}

// IsCheckpoint reports whether the request was redirected to a security
// checkpoint instead of the post.
func IsCheckpoint(final *url.URL) bool {
	return final != nil && strings.Contains(final.Path, "/checkpoint")
}

// extractBetween extracts a substring between two delimiters.
func extractBetween(s, start, end string) string {
	idx := strings.Index(s, start)
	if idx < 0 {
		return ""
	}
	s = s[idx+len(start):]
	idx = strings.Index(s, end)
	if idx < 0 {
		return ""
	}
	return s[:idx]
}
