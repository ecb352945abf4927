// scrubber.go implements fail-closed redaction of sensitive data in
// captured events.

package beacon

import (
	"net/url"
	"regexp"
	"strings"
)

// ScrubberConfig controls scrubbing behavior.
type ScrubberConfig struct {
	// SensitiveKeys extends the built-in list of key substrings whose
	// values are always redacted (in fields, URL query parameters and
	// breadcrumb data).
	SensitiveKeys []string

	// MaxMessageSize is the maximum length for messages (default: 4096).
	MaxMessageSize int

	// MaxStackSize is the maximum length for stack traces (default: 32768).
	MaxStackSize int

	// MaxFieldSize is the maximum length for any other string value
	// (default: 1024).
	MaxFieldSize int

	// ScrubMessages enables pattern scrubbing of free text (default: true).
	ScrubMessages bool

	// FailClosed replaces a value that cannot be parsed with a redaction
	// marker instead of passing it through (default: true).
	FailClosed bool
}

// DefaultScrubberConfig returns production-safe defaults.
func DefaultScrubberConfig() ScrubberConfig {
	return ScrubberConfig{
		MaxMessageSize: 4096,
		MaxStackSize:   32768,
		MaxFieldSize:   1024,
		ScrubMessages:  true,
		FailClosed:     true,
	}
}

const (
	redacted      = "[REDACTED]"
	redactedParse = "[REDACTED:SCRUB_ERROR]"
)

// Compiled once at package init.
var messageScrubPatterns = []*regexp.Regexp{
	// API keys and tokens
	regexp.MustCompile(`(?i)(api[_-]?key|token)[=:\s]+['"]?[\w\-\.]+['"]?`),
	regexp.MustCompile(`(?i)(authorization|bearer)[=:\s]+['"]?[\w\-\.]+['"]?[\s]+['"]?[\w\-\.]+['"]?`),
	regexp.MustCompile(`(?i)sk-[a-zA-Z0-9_-]{20,}`),
	regexp.MustCompile(`(?i)gh[po]_[a-zA-Z0-9]{36}`),
	regexp.MustCompile(`(?i)github_pat_[a-zA-Z0-9_]{22,}`),
	regexp.MustCompile(`(?i)xox[baprs]-[a-zA-Z0-9\-]{10,}`),
	regexp.MustCompile(`(?i)eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`),

	// Credentials
	regexp.MustCompile(`(?i)(password|passwd|secret|credential)[=:\s]+['"]?[^\s'",&]+['"]?`),

	// PII
	regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`),
}

var defaultSensitiveKeys = []string{
	"token",
	"key",
	"secret",
	"password",
	"passwd",
	"credential",
	"auth",
	"session_token",
	"cookie",
}

// User-specific path prefixes normalized out of stack traces.
var pathNormalizationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/home/[^/]+/`),
	regexp.MustCompile(`/Users/[^/]+/`),
	regexp.MustCompile(`C:\\Users\\[^\\]+\\`),
	regexp.MustCompile(`/tmp/[^/]+/`),
}

// Scrubber redacts sensitive data from captured observations.
type Scrubber struct {
	cfg  ScrubberConfig
	keys []string
}

// NewScrubber creates a scrubber with the given configuration. Zero
// size limits fall back to the defaults.
func NewScrubber(cfg ScrubberConfig) *Scrubber {
	def := DefaultScrubberConfig()
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.MaxStackSize <= 0 {
		cfg.MaxStackSize = def.MaxStackSize
	}
	if cfg.MaxFieldSize <= 0 {
		cfg.MaxFieldSize = def.MaxFieldSize
	}
	keys := append([]string(nil), defaultSensitiveKeys...)
	for _, k := range cfg.SensitiveKeys {
		keys = append(keys, strings.ToLower(k))
	}
	return &Scrubber{cfg: cfg, keys: keys}
}

// ScrubMessage truncates free text and redacts secrets and PII in it.
func (s *Scrubber) ScrubMessage(msg string) string {
	msg = truncateWithMarker(msg, s.cfg.MaxMessageSize)
	if !s.cfg.ScrubMessages {
		return msg
	}
	for _, pattern := range messageScrubPatterns {
		msg = pattern.ReplaceAllString(msg, redacted)
	}
	return msg
}

// ScrubStack normalizes user paths, masks addresses and limits size.
func (s *Scrubber) ScrubStack(trace string) string {
	if trace == "" {
		return trace
	}
	for _, pattern := range pathNormalizationPatterns {
		trace = pattern.ReplaceAllString(trace, "/[PATH]/")
	}
	trace = memAddrPattern.ReplaceAllString(trace, "0x...")
	return truncateWithMarker(trace, s.cfg.MaxStackSize)
}

// ScrubURL redacts credentials in the userinfo part and the values of
// sensitive query parameters. Unparseable URLs are fully redacted when
// FailClosed is set.
func (s *Scrubber) ScrubURL(raw string) string {
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		if s.cfg.FailClosed {
			return redactedParse
		}
		return raw
	}
	if u.User != nil {
		u.User = url.User(redacted)
	}
	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			if s.IsSensitiveKey(key) {
				q.Set(key, redacted)
			}
		}
		u.RawQuery = q.Encode()
	}
	return truncateWithMarker(u.String(), s.cfg.MaxFieldSize)
}

// ScrubFields returns a scrubbed copy of a payload field map. Values
// under sensitive keys are redacted; strings are pattern-scrubbed;
// nested maps and slices are walked.
func (s *Scrubber) ScrubFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	return s.scrubMap(fields)
}

func (s *Scrubber) scrubValue(val any) any {
	switch v := val.(type) {
	case map[string]any:
		return s.scrubMap(v)
	case map[string]string:
		out := make(map[string]string, len(v))
		for key, value := range v {
			if s.IsSensitiveKey(key) {
				out[key] = redacted
			} else {
				out[key] = s.scrubString(value)
			}
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = s.scrubValue(item)
		}
		return out
	case string:
		return s.scrubString(v)
	default:
		return v
	}
}

func (s *Scrubber) scrubMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for key, value := range m {
		if s.IsSensitiveKey(key) {
			out[key] = redacted
			continue
		}
		out[key] = s.scrubValue(value)
	}
	return out
}

func (s *Scrubber) scrubString(v string) string {
	v = truncateWithMarker(v, s.cfg.MaxFieldSize)
	if !s.cfg.ScrubMessages {
		return v
	}
	for _, pattern := range messageScrubPatterns {
		v = pattern.ReplaceAllString(v, redacted)
	}
	return v
}

// IsSensitiveKey reports whether values stored under key are redacted.
func (s *Scrubber) IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, pattern := range s.keys {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// truncateWithMarker truncates a string and adds a truncation marker.
func truncateWithMarker(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	marker := "...[TRUNCATED]"
	if maxLen <= len(marker) {
		return marker[:maxLen]
	}
	return s[:maxLen-len(marker)] + marker
}
