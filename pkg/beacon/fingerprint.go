// fingerprint.go derives stable grouping keys for raw observations.

package beacon

import (
	"encoding/hex"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"
)

// maxFingerprintFrames is how many top stack frames take part in a
// fingerprint.
const maxFingerprintFrames = 3

// Fingerprint returns a stable key for the underlying condition a raw
// observation describes. Repeated occurrences of the same condition map
// to the same key even when timestamps, line numbers, memory addresses
// or embedded numbers differ.
//
// The key is built from:
//   - error-like events: category, error type, normalized message and
//     the first three normalized stack frames
//   - resource errors: category, resource URL without query, resource type
//   - HTTP errors: category, method, URL without query, status
//   - everything else: category and name
func Fingerprint(raw RawEvent) string {
	parts := []string{string(raw.Category)}

	switch raw.Category {
	case CategoryResourceError:
		parts = append(parts, stripQuery(raw.URL), raw.ResourceType)
	case CategoryHTTPError:
		parts = append(parts, strings.ToUpper(raw.Method), stripQuery(raw.URL), strconv.Itoa(raw.Status))
	case CategoryError, CategoryCrash:
		parts = append(parts, raw.ErrorType, normalizeMessage(raw.Message))
		parts = append(parts, normalizeStack(raw.Stack)...)
	default:
		parts = append(parts, raw.Name)
	}

	sum := blake3.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:16])
}

var (
	uuidPattern    = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	memAddrPattern = regexp.MustCompile(`0x[0-9a-fA-F]+`)
	numberPattern  = regexp.MustCompile(`\d+`)

	// Go frames look like "main.doSomething(0x1234)".
	goFramePattern = regexp.MustCompile(`^([a-zA-Z0-9_./*()-]+\.[a-zA-Z0-9_]+)\(`)

	// Browser frames look like "at handler (https://app/x.js:10:5)",
	// "at https://app/x.js:10:5" or "handler@https://app/x.js:10:5".
	jsAtFramePattern = regexp.MustCompile(`^at\s+(?:(\S+)\s+\()?([^()\s]+?)(?::\d+)*\)?$`)
	jsAtSignPattern  = regexp.MustCompile(`^([^@\s]*)@([^\s]+?)(?::\d+)*$`)
)

// normalizeMessage removes identifiers and numbers that vary between
// occurrences of the same error.
func normalizeMessage(msg string) string {
	msg = uuidPattern.ReplaceAllString(msg, "<uuid>")
	msg = memAddrPattern.ReplaceAllString(msg, "<addr>")
	msg = numberPattern.ReplaceAllString(msg, "<n>")
	return strings.TrimSpace(msg)
}

// normalizeStack extracts up to maxFingerprintFrames frame identifiers
// from a Go or browser stack trace, without line or column numbers.
func normalizeStack(trace string) []string {
	if trace == "" {
		return nil
	}

	var frames []string
	for _, line := range strings.Split(trace, "\n") {
		if strings.HasPrefix(line, "\t") {
			// Go file:line lines.
			continue
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "goroutine ") {
			continue
		}

		frame := ""
		switch {
		case goFramePattern.MatchString(line):
			frame = goFramePattern.FindStringSubmatch(line)[1]
		case jsAtFramePattern.MatchString(line):
			m := jsAtFramePattern.FindStringSubmatch(line)
			frame = jsFrame(m[1], m[2])
		case jsAtSignPattern.MatchString(line):
			m := jsAtSignPattern.FindStringSubmatch(line)
			frame = jsFrame(m[1], m[2])
		}
		if frame == "" {
			continue
		}

		frames = append(frames, frame)
		if len(frames) >= maxFingerprintFrames {
			break
		}
	}
	return frames
}

func jsFrame(function, location string) string {
	location = stripQuery(location)
	if function == "" {
		return location
	}
	return function + "@" + location
}

// stripQuery drops the query string and fragment so cache-busting
// parameters do not split a fingerprint.
func stripQuery(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		if i := strings.IndexAny(raw, "?#"); i >= 0 {
			return raw[:i]
		}
		return raw
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
