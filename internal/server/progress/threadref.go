package progress

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/threadcraft/threadcraft/internal/common"
)

var (
	numericRe    = regexp.MustCompile(`^\d+$`)
	statusPathRe = regexp.MustCompile(`/status/(\d+)`)
	dayRe        = regexp.MustCompile(`(?i)Day\s+(\d+)`)
)

// NormalizeThreadRef reduces user input to the bare numeric thread ID.
// Accepted forms: the ID itself, or an x.com/twitter.com status URL with
// optional query parameters.
func NormalizeThreadRef(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: thread reference is empty", common.ErrValidation)
	}

	if numericRe.MatchString(raw) {
		return raw, nil
	}

	if !strings.Contains(raw, "x.com") && !strings.Contains(raw, "twitter.com") {
		return "", fmt.Errorf("%w: thread reference must be a numeric ID or a status URL", common.ErrValidation)
	}

	if m := statusPathRe.FindStringSubmatch(raw); m != nil {
		return m[1], nil
	}

	// Fallback: walk the URL path looking for .../status/<id>.
	if parsed, err := url.Parse(raw); err == nil {
		parts := strings.FieldsFunc(parsed.Path, func(r rune) bool { return r == '/' })
		if len(parts) >= 2 && parts[len(parts)-2] == "status" {
			id := strings.SplitN(parts[len(parts)-1], "?", 2)[0]
			if numericRe.MatchString(id) {
				return id, nil
			}
		}
	}

	return "", fmt.Errorf("%w: could not extract a thread ID from %q", common.ErrValidation, raw)
}

// dayFromText extracts the day number from a "Day N" marker, if present.
func dayFromText(text string) (int64, bool) {
	m := dayRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
