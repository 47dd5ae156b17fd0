package source

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/hydro-ingest-service/internal/domain"
)

// zonelessLayouts are tried, in order, for timestamps without an offset.
var zonelessLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
}

// parseTimestamp accepts RFC 3339 timestamps, or zone-less ones interpreted
// in loc.
func parseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return domain.CanonicalTime(t), nil
	}
	for _, layout := range zonelessLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return domain.CanonicalTime(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// malformed wraps a normalizer failure in domain.ErrMalformedPayload.
func malformed(kind domain.SourceKind, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", domain.ErrMalformedPayload, kind, fmt.Sprintf(format, args...))
}

// level is a nullable basin level. Providers send it as a JSON number, a
// numeric string (decimal comma tolerated) or null.
type level struct {
	v *float64
}

func (l *level) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		l.v = nil
		return nil
	}

	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		str = strings.TrimSpace(str)
		if str == "" {
			l.v = nil
			return nil
		}
		f, err := strconv.ParseFloat(strings.Replace(str, ",", ".", 1), 64)
		if err != nil {
			return fmt.Errorf("level %q is not a number", str)
		}
		l.v = &f
		return nil
	}

	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("level %s is not a number", s)
	}
	l.v = &f
	return nil
}
