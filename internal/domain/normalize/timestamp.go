package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/okian/eldlog/internal/domain/model"
)

// Layouts carrying their own offset, ordered by likelihood.
var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04Z07:00",
	time.RFC1123Z,
	time.RFC1123,
}

// Layouts without an offset; parsed in the normalizer's location.
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// maxMillis keeps numeric input inside the range time.UnixMilli represents
// without overflow.
const maxMillis = float64(math.MaxInt64 / int64(time.Millisecond))

// ParseTime turns a received timestamp into an instant in loc. Numbers are
// epoch milliseconds.
func ParseTime(raw model.RawTime, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	if raw.Malformed {
		return time.Time{}, fmt.Errorf("%w: not a string or number: %s", model.ErrUnparseableTimestamp, raw.Text)
	}
	text := strings.TrimSpace(raw.Text)
	if text == "" {
		return time.Time{}, fmt.Errorf("%w: empty", model.ErrUnparseableTimestamp)
	}
	if raw.Numeric {
		return parseMillis(text, loc)
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t.In(loc), nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, text, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", model.ErrUnparseableTimestamp, text)
}

// ParseTimeString is ParseTime for user-entered text. Purely numeric text is
// treated as epoch milliseconds.
func ParseTimeString(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return ParseTime(model.RawTime{Text: s, Numeric: true}, loc)
	}
	return ParseTime(model.TextTime(s), loc)
}

func parseMillis(text string, loc *time.Location) (time.Time, error) {
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) >= maxMillis {
		return time.Time{}, fmt.Errorf("%w: %q", model.ErrUnparseableTimestamp, text)
	}
	whole, frac := math.Modf(f)
	t := time.UnixMilli(int64(whole)).Add(time.Duration(frac * float64(time.Millisecond)))
	return t.In(loc), nil
}
