package event

import (
	"regexp"
	"time"
)

// TimestampLayout is the fixed layout of the leading log field.
const TimestampLayout = "2006-01-02 15:04:05.000000"

var (
	// A leading date absorbs the following time token; anything else is a
	// single space-delimited field. The first FATAL: on the line wins.
	fatalPattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2} [^ ]+|[^ ]+) .*?FATAL: (.+?)\r?\n?$`)

	timestampPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{1,6}$`)
)

// Matcher recognises FATAL lines. The zero value is not usable; use
// NewMatcher or the package-level Match.
type Matcher struct {
	re *regexp.Regexp
}

func NewMatcher() *Matcher {
	return &Matcher{re: fatalPattern}
}

var defaultMatcher = NewMatcher()

// Match runs the default matcher.
func Match(line string) (FatalEvent, bool, error) {
	return defaultMatcher.Match(line)
}

// Match reports whether line is a FATAL line. When it is, the event carries
// the parsed timestamp and the message text; a malformed timestamp returns
// matched=true together with a *TimestampFormatError. Match has no side
// effects and does not assign an ID.
func (m *Matcher) Match(line string) (FatalEvent, bool, error) {
	groups := m.re.FindStringSubmatch(line)
	if groups == nil {
		return FatalEvent{}, false, nil
	}

	ts, err := ParseTimestamp(groups[1])
	if err != nil {
		return FatalEvent{}, true, err
	}
	return FatalEvent{Timestamp: ts, Message: groups[2]}, true, nil
}

// ParseTimestamp parses YYYY-MM-DD HH:MM:SS.f with one to six fraction
// digits. The result is in UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	if !timestampPattern.MatchString(raw) {
		return time.Time{}, &TimestampFormatError{Raw: raw}
	}
	// time.Parse accepts the fraction after the seconds field on its own.
	ts, err := time.ParseInLocation("2006-01-02 15:04:05", raw, time.UTC)
	if err != nil {
		return time.Time{}, &TimestampFormatError{Raw: raw, Err: err}
	}
	return ts, nil
}
