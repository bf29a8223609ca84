package services

import (
	"regexp"
	"strings"
)

// valuePattern is a shape that string values commonly conform to.
type valuePattern struct {
	name string
	re   *regexp.Regexp
}

// valuePatterns is checked in order; ties on conformity go to the earlier entry.
var valuePatterns = []valuePattern{
	{"email", regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)},
	{"uuid", regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)},
	{"url", regexp.MustCompile(`^(?i)https?://[^\s/$.?#][^\s]*$`)},
	{"iso_date", regexp.MustCompile(`^\d{4}-\d{2}-\d{2}([T ]\d{2}:\d{2}(:\d{2}(\.\d+)?)?(Z|[+\-]\d{2}:?\d{2})?)?$`)},
	{"numeric_string", regexp.MustCompile(`^[+\-]?\d+(\.\d+)?$`)},
	{"phone", regexp.MustCompile(`^\+?[0-9][0-9 ().\-]{6,18}[0-9]$`)},
}

// patternConformity returns the pattern most values match and the share of
// values matching it. Empty and whitespace-only strings never match.
func patternConformity(values []string) (string, float64) {
	if len(values) == 0 {
		return "", 0
	}
	counts := make([]int, len(valuePatterns))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		for i, p := range valuePatterns {
			if p.re.MatchString(v) {
				counts[i]++
			}
		}
	}

	best := -1
	for i, c := range counts {
		if c > 0 && (best < 0 || c > counts[best]) {
			best = i
		}
	}
	if best < 0 {
		return "", 0
	}
	return valuePatterns[best].name, float64(counts[best]) / float64(len(values))
}
