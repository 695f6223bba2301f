package strategy

import (
	"regexp"
	"strconv"
	"strings"
)

var numberRe = regexp.MustCompile(`-?\d+(?:[.,]\d+)?`)

// parseNumber pulls the first numeric token out of a cell or matched value.
// Hungarian datasheets use the decimal comma, so "0,035 W/mK" parses as 0.035.
func parseNumber(s string) (float64, bool) {
	m := numberRe.FindString(s)
	if m == "" {
		return 0, false
	}
	m = strings.ReplaceAll(m, ",", ".")
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// cleanString trims a matched string value down to something storable:
// surrounding whitespace and trailing punctuation go away.
func cleanString(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, ".,;:")
	return strings.TrimSpace(s)
}
