package transform

import (
	"regexp"
	"strings"
	"time"
)

// Layouts the portal emits, tried in order. Day-first forms come before the
// US-style forms because the portal is day-first almost everywhere.
var dateLayouts = []string{
	"02-01-2006",
	"02/01/2006",
	"2006-01-02",
	"01-02-2006",
	"01/02/2006",
	"2 January 2006",
}

var ordinalRe = regexp.MustCompile(`(?i)(\d+)(st|nd|rd|th)`)

var emptyDateValues = map[string]bool{
	"": true, "nan": true, "na": true, "null": true, "n/a": true,
}

// NormalizeDate parses a portal date into ISO YYYY-MM-DD form. Unparseable
// values are returned unchanged so no information is dropped; empty-ish
// sentinels become "".
func NormalizeDate(value string) string {
	value = strings.TrimSpace(value)
	if emptyDateValues[strings.ToLower(value)] {
		return ""
	}

	// "04th March 2024" -> "04 March 2024"
	cleaned := ordinalRe.ReplaceAllString(value, "$1")

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return value
}
