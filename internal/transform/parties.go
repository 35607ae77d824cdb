package transform

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/docket-cli/internal/model"
)

var (
	numberedRe = regexp.MustCompile(`\d+\)`)
	advocateRe = regexp.MustCompile(`(?i)Advocate\s*[-–:]?\s*`)
)

// SplitParties breaks a raw party block ("1) Name Advocate - Counsel 2) ...")
// into individual parties. A block with no numbered-list markers is treated
// as a single party. Names are NFC-normalized since the portal mixes
// composed and decomposed forms.
func SplitParties(raw string, isPetitioner bool) []model.Party {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "N/A" {
		return nil
	}

	var fragments []string
	for _, part := range numberedRe.Split(raw, -1) {
		if p := strings.TrimSpace(part); p != "" {
			fragments = append(fragments, p)
		}
	}
	if len(fragments) == 0 {
		fragments = []string{raw}
	}

	parties := make([]model.Party, 0, len(fragments))
	for _, frag := range fragments {
		name, advocate := frag, ""
		if splits := advocateRe.Split(frag, 2); len(splits) == 2 {
			name = strings.TrimSpace(splits[0])
			advocate = strings.TrimSpace(splits[1])
		}
		parties = append(parties, model.Party{
			IsPetitioner: isPetitioner,
			Name:         norm.NFC.String(name),
			Advocate:     norm.NFC.String(advocate),
			RawText:      frag,
		})
	}
	return parties
}

// FormatPartyList renders party names for titles: up to two names verbatim,
// more than two as "A, B et al.".
func FormatPartyList(parties []model.Party) string {
	var names []string
	for _, p := range parties {
		if p.Name != "" {
			names = append(names, p.Name)
		}
	}
	switch {
	case len(names) == 0:
		return "Unknown"
	case len(names) > 2:
		return names[0] + ", " + names[1] + " et al."
	default:
		return strings.Join(names, ", ")
	}
}

// ShortTitle synthesizes "P vs R" from both party sides.
func ShortTitle(parties []model.Party) string {
	var pets, resps []model.Party
	for _, p := range parties {
		if p.IsPetitioner {
			pets = append(pets, p)
		} else {
			resps = append(resps, p)
		}
	}
	return FormatPartyList(pets) + " vs " + FormatPartyList(resps)
}

func joinNames(parties []model.Party) string {
	var names []string
	for _, p := range parties {
		if p.Name != "" {
			names = append(names, p.Name)
		}
	}
	return strings.Join(names, ", ")
}
