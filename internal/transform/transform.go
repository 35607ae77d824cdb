// Package transform normalizes raw extracted field maps into the canonical
// case record.
package transform

import (
	"strings"
	"time"

	"github.com/sells-group/docket-cli/internal/extract"
	"github.com/sells-group/docket-cli/internal/model"
)

// Source is the provenance tag recorded on every transformed record.
const Source = "ecourts"

// InferStatus classifies a case as disposed when the status text or the
// disposal-nature text mentions disposal or a decision, else active.
func InferStatus(statusText, disposalNature string) string {
	s := strings.ToLower(statusText)
	n := strings.ToLower(disposalNature)
	if strings.Contains(s, "disposed") || strings.Contains(s, "decided") ||
		strings.Contains(n, "disposed") || strings.Contains(n, "decided") {
		return model.StatusDisposed
	}
	return model.StatusActive
}

func statusField(status map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := status[k]; v != "" {
			return v
		}
	}
	return ""
}

// ToCase maps a raw parsed case into the canonical record. cino wins over
// the parsed CNR only when the fragment does not carry one. sourceURL and
// rawHTML feed the meta block; scrapedAt is stamped by the caller's clock.
func ToCase(raw *extract.RawCase, cino, sourceURL, rawHTML string, scrapedAt time.Time) *model.Case {
	if parsed := raw.Details["CNR Number"]; parsed != "" {
		cino = parsed
	}

	statusText := statusField(raw.Status, "Case Status")
	disposalNature := statusField(raw.Status, "Nature of Disposal")
	if disposalNature != "" {
		statusText = statusText + " - " + disposalNature
	}
	judge := statusField(raw.Status, "Court Number and Judge", "Coram", "Judge")

	var parties []model.Party
	parties = append(parties, SplitParties(raw.Petitioner, true)...)
	parties = append(parties, SplitParties(raw.Respondent, false)...)

	acts := make([]model.Act, 0, len(raw.Acts))
	for _, a := range raw.Acts {
		acts = append(acts, model.Act{Name: a.Name, Sections: a.Sections})
	}

	history := make([]model.HistoryEntry, 0, len(raw.History))
	for _, h := range raw.History {
		history = append(history, model.HistoryEntry{
			BusinessDate: NormalizeDate(h.BusinessDate),
			HearingDate:  NormalizeDate(h.HearingDate),
			Purpose:      h.Purpose,
			Judge:        h.Judge,
			Notes:        h.BusinessUpdate,
		})
	}

	orders := make([]model.Order, 0, len(raw.Orders))
	for _, o := range raw.Orders {
		orders = append(orders, model.Order{
			Number:  o.Number,
			Date:    NormalizeDate(o.Date),
			Details: o.Details,
		})
	}

	var fir *model.FIR
	if len(raw.FIR) > 0 {
		fir = &model.FIR{
			PoliceStation: raw.FIR["Police Station"],
			Number:        raw.FIR["FIR Number"],
			Year:          raw.FIR["Year"],
		}
	}

	summary := model.Summary{
		Petitioner: joinNames(filterSide(parties, true)),
		Respondent: joinNames(filterSide(parties, false)),
		ShortTitle: ShortTitle(parties),
	}

	title := summary.ShortTitle
	if title == "" || title == "Unknown vs Unknown" {
		title = cino
	}

	return &model.Case{
		CINO:           cino,
		Title:          title,
		InternalStatus: InferStatus(statusText, disposalNature),
		Court: model.Court{
			Name:  raw.CourtHeading,
			Bench: judge,
		},
		Summary: summary,
		Details: model.CaseDetails{
			Type:               raw.Details["Case Type"],
			FilingNumber:       raw.Details["Filing Number"],
			FilingDate:         NormalizeDate(raw.Details["Filing Date"]),
			RegistrationNumber: raw.Details["Registration Number"],
			RegistrationDate:   NormalizeDate(raw.Details["Registration Date"]),
		},
		Status: model.CaseStatus{
			FirstHearingDate: NormalizeDate(statusField(raw.Status, "First Hearing Date")),
			NextHearingDate:  NormalizeDate(statusField(raw.Status, "Next Hearing Date", "Next Date")),
			LastHearingDate:  NormalizeDate(statusField(raw.Status, "Last Hearing Date")),
			DecisionDate:     NormalizeDate(statusField(raw.Status, "Decision Date")),
			Stage:            statusField(raw.Status, "Case Stage"),
			StatusText:       statusText,
			DisposalNature:   disposalNature,
			Judge:            judge,
		},
		Parties: parties,
		Acts:    acts,
		FIR:     fir,
		History: history,
		Orders:  orders,
		Meta: model.Meta{
			ScrapedAt: scrapedAt,
			Source:    Source,
			SourceURL: sourceURL,
			RawHTML:   rawHTML,
		},
	}
}

func filterSide(parties []model.Party, petitioner bool) []model.Party {
	var out []model.Party
	for _, p := range parties {
		if p.IsPetitioner == petitioner {
			out = append(out, p)
		}
	}
	return out
}
