// Package extract parses the portal's HTML fragments into raw field maps.
// The portal returns inner-HTML blobs inside JSON envelopes; everything here
// tolerates missing tables and header rows.
package extract

import (
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/docket-cli/internal/model"
)

// RawCase holds parsed-but-untransformed case fields keyed by the portal's
// own labels ("Filing Date", "Case Stage", ...).
type RawCase struct {
	CourtHeading string
	Details      map[string]string
	Status       map[string]string
	Petitioner   string
	Respondent   string
	Acts         []ActRow
	FIR          map[string]string
	History      []HistoryRow
	Orders       []OrderRow
}

// ActRow is one row of the acts table.
type ActRow struct {
	Name     string
	Sections string
}

// HistoryRow is one hearing row. BusinessArgs carries the viewBusiness
// onclick arguments when the row links to a business update.
type HistoryRow struct {
	Judge          string
	BusinessDate   string
	HearingDate    string
	Purpose        string
	BusinessArgs   []string
	BusinessUpdate string
}

// OrderRow is one order row. PDFArgs carries the displayPdf onclick
// arguments when the row links to a downloadable order.
type OrderRow struct {
	Number  string
	Date    string
	Details string
	PDFArgs []string
}

var (
	onclickArgsRe  = regexp.MustCompile(`\((.*?)\)`)
	tokenAttrRe    = regexp.MustCompile(`app_token\s*=\s*["']([^"']+)["']`)
	viewHistoryRe  = regexp.MustCompile(`viewHistory`)
	viewBusinessRe = regexp.MustCompile(`viewBusiness`)
	displayPDFRe   = regexp.MustCompile(`displayPdf`)
	versusRe       = regexp.MustCompile(`(?i)\s+v\s*/\s*s\.?\s+|\s+vs\.?\s+|\s+versus\s+`)
)

// CleanText collapses all whitespace runs into single spaces.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Token extracts the anti-automation token from the landing page markup:
// first via the structured hidden input, then via a pattern search over the
// raw markup.
func Token(markup string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err == nil {
		if val, ok := doc.Find(`input[name="app_token"]`).Attr("value"); ok && val != "" {
			return val, nil
		}
	}
	if m := tokenAttrRe.FindStringSubmatch(markup); m != nil {
		return m[1], nil
	}
	return "", eris.New("extract: no app_token in markup")
}

// OnclickArgs extracts the arguments of a JS call like fn('a','b',2).
// Portal arguments never contain commas, so a plain split suffices.
func OnclickArgs(onclick string) []string {
	m := onclickArgsRe.FindStringSubmatch(onclick)
	if m == nil {
		return nil
	}
	parts := strings.Split(m[1], ",")
	args := make([]string, 0, len(parts))
	for _, p := range parts {
		args = append(args, strings.Trim(strings.TrimSpace(p), `'"`))
	}
	return args
}

func fragmentDoc(fragment string) (*goquery.Document, error) {
	wrapped := `<div id="case_data">` + html.UnescapeString(fragment) + `</div>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(wrapped))
	if err != nil {
		return nil, eris.Wrap(err, "extract: parse fragment")
	}
	return doc, nil
}

func tableRows(doc *goquery.Document, class string) *goquery.Selection {
	sel := doc.Find("table." + class)
	if sel.Length() == 0 {
		sel = doc.Find("." + class)
	}
	return sel.Find("tr")
}

// parseKVTable reads Key | Value and Key | Value | Key | Value layouts.
func parseKVTable(doc *goquery.Document, class string) map[string]string {
	data := map[string]string{}
	tableRows(doc, class).Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		switch cells.Length() {
		case 4:
			data[kvKey(cells.Eq(0))] = CleanText(cells.Eq(1).Text())
			data[kvKey(cells.Eq(2))] = CleanText(cells.Eq(3).Text())
		case 2:
			data[kvKey(cells.Eq(0))] = CleanText(cells.Eq(1).Text())
		}
	})
	delete(data, "")
	return data
}

func kvKey(cell *goquery.Selection) string {
	return strings.TrimRight(CleanText(cell.Text()), ":")
}

// parsePartyBlock extracts the raw text of a petitioner/respondent table,
// keeping <br> boundaries as spaces.
func parsePartyBlock(doc *goquery.Document, class string) string {
	sel := doc.Find("table." + class)
	if sel.Length() == 0 {
		sel = doc.Find("." + class)
	}
	if sel.Length() == 0 {
		return ""
	}
	sel.Find("br").Each(func(_ int, br *goquery.Selection) {
		br.ReplaceWithHtml(" ")
	})
	return CleanText(sel.First().Text())
}

func parseActs(doc *goquery.Document) []ActRow {
	var acts []ActRow
	tableRows(doc, "acts_table").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() == 0 {
			return
		}
		act := ActRow{Name: CleanText(cells.Eq(0).Text())}
		if cells.Length() > 1 {
			act.Sections = CleanText(cells.Eq(1).Text())
		}
		if act.Name != "" {
			acts = append(acts, act)
		}
	})
	return acts
}

func parseHistory(doc *goquery.Document) []HistoryRow {
	var rows []HistoryRow
	tableRows(doc, "history_table").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 4 {
			return
		}
		// Columns: Judge | Business Date (link) | Hearing Date | Purpose
		h := HistoryRow{
			Judge:        CleanText(cells.Eq(0).Text()),
			BusinessDate: CleanText(cells.Eq(1).Text()),
			HearingDate:  CleanText(cells.Eq(2).Text()),
			Purpose:      CleanText(cells.Eq(3).Text()),
		}
		link := cells.Eq(1).Find("a").First()
		if onclick, ok := link.Attr("onclick"); ok && viewBusinessRe.MatchString(onclick) {
			h.BusinessArgs = OnclickArgs(onclick)
		}
		rows = append(rows, h)
	})
	return rows
}

func parseOrders(doc *goquery.Document) []OrderRow {
	var rows []OrderRow
	tableRows(doc, "order_table").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 3 {
			return
		}
		first := CleanText(cells.Eq(0).Text())
		if strings.Contains(first, "Order") && strings.Contains(first, "Number") {
			return // header rendered as td
		}
		o := OrderRow{
			Number:  first,
			Date:    CleanText(cells.Eq(1).Text()),
			Details: CleanText(cells.Eq(2).Text()),
		}
		row.Find("a").EachWithBreak(func(_ int, link *goquery.Selection) bool {
			onclick, ok := link.Attr("onclick")
			if !ok || !displayPDFRe.MatchString(onclick) {
				return true
			}
			if args := OnclickArgs(onclick); len(args) >= 4 {
				o.PDFArgs = args
				return false
			}
			return true
		})
		rows = append(rows, o)
	})
	return rows
}

// CaseMetadata parses the metadata sections only (details, status, parties,
// acts, FIR), skipping history and orders.
func CaseMetadata(fragment string) (*RawCase, error) {
	doc, err := fragmentDoc(fragment)
	if err != nil {
		return nil, err
	}
	return &RawCase{
		CourtHeading: CleanText(doc.Find("#chHeading").Text()),
		Details:      parseKVTable(doc, "case_details_table"),
		Status:       parseKVTable(doc, "case_status_table"),
		Petitioner:   parsePartyBlock(doc, "Petitioner_Advocate_table"),
		Respondent:   parsePartyBlock(doc, "Respondent_Advocate_table"),
		Acts:         parseActs(doc),
		FIR:          parseKVTable(doc, "FIR_details_table"),
	}, nil
}

// FullCase parses everything CaseMetadata does plus history and order rows.
func FullCase(fragment string) (*RawCase, error) {
	raw, err := CaseMetadata(fragment)
	if err != nil {
		return nil, err
	}
	doc, err := fragmentDoc(fragment)
	if err != nil {
		return nil, err
	}
	raw.History = parseHistory(doc)
	raw.Orders = parseOrders(doc)
	return raw, nil
}

// CaseList parses party/advocate search results into selectable entries.
// Rows without a viewHistory affordance are dropped; the party cell is split
// on a case-insensitive vs/v/s separator.
func CaseList(fragment string) ([]model.CaseListEntry, error) {
	doc, err := fragmentDoc(fragment)
	if err != nil {
		return nil, err
	}

	var entries []model.CaseListEntry
	doc.Find("tr").Each(func(idx int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 3 {
			return
		}

		var args []string
		row.Find("a").EachWithBreak(func(_ int, link *goquery.Selection) bool {
			onclick, ok := link.Attr("onclick")
			if ok && viewHistoryRe.MatchString(onclick) {
				args = OnclickArgs(onclick)
				return false
			}
			return true
		})
		if args == nil {
			return
		}

		caseNo := CleanText(cells.Eq(0).Text())
		pet, resp := splitVersus(CleanText(cells.Eq(1).Text()))
		if resp == "" && cells.Length() > 2 {
			// Separate petitioner/respondent cells instead of one "X vs Y" cell.
			resp = CleanText(cells.Eq(2).Text())
		}

		entries = append(entries, model.CaseListEntry{
			Index:       len(entries),
			Display:     caseNo + " | " + pet + " vs " + resp,
			CaseNumber:  caseNo,
			Petitioner:  pet,
			Respondent:  resp,
			HistoryArgs: args,
		})
	})
	return entries, nil
}

func splitVersus(s string) (string, string) {
	parts := versusRe.Split(s, 2)
	if len(parts) == 2 {
		return CleanText(parts[0]), CleanText(parts[1])
	}
	return s, ""
}

// BusinessUpdate extracts the business text from a viewBusiness fragment.
// The fragment is a small table; the business cell sits next to a "Business"
// label. Falls back to the whole fragment text.
func BusinessUpdate(fragment string) string {
	doc, err := fragmentDoc(fragment)
	if err != nil {
		return ""
	}

	result := CleanText(doc.Text())
	doc.Find("td").EachWithBreak(func(_ int, td *goquery.Selection) bool {
		txt := td.Text()
		if !strings.Contains(txt, "Business") || strings.Contains(txt, "Date") {
			return true
		}
		cells := td.Parent().Find("td")
		if cells.Length() >= 3 {
			result = CleanText(cells.Eq(2).Text())
			return false
		}
		return true
	})
	return result
}

// SelectOption is one entry of a jurisdiction dropdown fragment.
type SelectOption struct {
	Value string
	Label string
}

// Options parses the <option> entries out of a dropdown fragment, skipping
// placeholder entries without a value.
func Options(fragment string) []SelectOption {
	doc, err := fragmentDoc(fragment)
	if err != nil {
		return nil
	}
	var out []SelectOption
	doc.Find("option").Each(func(_ int, opt *goquery.Selection) {
		value, _ := opt.Attr("value")
		if value == "" || value == "0" {
			return
		}
		out = append(out, SelectOption{Value: value, Label: CleanText(opt.Text())})
	})
	return out
}

// CSSLinks returns stylesheet hrefs referenced by the fragment.
func CSSLinks(fragment string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return nil
	}
	var links []string
	doc.Find(`link[rel="stylesheet"]`).Each(func(_ int, link *goquery.Selection) {
		if href, ok := link.Attr("href"); ok && href != "" {
			links = append(links, href)
		}
	})
	return links
}
