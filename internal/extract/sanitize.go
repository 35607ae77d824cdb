package extract

import (
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// sanitizePolicy allows the portal's layout markup and nothing else.
var sanitizePolicy = buildPolicy()

func buildPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"div", "span", "table", "thead", "tbody", "tr", "td", "th",
		"p", "b", "strong", "i", "u", "br", "h2", "h3", "label", "em", "a",
		"font", "center",
	)
	p.AllowAttrs(
		"class", "style", "id",
		"align", "colspan", "rowspan", "width", "border", "scope",
		"cellpadding", "cellspacing",
	).Globally()
	p.AllowStyles(
		"text-align", "font-weight", "font-style", "text-decoration",
		"color", "background-color", "border", "border-collapse",
		"border-spacing", "width", "height", "padding", "margin",
		"vertical-align", "font-size",
	).Globally()
	return p
}

// Sanitize turns a raw portal fragment into display-safe HTML: scripts and
// iframes dropped, JS attributes stripped, anchors neutralized, tables given
// the standard class, then a final allowlist pass.
func Sanitize(fragment string) string {
	if fragment == "" {
		return ""
	}

	wrapped := `<div id="sanitized_content">` + html.UnescapeString(fragment) + `</div>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(wrapped))
	if err != nil {
		return ""
	}
	container := doc.Find("#sanitized_content")
	if container.Length() == 0 {
		return ""
	}

	container.Find("script, iframe").Remove()

	container.Find("*").Each(func(_ int, el *goquery.Selection) {
		for _, node := range el.Nodes {
			attrs := node.Attr[:0]
			for _, a := range node.Attr {
				if !strings.HasPrefix(strings.ToLower(a.Key), "on") {
					attrs = append(attrs, a)
				}
			}
			node.Attr = attrs
		}
	})

	container.Find("a").Each(func(_ int, a *goquery.Selection) {
		a.RemoveAttr("href")
		style, _ := a.Attr("style")
		a.SetAttr("style", style+";pointer-events:none;cursor:default;")
	})

	container.Find("table").Each(func(_ int, t *goquery.Selection) {
		if !t.HasClass("table") {
			cls, _ := t.Attr("class")
			t.SetAttr("class", strings.TrimSpace("table "+cls))
		}
	})

	raw, err := goquery.OuterHtml(container)
	if err != nil {
		return ""
	}
	return sanitizePolicy.Sanitize(raw)
}
