package portal

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// SearchResult kinds.
const (
	// KindDetail means the result HTML is a full case-detail fragment.
	KindDetail = "detail"
	// KindList means the result HTML is a selectable case list.
	KindList = "list"
)

// SearchResult is a successful search response: either a case-detail
// fragment (CNR search, or a list selection) or a case-list fragment
// (party and advocate searches).
type SearchResult struct {
	Kind string
	HTML string
}

// SearchCNR looks up a single case by its CNR number.
func (c *Client) SearchCNR(ctx context.Context, cino, captcha string) (*SearchResult, error) {
	prevToken := c.token
	m, err := c.postForm(ctx, "cnr_status/searchByCNR", map[string]string{
		"cino":          cino,
		"fcaptcha_code": captcha,
	})
	if err != nil {
		return nil, eris.Wrap(err, "portal: search cnr")
	}
	return c.classify(m, prevToken, KindDetail, "cino_data", "data_list", "casetype_list")
}

// SearchParty looks up cases by litigant name. payload carries the portal's
// party-search form fields (petres_name, state_code, dist_code,
// court_complex_code, rgyear, case_status, ...); the complex code is
// stripped of its establishment suffix before submission.
func (c *Client) SearchParty(ctx context.Context, payload map[string]string, captcha string) (*SearchResult, error) {
	form := cloneForm(payload)
	form["fcaptcha_code"] = captcha
	stripComplexSuffix(form)

	prevToken := c.token
	m, err := c.postForm(ctx, "casestatus/submitPartyName", form)
	if err != nil {
		return nil, eris.Wrap(err, "portal: search party")
	}
	return c.classify(m, prevToken, KindList, "party_data", "data_list")
}

// SearchAdvocate looks up cases by advocate name. Same shape as SearchParty
// except the portal reads the captcha from a differently named field.
func (c *Client) SearchAdvocate(ctx context.Context, payload map[string]string, captcha string) (*SearchResult, error) {
	form := cloneForm(payload)
	form["adv_captcha_code"] = captcha
	stripComplexSuffix(form)

	prevToken := c.token
	m, err := c.postForm(ctx, "casestatus/submitAdvName", form)
	if err != nil {
		return nil, eris.Wrap(err, "portal: search advocate")
	}
	return c.classify(m, prevToken, KindList, "adv_data", "data_list")
}

// classify turns a search response envelope into a SearchResult or one of
// the portal error types. The captcha and no-record sentinels are probed
// over the whole envelope since the portal moves them between keys.
func (c *Client) classify(m map[string]any, prevToken, kind string, htmlKeys ...string) (*SearchResult, error) {
	blob := fmt.Sprintf("%v", m)
	if strings.Contains(blob, "Invalid Captcha") {
		return nil, ErrInvalidCaptcha
	}
	if strings.Contains(blob, "No Record Found") {
		return nil, ErrNoRecordFound
	}

	errMsg := firstString(m, "errormsg")
	if errMsg != "" {
		// postForm already adopted the rotated token; a change from the
		// pre-call token plus an error message means "resubmit".
		if c.token != prevToken {
			return nil, &TokenError{Token: c.token, Msg: errMsg}
		}
		retryable := strings.Contains(errMsg, "Invalid Request") ||
			strings.Contains(errMsg, "Something went wrong")
		return nil, &PortalError{Msg: errMsg, Retryable: retryable}
	}

	if html := firstString(m, htmlKeys...); html != "" {
		return &SearchResult{Kind: kind, HTML: html}, nil
	}
	return nil, &PortalError{Msg: "empty search response"}
}

func cloneForm(payload map[string]string) map[string]string {
	form := make(map[string]string, len(payload)+1)
	for k, v := range payload {
		form[k] = v
	}
	return form
}

// stripComplexSuffix removes the "@est@flag" establishment suffix the
// jurisdiction dropdowns carry; the search endpoints want the bare code.
func stripComplexSuffix(form map[string]string) {
	if cc, ok := form["court_complex_code"]; ok {
		if i := strings.Index(cc, "@"); i >= 0 {
			form["court_complex_code"] = cc[:i]
		}
	}
}
