package portal

import (
	"bytes"
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// ViewHistory fetches the full case-detail fragment for a case selected out
// of a search list. args are the portal's own viewHistory call arguments:
// case_no, cino, court_code, hideparty, search_flag, state_code, dist_code,
// court_complex_code, search_by.
func (c *Client) ViewHistory(ctx context.Context, args []string) (string, error) {
	if len(args) < 9 {
		return "", eris.Errorf("portal: viewHistory needs 9 args, got %d", len(args))
	}
	m, err := c.postForm(ctx, "home/viewHistory", map[string]string{
		"case_no":            args[0],
		"cino":               args[1],
		"court_code":         args[2],
		"hideparty":          args[3],
		"search_flag":        args[4],
		"state_code":         args[5],
		"dist_code":          args[6],
		"court_complex_code": args[7],
		"search_by":          args[8],
	})
	if err != nil {
		return "", eris.Wrap(err, "portal: view history")
	}

	html := firstString(m, "data_list", "cino_data")
	if html == "" {
		return "", &PortalError{Msg: "empty viewHistory response"}
	}
	return html, nil
}

// ViewBusiness fetches the business-update fragment for one hearing row.
// args are the viewBusiness onclick arguments; the portal wants them
// scattered across differently named form fields, with dist_code literally
// "undefined" the way its own pages submit it.
func (c *Client) ViewBusiness(ctx context.Context, args []string) (string, error) {
	srno := "0"
	if len(args) > 10 && args[10] != "" {
		srno = args[10]
	}
	m, err := c.postForm(ctx, "home/viewBusiness", map[string]string{
		"court_code":          argAt(args, 0),
		"state_code":          argAt(args, 4),
		"dist_code":           "undefined",
		"case_number1":        argAt(args, 3),
		"disposal_flag":       argAt(args, 5),
		"businessDate":        argAt(args, 6),
		"national_court_code": argAt(args, 8),
		"court_no":            argAt(args, 7),
		"search_by":           "cnr",
		"srno":                srno,
		"nextdate1":           argAt(args, 2),
	})
	if err != nil {
		return "", eris.Wrap(err, "portal: view business")
	}
	return firstString(m, "data_list"), nil
}

// GeneratePDF asks the portal to render an order PDF server-side. args are
// the displayPdf onclick arguments. The rendered file appears afterwards at
// the per-session report URL; DownloadPDF fetches it after the settle delay.
func (c *Client) GeneratePDF(ctx context.Context, args []string) error {
	if len(args) < 4 {
		return eris.Errorf("portal: displayPdf needs at least 4 args, got %d", len(args))
	}
	_, err := c.postForm(ctx, "home/display_pdf", map[string]string{
		"normal_v":   args[0],
		"case_val":   args[1],
		"court_code": args[2],
		"filename":   args[3],
		"appFlag":    argAt(args, 4),
	})
	return eris.Wrap(err, "portal: generate pdf")
}

// DownloadPDF waits out the render settle delay, then downloads the
// generated report named after the portal session cookie. Responses without
// the PDF magic bytes are rejected; the portal serves an HTML error page at
// the same URL when rendering failed.
func (c *Client) DownloadPDF(ctx context.Context) ([]byte, error) {
	cookies := c.Cookies()
	sessID := cookies["SERVICES_SESSID"]
	if sessID == "" {
		sessID = cookies["PHPSESSID"]
	}
	if sessID == "" {
		return nil, ErrNoSessionCookie
	}

	if c.settleDelay > 0 {
		timer := time.NewTimer(c.settleDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	res, err := c.get(ctx, "/reports/"+sessID+".pdf", nil, "")
	if err != nil {
		return nil, eris.Wrap(err, "portal: download pdf")
	}
	body := res.Body()
	if !bytes.Contains(body, []byte("%PDF")) {
		return nil, &PortalError{Msg: "report is not a pdf"}
	}
	return body, nil
}

func argAt(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
