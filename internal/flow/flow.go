// Package flow drives the scraping session state machine across the
// step-wise operations: start, captcha, search submission, list selection,
// and result fetching. Each operation loads the session, talks to the
// portal, and saves the session back before returning.
package flow

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/docket-cli/internal/extract"
	"github.com/sells-group/docket-cli/internal/model"
	"github.com/sells-group/docket-cli/internal/ocr"
	"github.com/sells-group/docket-cli/internal/session"
	"github.com/sells-group/docket-cli/internal/storage"
	"github.com/sells-group/docket-cli/internal/transform"
	"github.com/sells-group/docket-cli/pkg/portal"
)

// Portal is the slice of the portal client the flow uses. Each session gets
// a fresh instance seeded with the session's cookies and token.
type Portal interface {
	Bootstrap(ctx context.Context) (string, error)
	Captcha(ctx context.Context) ([]byte, error)
	SetJurisdiction(ctx context.Context, stateCode, distCode, complexCode string) error
	SearchCNR(ctx context.Context, cino, captcha string) (*portal.SearchResult, error)
	SearchParty(ctx context.Context, payload map[string]string, captcha string) (*portal.SearchResult, error)
	SearchAdvocate(ctx context.Context, payload map[string]string, captcha string) (*portal.SearchResult, error)
	ViewHistory(ctx context.Context, args []string) (string, error)
	ViewBusiness(ctx context.Context, args []string) (string, error)
	GeneratePDF(ctx context.Context, args []string) error
	DownloadPDF(ctx context.Context) ([]byte, error)
	Token() string
	SetToken(token string)
	Cookies() map[string]string
	SeedCookies(cookies map[string]string)
}

// searchAttempts bounds the resubmit-with-rotated-token loop inside one
// captcha submission. The same captcha code is deliberately reused: the
// portal validates it against its server session, which survives a token
// rotation.
const searchAttempts = 2

// Options configures a Controller.
type Options struct {
	SessionTTL    time.Duration
	MaxAttempts   int // end-to-end attempts for automated refresh
	OCRMinLength  int // captcha codes shorter than this restart the flow
	PortalBaseURL string
}

// Controller orchestrates sessions against the portal.
type Controller struct {
	sessions  session.Store
	newPortal func() (Portal, error)
	solver    ocr.Solver
	files     storage.Storage
	opts      Options
	log       *zap.Logger
}

// NewController wires a controller. newPortal builds one portal client per
// session; files receives downloaded order PDFs.
func NewController(sessions session.Store, newPortal func() (Portal, error), solver ocr.Solver, files storage.Storage, opts Options) *Controller {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 15 * time.Minute
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.OCRMinLength <= 0 {
		opts.OCRMinLength = 3
	}
	return &Controller{
		sessions:  sessions,
		newPortal: newPortal,
		solver:    solver,
		files:     files,
		opts:      opts,
		log:       zap.L().With(zap.String("component", "flow")),
	}
}

// Start creates a session, bootstraps a portal conversation, and leaves the
// session waiting for a captcha. payload carries the search inputs: "cino"
// for CNR mode; name, year and jurisdiction codes for party and advocate
// modes.
func (c *Controller) Start(ctx context.Context, mode string, payload map[string]string) (string, error) {
	switch mode {
	case session.ModeCNR, session.ModeParty, session.ModeAdvocate:
	default:
		return "", eris.Errorf("flow: unknown search mode %q", mode)
	}

	s := session.New(mode)
	for k, v := range payload {
		s.Payload[k] = v
	}

	p, err := c.newPortal()
	if err != nil {
		return "", eris.Wrap(err, "flow: portal client")
	}

	token, err := p.Bootstrap(ctx)
	if err != nil {
		failSession(s, err)
		if saveErr := c.sessions.Put(ctx, s, c.opts.SessionTTL); saveErr != nil {
			c.log.Warn("failed to save failed session", zap.Error(saveErr))
		}
		return "", eris.Wrap(err, "flow: bootstrap")
	}

	s.AppToken = token
	s.Cookies = p.Cookies()
	s.State = session.StateCaptchaRequired
	if err := c.sessions.Put(ctx, s, c.opts.SessionTTL); err != nil {
		return "", eris.Wrap(err, "flow: save session")
	}
	return s.ID, nil
}

// CaptchaImage fetches the captcha image for a session. Token and cookies
// may rotate on this call; the session absorbs the changes.
func (c *Controller) CaptchaImage(ctx context.Context, sessionID string) ([]byte, error) {
	s, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	p, err := c.portalFor(s)
	if err != nil {
		return nil, err
	}

	img, err := p.Captcha(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "flow: captcha")
	}

	c.syncCredentials(s, p)
	if err := c.sessions.Put(ctx, s, c.opts.SessionTTL); err != nil {
		return nil, eris.Wrap(err, "flow: save session")
	}
	return img, nil
}

// SubmitCaptcha performs the search with the given captcha code. A rotated
// token or a retryable portal rejection gets one resubmission with the same
// code before failing. An invalid captcha returns the session to the
// captcha-required state so the caller can fetch a fresh image.
func (c *Controller) SubmitCaptcha(ctx context.Context, sessionID, code string) error {
	s, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	p, err := c.portalFor(s)
	if err != nil {
		return err
	}

	if s.Mode != session.ModeCNR {
		if err := c.primeJurisdiction(ctx, s, p); err != nil {
			return err
		}
	}

	var res *portal.SearchResult
	var searchErr error
	for attempt := 1; attempt <= searchAttempts; attempt++ {
		res, searchErr = c.search(ctx, s, p, code)
		if searchErr == nil {
			break
		}
		c.syncCredentials(s, p)
		if !portal.IsSearchRetryable(searchErr) || attempt == searchAttempts {
			break
		}
		c.log.Debug("resubmitting search",
			zap.String("session_id", s.ID),
			zap.Int("attempt", attempt),
			zap.Error(searchErr),
		)
	}

	c.syncCredentials(s, p)

	switch {
	case searchErr == nil:
	case eris.Is(searchErr, portal.ErrInvalidCaptcha):
		s.State = session.StateCaptchaRequired
		s.Retries++
		if err := c.sessions.Put(ctx, s, c.opts.SessionTTL); err != nil {
			return eris.Wrap(err, "flow: save session")
		}
		return searchErr
	default:
		failSession(s, searchErr)
		if err := c.sessions.Put(ctx, s, c.opts.SessionTTL); err != nil {
			return eris.Wrap(err, "flow: save session")
		}
		return searchErr
	}

	switch res.Kind {
	case portal.KindDetail:
		s.Payload["result_html"] = res.HTML
		s.State = session.StateSearchSubmitted
	case portal.KindList:
		s.Payload["list_html"] = res.HTML
		s.State = session.StateCaseListLoaded
	}
	return eris.Wrap(c.sessions.Put(ctx, s, c.opts.SessionTTL), "flow: save session")
}

func (c *Controller) search(ctx context.Context, s *session.Session, p Portal, code string) (*portal.SearchResult, error) {
	switch s.Mode {
	case session.ModeCNR:
		return p.SearchCNR(ctx, s.Payload["cino"], code)
	case session.ModeParty:
		return p.SearchParty(ctx, searchForm(s), code)
	case session.ModeAdvocate:
		return p.SearchAdvocate(ctx, searchForm(s), code)
	}
	return nil, eris.Errorf("flow: unknown search mode %q", s.Mode)
}

// failSession marks the session failed. Portal rejections are recorded with
// the portal's own message so status polling surfaces the text the portal
// showed, not the wrapped error chain.
func failSession(s *session.Session, err error) {
	s.SetError(err)
	if msg := portal.Message(err); msg != "" {
		s.LastError = msg
	}
}

// searchForm copies the session payload minus the result fragments the flow
// stores back into it, so a resubmission never posts prior response HTML as
// form fields.
func searchForm(s *session.Session) map[string]string {
	form := make(map[string]string, len(s.Payload))
	for k, v := range s.Payload {
		if k == "list_html" || k == "result_html" {
			continue
		}
		form[k] = v
	}
	return form
}

// primeJurisdiction locks the selected state, district, and complex into the
// portal's server-side session. Party and advocate searches silently match
// nothing without it.
func (c *Controller) primeJurisdiction(ctx context.Context, s *session.Session, p Portal) error {
	state := s.Payload["state_code"]
	dist := s.Payload["dist_code"]
	complexCode := s.Payload["court_complex_code"]
	if state == "" || dist == "" || complexCode == "" {
		return nil
	}
	if err := p.SetJurisdiction(ctx, state, dist, complexCode); err != nil {
		return eris.Wrap(err, "flow: set jurisdiction")
	}
	c.syncCredentials(s, p)
	return nil
}

// CaseList parses the selectable case list out of a party or advocate
// search result.
func (c *Controller) CaseList(ctx context.Context, sessionID string) ([]model.CaseListEntry, error) {
	s, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	listHTML := s.Payload["list_html"]
	if listHTML == "" {
		return nil, eris.Errorf("flow: session %s has no case list (state %s)", s.ID, s.State)
	}
	return extract.CaseList(listHTML)
}

// SelectCase picks one entry from the case list and fetches its full
// detail fragment, moving the session to the search-submitted state. The
// returned case carries metadata only; FetchResults completes it.
func (c *Controller) SelectCase(ctx context.Context, sessionID string, index int) (*model.Case, error) {
	s, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	entries, err := c.CaseList(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	var entry *model.CaseListEntry
	for i := range entries {
		if entries[i].Index == index {
			entry = &entries[i]
			break
		}
	}
	if entry == nil {
		return nil, eris.Errorf("flow: no case at index %d", index)
	}

	p, err := c.portalFor(s)
	if err != nil {
		return nil, err
	}

	html, err := p.ViewHistory(ctx, entry.HistoryArgs)
	if err != nil {
		return nil, eris.Wrap(err, "flow: view history")
	}

	cino := ""
	if len(entry.HistoryArgs) > 1 {
		cino = entry.HistoryArgs[1]
	}
	s.Payload["result_html"] = html
	s.Payload["cino"] = cino
	// Selecting a different case invalidates any previously fetched result.
	s.Result = nil
	s.State = session.StateSearchSubmitted
	c.syncCredentials(s, p)
	if err := c.sessions.Put(ctx, s, c.opts.SessionTTL); err != nil {
		return nil, eris.Wrap(err, "flow: save session")
	}

	raw, err := extract.CaseMetadata(html)
	if err != nil {
		return nil, eris.Wrap(err, "flow: parse metadata")
	}
	return transform.ToCase(raw, cino, c.opts.PortalBaseURL, "", time.Now().UTC()), nil
}

// Result is the outcome of a completed scrape.
type Result struct {
	State    string
	Case     *model.Case
	HTML     string
	CSSLinks []string
}

// FetchResults completes a search-submitted session: it parses the detail
// fragment, fetches the business update for each hearing, downloads order
// PDFs, and transforms everything into the canonical record. A session that
// already fetched its results returns the cached record without touching
// the portal again.
func (c *Controller) FetchResults(ctx context.Context, sessionID string) (*Result, error) {
	s, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if s.State == session.StateHistoryFetched && s.Result != nil {
		return &Result{
			State:    s.State,
			Case:     s.Result,
			HTML:     s.Result.Meta.RawHTML,
			CSSLinks: extract.CSSLinks(s.Payload["result_html"]),
		}, nil
	}
	if s.State != session.StateSearchSubmitted {
		return nil, eris.Errorf("flow: session %s not ready for results (state %s): %s", s.ID, s.State, s.LastError)
	}

	rawHTML := s.Payload["result_html"]
	cleanHTML := extract.Sanitize(rawHTML)
	cssLinks := extract.CSSLinks(rawHTML)

	rawCase, err := extract.FullCase(rawHTML)
	if err != nil {
		return nil, eris.Wrap(err, "flow: parse case")
	}

	p, err := c.portalFor(s)
	if err != nil {
		return nil, err
	}

	c.fillBusinessUpdates(ctx, rawCase, p)

	record := transform.ToCase(rawCase, s.Payload["cino"], c.opts.PortalBaseURL, cleanHTML, time.Now().UTC())
	c.downloadOrderPDFs(ctx, s, rawCase, record, p)

	s.Result = record
	s.State = session.StateHistoryFetched
	c.syncCredentials(s, p)
	if err := c.sessions.Put(ctx, s, c.opts.SessionTTL); err != nil {
		return nil, eris.Wrap(err, "flow: save session")
	}

	return &Result{
		State:    s.State,
		Case:     record,
		HTML:     cleanHTML,
		CSSLinks: cssLinks,
	}, nil
}

// fillBusinessUpdates fetches per-hearing business text. Failures degrade to
// placeholder text; a hearing without a business link gets "N/A".
func (c *Controller) fillBusinessUpdates(ctx context.Context, rawCase *extract.RawCase, p Portal) {
	for i := range rawCase.History {
		row := &rawCase.History[i]
		if len(row.BusinessArgs) < 9 {
			row.BusinessUpdate = "N/A"
			continue
		}
		fragment, err := p.ViewBusiness(ctx, row.BusinessArgs)
		if err != nil {
			c.log.Warn("business update fetch failed",
				zap.String("business_date", row.BusinessDate),
				zap.Error(err),
			)
			row.BusinessUpdate = "Failed to fetch"
			continue
		}
		if text := extract.BusinessUpdate(fragment); text != "" {
			row.BusinessUpdate = text
		} else {
			row.BusinessUpdate = "N/A"
		}
	}
}

// downloadOrderPDFs runs the generate, settle, download cycle for each order
// with a PDF link, storing the bytes under the case's CINO. Failures leave
// the order row without a file; they never fail the fetch.
func (c *Controller) downloadOrderPDFs(ctx context.Context, s *session.Session, rawCase *extract.RawCase, record *model.Case, p Portal) {
	for i := range rawCase.Orders {
		args := rawCase.Orders[i].PDFArgs
		if len(args) < 4 || i >= len(record.Orders) {
			continue
		}

		filename := fmt.Sprintf("order_%d.pdf", i+1)
		if err := p.GeneratePDF(ctx, args); err != nil {
			c.log.Warn("pdf generation failed", zap.String("filename", filename), zap.Error(err))
			continue
		}
		data, err := p.DownloadPDF(ctx)
		if err != nil {
			c.log.Warn("pdf download failed", zap.String("filename", filename), zap.Error(err))
			continue
		}

		location, err := c.files.Save(ctx, path.Join(record.CINO, filename), data)
		if err != nil {
			c.log.Warn("pdf save failed", zap.String("filename", filename), zap.Error(err))
			continue
		}

		record.Orders[i].PDFFilename = filename
		record.Orders[i].FilePath = location
		record.Orders[i].FileSize = int64(len(data))
		s.AddFile(filename, location)
	}
}

// Status reports the session's current state and last error.
type Status struct {
	State     string
	Mode      string
	Retries   int
	LastError string
}

func (c *Controller) Status(ctx context.Context, sessionID string) (*Status, error) {
	s, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &Status{State: s.State, Mode: s.Mode, Retries: s.Retries, LastError: s.LastError}, nil
}

// Delete discards a session.
func (c *Controller) Delete(ctx context.Context, sessionID string) error {
	return c.sessions.Delete(ctx, sessionID)
}

func (c *Controller) portalFor(s *session.Session) (Portal, error) {
	p, err := c.newPortal()
	if err != nil {
		return nil, eris.Wrap(err, "flow: portal client")
	}
	p.SeedCookies(s.Cookies)
	p.SetToken(s.AppToken)
	return p, nil
}

// syncCredentials absorbs rotated cookies and token back into the session.
func (c *Controller) syncCredentials(s *session.Session, p Portal) {
	s.Cookies = p.Cookies()
	if tok := p.Token(); tok != "" {
		s.AppToken = tok
	}
}
