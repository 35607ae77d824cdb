// Package session holds the scraping session state machine and its stores.
// A session is single-writer: the flow controller loads it, mutates it, and
// saves it back before returning to the caller.
package session

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/docket-cli/internal/model"
)

// Session lifecycle states. Transitions only move forward except for the
// failure state, which any step may enter.
const (
	StateInit            = "INIT"
	StateCaptchaRequired = "CAPTCHA_REQUIRED"
	StateSearchSubmitted = "SEARCH_SUBMITTED"
	StateCaseListLoaded  = "CASE_LIST_LOADED"
	StateHistoryFetched  = "HISTORY_FETCHED"
	StateFailed          = "FAILED"
)

// Search modes.
const (
	ModeCNR      = "cnr"
	ModeParty    = "party"
	ModeAdvocate = "advocate"
)

// ErrNotFound is returned when a session id is unknown or expired. Expired
// and never-existed are indistinguishable to callers on purpose.
var ErrNotFound = eris.New("session: not found or expired")

// Session is one in-flight portal interaction: the portal-issued credentials
// (token and cookies), the search inputs, and whatever intermediate results
// have been fetched so far.
type Session struct {
	ID        string                `json:"id"`
	State     string                `json:"state"`
	Mode      string                `json:"mode"`
	Payload   map[string]string     `json:"payload,omitempty"`
	AppToken  string                `json:"app_token,omitempty"`
	Cookies   map[string]string     `json:"cookies,omitempty"`
	Retries   int                   `json:"retries"`
	LastError string                `json:"last_error,omitempty"`
	CaseList  []model.CaseListEntry `json:"case_list,omitempty"`
	Result    *model.Case           `json:"result,omitempty"`
	Files     map[string]string     `json:"files,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
}

// Clone returns a deep copy. Stores hand out clones so callers can mutate a
// fetched session freely without writing through to the stored one.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Payload = maps.Clone(s.Payload)
	cp.Cookies = maps.Clone(s.Cookies)
	cp.Files = maps.Clone(s.Files)
	cp.CaseList = slices.Clone(s.CaseList)
	if s.Result != nil {
		r := *s.Result
		r.Parties = slices.Clone(s.Result.Parties)
		r.Acts = slices.Clone(s.Result.Acts)
		r.History = slices.Clone(s.Result.History)
		r.Orders = slices.Clone(s.Result.Orders)
		if s.Result.FIR != nil {
			f := *s.Result.FIR
			r.FIR = &f
		}
		cp.Result = &r
	}
	return &cp
}

// AddFile records where a downloaded artifact was stored.
func (s *Session) AddFile(name, location string) {
	if s.Files == nil {
		s.Files = map[string]string{}
	}
	s.Files[name] = location
}

// New returns a fresh session in the initial state.
func New(mode string) *Session {
	return &Session{
		ID:        uuid.New().String(),
		State:     StateInit,
		Mode:      mode,
		Payload:   map[string]string{},
		Cookies:   map[string]string{},
		CreatedAt: time.Now().UTC(),
	}
}

// SetError moves the session into the failure state, recording the cause.
func (s *Session) SetError(err error) {
	s.State = StateFailed
	if err != nil {
		s.LastError = err.Error()
	}
}

// Failed reports whether the session is terminally failed.
func (s *Session) Failed() bool {
	return s.State == StateFailed
}

// Store persists sessions with a TTL. Get never returns expired sessions.
type Store interface {
	Put(ctx context.Context, s *Session, ttl time.Duration) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}
