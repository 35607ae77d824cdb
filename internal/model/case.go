// Package model defines the canonical case record and job types shared
// across the scraping engine and the refresh orchestrator.
package model

import (
	"time"

	"github.com/google/uuid"
)

// InternalStatus values inferred from the portal's status text.
const (
	StatusActive   = "active"
	StatusDisposed = "disposed"
)

// Sync statuses tracked per case.
const (
	SyncNever      = "never"
	SyncQueued     = "queued"
	SyncInProgress = "in_progress"
	SyncFresh      = "fresh"
	SyncError      = "error"
)

// Court identifies the court a case is filed in.
type Court struct {
	Name  string `json:"name,omitempty"`
	Level string `json:"level,omitempty"`
	Bench string `json:"bench,omitempty"`
	Code  string `json:"code,omitempty"`
}

// Summary holds display-oriented party summaries and a synthesized short title.
type Summary struct {
	Petitioner string `json:"petitioner,omitempty"`
	Respondent string `json:"respondent,omitempty"`
	ShortTitle string `json:"short_title,omitempty"`
}

// CaseDetails holds the filing/registration block. Dates are ISO strings when
// the portal value parsed, otherwise the raw portal text is preserved.
type CaseDetails struct {
	Type               string `json:"type,omitempty"`
	FilingNumber       string `json:"filing_number,omitempty"`
	FilingDate         string `json:"filing_date,omitempty"`
	RegistrationNumber string `json:"registration_number,omitempty"`
	RegistrationDate   string `json:"registration_date,omitempty"`
}

// CaseStatus holds the hearing/decision block.
type CaseStatus struct {
	FirstHearingDate string `json:"first_hearing_date,omitempty"`
	NextHearingDate  string `json:"next_hearing_date,omitempty"`
	LastHearingDate  string `json:"last_hearing_date,omitempty"`
	DecisionDate     string `json:"decision_date,omitempty"`
	Stage            string `json:"stage,omitempty"`
	StatusText       string `json:"status_text,omitempty"`
	DisposalNature   string `json:"disposal_nature,omitempty"`
	Judge            string `json:"judge,omitempty"`
}

// Party is one petitioner or respondent with optional counsel.
type Party struct {
	IsPetitioner bool   `json:"is_petitioner"`
	Name         string `json:"name"`
	Advocate     string `json:"advocate,omitempty"`
	RawText      string `json:"raw_text,omitempty"`
}

// Act is one statute the case is filed under.
type Act struct {
	Name     string `json:"name"`
	Sections string `json:"sections,omitempty"`
}

// FIR holds first-information-report details for criminal cases.
type FIR struct {
	PoliceStation string `json:"police_station,omitempty"`
	Number        string `json:"number,omitempty"`
	Year          string `json:"year,omitempty"`
}

// HistoryEntry is one hearing in the case history.
type HistoryEntry struct {
	BusinessDate string `json:"business_date,omitempty"`
	HearingDate  string `json:"hearing_date,omitempty"`
	Purpose      string `json:"purpose,omitempty"`
	Judge        string `json:"judge,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// Order is one court order, optionally with a downloaded PDF.
type Order struct {
	Number      string `json:"order_no,omitempty"`
	Date        string `json:"date,omitempty"`
	Details     string `json:"details,omitempty"`
	PDFFilename string `json:"pdf_filename,omitempty"`
	FilePath    string `json:"file_path,omitempty"`
	FileSize    int64  `json:"file_size,omitempty"`
}

// Meta records scrape provenance.
type Meta struct {
	ScrapedAt time.Time `json:"scraped_at"`
	Source    string    `json:"source,omitempty"`
	SourceURL string    `json:"source_url,omitempty"`
	RawHTML   string    `json:"raw_html,omitempty"`
}

// Case is the canonical case record produced by the transformer. CINO is the
// natural key; a refresh replaces Parties/Acts/History/Orders wholesale since
// the portal exposes no stable identifiers for them across scrapes.
type Case struct {
	CINO           string         `json:"cino"`
	Title          string         `json:"title"`
	InternalStatus string         `json:"internal_status"`
	Court          Court          `json:"court"`
	Summary        Summary        `json:"summary"`
	Details        CaseDetails    `json:"case_details"`
	Status         CaseStatus     `json:"status"`
	Parties        []Party        `json:"parties,omitempty"`
	Acts           []Act          `json:"acts,omitempty"`
	FIR            *FIR           `json:"fir_details,omitempty"`
	History        []HistoryEntry `json:"history,omitempty"`
	Orders         []Order        `json:"orders,omitempty"`
	Meta           Meta           `json:"meta"`
}

// Petitioners returns the petitioner-side parties.
func (c *Case) Petitioners() []Party {
	return c.partiesBySide(true)
}

// Respondents returns the respondent-side parties.
func (c *Case) Respondents() []Party {
	return c.partiesBySide(false)
}

func (c *Case) partiesBySide(petitioner bool) []Party {
	var out []Party
	for _, p := range c.Parties {
		if p.IsPetitioner == petitioner {
			out = append(out, p)
		}
	}
	return out
}

// CaseRecord is a stored case: the canonical record plus ownership and sync
// bookkeeping maintained by the case store.
type CaseRecord struct {
	ID           uuid.UUID  `json:"id"`
	WorkspaceID  uuid.UUID  `json:"workspace_id"`
	Case         Case       `json:"case"`
	SyncStatus   string     `json:"sync_status"`
	SyncError    string     `json:"sync_error,omitempty"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// CaseListEntry is one selectable row from a party/advocate search result.
// HistoryArgs carries the portal's case-detail call arguments and is not part
// of the caller-facing payload.
type CaseListEntry struct {
	Index       int      `json:"index"`
	Display     string   `json:"display"`
	CaseNumber  string   `json:"case_number"`
	Petitioner  string   `json:"petitioner"`
	Respondent  string   `json:"respondent"`
	HistoryArgs []string `json:"-"`
}
