package attempts

import (
	"time"

	"disc-report/internal/scoring"
)

// Generation states.
const (
	StatusNone       = "none"
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// Email delivery states.
const (
	EmailUnset  = "unset"
	EmailSent   = "sent"
	EmailFailed = "failed"
)

// DocumentRef points at a stored report.
type DocumentRef struct {
	Path            string    `json:"storagePath"`
	Filename        string    `json:"filename"`
	TemplateVersion string    `json:"templateVersion"`
	CreatedAt       time.Time `json:"createdAt"`
	ExpiresAt       time.Time `json:"expiresAt"`
}

// Attempt is one finished questionnaire and its generation state.
type Attempt struct {
	ID             string `json:"id"`
	OwnerID        string `json:"ownerId"`
	CandidateName  string `json:"candidateName"`
	CandidateEmail string `json:"candidateEmail"`

	Status              string     `json:"generationStatus"`
	ProcessingToken     *string    `json:"-"`
	ProcessingStartedAt *time.Time `json:"processingStartedAt,omitempty"`

	Score       *scoring.Result `json:"score,omitempty"`
	ProfileCode string          `json:"profileCode,omitempty"`
	Alert       bool            `json:"alert"`
	FinishedAt  *time.Time      `json:"finishedAt,omitempty"`

	Document *DocumentRef `json:"document,omitempty"`

	EmailStatus    string     `json:"emailStatus"`
	EmailSentAt    *time.Time `json:"emailSentAt,omitempty"`
	EmailError     *string    `json:"emailError,omitempty"`
	EmailClaimedAt *time.Time `json:"-"`

	LastError *string   `json:"lastError,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasDocument reports whether a stored document is available.
func (a Attempt) HasDocument() bool {
	return a.Status == StatusDone && a.Document != nil && a.Document.Path != ""
}

// NeedsEmail reports whether a done attempt still has to be delivered.
func (a Attempt) NeedsEmail() bool {
	return a.HasDocument() && a.EmailStatus != EmailSent
}
