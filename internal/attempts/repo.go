package attempts

import (
	"context"
	"time"

	"disc-report/internal/scoring"
)

// ScoreUpdate caches scoring output and identity on an attempt.
type ScoreUpdate struct {
	Result        scoring.Result
	CandidateName string
	FinishedAt    time.Time
}

// Repo defines persistence operations for attempts. Claim is the only way
// into processing; terminal updates only apply for the current token.
type Repo interface {
	Create(ctx context.Context, attempt Attempt) error
	Get(ctx context.Context, id string) (Attempt, error)
	Claim(ctx context.Context, id, token string, now, staleBefore time.Time) (bool, error)
	MarkDone(ctx context.Context, id, token string, doc DocumentRef, now time.Time) error
	MarkFailed(ctx context.Context, id, token, message string, now time.Time) error
	MarkPending(ctx context.Context, id string, now time.Time) error
	SaveScore(ctx context.Context, id string, update ScoreUpdate, now time.Time) error
	ClaimEmail(ctx context.Context, id string, force bool, now, staleBefore time.Time) (bool, error)
	SetEmailStatus(ctx context.Context, id, status string, emailErr *string, now time.Time) error
	ListExpired(ctx context.Context, now time.Time, limit int) ([]Attempt, error)
	ClearDocument(ctx context.Context, id, path string, now time.Time) error
}
