package attempts

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores attempts in memory and is safe for concurrent use. It
// applies the same conditional transitions as PGRepo.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Attempt
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]Attempt)}
}

// Create stores the attempt.
func (r *MemoryRepo) Create(ctx context.Context, attempt Attempt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[attempt.ID]; ok {
		return ErrAlreadyExists
	}
	if attempt.Status == "" {
		attempt.Status = StatusNone
	}
	if attempt.EmailStatus == "" {
		attempt.EmailStatus = EmailUnset
	}
	attempt.UpdatedAt = attempt.CreatedAt
	r.byID[attempt.ID] = attempt
	return nil
}

// Get returns a copy of the attempt.
func (r *MemoryRepo) Get(ctx context.Context, id string) (Attempt, error) {
	if err := ctx.Err(); err != nil {
		return Attempt{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	if !ok {
		return Attempt{}, ErrNotFound
	}
	return cloneAttempt(a), nil
}

// Claim moves the attempt into processing when it is claimable.
func (r *MemoryRepo) Claim(ctx context.Context, id, token string, now, staleBefore time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return false, nil
	}
	switch a.Status {
	case StatusNone, StatusPending, StatusFailed:
	case StatusProcessing:
		if a.ProcessingStartedAt != nil && !a.ProcessingStartedAt.Before(staleBefore) {
			return false, nil
		}
	default:
		return false, nil
	}
	a.Status = StatusProcessing
	a.ProcessingToken = &token
	started := now
	a.ProcessingStartedAt = &started
	a.UpdatedAt = now
	r.byID[id] = a
	return true, nil
}

func (r *MemoryRepo) holding(id, token string) (Attempt, error) {
	a, ok := r.byID[id]
	if !ok || a.Status != StatusProcessing || a.ProcessingToken == nil || *a.ProcessingToken != token {
		return Attempt{}, ErrClaimLost
	}
	return a, nil
}

// MarkDone records the stored document and clears the claim.
func (r *MemoryRepo) MarkDone(ctx context.Context, id, token string, doc DocumentRef, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, err := r.holding(id, token)
	if err != nil {
		return err
	}
	a.Status = StatusDone
	a.ProcessingToken = nil
	a.ProcessingStartedAt = nil
	d := doc
	a.Document = &d
	a.EmailStatus = EmailUnset
	a.EmailSentAt = nil
	a.EmailError = nil
	a.EmailClaimedAt = nil
	a.LastError = nil
	a.UpdatedAt = now
	r.byID[id] = a
	return nil
}

// MarkFailed records the error and clears the claim.
func (r *MemoryRepo) MarkFailed(ctx context.Context, id, token, message string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, err := r.holding(id, token)
	if err != nil {
		return err
	}
	a.Status = StatusFailed
	a.ProcessingToken = nil
	a.ProcessingStartedAt = nil
	msg := message
	a.LastError = &msg
	a.UpdatedAt = now
	r.byID[id] = a
	return nil
}

// MarkPending queues an attempt that is not yet generating.
func (r *MemoryRepo) MarkPending(ctx context.Context, id string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return ErrInvalidState
	}
	switch a.Status {
	case StatusNone, StatusFailed, StatusPending:
	default:
		return ErrInvalidState
	}
	a.Status = StatusPending
	a.UpdatedAt = now
	r.byID[id] = a
	return nil
}

// SaveScore caches the scoring result on the attempt.
func (r *MemoryRepo) SaveScore(ctx context.Context, id string, update ScoreUpdate, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	res := update.Result
	a.Score = &res
	a.ProfileCode = res.ProfileCode
	a.Alert = res.Alert
	if update.CandidateName != "" {
		a.CandidateName = update.CandidateName
	}
	finished := update.FinishedAt
	a.FinishedAt = &finished
	a.UpdatedAt = now
	r.byID[id] = a
	return nil
}

// ClaimEmail reserves the right to send the report email.
func (r *MemoryRepo) ClaimEmail(ctx context.Context, id string, force bool, now, staleBefore time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok || a.Status != StatusDone {
		return false, nil
	}
	if !force && a.EmailStatus == EmailSent {
		return false, nil
	}
	if a.EmailClaimedAt != nil && !a.EmailClaimedAt.Before(staleBefore) {
		return false, nil
	}
	claimed := now
	a.EmailClaimedAt = &claimed
	a.UpdatedAt = now
	r.byID[id] = a
	return true, nil
}

// SetEmailStatus records the delivery outcome and releases the email claim.
func (r *MemoryRepo) SetEmailStatus(ctx context.Context, id, status string, emailErr *string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	a.EmailStatus = status
	if emailErr != nil {
		msg := *emailErr
		a.EmailError = &msg
	} else {
		a.EmailError = nil
	}
	if status == EmailSent {
		sent := now
		a.EmailSentAt = &sent
	}
	a.EmailClaimedAt = nil
	a.UpdatedAt = now
	r.byID[id] = a
	return nil
}

// ListExpired returns done attempts whose document retention has passed.
func (r *MemoryRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]Attempt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Attempt
	for _, a := range r.byID {
		if a.Status == StatusDone && a.Document != nil && !a.Document.ExpiresAt.IsZero() && a.Document.ExpiresAt.Before(now) {
			out = append(out, cloneAttempt(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Document.ExpiresAt.Before(out[j].Document.ExpiresAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ClearDocument resets an attempt whose document at path was removed.
func (r *MemoryRepo) ClearDocument(ctx context.Context, id, path string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok || a.Status != StatusDone || a.Document == nil || a.Document.Path != path {
		return ErrInvalidState
	}
	a.Status = StatusNone
	a.Document = nil
	a.EmailStatus = EmailUnset
	a.EmailSentAt = nil
	a.EmailError = nil
	a.EmailClaimedAt = nil
	a.UpdatedAt = now
	r.byID[id] = a
	return nil
}

// cloneAttempt copies pointer fields so callers cannot mutate stored state.
func cloneAttempt(a Attempt) Attempt {
	out := a
	if a.ProcessingToken != nil {
		v := *a.ProcessingToken
		out.ProcessingToken = &v
	}
	if a.ProcessingStartedAt != nil {
		v := *a.ProcessingStartedAt
		out.ProcessingStartedAt = &v
	}
	if a.Score != nil {
		v := *a.Score
		out.Score = &v
	}
	if a.FinishedAt != nil {
		v := *a.FinishedAt
		out.FinishedAt = &v
	}
	if a.Document != nil {
		v := *a.Document
		out.Document = &v
	}
	if a.EmailSentAt != nil {
		v := *a.EmailSentAt
		out.EmailSentAt = &v
	}
	if a.EmailError != nil {
		v := *a.EmailError
		out.EmailError = &v
	}
	if a.EmailClaimedAt != nil {
		v := *a.EmailClaimedAt
		out.EmailClaimedAt = &v
	}
	if a.LastError != nil {
		v := *a.LastError
		out.LastError = &v
	}
	return out
}

var _ Repo = (*MemoryRepo)(nil)
