package attempts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"disc-report/internal/scoring"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const attemptColumns = `
id, owner_id, candidate_name, candidate_email, generation_status, processing_token, processing_started_at,
score_result, profile_code, alert, finished_at,
document_path, document_filename, document_created_at, document_expires_at, template_version,
email_status, email_sent_at, email_error, email_claimed_at, last_error, created_at, updated_at`

// Create inserts a new attempt.
func (r *PGRepo) Create(ctx context.Context, attempt Attempt) error {
	const query = `
INSERT INTO attempts (id, owner_id, candidate_name, candidate_email, generation_status, email_status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
ON CONFLICT (id) DO NOTHING`
	status := attempt.Status
	if status == "" {
		status = StatusNone
	}
	emailStatus := attempt.EmailStatus
	if emailStatus == "" {
		emailStatus = EmailUnset
	}
	res, err := r.DB.ExecContext(ctx, query,
		attempt.ID,
		attempt.OwnerID,
		attempt.CandidateName,
		attempt.CandidateEmail,
		status,
		emailStatus,
		attempt.CreatedAt,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// Get returns an attempt by ID.
func (r *PGRepo) Get(ctx context.Context, id string) (Attempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM attempts WHERE id = $1 LIMIT 1`
	a, err := scanAttempt(r.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, ErrNotFound
	}
	return a, err
}

// Claim moves the attempt into processing in one conditional update. It
// succeeds from none, pending or failed, or from a processing state whose
// start is older than staleBefore.
func (r *PGRepo) Claim(ctx context.Context, id, token string, now, staleBefore time.Time) (bool, error) {
	const query = `
UPDATE attempts
SET generation_status = 'processing',
    processing_token = $2,
    processing_started_at = $3,
    updated_at = $3
WHERE id = $1
  AND (
    generation_status IN ('none', 'pending', 'failed')
    OR (generation_status = 'processing' AND (processing_started_at IS NULL OR processing_started_at < $4))
  )
RETURNING id`
	var claimed string
	err := r.DB.QueryRowContext(ctx, query, id, token, now, staleBefore).Scan(&claimed)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkDone records the stored document and clears the claim.
func (r *PGRepo) MarkDone(ctx context.Context, id, token string, doc DocumentRef, now time.Time) error {
	const query = `
UPDATE attempts
SET generation_status = 'done',
    processing_token = NULL,
    processing_started_at = NULL,
    document_path = $3,
    document_filename = $4,
    document_created_at = $5,
    document_expires_at = $6,
    template_version = $7,
    email_status = 'unset',
    email_sent_at = NULL,
    email_error = NULL,
    email_claimed_at = NULL,
    last_error = NULL,
    updated_at = $8
WHERE id = $1 AND generation_status = 'processing' AND processing_token = $2`
	res, err := r.DB.ExecContext(ctx, query, id, token,
		doc.Path, doc.Filename, doc.CreatedAt, doc.ExpiresAt, doc.TemplateVersion, now)
	if err != nil {
		return err
	}
	return requireRow(res, ErrClaimLost)
}

// MarkFailed records the error and clears the claim.
func (r *PGRepo) MarkFailed(ctx context.Context, id, token, message string, now time.Time) error {
	const query = `
UPDATE attempts
SET generation_status = 'failed',
    processing_token = NULL,
    processing_started_at = NULL,
    last_error = $3,
    updated_at = $4
WHERE id = $1 AND generation_status = 'processing' AND processing_token = $2`
	res, err := r.DB.ExecContext(ctx, query, id, token, message, now)
	if err != nil {
		return err
	}
	return requireRow(res, ErrClaimLost)
}

// MarkPending queues an attempt that is not yet generating.
func (r *PGRepo) MarkPending(ctx context.Context, id string, now time.Time) error {
	const query = `
UPDATE attempts
SET generation_status = 'pending', updated_at = $2
WHERE id = $1 AND generation_status IN ('none', 'failed', 'pending')`
	res, err := r.DB.ExecContext(ctx, query, id, now)
	if err != nil {
		return err
	}
	return requireRow(res, ErrInvalidState)
}

// SaveScore caches the scoring result on the attempt.
func (r *PGRepo) SaveScore(ctx context.Context, id string, update ScoreUpdate, now time.Time) error {
	const query = `
UPDATE attempts
SET score_result = $2,
    profile_code = $3,
    alert = $4,
    candidate_name = CASE WHEN $5 = '' THEN candidate_name ELSE $5 END,
    finished_at = $6,
    updated_at = $7
WHERE id = $1`
	payload, err := json.Marshal(update.Result)
	if err != nil {
		return fmt.Errorf("marshal score: %w", err)
	}
	res, err := r.DB.ExecContext(ctx, query, id, string(payload),
		update.Result.ProfileCode, update.Result.Alert, update.CandidateName, update.FinishedAt, now)
	if err != nil {
		return err
	}
	return requireRow(res, ErrNotFound)
}

// ClaimEmail reserves the right to send the report email. Without force an
// already sent email is not claimed again.
func (r *PGRepo) ClaimEmail(ctx context.Context, id string, force bool, now, staleBefore time.Time) (bool, error) {
	const query = `
UPDATE attempts
SET email_claimed_at = $2, updated_at = $2
WHERE id = $1
  AND generation_status = 'done'
  AND ($4 OR email_status <> 'sent')
  AND (email_claimed_at IS NULL OR email_claimed_at < $3)
RETURNING id`
	var claimed string
	err := r.DB.QueryRowContext(ctx, query, id, now, staleBefore, force).Scan(&claimed)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetEmailStatus records the delivery outcome and releases the email claim.
func (r *PGRepo) SetEmailStatus(ctx context.Context, id, status string, emailErr *string, now time.Time) error {
	const query = `
UPDATE attempts
SET email_status = $2,
    email_error = $3,
    email_sent_at = CASE WHEN $2 = 'sent' THEN $4 ELSE email_sent_at END,
    email_claimed_at = NULL,
    updated_at = $4
WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query, id, status, nullString(emailErr), now)
	if err != nil {
		return err
	}
	return requireRow(res, ErrNotFound)
}

// ListExpired returns done attempts whose document retention has passed.
func (r *PGRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + attemptColumns + `
FROM attempts
WHERE generation_status = 'done' AND document_expires_at IS NOT NULL AND document_expires_at < $1
ORDER BY document_expires_at ASC
LIMIT $2`
	rows, err := r.DB.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ClearDocument resets an attempt whose document at path was removed, so a
// later finish regenerates it.
func (r *PGRepo) ClearDocument(ctx context.Context, id, path string, now time.Time) error {
	const query = `
UPDATE attempts
SET generation_status = 'none',
    document_path = NULL,
    document_filename = NULL,
    document_created_at = NULL,
    document_expires_at = NULL,
    template_version = NULL,
    email_status = 'unset',
    email_sent_at = NULL,
    email_error = NULL,
    email_claimed_at = NULL,
    updated_at = $3
WHERE id = $1 AND generation_status = 'done' AND document_path = $2`
	res, err := r.DB.ExecContext(ctx, query, id, path, now)
	if err != nil {
		return err
	}
	return requireRow(res, ErrInvalidState)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (Attempt, error) {
	var a Attempt
	var (
		token           sql.NullString
		startedAt       sql.NullTime
		scoreRaw        sql.NullString
		finishedAt      sql.NullTime
		docPath         sql.NullString
		docFilename     sql.NullString
		docCreatedAt    sql.NullTime
		docExpiresAt    sql.NullTime
		templateVersion sql.NullString
		emailSentAt     sql.NullTime
		emailError      sql.NullString
		emailClaimedAt  sql.NullTime
		lastError       sql.NullString
	)
	err := row.Scan(
		&a.ID,
		&a.OwnerID,
		&a.CandidateName,
		&a.CandidateEmail,
		&a.Status,
		&token,
		&startedAt,
		&scoreRaw,
		&a.ProfileCode,
		&a.Alert,
		&finishedAt,
		&docPath,
		&docFilename,
		&docCreatedAt,
		&docExpiresAt,
		&templateVersion,
		&a.EmailStatus,
		&emailSentAt,
		&emailError,
		&emailClaimedAt,
		&lastError,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return Attempt{}, err
	}
	a.ProcessingToken = stringPtr(token)
	a.ProcessingStartedAt = timePtr(startedAt)
	a.FinishedAt = timePtr(finishedAt)
	a.EmailSentAt = timePtr(emailSentAt)
	a.EmailError = stringPtr(emailError)
	a.EmailClaimedAt = timePtr(emailClaimedAt)
	a.LastError = stringPtr(lastError)
	if scoreRaw.Valid && scoreRaw.String != "" {
		var res scoring.Result
		if err := json.Unmarshal([]byte(scoreRaw.String), &res); err != nil {
			return Attempt{}, fmt.Errorf("decode score_result: %w", err)
		}
		a.Score = &res
	}
	if docPath.Valid && docPath.String != "" {
		a.Document = &DocumentRef{
			Path:            docPath.String,
			Filename:        docFilename.String,
			TemplateVersion: templateVersion.String,
			CreatedAt:       docCreatedAt.Time,
			ExpiresAt:       docExpiresAt.Time,
		}
	}
	return a, nil
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

var _ Repo = (*PGRepo)(nil)
