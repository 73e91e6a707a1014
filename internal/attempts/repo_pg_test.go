package attempts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockRepo(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &PGRepo{DB: db}, mock
}

func TestPGRepoClaim(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	stale := now.Add(-3 * time.Minute)

	tests := []struct {
		name string
		rows *sqlmock.Rows
		want bool
	}{
		{name: "claimed", rows: sqlmock.NewRows([]string{"id"}).AddRow("att-1"), want: true},
		{name: "contended", rows: sqlmock.NewRows([]string{"id"}), want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockRepo(t)
			mock.ExpectQuery(`UPDATE attempts\s+SET generation_status = 'processing'`).
				WithArgs("att-1", "tok", now, stale).
				WillReturnRows(tt.rows)

			got, err := repo.Claim(context.Background(), "att-1", "tok", now, stale)
			if err != nil {
				t.Fatalf("Claim: %v", err)
			}
			if got != tt.want {
				t.Fatalf("Claim = %v, want %v", got, tt.want)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("ExpectationsWereMet: %v", err)
			}
		})
	}
}

func TestPGRepoMarkDoneRequiresToken(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	doc := DocumentRef{
		Path:            "reports/o/v1/jan.pdf",
		Filename:        "DISC-rapport-jan.pdf",
		TemplateVersion: "v1",
		CreatedAt:       now,
		ExpiresAt:       now.Add(24 * time.Hour),
	}

	mock.ExpectExec(`UPDATE attempts\s+SET generation_status = 'done'`).
		WithArgs("att-1", "stale-token", doc.Path, doc.Filename, doc.CreatedAt, doc.ExpiresAt, doc.TemplateVersion, now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkDone(context.Background(), "att-1", "stale-token", doc, now)
	if !errors.Is(err, ErrClaimLost) {
		t.Fatalf("expected ErrClaimLost, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoMarkFailed(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectExec(`UPDATE attempts\s+SET generation_status = 'failed'`).
		WithArgs("att-1", "tok", "boom", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.MarkFailed(context.Background(), "att-1", "tok", "boom", now); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGet(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	columns := []string{
		"id", "owner_id", "candidate_name", "candidate_email", "generation_status", "processing_token", "processing_started_at",
		"score_result", "profile_code", "alert", "finished_at",
		"document_path", "document_filename", "document_created_at", "document_expires_at", "template_version",
		"email_status", "email_sent_at", "email_error", "email_claimed_at", "last_error", "created_at", "updated_at",
	}
	score := `{"natural":{"D":80,"I":60,"S":20,"C":10},"response":{"D":50,"I":50,"S":50,"C":50},"profileCode":"DI","alert":false}`
	mock.ExpectQuery(`SELECT .* FROM attempts WHERE id = \$1`).
		WithArgs("att-1").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			"att-1", "owner-1", "Jan", "jan@example.com", StatusDone, nil, nil,
			score, "DI", false, now,
			"reports/owner-1/v1/jan.pdf", "DISC-rapport-jan.pdf", now, now.Add(time.Hour), "v1",
			EmailFailed, nil, "smtp down", nil, nil, now, now,
		))

	got, err := repo.Get(context.Background(), "att-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Score == nil || got.Score.Natural.D != 80 || got.Score.ProfileCode != "DI" {
		t.Fatalf("unexpected score %+v", got.Score)
	}
	if got.Document == nil || got.Document.Path != "reports/owner-1/v1/jan.pdf" || got.Document.TemplateVersion != "v1" {
		t.Fatalf("unexpected document %+v", got.Document)
	}
	if got.EmailError == nil || *got.EmailError != "smtp down" {
		t.Fatalf("unexpected email error %v", got.EmailError)
	}
	if !got.NeedsEmail() {
		t.Fatalf("expected NeedsEmail")
	}
}

func TestPGRepoGetNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`SELECT .* FROM attempts`).WithArgs("nope").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := repo.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoCreateDuplicate(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	mock.ExpectExec("INSERT INTO attempts").
		WithArgs("att-1", "owner-1", "Jan", "jan@example.com", StatusNone, EmailUnset, now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Create(context.Background(), Attempt{
		ID: "att-1", OwnerID: "owner-1", CandidateName: "Jan", CandidateEmail: "jan@example.com", CreatedAt: now,
	})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestPGRepoClaimEmail(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	stale := now.Add(-5 * time.Minute)
	mock.ExpectQuery(`UPDATE attempts\s+SET email_claimed_at`).
		WithArgs("att-1", now, stale, false).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	ok, err := repo.ClaimEmail(context.Background(), "att-1", false, now, stale)
	if err != nil || ok {
		t.Fatalf("ClaimEmail = %v, %v", ok, err)
	}
}

func TestPGRepoSaveScore(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	mock.ExpectExec(`UPDATE attempts\s+SET score_result`).
		WithArgs("att-1", sqlmock.AnyArg(), "DI", true, "Jan", now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	update := ScoreUpdate{CandidateName: "Jan", FinishedAt: now}
	update.Result.ProfileCode = "DI"
	update.Result.Alert = true
	if err := repo.SaveScore(context.Background(), "att-1", update, now); err != nil {
		t.Fatalf("SaveScore: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
