package health

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestStatusWithoutDatabase(t *testing.T) {
	got := NewService(nil, "local", "s3").Status(context.Background())
	if got["ok"] != true || got["database"] != "memory" {
		t.Fatalf("unexpected status: %v", got)
	}
	if got["renderer"] != "local" || got["storage"] != "s3" {
		t.Fatalf("unexpected backends: %v", got)
	}
}

func TestStatusPingsDatabase(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectPing()
	got := NewService(db, "remote", "gcs").Status(context.Background())
	if got["ok"] != true || got["database"] != "ok" {
		t.Fatalf("unexpected status: %v", got)
	}

	mock.ExpectPing().WillReturnError(errors.New("down"))
	got = NewService(db, "remote", "gcs").Status(context.Background())
	if got["ok"] != false || got["database"] != "unreachable" {
		t.Fatalf("unexpected status: %v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
