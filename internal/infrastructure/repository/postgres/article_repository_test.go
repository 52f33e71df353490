package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/biomed-literature-assistant/internal/core/domain"
)

func newArticleRepoWithMock(t *testing.T) (*ArticleRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return NewArticleRepository(db), mock, func() { _ = db.Close() }
}

func TestGetByPMIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newArticleRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT pmid, pmcid, title, journal").
		WithArgs("123").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByPMID(context.Background(), "123")
	if !domain.IsKind(err, domain.ErrArticleNotFound) {
		t.Fatalf("expected ErrArticleNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByPMIDScansArticle(t *testing.T) {
	repo, mock, done := newArticleRepoWithMock(t)
	defer done()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"pmid", "pmcid", "title", "journal", "pub_year", "storage_path", "chunks", "status", "error_message", "created_at", "updated_at",
	}).AddRow("123", "PMC9", "Title", "Journal", 2021, "records/123.json", 14, "ready", "", now, now)
	mock.ExpectQuery("SELECT pmid, pmcid, title, journal").WithArgs("123").WillReturnRows(rows)

	got, err := repo.GetByPMID(context.Background(), "123")
	if err != nil {
		t.Fatalf("GetByPMID() error = %v", err)
	}
	if got.Status != domain.StatusReady || got.Chunks != 14 || got.PMCID != "PMC9" || got.PubYear != 2021 {
		t.Fatalf("unexpected article %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertUsesOnConflict(t *testing.T) {
	repo, mock, done := newArticleRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO articles .* ON CONFLICT \\(pmid\\) DO UPDATE").
		WithArgs("123", "", "", "", 0, "", 0, "queued", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), &domain.Article{PMID: "123", Status: domain.StatusQueued})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateStatusReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newArticleRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE articles").
		WithArgs("missing", string(domain.StatusProcessing), "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "missing", domain.StatusProcessing, "")
	if !domain.IsKind(err, domain.ErrArticleNotFound) {
		t.Fatalf("expected ErrArticleNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCountByStatus(t *testing.T) {
	repo, mock, done := newArticleRepoWithMock(t)
	defer done()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*) FROM articles GROUP BY status")).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).AddRow("ready", 3).AddRow("failed", 1))

	got, err := repo.CountByStatus(context.Background())
	if err != nil {
		t.Fatalf("CountByStatus() error = %v", err)
	}
	if got[domain.StatusReady] != 3 || got[domain.StatusFailed] != 1 {
		t.Fatalf("unexpected counts %v", got)
	}
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock($1)")).
		WithArgs(schemaLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS articles").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
