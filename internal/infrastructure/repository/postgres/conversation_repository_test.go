package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/biomed-literature-assistant/internal/core/domain"
)

func newConversationRepoWithMock(t *testing.T) (*ConversationRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return NewConversationRepository(db), mock, func() { _ = db.Close() }
}

func TestEnsureConversationInsertsThenSelects(t *testing.T) {
	repo, mock, done := newConversationRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectExec("INSERT INTO conversations").
		WithArgs("s1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT session_id, created_at, updated_at").
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "created_at", "updated_at"}).AddRow("s1", now, now))

	conv, err := repo.EnsureConversation(context.Background(), "s1")
	if err != nil {
		t.Fatalf("EnsureConversation() error = %v", err)
	}
	if conv.SessionID != "s1" {
		t.Fatalf("unexpected conversation %+v", conv)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListRecentMessagesReturnsChronologicalOrder(t *testing.T) {
	repo, mock, done := newConversationRepoWithMock(t)
	defer done()

	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "session_id", "role", "content", "created_at"}).
		AddRow("m2", "s1", domain.RoleAssistant, "answer", t0.Add(time.Second)).
		AddRow("m1", "s1", domain.RoleUser, "question", t0)
	mock.ExpectQuery("SELECT id, session_id, role, content, created_at").
		WithArgs("s1", 12).
		WillReturnRows(rows)

	got, err := repo.ListRecentMessages(context.Background(), "s1", 12)
	if err != nil {
		t.Fatalf("ListRecentMessages() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "m1" || got[1].ID != "m2" {
		t.Fatalf("expected chronological order, got %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListRecentMessagesWithZeroLimitSkipsQuery(t *testing.T) {
	repo, mock, done := newConversationRepoWithMock(t)
	defer done()

	got, err := repo.ListRecentMessages(context.Background(), "s1", 0)
	if err != nil || got != nil {
		t.Fatalf("expected nil, got %v, %v", got, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAppendMessageTouchesConversation(t *testing.T) {
	repo, mock, done := newConversationRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO conversation_messages").
		WithArgs("m1", "s1", domain.RoleUser, "hello", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE conversations SET updated_at").
		WithArgs("s1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.AppendMessage(context.Background(), domain.ConversationMessage{ID: "m1", SessionID: "s1", Role: domain.RoleUser, Content: "hello"})
	if err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestClearConversationDeletesSession(t *testing.T) {
	repo, mock, done := newConversationRepoWithMock(t)
	defer done()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM conversations WHERE session_id = $1")).
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.ClearConversation(context.Background(), "s1"); err != nil {
		t.Fatalf("ClearConversation() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
