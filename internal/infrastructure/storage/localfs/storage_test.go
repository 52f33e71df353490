package localfs

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/kirillkom/biomed-literature-assistant/internal/core/domain"
)

func TestSaveAndOpenNestedKey(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()
	if err := store.Save(ctx, "records/123.json", strings.NewReader(`{"pmid":"123"}`)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Save(ctx, "records/123.json", strings.NewReader(`{"pmid":"123","v":2}`)); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	rc, err := store.Open(ctx, "records/123.json")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	raw, _ := io.ReadAll(rc)
	if string(raw) != `{"pmid":"123","v":2}` {
		t.Fatalf("unexpected content %s", raw)
	}
}

func TestOpenMissingKeyIsNotFound(t *testing.T) {
	store, _ := New(t.TempDir())
	_, err := store.Open(context.Background(), "records/404.json")
	if !domain.IsKind(err, domain.ErrArticleNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRejectsKeysEscapingBase(t *testing.T) {
	store, _ := New(t.TempDir())
	for _, key := range []string{"../outside.json", "/etc/passwd", "", "records/../../x"} {
		err := store.Save(context.Background(), key, strings.NewReader("x"))
		if !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("expected invalid input for %q, got %v", key, err)
		}
	}
}
