package bookmark

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "data", "bookmarks.db"), nil)
	if err != nil {
		t.Fatalf("open bookmark store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndLoad(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	want := Bookmark{
		Document:  "/books/shj.md",
		Section:   "南山经",
		Unit:      4,
		Offset:    7,
		CharsRead: 123,
		Rate:      0.25,
		Voice:     "qingche",
	}
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Load(ctx, want.Document)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Section != want.Section || got.Unit != want.Unit || got.Offset != want.Offset ||
		got.CharsRead != want.CharsRead || got.Rate != want.Rate || got.Voice != want.Voice {
		t.Errorf("loaded %+v, want %+v", got, want)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("expected an update time")
	}
}

func TestSaveReplaces(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	s.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := s.Save(ctx, Bookmark{Document: "a", Section: "one", Unit: 1}); err != nil {
		t.Fatal(err)
	}
	s.clock = func() time.Time { return time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC) }
	if err := s.Save(ctx, Bookmark{Document: "a", Section: "two", Unit: 3}); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, Bookmark{Document: "b", Section: "x"}); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if got.Section != "two" || got.Unit != 3 {
		t.Errorf("expected the newer bookmark, got %+v", got)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Document != "a" {
		t.Errorf("unexpected list: %+v", list)
	}
}

func TestLoadMissing(t *testing.T) {
	s := openStore(t)

	if _, err := s.Load(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, Bookmark{Document: "a", Section: "one"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Load(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSaveRequiresDocument(t *testing.T) {
	s := openStore(t)
	if err := s.Save(context.Background(), Bookmark{Section: "x"}); err == nil {
		t.Error("expected an error for a bookmark without document")
	}
}
