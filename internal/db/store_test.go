package db

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/david/campus-notice/internal/models"
)

func newRecord(status models.Status, started time.Time, items ...models.FeedItem) models.RunRecord {
	finished := started.Add(3 * time.Second)
	return models.RunRecord{
		ID:          uuid.New(),
		TargetURL:   "https://info.korea.ac.kr/info/board/notice_under.do",
		SourceID:    "korea_univ_info",
		Status:      status,
		Message:     "msg",
		Scanned:     5,
		Aligned:     len(items),
		BoardErrors: 1,
		BestScore:   0.9,
		StartedAt:   started,
		FinishedAt:  &finished,
		Items:       items,
	}
}

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestSQLite(t)

	started := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	item := models.FeedItem{
		Title:       "AI 해커톤",
		Summary:     "요약",
		OriginalURL: "https://info.korea.ac.kr/x?articleNo=1",
		FullContent: "본문\n\n[이미지 1]\n포스터",
		Images:      []string{"https://info.korea.ac.kr/a.png"},
		Timestamp:   "2025-03-10T09:00:00+09:00",
		Board:       "학부공지",
		Score:       0.9,
		Reason:      "YES",
		Attributes:  map[string]string{"company": "ACME"},
	}
	rec := newRecord(models.StatusSuccess, started, item)
	if err := store.SaveRun(ctx, rec); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	// saving again replaces items instead of duplicating them
	if err := store.SaveRun(ctx, rec); err != nil {
		t.Fatalf("SaveRun again: %v", err)
	}

	got, err := store.GetRun(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != models.StatusSuccess || got.Scanned != 5 || got.BoardErrors != 1 || got.BestScore != 0.9 {
		t.Errorf("run = %+v", got)
	}
	if got.FinishedAt == nil || !got.FinishedAt.Equal(*rec.FinishedAt) {
		t.Errorf("finished_at = %v", got.FinishedAt)
	}
	if len(got.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(got.Items))
	}
	gi := got.Items[0]
	if gi.Title != item.Title || gi.FullContent != item.FullContent || gi.Images[0] != item.Images[0] || gi.Attributes["company"] != "ACME" {
		t.Errorf("item = %+v", gi)
	}

	if _, err := store.GetRun(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing run: err = %v", err)
	}
	if _, err := store.SimilarNotices(ctx, "AI", 5); !errors.Is(err, ErrUnsupported) {
		t.Errorf("similar: err = %v", err)
	}
}

func TestSQLiteListRuns(t *testing.T) {
	ctx := context.Background()
	store := openTestSQLite(t)

	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	statuses := []models.Status{models.StatusNoNewPosts, models.StatusSuccess, models.StatusNoMatchingPosts, models.StatusSuccess}
	for i, st := range statuses {
		if err := store.SaveRun(ctx, newRecord(st, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("SaveRun %d: %v", i, err)
		}
	}

	all, err := store.ListRuns(ctx, ListParams{})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(all) != 4 || !all[0].StartedAt.After(all[3].StartedAt) {
		t.Fatalf("runs not newest first: %+v", all)
	}

	success, err := store.ListRuns(ctx, ListParams{Status: models.StatusSuccess, Limit: 1})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(success) != 1 || success[0].Status != models.StatusSuccess || !success[0].StartedAt.Equal(base.Add(3*time.Hour)) {
		t.Errorf("filtered = %+v", success)
	}
}

func TestOpenNone(t *testing.T) {
	store, err := Open(context.Background(), "none", "", nil)
	if err != nil || store != nil {
		t.Fatalf("Open(none) = %v, %v", store, err)
	}
	if _, err := Open(context.Background(), "mysql", "", nil); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

// The Postgres store needs a database with pgvector; set TEST_DATABASE_URL to run it.
func TestPGStoreRoundTrip(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	store, err := Open(ctx, "postgres", dsn, nil)
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	defer store.Close()

	rec := newRecord(models.StatusSuccess, time.Now().UTC().Truncate(time.Microsecond),
		models.FeedItem{Title: "t", OriginalURL: "https://x/1", Images: []string{}})
	if err := store.SaveRun(ctx, rec); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	got, err := store.GetRun(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if len(got.Items) != 1 || got.Items[0].OriginalURL != "https://x/1" {
		t.Errorf("run = %+v", got)
	}
	if _, err := store.SimilarNotices(ctx, "t", 3); !errors.Is(err, ErrUnsupported) {
		t.Errorf("similar without embedder: err = %v", err)
	}
}
