package library

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"yaad/internal/media"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenPath(filepath.Join(t.TempDir(), "library.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	consumed := time.Date(2024, 3, 14, 20, 0, 0, 0, time.UTC)
	item := &Item{
		UserID:          1,
		Type:            media.TypeFilm,
		Title:           "Inception",
		OriginalTitle:   "Inception",
		ExternalID:      "27205",
		Year:            2010,
		Description:     "A thief who steals corporate secrets.",
		CoverURL:        "https://image.tmdb.org/t/p/w500/inception.jpg",
		DurationMinutes: 148,
		Source:          media.SourceTMDB,
		Confidence:      0.93,
		Status:          media.StatusFinished,
		Rating:          4.5,
		ConsumedAt:      &consumed,
		Authors:         []string{"Christopher Nolan"},
		Genres:          []string{"Science Fiction", "Action"},
	}
	if err := store.CreateItem(ctx, item); err != nil {
		t.Fatalf("create: %v", err)
	}
	if item.ID == 0 {
		t.Fatal("expected assigned id")
	}

	got, err := store.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected item, got nil")
	}
	if got.Title != "Inception" || got.Year != 2010 || got.ExternalID != "27205" {
		t.Fatalf("unexpected row: %+v", got)
	}
	if got.Rating != 4.5 || got.Status != media.StatusFinished {
		t.Fatalf("user fields not persisted: %+v", got)
	}
	if got.ConsumedAt == nil || !got.ConsumedAt.Equal(consumed) {
		t.Fatalf("consumed_at mismatch: %v", got.ConsumedAt)
	}
	if len(got.Authors) != 1 || got.Authors[0] != "Christopher Nolan" {
		t.Fatalf("authors mismatch: %v", got.Authors)
	}
	if len(got.Genres) != 2 {
		t.Fatalf("genres mismatch: %v", got.Genres)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Fatal("timestamps not set")
	}
}

func TestGetByExternalIDMissingReturnsNil(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetByExternalID(context.Background(), 1, media.TypeFilm, "99999")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestGetByExternalIDScopedToUserAndType(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateItem(ctx, &Item{UserID: 1, Type: media.TypeFilm, Title: "Dune", ExternalID: "438631"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if got, _ := store.GetByExternalID(ctx, 2, media.TypeFilm, "438631"); got != nil {
		t.Fatal("lookup leaked across users")
	}
	if got, _ := store.GetByExternalID(ctx, 1, media.TypeBook, "438631"); got != nil {
		t.Fatal("lookup leaked across types")
	}
	got, err := store.GetByExternalID(ctx, 1, media.TypeFilm, "438631")
	if err != nil || got == nil {
		t.Fatalf("expected hit, got %v err %v", got, err)
	}
}

func TestFindByTitleYear(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	withYear := &Item{UserID: 1, Type: media.TypeFilm, Title: "Gattaca", Year: 1997}
	if err := store.CreateItem(ctx, withYear); err != nil {
		t.Fatalf("create: %v", err)
	}
	noYear := &Item{UserID: 1, Type: media.TypeFilm, Title: "Stalker"}
	if err := store.CreateItem(ctx, noYear); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.FindByTitleYear(ctx, 1, media.TypeFilm, "gattaca", 1997)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got == nil || got.ID != withYear.ID {
		t.Fatalf("case-insensitive match failed: %+v", got)
	}

	// A stored row without a year still matches a yearful query.
	got, err = store.FindByTitleYear(ctx, 1, media.TypeFilm, "Stalker", 1979)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got == nil || got.ID != noYear.ID {
		t.Fatalf("year-or-null match failed: %+v", got)
	}

	// A conflicting year is a different work.
	got, err = store.FindByTitleYear(ctx, 1, media.TypeFilm, "Gattaca", 2020)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no match for wrong year, got %+v", got)
	}
}

func TestUpdateReplacesDictionaryLinks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item := &Item{
		UserID:  1,
		Type:    media.TypeBook,
		Title:   "1984",
		Authors: []string{"G. Orwell"},
		Genres:  []string{"Fiction"},
	}
	if err := store.CreateItem(ctx, item); err != nil {
		t.Fatalf("create: %v", err)
	}

	item.Authors = []string{"George Orwell"}
	item.Genres = []string{"Dystopia", "Fiction"}
	item.Description = "Winston Smith rewrites history."
	if err := store.UpdateItem(ctx, item); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := store.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Authors) != 1 || got.Authors[0] != "George Orwell" {
		t.Fatalf("authors not replaced: %v", got.Authors)
	}
	if len(got.Genres) != 2 {
		t.Fatalf("genres not replaced: %v", got.Genres)
	}
	if got.Description == "" {
		t.Fatal("description not updated")
	}
}

func TestDeleteItem(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item := &Item{UserID: 1, Type: media.TypeFilm, Title: "Brazil", Authors: []string{"Terry Gilliam"}}
	if err := store.CreateItem(ctx, item); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.DeleteItem(ctx, item.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := store.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected row gone, got %+v", got)
	}
}

func TestDuplicateExternalIDViolatesConstraint(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := &Item{UserID: 1, Type: media.TypeFilm, Title: "Inception", ExternalID: "27205"}
	if err := store.CreateItem(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}
	second := &Item{UserID: 1, Type: media.TypeFilm, Title: "Inception (2010)", ExternalID: "27205"}
	err := store.CreateItem(ctx, second)
	if err == nil {
		t.Fatal("expected unique violation")
	}
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}

	// Rows without an id never collide.
	third := &Item{UserID: 1, Type: media.TypeFilm, Title: "Untitled"}
	fourth := &Item{UserID: 1, Type: media.TypeFilm, Title: "Untitled Too"}
	if err := store.CreateItem(ctx, third); err != nil {
		t.Fatalf("create id-less: %v", err)
	}
	if err := store.CreateItem(ctx, fourth); err != nil {
		t.Fatalf("create second id-less: %v", err)
	}
}

func TestListByUserFiltersByType(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rows := []*Item{
		{UserID: 1, Type: media.TypeFilm, Title: "Zodiac"},
		{UserID: 1, Type: media.TypeBook, Title: "Animal Farm"},
		{UserID: 2, Type: media.TypeFilm, Title: "Heat"},
	}
	for _, row := range rows {
		if err := store.CreateItem(ctx, row); err != nil {
			t.Fatalf("create %q: %v", row.Title, err)
		}
	}

	all, err := store.ListByUser(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 rows for user 1, got %d", len(all))
	}
	if all[0].Title != "Animal Farm" {
		t.Fatalf("expected title ordering, got %q first", all[0].Title)
	}

	films, err := store.ListByUser(ctx, 1, media.TypeFilm)
	if err != nil {
		t.Fatalf("list films: %v", err)
	}
	if len(films) != 1 || films[0].Title != "Zodiac" {
		t.Fatalf("type filter failed: %+v", films)
	}
}

func TestListIncomplete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	complete := &Item{
		UserID:      1,
		Type:        media.TypeFilm,
		Title:       "Complete",
		Year:        2001,
		Description: "has everything",
		CoverURL:    "https://example.com/cover.jpg",
		Authors:     []string{"Someone"},
	}
	bare := &Item{UserID: 1, Type: media.TypeFilm, Title: "Bare"}
	for _, row := range []*Item{complete, bare} {
		if err := store.CreateItem(ctx, row); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	incomplete, err := store.ListIncomplete(ctx, 1)
	if err != nil {
		t.Fatalf("list incomplete: %v", err)
	}
	if len(incomplete) != 1 || incomplete[0].Title != "Bare" {
		t.Fatalf("unexpected incomplete set: %+v", incomplete)
	}
}

func TestCountByUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rows := []*Item{
		{UserID: 1, Type: media.TypeFilm, Title: "A"},
		{UserID: 1, Type: media.TypeFilm, Title: "B"},
		{UserID: 1, Type: media.TypeBook, Title: "C"},
	}
	for _, row := range rows {
		if err := store.CreateItem(ctx, row); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	counts, err := store.CountByUser(ctx, 1)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts[media.TypeFilm] != 2 || counts[media.TypeBook] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func TestReopenPreservesData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "library.db")
	ctx := context.Background()

	store, err := OpenPath(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.CreateItem(ctx, &Item{UserID: 1, Type: media.TypeFilm, Title: "Persisted"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenPath(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	items, err := reopened.ListByUser(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || items[0].Title != "Persisted" {
		t.Fatalf("data lost across reopen: %+v", items)
	}
}
