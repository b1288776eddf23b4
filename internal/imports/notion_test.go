package imports

import (
	"strings"
	"testing"

	"yaad/internal/media"
)

func TestParseCSVFrenchExport(t *testing.T) {
	csv := strings.Join([]string{
		"Titre;Type;Auteur;Note;Statut;Terminé le;URL",
		"Inception;Film;Christopher Nolan;9/10;Vu;2024-01-15;",
		"1984;Livre;George Orwell;4,5;Lu;15/01/2024;",
		"Dune;Série;;8/10;En cours;;",
		"Un article intéressant;Article;;;;;https://example.com/post",
		"Conférence Go;Reportage;;;;;https://www.youtube.com/watch?v=dQw4w9WgXcQ",
	}, "\n")

	driver := NewNotion(nil)
	report, err := driver.ParseCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(report.Entries) != 4 {
		t.Fatalf("expected 4 entries, got %d: %+v", len(report.Entries), report.Entries)
	}
	if len(report.Skipped) != 1 || !strings.Contains(report.Skipped[0], "article") {
		t.Fatalf("article row should be set aside with a reason: %v", report.Skipped)
	}

	film := report.Entries[0]
	if film.HintType != media.TypeFilm || film.HintAuthor != "Christopher Nolan" {
		t.Fatalf("unexpected film entry: %+v", film)
	}
	if film.UserRating != 4.5 {
		t.Fatalf("9/10 should normalize to 4.5, got %v", film.UserRating)
	}
	if film.Status != media.StatusFinished {
		t.Fatalf("vu should map to finished, got %q", film.Status)
	}
	if film.ConsumedAt == nil || film.ConsumedAt.Format("2006-01-02") != "2024-01-15" {
		t.Fatalf("date mismatch: %v", film.ConsumedAt)
	}

	book := report.Entries[1]
	if book.HintType != media.TypeBook || book.UserRating != 4.5 {
		t.Fatalf("unexpected book entry: %+v", book)
	}
	if book.ConsumedAt == nil || book.ConsumedAt.Format("2006-01-02") != "2024-01-15" {
		t.Fatalf("french date format not parsed: %v", book.ConsumedAt)
	}

	series := report.Entries[2]
	if series.HintType != media.TypeSeries || series.Status != media.StatusInProgress {
		t.Fatalf("unexpected series entry: %+v", series)
	}

	video := report.Entries[3]
	if video.HintType != media.TypeVideo || video.HintURL == "" {
		t.Fatalf("reportage should map to video with its url: %+v", video)
	}
}

func TestParseCSVEnglishCommaExport(t *testing.T) {
	csv := "Name,Type,Rating,Status\nOppenheimer,Movie,4,Done\n"

	driver := NewNotion(nil)
	report, err := driver.ParseCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(report.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(report.Entries))
	}
	entry := report.Entries[0]
	if entry.HintType != media.TypeFilm || entry.UserRating != 4 || entry.Status != media.StatusFinished {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestParseCSVUnrecognizedType(t *testing.T) {
	csv := "Name;Type\nSomething;Hologramme\n"

	driver := NewNotion(nil)
	report, err := driver.ParseCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(report.Entries) != 0 {
		t.Fatalf("unknown type should not produce an entry: %+v", report.Entries)
	}
	if len(report.Skipped) != 1 || !strings.Contains(report.Skipped[0], "Hologramme") {
		t.Fatalf("expected a skip reason naming the type: %v", report.Skipped)
	}
}

func TestParseCSVDefaultsMissingTypeToFilm(t *testing.T) {
	csv := "Name\nUntyped Row\n"

	driver := NewNotion(nil)
	report, err := driver.ParseCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(report.Entries) != 1 || report.Entries[0].HintType != media.TypeFilm {
		t.Fatalf("unexpected entries: %+v", report.Entries)
	}
}

func TestParseCSVNoTitleColumn(t *testing.T) {
	driver := NewNotion(nil)
	if _, err := driver.ParseCSV(strings.NewReader("Type;Note\nFilm;4\n")); err == nil {
		t.Fatal("expected error when no title column exists")
	}
}

func TestParseScore(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
	}{
		{"", 0},
		{"9/10", 4.5},
		{"8/10", 4},
		{"3/5", 3},
		{"4,5", 4.5},
		{"4.5", 4.5},
		{"7", 3.5},
		{"10", 5},
		{"not a number", 0},
		{"5/0", 0},
	}
	for _, tc := range cases {
		if got := parseScore(tc.raw); got != tc.want {
			t.Errorf("parseScore(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestDetectDelimiterPrefersMajority(t *testing.T) {
	// A French header with a comma inside a quoted name still detects the
	// semicolon.
	csv := `Titre;"Note, sur dix";Statut` + "\nSomething;8;Vu\n"

	driver := NewNotion(nil)
	report, err := driver.ParseCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(report.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(report.Entries))
	}
	if report.Entries[0].UserRating != 4 {
		t.Fatalf("score column not bound: %+v", report.Entries[0])
	}
}
