package match

import (
	"math"
	"testing"

	"yaad/internal/media"
)

func defaultThresholds() Thresholds {
	return Thresholds{MinScore: 50, TVMargin: 20}
}

func TestSimilarity(t *testing.T) {
	cases := []struct {
		a, b string
		want float64
	}{
		{"inception", "inception", 1},
		{"", "", 1},
		{"abc", "xyz", 0},
		{"abcd", "bcd", 6.0 / 7.0},
	}
	for _, tc := range cases {
		if got := Similarity(tc.a, tc.b); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("Similarity(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestSimilaritySymmetric(t *testing.T) {
	a, b := "bienvenue a gattaca", "bienvenu a gattaca"
	if Similarity(a, b) != Similarity(b, a) {
		t.Fatal("similarity must be symmetric")
	}
	if Similarity(a, b) < 0.9 {
		t.Fatalf("near-identical strings scored %v", Similarity(a, b))
	}
}

func TestSelectBestExactBeatsPartial(t *testing.T) {
	target := Target{Title: "Inception", Year: 2010}
	exact := media.Candidate{Type: media.TypeFilm, Title: "Inception", Year: 2010, VoteAverage: 8.3}
	partial := media.Candidate{Type: media.TypeFilm, Title: "Inception: The Cobol Job", Year: 2010, VoteAverage: 7.0}

	best, ok := SelectBest(target, []media.Candidate{partial, exact}, defaultThresholds())
	if !ok {
		t.Fatal("expected a match")
	}
	if best.Candidate.Title != "Inception" {
		t.Fatalf("picked %q", best.Candidate.Title)
	}

	// Monotonicity: exact title plus exact year strictly beats partial title
	// without year agreement.
	partialNoYear := partial
	partialNoYear.Year = 1999
	exactScore := scoreCandidate(target, exact).Score
	partialScore := scoreCandidate(target, partialNoYear).Score
	if exactScore <= partialScore {
		t.Fatalf("exact score %v not above partial score %v", exactScore, partialScore)
	}
}

func TestSelectBestBelowThreshold(t *testing.T) {
	target := Target{Title: "Inception"}
	unrelated := media.Candidate{Type: media.TypeFilm, Title: "Totally Different", VoteAverage: 9}

	if _, ok := SelectBest(target, []media.Candidate{unrelated}, defaultThresholds()); ok {
		t.Fatal("expected no match below threshold")
	}
	if _, ok := SelectBest(target, nil, defaultThresholds()); ok {
		t.Fatal("expected no match for empty candidates")
	}
}

func TestSelectBestKeepsFilmWithinMargin(t *testing.T) {
	target := Target{Title: "Fargo", Year: 1996}
	film := media.Candidate{Type: media.TypeFilm, Title: "Fargo", Year: 1996, VoteAverage: 7.9}
	series := media.Candidate{Type: media.TypeSeries, Title: "Fargo", Year: 2014, VoteAverage: 8.3}

	best, ok := SelectBest(target, []media.Candidate{film, series}, defaultThresholds())
	if !ok {
		t.Fatal("expected a match")
	}
	if best.Candidate.Type != media.TypeFilm {
		t.Fatalf("expected film within margin, got %s (score %v)", best.Candidate.Type, best.Score)
	}
}

func TestSelectBestSwitchesToSeriesBeyondMargin(t *testing.T) {
	target := Target{Title: "Dark", Year: 2017}
	film := media.Candidate{Type: media.TypeFilm, Title: "Dark Passage", Year: 1947, VoteAverage: 3.0}
	series := media.Candidate{Type: media.TypeSeries, Title: "Dark", Year: 2017, VoteAverage: 8.4}

	best, ok := SelectBest(target, []media.Candidate{film, series}, defaultThresholds())
	if !ok {
		t.Fatal("expected a match")
	}
	if best.Candidate.Type != media.TypeSeries {
		t.Fatalf("expected series beyond margin, got %s", best.Candidate.Type)
	}
}

func TestSelectBestUsesOriginalTitle(t *testing.T) {
	target := Target{Title: "Le Fabuleux Destin d'Amélie Poulain", Year: 2001}
	candidate := media.Candidate{
		Type:          media.TypeFilm,
		Title:         "Amélie",
		OriginalTitle: "Le Fabuleux Destin d'Amélie Poulain",
		Year:          2001,
		VoteAverage:   7.9,
	}

	best, ok := SelectBest(target, []media.Candidate{candidate}, defaultThresholds())
	if !ok {
		t.Fatal("expected a match via original title")
	}
	if best.Score < scoreTitleExact+scoreYearExact {
		t.Fatalf("expected exact title and year components, score %v", best.Score)
	}
}

func TestSelectBestStableTieBreak(t *testing.T) {
	target := Target{Title: "Dune", Year: 0}
	first := media.Candidate{Type: media.TypeFilm, Title: "Dune", ExternalID: "first"}
	second := media.Candidate{Type: media.TypeFilm, Title: "Dune", ExternalID: "second"}

	best, ok := SelectBest(target, []media.Candidate{first, second}, defaultThresholds())
	if !ok {
		t.Fatal("expected a match")
	}
	if best.Candidate.ExternalID != "first" {
		t.Fatalf("tie must keep the earlier candidate, got %s", best.Candidate.ExternalID)
	}

	popular := second
	popular.Popularity = 42
	best, _ = SelectBest(target, []media.Candidate{first, popular}, defaultThresholds())
	if best.Candidate.ExternalID != "second" {
		t.Fatal("popularity must break exact ties")
	}
}

func TestBestFuzzy(t *testing.T) {
	candidates := []media.Candidate{
		{Type: media.TypeFilm, Title: "Bienvenue à Gattaca", Year: 1997},
		{Type: media.TypeFilm, Title: "Gattaca Unrelated Sequel", Year: 2005},
	}
	best, ok := BestFuzzy("Bienvenu a Gattaca", 1997, candidates, 0.5)
	if !ok {
		t.Fatal("expected fuzzy match")
	}
	if best.Candidate.Title != "Bienvenue à Gattaca" {
		t.Fatalf("picked %q", best.Candidate.Title)
	}
	if best.Score <= 1.0 {
		t.Fatalf("expected year bonus above raw similarity, score %v", best.Score)
	}

	if _, ok := BestFuzzy("Completely Different", 1990, candidates, 0.5); ok {
		t.Fatal("expected no fuzzy match below threshold")
	}
}
