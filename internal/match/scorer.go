package match

import (
	"fmt"
	"strings"

	"yaad/internal/media"
	"yaad/internal/normalize"
)

// Score components on the 100-point title+year scale.
const (
	scoreTitleExact     = 100.0
	scoreTitleContains  = 50.0
	scoreTitleContained = 30.0
	scoreYearExact      = 50.0
	scoreYearAdjacent   = 20.0
	// voteWeight scales the catalog vote average into a tiebreak bonus small
	// enough that it never outweighs a title or year component.
	voteWeight = 2.0

	// MaxScore is the ceiling of the title+year components, used to map raw
	// scores onto a 0..1 confidence.
	MaxScore = scoreTitleExact + scoreYearExact
)

// Target is what the caller is trying to match.
type Target struct {
	Title    string
	Year     int
	TypeHint media.Type
}

// Thresholds carries the configurable scoring constants.
type Thresholds struct {
	// MinScore discards candidates below this value on the 100-point scale.
	MinScore float64
	// TVMargin is how far the best series score must exceed the best film
	// score before an ambiguous title is classified as a series.
	TVMargin float64
}

// Scored pairs a winning candidate with its score and a human-readable
// rationale for logs.
type Scored struct {
	Candidate media.Candidate
	Score     float64
	Rationale string
}

// SelectBest scores every candidate against the target and returns the
// winner, or ok=false when nothing clears the minimum threshold. Ties at the
// same score keep the earlier-queried candidate, then the more popular one.
//
// When candidates of both film and series type survive (a diary-style source
// does not distinguish them), the series is chosen only if its score beats
// the film score by the configured margin. The margin is a pragmatic bias
// against noisy misclassification, not a derived constant.
func SelectBest(target Target, candidates []media.Candidate, thresholds Thresholds) (Scored, bool) {
	bestByType := map[media.Type]*Scored{}
	for idx := range candidates {
		scored := scoreCandidate(target, candidates[idx])
		if scored.Score < thresholds.MinScore {
			continue
		}
		current := bestByType[candidates[idx].Type]
		if current == nil || beats(scored, *current) {
			s := scored
			bestByType[candidates[idx].Type] = &s
		}
	}

	if len(bestByType) == 0 {
		return Scored{}, false
	}

	film := bestByType[media.TypeFilm]
	series := bestByType[media.TypeSeries]
	if film != nil && series != nil {
		if series.Score > film.Score+thresholds.TVMargin {
			series.Rationale += fmt.Sprintf("; series beats film by more than %.0f", thresholds.TVMargin)
			return *series, true
		}
		film.Rationale += "; film kept over series within margin"
		return *film, true
	}

	var best *Scored
	for _, scored := range bestByType {
		if best == nil || beats(*scored, *best) {
			best = scored
		}
	}
	return *best, true
}

func beats(a, b Scored) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Candidate.Popularity > b.Candidate.Popularity
}

func scoreCandidate(target Target, candidate media.Candidate) Scored {
	targetKey := normalize.Fold(normalize.Title(target.Title))
	titleScore, titleReason := bestTitleScore(targetKey, candidate)

	score := titleScore
	reasons := []string{titleReason}

	if target.Year > 0 && candidate.Year > 0 {
		switch diff := absInt(target.Year - candidate.Year); {
		case diff == 0:
			score += scoreYearExact
			reasons = append(reasons, "exact year")
		case diff == 1:
			score += scoreYearAdjacent
			reasons = append(reasons, "adjacent year")
		default:
			reasons = append(reasons, "year mismatch")
		}
	}

	score += candidate.VoteAverage * voteWeight

	return Scored{
		Candidate: candidate,
		Score:     score,
		Rationale: strings.Join(reasons, ", "),
	}
}

// bestTitleScore evaluates every title variant the candidate carries and
// keeps the strongest.
func bestTitleScore(targetKey string, candidate media.Candidate) (float64, string) {
	if targetKey == "" {
		return 0, "empty target"
	}
	best := 0.0
	reason := "no title overlap"
	for _, variant := range []string{candidate.Title, candidate.OriginalTitle} {
		key := normalize.Fold(normalize.Title(variant))
		if key == "" {
			continue
		}
		var score float64
		var why string
		switch {
		case key == targetKey:
			score, why = scoreTitleExact, "exact title"
		case strings.Contains(key, targetKey):
			score, why = scoreTitleContains, "title contains target"
		case strings.Contains(targetKey, key):
			score, why = scoreTitleContained, "target contains title"
		default:
			continue
		}
		if score > best {
			best, reason = score, why
		}
	}
	return best, reason
}

// Fuzzy bonuses on the 0-1 similarity scale used by re-enrichment.
const (
	fuzzyYearExactBonus    = 0.2
	fuzzyYearAdjacentBonus = 0.1
)

// FuzzyScore computes the similarity-based score used when re-matching
// incomplete library rows: sequence similarity of the folded titles plus a
// small bonus for year agreement.
func FuzzyScore(targetTitle string, targetYear int, candidate media.Candidate) float64 {
	targetKey := normalize.Fold(normalize.Title(targetTitle))
	best := 0.0
	for _, variant := range []string{candidate.Title, candidate.OriginalTitle} {
		key := normalize.Fold(normalize.Title(variant))
		if key == "" {
			continue
		}
		if s := Similarity(targetKey, key); s > best {
			best = s
		}
	}
	if targetYear > 0 && candidate.Year > 0 {
		switch absInt(targetYear - candidate.Year) {
		case 0:
			best += fuzzyYearExactBonus
		case 1:
			best += fuzzyYearAdjacentBonus
		}
	}
	return best
}

// BestFuzzy returns the candidate with the highest fuzzy score above the
// threshold, or ok=false when none clears it.
func BestFuzzy(targetTitle string, targetYear int, candidates []media.Candidate, threshold float64) (Scored, bool) {
	var best Scored
	found := false
	for idx := range candidates {
		score := FuzzyScore(targetTitle, targetYear, candidates[idx])
		if score <= threshold {
			continue
		}
		if !found || score > best.Score {
			best = Scored{
				Candidate: candidates[idx],
				Score:     score,
				Rationale: fmt.Sprintf("fuzzy similarity %.2f", score),
			}
			found = true
		}
	}
	return best, found
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
