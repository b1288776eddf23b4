package imports

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"yaad/internal/logging"
	"yaad/internal/media"
	"yaad/internal/services"
)

// Notion reads a database export CSV. Exports mix French and English header
// vocabulary and use either comma or semicolon delimiters depending on the
// locale that produced them.
type Notion struct {
	logger *slog.Logger
}

// NewNotion builds the driver.
func NewNotion(logger *slog.Logger) *Notion {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Notion{logger: logging.NewComponentLogger(logger, "notion")}
}

// NotionReport is the outcome of parsing one export: the entries to run
// through the pipeline plus the rows set aside with a reason.
type NotionReport struct {
	Entries []media.RawEntry
	// Skipped holds one human-readable reason per row left out, such as a
	// source type with no library equivalent.
	Skipped []string
}

// headerSynonyms maps each logical field to the header spellings seen in
// real exports, checked exact first and then as a substring.
var headerSynonyms = map[string][]string{
	"name":   {"name", "titre", "title", "nom"},
	"type":   {"type", "catégorie", "categorie", "category"},
	"author": {"author", "auteur", "réalisateur", "realisateur", "director", "artiste"},
	"score":  {"score", "note", "rating"},
	"status": {"status", "statut", "état", "etat"},
	"date":   {"date", "terminé le", "fini le", "finished"},
	"url":    {"url", "lien", "link"},
	"isbn":   {"isbn"},
	"year":   {"year", "année", "annee"},
}

// typeMapping translates source vocabulary to library types. A nil value
// means the vocabulary is known but has no library equivalent.
var typeMapping = map[string]*media.Type{
	"film":       typeRef(media.TypeFilm),
	"movie":      typeRef(media.TypeFilm),
	"série":      typeRef(media.TypeSeries),
	"serie":      typeRef(media.TypeSeries),
	"series":     typeRef(media.TypeSeries),
	"livre":      typeRef(media.TypeBook),
	"book":       typeRef(media.TypeBook),
	"bd":         typeRef(media.TypeBook),
	"discussion": typeRef(media.TypePodcast),
	"podcast":    typeRef(media.TypePodcast),
	"reportage":  typeRef(media.TypeVideo),
	"video":      typeRef(media.TypeVideo),
	"vidéo":      typeRef(media.TypeVideo),
	"youtube":    typeRef(media.TypeVideo),
	"article":    nil,
}

func typeRef(t media.Type) *media.Type { return &t }

var statusMapping = map[string]media.Status{
	"finished":    media.StatusFinished,
	"terminé":     media.StatusFinished,
	"termine":     media.StatusFinished,
	"vu":          media.StatusFinished,
	"lu":          media.StatusFinished,
	"done":        media.StatusFinished,
	"in progress": media.StatusInProgress,
	"en cours":    media.StatusInProgress,
	"reading":     media.StatusInProgress,
	"watching":    media.StatusInProgress,
	"to consume":  media.StatusToConsume,
	"à voir":      media.StatusToConsume,
	"a voir":      media.StatusToConsume,
	"à lire":      media.StatusToConsume,
	"a lire":      media.StatusToConsume,
	"abandonné":   media.StatusAbandoned,
	"abandonne":   media.StatusAbandoned,
	"abandoned":   media.StatusAbandoned,
}

var notionDateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"January 2, 2006",
}

// ParseCSV reads one export. Unknown source types are set aside, not failed.
func (n *Notion) ParseCSV(r io.Reader) (*NotionReport, error) {
	buffered := bufio.NewReader(r)
	delimiter, err := detectDelimiter(buffered)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "notion", "parse csv", "empty export", err)
	}

	reader := csv.NewReader(buffered)
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "notion", "parse csv", "missing header", err)
	}
	lookup := newHeaderLookup(header)
	if !lookup.has("name") {
		return nil, services.Wrap(services.ErrValidation, "notion", "parse csv", "no recognizable title column", nil)
	}

	report := &NotionReport{}
	row := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			report.Skipped = append(report.Skipped, fmt.Sprintf("row %d: malformed", row))
			continue
		}

		name := lookup.value(record, "name")
		if name == "" {
			continue
		}

		rawType := strings.ToLower(lookup.value(record, "type"))
		mapped, known := typeMapping[rawType]
		switch {
		case rawType == "":
			mapped = typeRef(media.TypeFilm)
		case !known:
			report.Skipped = append(report.Skipped, fmt.Sprintf("%s: unrecognized type %q", name, rawType))
			continue
		case mapped == nil:
			report.Skipped = append(report.Skipped, fmt.Sprintf("%s: type %q has no library equivalent", name, rawType))
			continue
		}

		entry := media.RawEntry{
			Name:       name,
			HintType:   *mapped,
			HintURL:    lookup.value(record, "url"),
			HintAuthor: lookup.value(record, "author"),
			HintISBN:   lookup.value(record, "isbn"),
		}
		if year, err := strconv.Atoi(lookup.value(record, "year")); err == nil {
			entry.HintYear = year
		}
		entry.UserRating = parseScore(lookup.value(record, "score"))
		if status, ok := statusMapping[strings.ToLower(lookup.value(record, "status"))]; ok {
			entry.Status = status
		}
		if date := parseNotionDate(lookup.value(record, "date")); date != nil {
			entry.ConsumedAt = date
		}
		report.Entries = append(report.Entries, entry)
	}

	n.logger.Info("export parsed",
		"entries", len(report.Entries), "skipped", len(report.Skipped))
	return report, nil
}

// detectDelimiter peeks at the header line and picks whichever of semicolon
// and comma appears more often.
func detectDelimiter(r *bufio.Reader) (rune, error) {
	peeked, err := r.Peek(4096)
	if len(peeked) == 0 {
		if err != nil && err != io.EOF {
			return 0, err
		}
		return 0, io.ErrUnexpectedEOF
	}
	line := string(peeked)
	if index := strings.IndexByte(line, '\n'); index >= 0 {
		line = line[:index]
	}
	if strings.Count(line, ";") > strings.Count(line, ",") {
		return ';', nil
	}
	return ',', nil
}

type headerLookup struct {
	columns map[string]int
}

func newHeaderLookup(header []string) headerLookup {
	lookup := headerLookup{columns: make(map[string]int)}
	normalized := make([]string, len(header))
	for i, name := range header {
		normalized[i] = strings.ToLower(strings.TrimSpace(name))
	}
	for field, synonyms := range headerSynonyms {
		// Exact matches win over substring matches so "date" does not bind
		// to "date added" when a plain "date" column exists.
		for _, synonym := range synonyms {
			for i, name := range normalized {
				if name == synonym {
					lookup.columns[field] = i
				}
			}
			if _, ok := lookup.columns[field]; ok {
				break
			}
		}
		if _, ok := lookup.columns[field]; ok {
			continue
		}
		for _, synonym := range synonyms {
			for i, name := range normalized {
				if strings.Contains(name, synonym) {
					lookup.columns[field] = i
					break
				}
			}
			if _, ok := lookup.columns[field]; ok {
				break
			}
		}
	}
	return lookup
}

func (l headerLookup) has(field string) bool {
	_, ok := l.columns[field]
	return ok
}

func (l headerLookup) value(record []string, field string) string {
	index, ok := l.columns[field]
	if !ok || index >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[index])
}

// parseScore normalizes ratings onto the half-star 0.5-5 scale. Exports
// write "8/10", a bare 0-5 star value, or a 0-10 number.
func parseScore(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if slash := strings.Index(raw, "/"); slash >= 0 {
		numerator, err1 := strconv.ParseFloat(strings.TrimSpace(raw[:slash]), 64)
		denominator, err2 := strconv.ParseFloat(strings.TrimSpace(raw[slash+1:]), 64)
		if err1 != nil || err2 != nil || denominator == 0 {
			return 0
		}
		return media.ClampRating(numerator / denominator * 5)
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
	if err != nil {
		return 0
	}
	if value > 5 {
		// A 0-10 score collapses onto the 5-point scale.
		value /= 2
	}
	return media.ClampRating(value)
}

func parseNotionDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range notionDateLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			parsed = parsed.UTC()
			return &parsed
		}
	}
	return nil
}
