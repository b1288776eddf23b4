package books

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"yaad/internal/media"
	"yaad/internal/metadata/httpx"
	"yaad/internal/normalize"
	"yaad/internal/ratelimit"
)

type openLibraryEdition struct {
	Title   string `json:"title"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
	Publishers []struct {
		Name string `json:"name"`
	} `json:"publishers"`
	PublishDate   string `json:"publish_date"`
	NumberOfPages int    `json:"number_of_pages"`
	Cover         struct {
		Large  string `json:"large"`
		Medium string `json:"medium"`
	} `json:"cover"`
	Excerpts []struct {
		Text string `json:"text"`
	} `json:"excerpts"`
}

type openLibrarySearch struct {
	Docs []struct {
		Title            string   `json:"title"`
		AuthorName       []string `json:"author_name"`
		FirstPublishYear int      `json:"first_publish_year"`
		ISBN             []string `json:"isbn"`
		CoverID          int64    `json:"cover_i"`
		PagesMedian      int      `json:"number_of_pages_median"`
		Publisher        []string `json:"publisher"`
		Language         []string `json:"language"`
	} `json:"docs"`
}

// OpenLibraryClient queries the Open Library books and search APIs.
type OpenLibraryClient struct {
	baseURL string
	doer    *httpx.Doer
}

// NewOpenLibrary builds an Open Library client.
func NewOpenLibrary(baseURL string, limiter *ratelimit.Limiter, logger *slog.Logger, opts ...httpx.Option) (*OpenLibraryClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("open library base url required")
	}
	return &OpenLibraryClient{
		baseURL: baseURL,
		doer:    httpx.New(string(media.SourceOpenLibrary), 10*time.Second, limiter, logger, opts...),
	}, nil
}

// SearchByISBN looks up an edition by identifier. Returns nil when the
// catalog has no record.
func (c *OpenLibraryClient) SearchByISBN(ctx context.Context, isbn string) (*media.Candidate, error) {
	isbn = normalize.ISBN(isbn)
	if isbn == "" {
		return nil, errors.New("invalid isbn")
	}

	bibkey := "ISBN:" + isbn
	params := url.Values{}
	params.Set("bibkeys", bibkey)
	params.Set("format", "json")
	params.Set("jscmd", "data")

	payload := map[string]openLibraryEdition{}
	endpoint := fmt.Sprintf("%s/api/books?%s", c.baseURL, params.Encode())
	if err := c.doer.GetJSON(ctx, endpoint, nil, &payload); err != nil {
		return nil, err
	}

	edition, ok := payload[bibkey]
	if !ok || strings.TrimSpace(edition.Title) == "" {
		return nil, nil
	}

	candidate := media.Candidate{
		Source:     media.SourceOpenLibrary,
		Type:       media.TypeBook,
		ExternalID: isbn,
		Title:      edition.Title,
		PageCount:  edition.NumberOfPages,
	}
	for _, author := range edition.Authors {
		if author.Name != "" {
			candidate.Authors = append(candidate.Authors, author.Name)
		}
	}
	for _, publisher := range edition.Publishers {
		if publisher.Name != "" {
			candidate.Publisher = publisher.Name
			break
		}
	}
	if year := trailingYear(edition.PublishDate); year > 0 {
		candidate.Year = year
	}
	if edition.Cover.Large != "" {
		candidate.CoverURL = edition.Cover.Large
	} else {
		candidate.CoverURL = edition.Cover.Medium
	}
	if len(edition.Excerpts) > 0 {
		candidate.Description = strings.TrimSpace(edition.Excerpts[0].Text)
	}
	return &candidate, nil
}

// SearchByQuery runs a free-text search over the catalog.
func (c *OpenLibraryClient) SearchByQuery(ctx context.Context, title, author string) ([]media.Candidate, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errors.New("title must not be empty")
	}

	params := url.Values{}
	query := title
	if author = strings.TrimSpace(author); author != "" {
		query += " " + author
	}
	params.Set("q", query)
	params.Set("limit", "10")

	var payload openLibrarySearch
	endpoint := fmt.Sprintf("%s/search.json?%s", c.baseURL, params.Encode())
	if err := c.doer.GetJSON(ctx, endpoint, nil, &payload); err != nil {
		return nil, err
	}

	candidates := make([]media.Candidate, 0, len(payload.Docs))
	for _, doc := range payload.Docs {
		if strings.TrimSpace(doc.Title) == "" {
			continue
		}
		candidate := media.Candidate{
			Source:    media.SourceOpenLibrary,
			Type:      media.TypeBook,
			Title:     doc.Title,
			Authors:   doc.AuthorName,
			Year:      doc.FirstPublishYear,
			PageCount: doc.PagesMedian,
		}
		if len(doc.ISBN) > 0 {
			candidate.ExternalID = normalize.ISBN(doc.ISBN[0])
		}
		if len(doc.Publisher) > 0 {
			candidate.Publisher = doc.Publisher[0]
		}
		if len(doc.Language) > 0 {
			candidate.Language = doc.Language[0]
		}
		if doc.CoverID > 0 {
			candidate.CoverURL = fmt.Sprintf("https://covers.openlibrary.org/b/id/%d-L.jpg", doc.CoverID)
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

// trailingYear pulls a 4-digit year out of free-form publish dates such as
// "June 1998" or "1998".
func trailingYear(raw string) int {
	fields := strings.Fields(raw)
	for i := len(fields) - 1; i >= 0; i-- {
		if len(fields[i]) == 4 {
			if year, err := strconv.Atoi(fields[i]); err == nil && year > 1000 {
				return year
			}
		}
	}
	return 0
}
