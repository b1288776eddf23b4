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

type googleVolume struct {
	VolumeInfo struct {
		Title               string   `json:"title"`
		Authors             []string `json:"authors"`
		Publisher           string   `json:"publisher"`
		PublishedDate       string   `json:"publishedDate"`
		Description         string   `json:"description"`
		PageCount           int      `json:"pageCount"`
		Language            string   `json:"language"`
		Categories          []string `json:"categories"`
		ImageLinks          struct {
			Thumbnail string `json:"thumbnail"`
		} `json:"imageLinks"`
		IndustryIdentifiers []struct {
			Type       string `json:"type"`
			Identifier string `json:"identifier"`
		} `json:"industryIdentifiers"`
	} `json:"volumeInfo"`
}

type googleResponse struct {
	TotalItems int            `json:"totalItems"`
	Items      []googleVolume `json:"items"`
}

// GoogleClient queries the Google Books volumes API.
type GoogleClient struct {
	baseURL string
	apiKey  string
	doer    *httpx.Doer
}

// NewGoogle builds a Google Books client. The API key is optional; unkeyed
// requests share a tighter quota.
func NewGoogle(baseURL, apiKey string, limiter *ratelimit.Limiter, logger *slog.Logger, opts ...httpx.Option) (*GoogleClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("google books base url required")
	}
	return &GoogleClient{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		doer:    httpx.New(string(media.SourceGoogleBooks), 10*time.Second, limiter, logger, opts...),
	}, nil
}

// SearchByISBN looks up one book by identifier. Returns nil when the catalog
// has no record.
func (c *GoogleClient) SearchByISBN(ctx context.Context, isbn string) (*media.Candidate, error) {
	isbn = normalize.ISBN(isbn)
	if isbn == "" {
		return nil, errors.New("invalid isbn")
	}
	results, err := c.query(ctx, "isbn:"+isbn, 1)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	candidate := results[0]
	if candidate.ExternalID == "" {
		candidate.ExternalID = isbn
	}
	return &candidate, nil
}

// SearchByQuery runs a free-text search, optionally scoped to an author.
func (c *GoogleClient) SearchByQuery(ctx context.Context, title, author string) ([]media.Candidate, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errors.New("title must not be empty")
	}
	query := "intitle:" + title
	if author = strings.TrimSpace(author); author != "" {
		query += "+inauthor:" + author
	}
	return c.query(ctx, query, 10)
}

func (c *GoogleClient) query(ctx context.Context, q string, limit int) ([]media.Candidate, error) {
	params := url.Values{}
	params.Set("q", q)
	params.Set("maxResults", strconv.Itoa(limit))
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}

	var payload googleResponse
	endpoint := fmt.Sprintf("%s/volumes?%s", c.baseURL, params.Encode())
	if err := c.doer.GetJSON(ctx, endpoint, nil, &payload); err != nil {
		return nil, err
	}

	candidates := make([]media.Candidate, 0, len(payload.Items))
	for _, item := range payload.Items {
		info := item.VolumeInfo
		if strings.TrimSpace(info.Title) == "" {
			continue
		}
		candidate := media.Candidate{
			Source:      media.SourceGoogleBooks,
			Type:        media.TypeBook,
			Title:       info.Title,
			Authors:     info.Authors,
			Publisher:   info.Publisher,
			Description: info.Description,
			PageCount:   info.PageCount,
			Language:    info.Language,
			Genres:      info.Categories,
		}
		if len(info.PublishedDate) >= 4 {
			if year, err := strconv.Atoi(info.PublishedDate[:4]); err == nil {
				candidate.Year = year
			}
		}
		// Thumbnails come back over plain HTTP.
		candidate.CoverURL = strings.Replace(info.ImageLinks.Thumbnail, "http://", "https://", 1)
		for _, ident := range info.IndustryIdentifiers {
			if ident.Type == "ISBN_13" {
				candidate.ExternalID = ident.Identifier
				break
			}
			if ident.Type == "ISBN_10" && candidate.ExternalID == "" {
				candidate.ExternalID = ident.Identifier
			}
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}
