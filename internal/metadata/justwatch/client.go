package justwatch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"yaad/internal/cache"
	"yaad/internal/logging"
	"yaad/internal/media"
	"yaad/internal/metadata/httpx"
	"yaad/internal/ratelimit"
)

// The GraphQL API is unofficial and undocumented. Queries mirror what the
// justwatch.com frontend itself sends.
const (
	searchQuery = `query GetSearchTitles($searchTitlesFilter: TitleFilter!, $country: Country!, $language: Language!, $first: Int!) {
  popularTitles(country: $country, filter: $searchTitlesFilter, first: $first) {
    edges {
      node {
        objectType
        content(country: $country, language: $language) {
          title
          fullPath
          originalReleaseYear
          externalIds {
            tmdbId
          }
        }
      }
    }
  }
}`

	offersQuery = `query GetUrlTitleDetails($fullPath: String!, $country: Country!) {
  urlV2(fullPath: $fullPath) {
    node {
      ... on MovieOrShowOrSeason {
        offers(country: $country, platform: WEB) {
          monetizationType
          standardWebURL
          package {
            clearName
            packageId
          }
        }
      }
    }
  }
}`
)

// packageToProvider maps JustWatch package IDs onto TMDB watch-provider IDs,
// which is the numbering the rest of the pipeline stores. Unlisted packages
// pass through unchanged.
var packageToProvider = map[int]int{
	8:    8,    // Netflix
	9:    119,  // Amazon Prime Video
	10:   10,   // Amazon Video rent/buy
	1024: 119,  // Amazon Prime Video alt
	337:  337,  // Disney Plus
	390:  337,  // Disney Plus alt
	381:  381,  // Canal+
	350:  350,  // Apple TV+
	2:    2,    // Apple iTunes
	56:   56,   // OCS
	531:  531,  // Paramount+
	582:  531,  // Paramount+ alt
	283:  283,  // Crunchyroll
	415:  415,  // ADN
	236:  236,  // France TV
	234:  234,  // Arte
	1899: 1899, // Max
	1825: 1899, // Max alt
	15:   15,   // Hulu
	386:  386,  // Peacock
	3:    3,    // Google Play Movies
	192:  192,  // YouTube
	188:  192,  // YouTube Premium
	1967: 1967, // Molotov TV
	11:   11,   // Mubi
	175:  175,  // Netflix Kids
	300:  300,  // Pluto TV
}

var countryLanguages = map[string]string{
	"FR": "fr", "US": "en", "GB": "en", "DE": "de", "ES": "es",
	"IT": "it", "CA": "en", "AU": "en", "JP": "ja", "BR": "pt",
	"BE": "fr", "CH": "fr", "NL": "nl",
}

// Offer is one streaming deep link for a provider.
type Offer struct {
	URL              string
	MonetizationType string
	ProviderName     string
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type searchResponse struct {
	Data struct {
		PopularTitles struct {
			Edges []struct {
				Node struct {
					Content struct {
						Title               string `json:"title"`
						FullPath            string `json:"fullPath"`
						OriginalReleaseYear int    `json:"originalReleaseYear"`
						ExternalIDs         struct {
							// The API has served this as both a number and a
							// string across schema revisions.
							TMDBID json.Number `json:"tmdbId"`
						} `json:"externalIds"`
					} `json:"content"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"popularTitles"`
	} `json:"data"`
}

type offersResponse struct {
	Data struct {
		URLV2 struct {
			Node struct {
				Offers []struct {
					MonetizationType string `json:"monetizationType"`
					StandardWebURL   string `json:"standardWebURL"`
					Package          struct {
						ClearName string `json:"clearName"`
						PackageID int    `json:"packageId"`
					} `json:"package"`
				} `json:"offers"`
			} `json:"node"`
		} `json:"urlV2"`
	} `json:"data"`
}

// Client fetches streaming deep links. Enrichment is strictly additive, so
// every failure surfaces as an empty offer map rather than an error.
type Client struct {
	baseURL string
	country string
	doer    *httpx.Doer
	cache   *cache.Cache
	logger  *slog.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithCache attaches a shared cache for resolved paths and offers.
func WithCache(shared *cache.Cache) Option {
	return func(c *Client) {
		c.cache = shared
	}
}

// WithDoer replaces the HTTP layer, mainly for tests.
func WithDoer(doer *httpx.Doer) Option {
	return func(c *Client) {
		c.doer = doer
	}
}

// New builds a JustWatch client for one country.
func New(baseURL, country string, limiter *ratelimit.Limiter, logger *slog.Logger, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("justwatch base url required")
	}
	country = strings.ToUpper(strings.TrimSpace(country))
	if country == "" {
		country = "FR"
	}
	client := &Client{
		baseURL: baseURL,
		country: country,
		logger:  logging.NewComponentLogger(logger, "justwatch"),
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.doer == nil {
		client.doer = httpx.New(string(media.SourceJustWatch), 10*time.Second, limiter, logger)
	}
	return client, nil
}

// OffersFor returns provider-keyed streaming offers for a reconciled TMDB
// title. Title and year sharpen the lookup when the ID alone does not match.
// Any failure, including the catalog not knowing the title, yields an empty
// map.
func (c *Client) OffersFor(ctx context.Context, tmdbID int, kind media.Type, title string, year int) map[int]Offer {
	if tmdbID <= 0 || (kind != media.TypeFilm && kind != media.TypeSeries) {
		return nil
	}

	cacheKey := strconv.Itoa(tmdbID) + "|" + string(kind) + "|" + c.country
	if cached, ok := c.cache.Get("justwatch_offers", cacheKey); ok {
		if offers, ok := cached.(map[int]Offer); ok {
			return offers
		}
	}

	fullPath := c.titlePath(ctx, tmdbID, kind, title, year)
	if fullPath == "" {
		return nil
	}

	var payload offersResponse
	err := c.doer.PostJSON(ctx, c.baseURL+"/graphql", nil, graphqlRequest{
		Query: offersQuery,
		Variables: map[string]any{
			"fullPath": fullPath,
			"country":  c.country,
		},
	}, &payload)
	if err != nil {
		c.logger.Debug("offer lookup failed",
			logging.String("path", fullPath),
			logging.Error(err))
		return nil
	}

	offers := parseOffers(payload)
	if len(offers) > 0 {
		c.cache.Set("justwatch_offers", cacheKey, offers, cache.TTLLong)
	}
	return offers
}

// titlePath resolves the catalog's URL path for a TMDB title. The search is
// tried by TMDB ID first, then by title, accepting a candidate whose TMDB ID
// matches or, failing that, whose release year does.
func (c *Client) titlePath(ctx context.Context, tmdbID int, kind media.Type, title string, year int) string {
	cacheKey := strconv.Itoa(tmdbID) + "|" + string(kind) + "|" + c.country
	if cached, ok := c.cache.Get("justwatch_path", cacheKey); ok {
		if path, ok := cached.(string); ok {
			return path
		}
	}

	objectType := "MOVIE"
	if kind == media.TypeSeries {
		objectType = "SHOW"
	}
	language, ok := countryLanguages[c.country]
	if !ok {
		language = "en"
	}

	queries := []string{strconv.Itoa(tmdbID)}
	if strings.TrimSpace(title) != "" {
		queries = append(queries, title)
	}

	for _, query := range queries {
		var payload searchResponse
		err := c.doer.PostJSON(ctx, c.baseURL+"/graphql", nil, graphqlRequest{
			Query: searchQuery,
			Variables: map[string]any{
				"searchTitlesFilter": map[string]any{
					"objectTypes": []string{objectType},
					"searchQuery": query,
				},
				"country":  c.country,
				"language": language,
				"first":    10,
			},
		}, &payload)
		if err != nil {
			c.logger.Debug("title search failed",
				logging.Int("tmdb_id", tmdbID),
				logging.Error(err))
			return ""
		}

		for _, edge := range payload.Data.PopularTitles.Edges {
			content := edge.Node.Content
			if content.FullPath == "" {
				continue
			}
			idMatch := content.ExternalIDs.TMDBID.String() == strconv.Itoa(tmdbID)
			yearMatch := year > 0 && content.OriginalReleaseYear == year
			if idMatch || yearMatch {
				c.cache.Set("justwatch_path", cacheKey, content.FullPath, cache.TTLLong)
				return content.FullPath
			}
		}
	}
	return ""
}

// parseOffers flattens the offer list into one entry per provider. When a
// provider appears with several monetization types, flatrate wins.
func parseOffers(payload offersResponse) map[int]Offer {
	offers := make(map[int]Offer)
	for _, raw := range payload.Data.URLV2.Node.Offers {
		if raw.StandardWebURL == "" || raw.Package.PackageID == 0 {
			continue
		}
		providerID, ok := packageToProvider[raw.Package.PackageID]
		if !ok {
			providerID = raw.Package.PackageID
		}
		monetization := strings.ToLower(raw.MonetizationType)
		if existing, dup := offers[providerID]; dup {
			if existing.MonetizationType == "flatrate" || monetization != "flatrate" {
				continue
			}
		}
		offers[providerID] = Offer{
			URL:              raw.StandardWebURL,
			MonetizationType: monetization,
			ProviderName:     raw.Package.ClearName,
		}
	}
	return offers
}
