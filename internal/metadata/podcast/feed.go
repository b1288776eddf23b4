package podcast

import (
	"context"
	"encoding/xml"
	"html"
	"strconv"
	"strings"

	"yaad/internal/media"
	"yaad/internal/services"
)

// rssFeed maps the subset of a podcast feed the client reads. Namespaced
// itunes tags match by local name, which encoding/xml does by default.
type rssFeed struct {
	Channel struct {
		Title  string `xml:"title"`
		Author string `xml:"author"`
		Image  struct {
			Href string `xml:"href,attr"`
			URL  string `xml:"url"`
		} `xml:"image"`
		Items []feedItem `xml:"item"`
	} `xml:"channel"`
}

type feedItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	Summary     string `xml:"summary"`
	Duration    string `xml:"duration"`
	PubDate     string `xml:"pubDate"`
	Enclosure   struct {
		URL string `xml:"url,attr"`
	} `xml:"enclosure"`
}

// fromFeed fetches an RSS feed and maps its newest item to a candidate.
func (c *Client) fromFeed(ctx context.Context, feedURL string) (*media.Candidate, error) {
	body, err := c.doer.Get(ctx, feedURL, nil)
	if err != nil {
		return nil, err
	}
	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, services.Wrap(services.ErrUpstream, "podcast", "feed", "malformed feed", err)
	}
	if len(feed.Channel.Items) == 0 {
		return nil, services.Wrap(services.ErrNotFound, "podcast", "feed", "feed has no episodes", nil)
	}
	item := feed.Channel.Items[0]

	externalID := item.Link
	if externalID == "" {
		externalID = item.Enclosure.URL
	}
	if externalID == "" {
		externalID = feedURL + "#" + item.Title
	}

	description := item.Description
	if description == "" {
		description = item.Summary
	}

	candidate := &media.Candidate{
		Source:          media.SourceRSS,
		Type:            media.TypePodcast,
		ExternalID:      externalID,
		Title:           html.UnescapeString(strings.TrimSpace(item.Title)),
		Description:     html.UnescapeString(strings.TrimSpace(description)),
		Year:            yearFrom(item.PubDate),
		CoverURL:        firstNonEmpty(feed.Channel.Image.Href, feed.Channel.Image.URL),
		DurationMinutes: parseDuration(item.Duration),
	}
	if author := firstNonEmpty(feed.Channel.Author, feed.Channel.Title); author != "" {
		candidate.Authors = []string{author}
	}
	return candidate, nil
}

// parseDuration reads the itunes:duration formats in the wild, HH:MM:SS,
// MM:SS, or plain seconds, and returns whole minutes with half-minute
// rounding.
func parseDuration(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	parts := strings.Split(raw, ":")
	seconds := 0
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return 0
		}
		seconds = seconds*60 + n
	}
	if seconds <= 0 {
		return 0
	}
	minutes := (seconds + 30) / 60
	if minutes == 0 {
		minutes = 1
	}
	return minutes
}
