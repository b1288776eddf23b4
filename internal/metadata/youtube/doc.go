// Package youtube resolves video titles and channels without a Data API key.
// The public oEmbed endpoint answers for most videos; unlisted and
// age-restricted ones fall back to scraping the watch page's title tag.
// Thumbnails use the predictable maxresdefault image URL rather than a
// per-video API call.
package youtube
