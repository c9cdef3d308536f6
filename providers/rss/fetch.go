package rss

import (
	"context"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"orbix-worker/models"
	"orbix-worker/providers"
)

// Fetcher liest RSS/Atom-Feeds über gofeed.
type Fetcher struct {
	parser *gofeed.Parser
	logger *zap.Logger
}

// NewFetcher erstellt einen RSS-Fetcher.
func NewFetcher(logger *zap.Logger) *Fetcher {
	parser := gofeed.NewParser()
	parser.UserAgent = "Mozilla/5.0 (compatible; OrbixBot/1.0)"
	return &Fetcher{parser: parser, logger: logger}
}

// Type gibt den bedienten Quelltyp zurück.
func (f *Fetcher) Type() string { return models.SourceTypeRSS }

// Fetch holt die 20 aktuellsten Feed-Einträge einer Quelle.
func (f *Fetcher) Fetch(ctx context.Context, source *models.Source) ([]providers.Candidate, error) {
	feed, err := f.parser.ParseURLWithContext(source.URL, ctx)
	if err != nil {
		return nil, &providers.FetchError{Source: source.Name, Err: err}
	}
	f.logger.Debug("Parsed RSS feed", zap.String("source", source.Name), zap.Int("entries", len(feed.Items)))

	limit := len(feed.Items)
	if limit > providers.MaxCandidatesPerFetch {
		limit = providers.MaxCandidatesPerFetch
	}

	candidates := make([]providers.Candidate, 0, limit)
	for _, item := range feed.Items[:limit] {
		if item.Link == "" || item.Title == "" {
			continue
		}

		publishedAt := time.Now().UTC()
		if item.PublishedParsed != nil {
			publishedAt = item.PublishedParsed.UTC()
		} else if item.UpdatedParsed != nil {
			publishedAt = item.UpdatedParsed.UTC()
		}

		snippet := item.Description
		if snippet == "" {
			snippet = item.Content
		}

		candidates = append(candidates, providers.Candidate{
			URL:         item.Link,
			Title:       item.Title,
			Snippet:     snippet,
			PublishedAt: publishedAt,
		})
	}
	return candidates, nil
}
