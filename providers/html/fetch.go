package html

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"orbix-worker/models"
	"orbix-worker/providers"
)

// Fetcher scrapt Artikel-Listen von HTML-Seiten über gängige
// article/post-Container-Muster.
type Fetcher struct {
	client *http.Client
	logger *zap.Logger
}

// NewFetcher erstellt einen HTML-Fetcher.
func NewFetcher(logger *zap.Logger) *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

// Type gibt den bedienten Quelltyp zurück.
func (f *Fetcher) Type() string { return models.SourceTypeHTML }

// Fetch lädt die Seite und extrahiert bis zu 20 Artikel-Kandidaten.
func (f *Fetcher) Fetch(ctx context.Context, source *models.Source) ([]providers.Candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.URL, nil)
	if err != nil {
		return nil, &providers.FetchError{Source: source.Name, Err: err}
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; OrbixBot/1.0)")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &providers.FetchError{Source: source.Name, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &providers.FetchError{Source: source.Name, Err: fmt.Errorf("bad status: %s", resp.Status)}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &providers.FetchError{Source: source.Name, Err: err}
	}

	base, err := url.Parse(source.URL)
	if err != nil {
		return nil, &providers.FetchError{Source: source.Name, Err: err}
	}

	var candidates []providers.Candidate
	doc.Find("article, div[class*=article], div[class*=post]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if len(candidates) >= providers.MaxCandidatesPerFetch {
			return false
		}

		titleSel := sel.Find("h1, h2, h3, a").First()
		title := strings.TrimSpace(titleSel.Text())
		if title == "" {
			return true
		}

		href, _ := sel.Find("a[href]").First().Attr("href")
		link := resolveURL(base, href)
		if link == "" {
			link = source.URL
		}

		snippet := strings.TrimSpace(sel.Find("p, [class*=summary], [class*=excerpt]").First().Text())
		snippet = providers.TruncateUTF8(snippet, 500)

		publishedAt := time.Now().UTC()
		if datetime, ok := sel.Find("time[datetime]").First().Attr("datetime"); ok {
			if t, err := time.Parse(time.RFC3339, datetime); err == nil {
				publishedAt = t.UTC()
			}
		}

		candidates = append(candidates, providers.Candidate{
			URL:         link,
			Title:       title,
			Snippet:     snippet,
			PublishedAt: publishedAt,
		})
		return true
	})

	f.logger.Debug("Scraped HTML source", zap.String("source", source.Name), zap.Int("candidates", len(candidates)))
	return candidates, nil
}

// resolveURL macht aus relativen Links absolute.
func resolveURL(base *url.URL, href string) string {
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
