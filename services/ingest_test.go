package services

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"orbix-worker/models"
	"orbix-worker/providers"
)

func createSource(t *testing.T, svc *IngestService, name, sourceType string, lastFetched *time.Time) *models.Source {
	t.Helper()
	source := models.Source{
		Name:            name,
		Type:            sourceType,
		URL:             "https://example.com/feed",
		IntervalMinutes: 30,
		Enabled:         true,
		LastFetchedAt:   lastFetched,
	}
	require.NoError(t, svc.DB.Create(&source).Error)
	return &source
}

func TestIngestIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	fetcher := &fakeFetcher{
		sourceType: models.SourceTypeRSS,
		candidates: []providers.Candidate{
			{URL: "https://example.com/a", Title: "Story A", Snippet: "first", PublishedAt: time.Now()},
			{URL: "https://example.com/b", Title: "Story B", Snippet: "second", PublishedAt: time.Now()},
		},
	}
	svc := NewIngestService(testConfig(), db, zap.NewNop(),
		map[string]providers.Fetcher{models.SourceTypeRSS: fetcher})
	createSource(t, svc, "Example", models.SourceTypeRSS, nil)

	count, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Quelle wieder fällig machen und dieselben Kandidaten erneut holen.
	require.NoError(t, db.Model(&models.Source{}).Where("1 = 1").Update("last_fetched_at", nil).Error)
	count, err = svc.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)

	var total int64
	require.NoError(t, db.Model(&models.RawItem{}).Count(&total).Error)
	assert.EqualValues(t, 2, total)
}

func TestIngestSkipsSourcesNotDue(t *testing.T) {
	db := newTestDB(t)
	fetcher := &fakeFetcher{sourceType: models.SourceTypeRSS}
	svc := NewIngestService(testConfig(), db, zap.NewNop(),
		map[string]providers.Fetcher{models.SourceTypeRSS: fetcher})

	recent := time.Now().Add(-5 * time.Minute)
	createSource(t, svc, "Recently fetched", models.SourceTypeRSS, &recent)

	_, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, fetcher.calls)
}

func TestIngestFailingSourceDoesNotBlockOthers(t *testing.T) {
	db := newTestDB(t)
	okFetcher := &fakeFetcher{
		sourceType: models.SourceTypeRSS,
		candidates: []providers.Candidate{
			{URL: "https://example.com/ok", Title: "Working source", PublishedAt: time.Now()},
		},
	}
	badFetcher := &fakeFetcher{
		sourceType: models.SourceTypeHTML,
		err:        &providers.FetchError{Source: "Broken", Err: assert.AnError},
	}
	svc := NewIngestService(testConfig(), db, zap.NewNop(), map[string]providers.Fetcher{
		models.SourceTypeRSS:  okFetcher,
		models.SourceTypeHTML: badFetcher,
	})
	createSource(t, svc, "Working", models.SourceTypeRSS, nil)
	broken := createSource(t, svc, "Broken", models.SourceTypeHTML, nil)

	count, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Die fehlgeschlagene Quelle bleibt fällig für den nächsten Tick.
	var got models.Source
	require.NoError(t, db.First(&got, broken.ID).Error)
	assert.Nil(t, got.LastFetchedAt)
}

func TestIngestUpdatesLastFetchedAt(t *testing.T) {
	db := newTestDB(t)
	fetcher := &fakeFetcher{sourceType: models.SourceTypeRSS}
	svc := NewIngestService(testConfig(), db, zap.NewNop(),
		map[string]providers.Fetcher{models.SourceTypeRSS: fetcher})
	source := createSource(t, svc, "Example", models.SourceTypeRSS, nil)

	_, err := svc.Run(context.Background())
	require.NoError(t, err)

	var got models.Source
	require.NoError(t, db.First(&got, source.ID).Error)
	require.NotNil(t, got.LastFetchedAt)
	assert.False(t, got.Due(time.Now()))
}

func TestIngestTruncatesSnippetOnRuneBoundary(t *testing.T) {
	db := newTestDB(t)
	// Das Euro-Zeichen (3 Bytes) liegt genau über der 1000-Byte-Grenze;
	// ein Byte-Schnitt würde ungültiges UTF-8 speichern und der
	// Postgres-Insert würde dauerhaft fehlschlagen.
	snippet := strings.Repeat("a", maxSnippetLength-1) + "€" + strings.Repeat("b", 50)
	fetcher := &fakeFetcher{
		sourceType: models.SourceTypeRSS,
		candidates: []providers.Candidate{
			{URL: "https://example.com/long", Title: "Long snippet", Snippet: snippet, PublishedAt: time.Now()},
		},
	}
	svc := NewIngestService(testConfig(), db, zap.NewNop(),
		map[string]providers.Fetcher{models.SourceTypeRSS: fetcher})
	createSource(t, svc, "Example", models.SourceTypeRSS, nil)

	count, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, count)

	var item models.RawItem
	require.NoError(t, db.First(&item).Error)
	assert.True(t, utf8.ValidString(item.Snippet))
	assert.LessOrEqual(t, len(item.Snippet), maxSnippetLength)
	assert.Equal(t, strings.Repeat("a", maxSnippetLength-1), item.Snippet)
}

func TestCandidateHashIsStable(t *testing.T) {
	first := candidateHash("https://example.com/a", "Title")
	second := candidateHash("https://example.com/a", "Title")
	other := candidateHash("https://example.com/a", "Other title")

	assert.Equal(t, first, second)
	assert.NotEqual(t, first, other)
	assert.Len(t, first, 64)
}
