package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"orbix-worker/config"
	"orbix-worker/models"
	"orbix-worker/providers"
)

// maxConcurrentFetches begrenzt die parallelen Quellen-Abrufe pro Tick.
const maxConcurrentFetches = 5

// maxSnippetLength begrenzt den gespeicherten Anriss eines Beitrags.
const maxSnippetLength = 1000

// IngestService fragt fällige Quellen ab und legt neue Beiträge als
// RawItems an. Duplikate werden über den Unique-Index (source_id, hash)
// abgefangen; der Hash ist sha256 über URL und Titel.
type IngestService struct {
	Config   *config.Config
	DB       *gorm.DB
	Logger   *zap.Logger
	Fetchers map[string]providers.Fetcher
}

// NewIngestService erstellt den Ingest-Service mit den registrierten
// Quell-Abholern.
func NewIngestService(cfg *config.Config, db *gorm.DB, logger *zap.Logger, fetchers map[string]providers.Fetcher) *IngestService {
	return &IngestService{Config: cfg, DB: db, Logger: logger, Fetchers: fetchers}
}

// Run holt alle fälligen, aktivierten Quellen parallel ab und gibt die
// Zahl der neu angelegten RawItems zurück. Ein Fehler bei einer Quelle
// blockiert die anderen nicht; die Quelle wird im nächsten Tick erneut
// versucht.
func (s *IngestService) Run(ctx context.Context) (int, error) {
	var sources []models.Source
	if err := s.DB.Where("enabled = ?", true).Find(&sources).Error; err != nil {
		return 0, err
	}

	now := time.Now()
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		newItems int
	)
	sem := make(chan struct{}, maxConcurrentFetches)

	for i := range sources {
		source := sources[i]
		if !source.Due(now) {
			continue
		}
		fetcher, ok := s.Fetchers[source.Type]
		if !ok {
			s.Logger.Warn("No fetcher registered for source type",
				zap.String("source", source.Name), zap.String("type", source.Type))
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			count, err := s.ingestSource(ctx, fetcher, &source)
			if err != nil {
				s.Logger.Error("Failed to ingest source",
					zap.String("source", source.Name), zap.Error(err))
				return
			}
			mu.Lock()
			newItems += count
			mu.Unlock()
		}()
	}
	wg.Wait()

	if newItems > 0 {
		s.Logger.Info("Ingest cycle complete", zap.Int("new_items", newItems))
	}
	return newItems, nil
}

// ingestSource holt eine einzelne Quelle ab, speichert neue Kandidaten und
// aktualisiert last_fetched_at nur bei erfolgreichem Abruf.
func (s *IngestService) ingestSource(ctx context.Context, fetcher providers.Fetcher, source *models.Source) (int, error) {
	candidates, err := fetcher.Fetch(ctx, source)
	if err != nil {
		return 0, err
	}

	newItems := 0
	for _, candidate := range candidates {
		if candidate.URL == "" || candidate.Title == "" {
			continue
		}
		snippet := providers.TruncateUTF8(candidate.Snippet, maxSnippetLength)
		item := models.RawItem{
			SourceID:    source.ID,
			Hash:        candidateHash(candidate.URL, candidate.Title),
			URL:         candidate.URL,
			Title:       candidate.Title,
			Snippet:     snippet,
			PublishedAt: candidate.PublishedAt,
			Status:      models.RawItemStatusNew,
		}
		result := s.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_id"}, {Name: "hash"}},
			DoNothing: true,
		}).Create(&item)
		if result.Error != nil {
			return newItems, result.Error
		}
		if result.RowsAffected > 0 {
			newItems++
		}
	}

	now := time.Now()
	if err := s.DB.Model(source).Update("last_fetched_at", now).Error; err != nil {
		return newItems, err
	}

	s.Logger.Debug("Fetched source",
		zap.String("source", source.Name),
		zap.Int("candidates", len(candidates)),
		zap.Int("new", newItems))
	return newItems, nil
}

// candidateHash bildet den De-Duplizierungs-Hash eines Kandidaten.
func candidateHash(url, title string) string {
	sum := sha256.Sum256([]byte(url + title))
	return hex.EncodeToString(sum[:])
}
