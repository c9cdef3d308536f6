package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"orbix-worker/collab"
	"orbix-worker/config"
	"orbix-worker/models"
	"orbix-worker/platforms"
	"orbix-worker/providers"
	"orbix-worker/renderer"
	"orbix-worker/settings"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Eine Verbindung, damit :memory: geteilt bleibt und parallele
	// Transaktionen serialisiert werden.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Source{}, &models.RawItem{}, &models.Story{}, &models.Script{},
		&models.ReviewQueueEntry{}, &models.Render{}, &models.Publish{},
		&models.PublishCounter{}, &models.DailyAnalytics{}, &models.Setting{},
	))
	return db
}

func newTestStore(t *testing.T, db *gorm.DB) *settings.Store {
	t.Helper()
	store := settings.NewStore(db, zap.NewNop())
	require.NoError(t, store.Seed())
	return store
}

func testConfig() *config.Config {
	return &config.Config{
		MaxGenerationAttempts: 3,
		MaxRenderAttempts:     3,
		MaxPublishAttempts:    5,
	}
}

func putSetting(t *testing.T, store *settings.Store, key, value string) {
	t.Helper()
	require.NoError(t, store.Put(key, []byte(value)))
}

// --- Fakes für die Collaborator-Interfaces ---

type fakeFetcher struct {
	sourceType string
	candidates []providers.Candidate
	err        error
	mu         sync.Mutex
	calls      int
}

func (f *fakeFetcher) Fetch(ctx context.Context, source *models.Source) ([]providers.Candidate, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.candidates, nil
}

func (f *fakeFetcher) Type() string { return f.sourceType }

type fakeScoringModel struct {
	verdict *collab.Verdict
	err     error
}

func (f *fakeScoringModel) Score(ctx context.Context, title, snippet string) (*collab.Verdict, error) {
	if f.err != nil {
		return nil, f.err
	}
	v := *f.verdict
	return &v, nil
}

type fakeScriptModel struct {
	draft *collab.ScriptDraft
	err   error
}

func (f *fakeScriptModel) Generate(ctx context.Context, title, snippet, category string, shockScore int) (*collab.ScriptDraft, error) {
	if f.err != nil {
		return nil, f.err
	}
	d := *f.draft
	return &d, nil
}

type fakeRenderer struct {
	err   error
	mu    sync.Mutex
	calls int
}

func (f *fakeRenderer) Render(ctx context.Context, job renderer.Job) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("https://cdn.example.com/renders/%d.mp4", job.RenderID), nil
}

type fakePlatform struct {
	name    string
	err     error
	metrics *platforms.Metrics
	mu      sync.Mutex
	calls   int
}

func (f *fakePlatform) Name() string { return f.name }

func (f *fakePlatform) Publish(ctx context.Context, job platforms.Job) (string, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("video-%d", n), nil
}

func (f *fakePlatform) FetchMetrics(ctx context.Context, platformVideoID string) (*platforms.Metrics, error) {
	if f.metrics == nil {
		return nil, errors.New("no metrics")
	}
	m := *f.metrics
	return &m, nil
}

// --- Fixture-Bauer ---

func createStory(t *testing.T, db *gorm.DB, status string) *models.Story {
	t.Helper()
	item := models.RawItem{
		SourceID:    1,
		Hash:        fmt.Sprintf("hash-%d", time.Now().UnixNano()),
		URL:         "https://example.com/story",
		Title:       "Regulator halts rollout overnight",
		Snippet:     "A sweeping decision caught the industry off guard.",
		PublishedAt: time.Now(),
		Status:      models.RawItemStatusProcessed,
	}
	require.NoError(t, db.Create(&item).Error)

	story := models.Story{
		RawItemID:  item.ID,
		Category:   "Money & Market Shock",
		ShockScore: 80,
		Status:     status,
	}
	require.NoError(t, db.Create(&story).Error)
	return &story
}

func createScript(t *testing.T, db *gorm.DB, storyID uint) *models.Script {
	t.Helper()
	script := models.Script{
		StoryID:               storyID,
		Hook:                  "The rollout stopped overnight",
		WhatHappened:          "A regulator ordered the rollout paused.",
		WhyItMatters:          "Thousands of deployments now sit idle.",
		WhatHappensNext:       "A review is expected within weeks.",
		CTALine:               "Follow for the outcome.",
		DurationTargetSeconds: 35,
	}
	require.NoError(t, db.Create(&script).Error)
	return &script
}

func createPendingReview(t *testing.T, db *gorm.DB, enqueuedAt time.Time) (*models.Story, *models.ReviewQueueEntry) {
	t.Helper()
	story := createStory(t, db, models.StoryStatusPendingReview)
	script := createScript(t, db, story.ID)
	entry := models.ReviewQueueEntry{
		StoryID:    story.ID,
		ScriptID:   script.ID,
		Status:     models.ReviewStatusPending,
		EnqueuedAt: enqueuedAt,
	}
	require.NoError(t, db.Create(&entry).Error)
	return story, &entry
}

func createCompletedRender(t *testing.T, db *gorm.DB, storyID, scriptID uint) *models.Render {
	t.Helper()
	active := true
	render := models.Render{
		StoryID:        storyID,
		ScriptID:       scriptID,
		Active:         &active,
		Template:       "A",
		BackgroundType: models.BackgroundStill,
		BackgroundID:   "bg_still_1.jpg",
		Status:         models.RenderStatusCompleted,
		OutputURL:      "https://cdn.example.com/renders/test.mp4",
	}
	require.NoError(t, db.Create(&render).Error)
	return &render
}
