package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"orbix-worker/models"
	"orbix-worker/renderer"
	"orbix-worker/settings"
)

func newRenderService(t *testing.T, r renderer.Collaborator) (*RenderService, *settings.Store) {
	db := newTestDB(t)
	store := newTestStore(t, db)
	return NewRenderService(testConfig(), db, zap.NewNop(), store, r), store
}

func TestRenderCreateSingleActivePerStory(t *testing.T) {
	svc, _ := newRenderService(t, &fakeRenderer{})
	story := createStory(t, svc.DB, models.StoryStatusApproved)
	createScript(t, svc.DB, story.ID)

	created, err := svc.CreateQueued(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	// Ein zweiter Tick findet den aktiven Render und legt nichts an.
	created, err = svc.CreateQueued(context.Background())
	require.NoError(t, err)
	assert.Zero(t, created)

	var renders int64
	require.NoError(t, svc.DB.Model(&models.Render{}).Count(&renders).Error)
	assert.EqualValues(t, 1, renders)
}

func TestRenderTemplateIsDeterministic(t *testing.T) {
	story := &models.Story{Category: "Money & Market Shock"}
	story.ID = 42

	first := selectTemplate(story)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, selectTemplate(story))
	}
	assert.Contains(t, renderTemplates, first)
}

func TestRenderProcessCompletesQueued(t *testing.T) {
	svc, _ := newRenderService(t, &fakeRenderer{})
	story := createStory(t, svc.DB, models.StoryStatusApproved)
	createScript(t, svc.DB, story.ID)

	_, err := svc.CreateQueued(context.Background())
	require.NoError(t, err)

	completed, failed, err := svc.ProcessQueued(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, completed)
	assert.Zero(t, failed)

	var render models.Render
	require.NoError(t, svc.DB.Where("story_id = ?", story.ID).First(&render).Error)
	assert.Equal(t, models.RenderStatusCompleted, render.Status)
	assert.NotEmpty(t, render.OutputURL)
	require.NotNil(t, render.CompletedAt)
	require.NotNil(t, render.Active)
}

func TestRenderFailureFreesActiveSlot(t *testing.T) {
	failing := &fakeRenderer{err: &renderer.RenderError{Log: "boom", Err: assert.AnError}}
	svc, _ := newRenderService(t, failing)
	story := createStory(t, svc.DB, models.StoryStatusApproved)
	createScript(t, svc.DB, story.ID)

	_, err := svc.CreateQueued(context.Background())
	require.NoError(t, err)

	completed, failed, err := svc.ProcessQueued(context.Background())
	require.NoError(t, err)
	assert.Zero(t, completed)
	assert.Equal(t, 1, failed)

	var render models.Render
	require.NoError(t, svc.DB.Where("story_id = ?", story.ID).First(&render).Error)
	assert.Equal(t, models.RenderStatusFailed, render.Status)
	assert.Nil(t, render.Active)
	assert.Equal(t, "boom", render.FfmpegLog)

	// Der nächste Create-Tick darf einen neuen Versuch anlegen.
	created, err := svc.CreateQueued(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, created)
}

func TestRenderBudgetHaltsStory(t *testing.T) {
	failing := &fakeRenderer{err: &renderer.RenderError{Err: assert.AnError}}
	svc, _ := newRenderService(t, failing)
	story := createStory(t, svc.DB, models.StoryStatusApproved)
	createScript(t, svc.DB, story.ID)

	for i := 0; i < svc.Config.MaxRenderAttempts; i++ {
		created, err := svc.CreateQueued(context.Background())
		require.NoError(t, err)
		require.Equal(t, 1, created)
		_, _, err = svc.ProcessQueued(context.Background())
		require.NoError(t, err)
	}

	created, err := svc.CreateQueued(context.Background())
	require.NoError(t, err)
	assert.Zero(t, created)

	var renders int64
	require.NoError(t, svc.DB.Model(&models.Render{}).
		Where("story_id = ?", story.ID).Count(&renders).Error)
	assert.EqualValues(t, svc.Config.MaxRenderAttempts, renders)
}

func TestSelectBackgroundUniform(t *testing.T) {
	svc, _ := newRenderService(t, &fakeRenderer{})
	svc.randIntn = func(n int) int { return 2 }

	svc.randFloat = func() float64 { return 0.2 }
	bgType, bgID := svc.selectBackground()
	assert.Equal(t, models.BackgroundStill, bgType)
	assert.Equal(t, "bg_still_3.jpg", bgID)

	svc.randFloat = func() float64 { return 0.8 }
	bgType, bgID = svc.selectBackground()
	assert.Equal(t, models.BackgroundMotion, bgType)
	assert.Equal(t, "bg_motion_3.mp4", bgID)
}

func TestSelectBackgroundWeighted(t *testing.T) {
	svc, store := newRenderService(t, &fakeRenderer{})
	putSetting(t, store, settings.KeyBackgroundRandomMode, `{"value": "weighted"}`)
	putSetting(t, store, settings.KeyBackgroundWeights, `{"still": 3, "motion": 1}`)
	svc.randIntn = func(n int) int { return 0 }

	// 0.7 liegt unter der Still-Wahrscheinlichkeit von 0.75.
	svc.randFloat = func() float64 { return 0.7 }
	bgType, _ := svc.selectBackground()
	assert.Equal(t, models.BackgroundStill, bgType)

	svc.randFloat = func() float64 { return 0.8 }
	bgType, _ = svc.selectBackground()
	assert.Equal(t, models.BackgroundMotion, bgType)
}

func TestSelectBackgroundInvalidWeightsFallBack(t *testing.T) {
	svc, store := newRenderService(t, &fakeRenderer{})
	putSetting(t, store, settings.KeyBackgroundRandomMode, `{"value": "weighted"}`)
	putSetting(t, store, settings.KeyBackgroundWeights, `{"still": 0, "motion": 0}`)
	svc.randIntn = func(n int) int { return 0 }

	svc.randFloat = func() float64 { return 0.4 }
	bgType, _ := svc.selectBackground()
	assert.Equal(t, models.BackgroundStill, bgType)
}
