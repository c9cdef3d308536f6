package services

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"orbix-worker/config"
	"orbix-worker/models"
	"orbix-worker/renderer"
	"orbix-worker/settings"
)

// backgroundCount ist die Zahl der Hintergrund-Assets pro Typ
// (bg_still_1..6.jpg bzw. bg_motion_1..6.mp4).
const backgroundCount = 6

// Templates, aus denen deterministisch gewählt wird.
var renderTemplates = []string{"A", "B", "C"}

// RenderService legt Render-Aufträge für freigegebene Stories an und
// arbeitet sie ab. Pro Story existiert höchstens ein nicht-FAILED Render;
// der Unique-Index auf (story_id, active) macht den Anlege-Wettlauf
// zwischen überlappenden Ticks harmlos.
type RenderService struct {
	Config   *config.Config
	DB       *gorm.DB
	Logger   *zap.Logger
	Settings *settings.Store
	Renderer renderer.Collaborator

	// randFloat ist in Tests durch eine deterministische Quelle ersetzbar.
	randFloat func() float64
	randIntn  func(n int) int
}

// NewRenderService erstellt den Render-Service.
func NewRenderService(cfg *config.Config, db *gorm.DB, logger *zap.Logger, store *settings.Store, r renderer.Collaborator) *RenderService {
	return &RenderService{
		Config:    cfg,
		DB:        db,
		Logger:    logger,
		Settings:  store,
		Renderer:  r,
		randFloat: rand.Float64,
		randIntn:  rand.Intn,
	}
}

// CreateQueued legt für jede freigegebene Story ohne aktiven Render einen
// neuen QUEUED-Render an und gibt die Zahl der angelegten Aufträge zurück.
// Stories, deren Render-Budget ausgeschöpft ist, bleiben liegen.
func (r *RenderService) CreateQueued(ctx context.Context) (int, error) {
	var stories []models.Story
	err := r.DB.
		Where("status = ?", models.StoryStatusApproved).
		Where("NOT EXISTS (SELECT 1 FROM renders WHERE renders.story_id = stories.id AND renders.active IS NOT NULL)").
		Find(&stories).Error
	if err != nil {
		return 0, err
	}

	created := 0
	for i := range stories {
		story := &stories[i]

		var failed int64
		if err := r.DB.Model(&models.Render{}).
			Where("story_id = ? AND status = ?", story.ID, models.RenderStatusFailed).
			Count(&failed).Error; err != nil {
			return created, err
		}
		if int(failed) >= r.Config.MaxRenderAttempts {
			r.Logger.Warn("Render budget exhausted for story",
				zap.Uint("story_id", story.ID), zap.Int64("failed_renders", failed))
			continue
		}

		var script models.Script
		if err := r.DB.Where("story_id = ?", story.ID).First(&script).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				r.Logger.Warn("Approved story has no script", zap.Uint("story_id", story.ID))
				continue
			}
			return created, err
		}

		bgType, bgID := r.selectBackground()
		active := true
		render := models.Render{
			StoryID:        story.ID,
			ScriptID:       script.ID,
			Active:         &active,
			Template:       selectTemplate(story),
			BackgroundType: bgType,
			BackgroundID:   bgID,
			Status:         models.RenderStatusQueued,
		}
		result := r.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "story_id"}, {Name: "active"}},
			DoNothing: true,
		}).Create(&render)
		if result.Error != nil {
			return created, result.Error
		}
		if result.RowsAffected == 0 {
			// Ein überlappender Tick hat bereits einen aktiven Render.
			continue
		}
		created++
		r.Logger.Info("Queued render",
			zap.Uint("render_id", render.ID),
			zap.Uint("story_id", story.ID),
			zap.String("template", render.Template),
			zap.String("background", bgID))
	}
	return created, nil
}

// ProcessQueued rendert alle QUEUED-Aufträge nacheinander und gibt die
// Zahl der fertigen und der fehlgeschlagenen Renders zurück.
func (r *RenderService) ProcessQueued(ctx context.Context) (completed, failed int, err error) {
	var renders []models.Render
	if err := r.DB.Where("status = ?", models.RenderStatusQueued).
		Order("created_at ASC").Find(&renders).Error; err != nil {
		return 0, 0, err
	}

	for i := range renders {
		render := &renders[i]

		result := r.DB.Model(&models.Render{}).
			Where("id = ? AND status = ?", render.ID, models.RenderStatusQueued).
			Update("status", models.RenderStatusProcessing)
		if result.Error != nil {
			return completed, failed, result.Error
		}
		if result.RowsAffected == 0 {
			// Ein überlappender Tick arbeitet diesen Render bereits ab.
			continue
		}

		if err := r.processRender(ctx, render); err != nil {
			failed++
			r.Logger.Error("Render failed", zap.Uint("render_id", render.ID), zap.Error(err))
			continue
		}
		completed++
	}
	return completed, failed, nil
}

// processRender führt einen einzelnen Render aus. Bei Fehlern wird die
// Zeile terminal FAILED und gibt den Aktiv-Slot der Story frei, sodass der
// nächste Create-Tick einen neuen Versuch anlegen kann.
func (r *RenderService) processRender(ctx context.Context, render *models.Render) error {
	var script models.Script
	if err := r.DB.First(&script, render.ScriptID).Error; err != nil {
		return r.failRender(render, "", fmt.Errorf("load script: %w", err))
	}
	var story models.Story
	if err := r.DB.First(&story, render.StoryID).Error; err != nil {
		return r.failRender(render, "", fmt.Errorf("load story: %w", err))
	}

	job := renderer.Job{
		RenderID:        render.ID,
		Template:        render.Template,
		BackgroundType:  render.BackgroundType,
		BackgroundID:    render.BackgroundID,
		DurationSeconds: script.DurationTargetSeconds,
		Hook:            script.EffectiveHook(),
		WhatHappened:    script.WhatHappened,
		WhyItMatters:    script.WhyItMatters,
		Category:        story.Category,
	}

	outputURL, err := r.Renderer.Render(ctx, job)
	if err != nil {
		var renderErr *renderer.RenderError
		log := ""
		if errors.As(err, &renderErr) {
			log = renderErr.Log
		}
		return r.failRender(render, log, err)
	}

	now := time.Now()
	return r.DB.Model(render).Updates(map[string]any{
		"status":       models.RenderStatusCompleted,
		"output_url":   outputURL,
		"completed_at": now,
	}).Error
}

// failRender markiert einen Render terminal als FAILED und setzt Active
// auf NULL, damit der Unique-Index einen neuen Versuch zulässt.
func (r *RenderService) failRender(render *models.Render, log string, cause error) error {
	updates := map[string]any{
		"status": models.RenderStatusFailed,
		"active": nil,
	}
	if log != "" {
		updates["ffmpeg_log"] = log
	}
	if err := r.DB.Model(render).Updates(updates).Error; err != nil {
		return err
	}
	return cause
}

// selectTemplate wählt das Template deterministisch aus Kategorie und
// Story-ID; dieselbe Story bekommt bei jedem Versuch dasselbe Template.
func selectTemplate(story *models.Story) string {
	h := fnv.New32a()
	fmt.Fprintf(h, "%s:%d", story.Category, story.ID)
	return renderTemplates[h.Sum32()%uint32(len(renderTemplates))]
}

// selectBackground wählt Typ und Asset des Hintergrunds gemäß Settings:
// uniform oder gewichtet zwischen Still und Motion, das Asset gleichmäßig.
// Unbrauchbare Gewichte fallen auf die Gleichverteilung zurück.
func (r *RenderService) selectBackground() (bgType, bgID string) {
	mode := r.Settings.String(settings.KeyBackgroundRandomMode, "value", "uniform")

	stillProbability := 0.5
	if mode == "weighted" {
		still := r.Settings.Float(settings.KeyBackgroundWeights, "still", 1)
		motion := r.Settings.Float(settings.KeyBackgroundWeights, "motion", 1)
		if still >= 0 && motion >= 0 && still+motion > 0 {
			stillProbability = still / (still + motion)
		} else {
			r.Logger.Warn("Invalid background weights, falling back to uniform",
				zap.Float64("still", still), zap.Float64("motion", motion))
		}
	}

	n := r.randIntn(backgroundCount) + 1
	if r.randFloat() < stillProbability {
		return models.BackgroundStill, fmt.Sprintf("bg_still_%d.jpg", n)
	}
	return models.BackgroundMotion, fmt.Sprintf("bg_motion_%d.mp4", n)
}
