package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"orbix-worker/collab"
	"orbix-worker/config"
	"orbix-worker/models"
	"orbix-worker/settings"
)

// GeneratorService erzeugt für qualifizierte Stories ein Skript und
// schiebt sie je nach review_mode in die Review-Queue oder direkt auf
// APPROVED. Der Statuswechsel läuft als bedingtes Update auf QUALIFIED;
// überlappende Durchläufe verarbeiten eine Story dadurch höchstens einmal.
type GeneratorService struct {
	Config   *config.Config
	DB       *gorm.DB
	Logger   *zap.Logger
	Settings *settings.Store
	Model    collab.ScriptModel
}

// NewGeneratorService erstellt den Generator.
func NewGeneratorService(cfg *config.Config, db *gorm.DB, logger *zap.Logger, store *settings.Store, model collab.ScriptModel) *GeneratorService {
	return &GeneratorService{Config: cfg, DB: db, Logger: logger, Settings: store, Model: model}
}

// Run generiert Skripte für alle qualifizierten Stories und gibt die Zahl
// der erfolgreich versorgten Stories zurück.
func (g *GeneratorService) Run(ctx context.Context) (int, error) {
	var stories []models.Story
	if err := g.DB.Where("status = ?", models.StoryStatusQualified).
		Order("shock_score DESC").Find(&stories).Error; err != nil {
		return 0, err
	}

	generated := 0
	for i := range stories {
		story := &stories[i]
		won, err := g.generateStory(ctx, story)
		if err != nil {
			g.Logger.Error("Failed to generate script", zap.Uint("story_id", story.ID), zap.Error(err))
			if err := g.recordFailure(story, err); err != nil {
				g.Logger.Error("Failed to record generation failure", zap.Uint("story_id", story.ID), zap.Error(err))
			}
			continue
		}
		if won {
			generated++
		}
	}
	return generated, nil
}

// generateStory erzeugt das Skript einer Story und meldet, ob dieser
// Durchlauf den Statuswechsel gewonnen hat.
func (g *GeneratorService) generateStory(ctx context.Context, story *models.Story) (bool, error) {
	var item models.RawItem
	if err := g.DB.First(&item, story.RawItemID).Error; err != nil {
		return false, fmt.Errorf("load raw item %d: %w", story.RawItemID, err)
	}

	draft, err := g.Model.Generate(ctx, item.Title, item.Snippet, story.Category, story.ShockScore)
	if err != nil {
		return false, err
	}

	reviewMode := g.Settings.Bool(settings.KeyReviewMode, "enabled", false)

	won := false
	err = g.DB.Transaction(func(tx *gorm.DB) error {
		script := models.Script{
			StoryID:               story.ID,
			Hook:                  draft.Hook,
			WhatHappened:          draft.WhatHappened,
			WhyItMatters:          draft.WhyItMatters,
			WhatHappensNext:       draft.WhatHappensNext,
			CTALine:               draft.CTALine,
			DurationTargetSeconds: draft.DurationTargetSeconds,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "story_id"}},
			DoNothing: true,
		}).Create(&script).Error; err != nil {
			return err
		}
		if script.ID == 0 {
			// Konflikt: Skript existiert bereits aus einem früheren Lauf.
			if err := tx.Where("story_id = ?", story.ID).First(&script).Error; err != nil {
				return err
			}
		}

		next := models.StoryStatusApproved
		if reviewMode {
			next = models.StoryStatusPendingReview
		}
		result := tx.Model(&models.Story{}).
			Where("id = ? AND status = ?", story.ID, models.StoryStatusQualified).
			Update("status", next)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// Ein überlappender Durchlauf war schneller.
			return nil
		}
		won = true

		if reviewMode {
			entry := models.ReviewQueueEntry{
				StoryID:    story.ID,
				ScriptID:   script.ID,
				Status:     models.ReviewStatusPending,
				EnqueuedAt: time.Now(),
			}
			return tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "story_id"}},
				DoNothing: true,
			}).Create(&entry).Error
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	if won {
		g.Logger.Info("Generated script for story",
			zap.Uint("story_id", story.ID),
			zap.Bool("review_mode", reviewMode))
	}
	return won, nil
}

// recordFailure verbucht einen Generierungsfehler. Inhaltliche Ablehnungen
// durch das Modell sind terminal und machen die Story sofort REJECTED;
// transiente Fehler zählen gegen das Retry-Budget, nach Ausschöpfung wird
// ebenfalls REJECTED.
func (g *GeneratorService) recordFailure(story *models.Story, cause error) error {
	attempts := story.GenerationAttempts + 1
	if IsPermanent(cause) || attempts >= g.Config.MaxGenerationAttempts {
		g.Logger.Warn("Rejecting story after generation failure",
			zap.Uint("story_id", story.ID), zap.Int("attempts", attempts),
			zap.Bool("permanent", IsPermanent(cause)))
		result := g.DB.Model(&models.Story{}).
			Where("id = ? AND status = ?", story.ID, models.StoryStatusQualified).
			Updates(map[string]any{
				"generation_attempts": attempts,
				"status":              models.StoryStatusRejected,
				"decision_reason":     fmt.Sprintf("script generation failed after %d attempts: %v", attempts, cause),
			})
		return result.Error
	}
	return g.DB.Model(&models.Story{}).
		Where("id = ? AND status = ?", story.ID, models.StoryStatusQualified).
		Update("generation_attempts", attempts).Error
}
