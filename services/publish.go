package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"orbix-worker/config"
	"orbix-worker/models"
	"orbix-worker/platforms"
	"orbix-worker/settings"
)

// publishBackoffBase ist die Wartezeit nach dem ersten Fehlversuch; sie
// verdoppelt sich pro weiterem Versuch.
const publishBackoffBase = time.Minute

// maxTitleLength ist das YouTube-Limit für Videotitel, in Zeichen.
const maxTitleLength = 100

// descriptionFooter hängt an jeder Videobeschreibung.
const descriptionFooter = "Orbix Network — tracking the shifts that quietly change everything.\n\n#OrbixNetwork #Shorts"

// PublishService verteilt fertige Renders auf die aktivierten Plattformen.
// Das Tageslimit wird pro Plattform über einen Zähler reserviert: ein
// einzelnes bedingtes Inkrement pro Slot, damit zwei überlappende Zyklen
// das Limit nicht gemeinsam überschreiten. Terminal fehlgeschlagene
// Publishes geben ihren Slot wieder frei.
type PublishService struct {
	Config    *config.Config
	DB        *gorm.DB
	Logger    *zap.Logger
	Settings  *settings.Store
	Platforms []platforms.Platform
}

// NewPublishService erstellt den Publish-Service.
func NewPublishService(cfg *config.Config, db *gorm.DB, logger *zap.Logger, store *settings.Store, targets []platforms.Platform) *PublishService {
	return &PublishService{Config: cfg, DB: db, Logger: logger, Settings: store, Platforms: targets}
}

// Run legt für fertige Renders Publish-Aufträge an (soweit das Tageslimit
// Slots hergibt) und reicht alle fälligen Aufträge bei den Plattformen
// ein. Zurück kommen die Zahl der Veröffentlichungen und der wegen Limit
// zurückgestellten Renders.
func (p *PublishService) Run(ctx context.Context) (published, deferred int, err error) {
	loc := p.capLocation()
	day := time.Now().In(loc).Format("2006-01-02")
	dailyCap := p.Settings.Int(settings.KeyDailyVideoCap, "value", 10)

	for _, platform := range p.enabledPlatforms() {
		d, err := p.dispatch(ctx, platform, day, dailyCap)
		if err != nil {
			p.Logger.Error("Dispatch failed", zap.String("platform", platform.Name()), zap.Error(err))
			continue
		}
		deferred += d

		n, err := p.submitDue(ctx, platform, loc)
		if err != nil {
			p.Logger.Error("Submit failed", zap.String("platform", platform.Name()), zap.Error(err))
			continue
		}
		published += n
	}
	return published, deferred, nil
}

// enabledPlatforms filtert die Plattformen nach ihren Settings; YouTube
// ist immer aktiv, Rumble hängt an enable_rumble.
func (p *PublishService) enabledPlatforms() []platforms.Platform {
	enabled := make([]platforms.Platform, 0, len(p.Platforms))
	for _, platform := range p.Platforms {
		if platform.Name() == models.PlatformRumble &&
			!p.Settings.Bool(settings.KeyEnableRumble, "enabled", false) {
			continue
		}
		enabled = append(enabled, platform)
	}
	return enabled
}

// dispatch legt für jeden fertigen Render ohne Publish-Zeile einen
// QUEUED-Auftrag an, sofern noch ein Tages-Slot frei ist. Bei erreichtem
// Limit werden die restlichen Renders zurückgestellt.
func (p *PublishService) dispatch(ctx context.Context, platform platforms.Platform, day string, dailyCap int) (deferred int, err error) {
	var renders []models.Render
	err = p.DB.
		Where("status = ?", models.RenderStatusCompleted).
		Where("NOT EXISTS (SELECT 1 FROM publishes WHERE publishes.render_id = renders.id AND publishes.platform = ?)", platform.Name()).
		Order("created_at ASC").
		Find(&renders).Error
	if err != nil {
		return 0, err
	}

	for i := range renders {
		render := &renders[i]

		reserved, err := p.reserveSlot(platform.Name(), day, dailyCap)
		if err != nil {
			return deferred, err
		}
		if !reserved {
			deferred += len(renders) - i
			p.Logger.Info("Daily cap reached, deferring renders",
				zap.String("platform", platform.Name()),
				zap.String("day", day),
				zap.Int("deferred", deferred))
			break
		}

		created, err := p.createPublish(render, platform.Name())
		if err != nil {
			p.releaseSlot(platform.Name(), day)
			return deferred, err
		}
		if !created {
			// Ein überlappender Zyklus hat den Auftrag bereits angelegt.
			p.releaseSlot(platform.Name(), day)
		}
	}
	return deferred, nil
}

// createPublish legt den Publish-Auftrag mit fertigem Titel und fertiger
// Beschreibung an; der Unique-Index auf (render_id, platform) fängt den
// Wettlauf zwischen überlappenden Zyklen ab.
func (p *PublishService) createPublish(render *models.Render, platform string) (bool, error) {
	var story models.Story
	if err := p.DB.First(&story, render.StoryID).Error; err != nil {
		return false, fmt.Errorf("load story %d: %w", render.StoryID, err)
	}
	var script models.Script
	if err := p.DB.First(&script, render.ScriptID).Error; err != nil {
		return false, fmt.Errorf("load script %d: %w", render.ScriptID, err)
	}

	publish := models.Publish{
		RenderID:    render.ID,
		Platform:    platform,
		Status:      models.PublishStatusQueued,
		Title:       buildTitle(script.EffectiveHook(), story.Category),
		Description: buildDescription(&script),
	}
	result := p.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "render_id"}, {Name: "platform"}},
		DoNothing: true,
	}).Create(&publish)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// submitDue reicht alle fälligen QUEUED-Aufträge einer Plattform ein.
func (p *PublishService) submitDue(ctx context.Context, platform platforms.Platform, loc *time.Location) (int, error) {
	now := time.Now()
	var publishes []models.Publish
	err := p.DB.
		Where("platform = ? AND status = ?", platform.Name(), models.PublishStatusQueued).
		Where("next_attempt_at IS NULL OR next_attempt_at <= ?", now).
		Order("created_at ASC").
		Find(&publishes).Error
	if err != nil {
		return 0, err
	}

	published := 0
	for i := range publishes {
		publish := &publishes[i]

		result := p.DB.Model(&models.Publish{}).
			Where("id = ? AND status = ?", publish.ID, models.PublishStatusQueued).
			Update("status", models.PublishStatusPublishing)
		if result.Error != nil {
			return published, result.Error
		}
		if result.RowsAffected == 0 {
			continue
		}

		if err := p.submit(ctx, platform, publish, loc); err != nil {
			p.Logger.Error("Publish attempt failed",
				zap.Uint("publish_id", publish.ID),
				zap.String("platform", platform.Name()),
				zap.Error(err))
			continue
		}
		published++
	}
	return published, nil
}

// submit führt einen einzelnen Upload aus und verbucht das Ergebnis:
// Erfolg, Backoff-Retry oder terminales FAILED mit Slot-Freigabe.
func (p *PublishService) submit(ctx context.Context, platform platforms.Platform, publish *models.Publish, loc *time.Location) error {
	var render models.Render
	if err := p.DB.First(&render, publish.RenderID).Error; err != nil {
		return err
	}
	var story models.Story
	if err := p.DB.First(&story, render.StoryID).Error; err != nil {
		return err
	}

	visibility := "public"
	if platform.Name() == models.PlatformYouTube {
		visibility = p.Settings.String(settings.KeyYouTubeVisibility, "value", "public")
	}

	videoID, err := platform.Publish(ctx, platforms.Job{
		RenderID:    render.ID,
		VideoURL:    render.OutputURL,
		Title:       publish.Title,
		Description: publish.Description,
		Category:    story.Category,
		Visibility:  visibility,
	})

	attempts := publish.Attempts + 1
	if err != nil {
		if !IsPermanent(err) && attempts < p.Config.MaxPublishAttempts {
			delay := publishBackoffBase << (attempts - 1)
			next := time.Now().Add(delay)
			p.Logger.Warn("Publish failed, scheduling retry",
				zap.Uint("publish_id", publish.ID),
				zap.Int("attempt", attempts),
				zap.Duration("backoff", delay))
			if dbErr := p.DB.Model(publish).Updates(map[string]any{
				"status":          models.PublishStatusQueued,
				"attempts":        attempts,
				"next_attempt_at": next,
				"last_error":      err.Error(),
			}).Error; dbErr != nil {
				return dbErr
			}
			return err
		}

		// Terminal: Slot des Reservierungstages wieder freigeben, er zählt
		// nicht gegen das Limit.
		if dbErr := p.DB.Model(publish).Updates(map[string]any{
			"status":     models.PublishStatusFailed,
			"attempts":   attempts,
			"last_error": err.Error(),
		}).Error; dbErr != nil {
			return dbErr
		}
		p.releaseSlot(publish.Platform, publish.CreatedAt.In(loc).Format("2006-01-02"))
		return err
	}

	now := time.Now()
	if err := p.DB.Model(publish).Updates(map[string]any{
		"status":            models.PublishStatusPublished,
		"platform_video_id": videoID,
		"attempts":          attempts,
		"posted_at":         now,
	}).Error; err != nil {
		return err
	}
	p.Logger.Info("Published render",
		zap.Uint("publish_id", publish.ID),
		zap.String("platform", publish.Platform),
		zap.String("platform_video_id", videoID))
	return nil
}

// reserveSlot reserviert einen Tages-Slot als bedingtes Inkrement;
// RowsAffected == 0 heißt Limit erreicht.
func (p *PublishService) reserveSlot(platform, day string, dailyCap int) (bool, error) {
	counter := models.PublishCounter{Platform: platform, Day: day}
	if err := p.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "platform"}, {Name: "day"}},
		DoNothing: true,
	}).Create(&counter).Error; err != nil {
		return false, err
	}

	result := p.DB.Model(&models.PublishCounter{}).
		Where("platform = ? AND day = ? AND published_count < ?", platform, day, dailyCap).
		UpdateColumn("published_count", gorm.Expr("published_count + 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// releaseSlot gibt einen reservierten Tages-Slot wieder frei.
func (p *PublishService) releaseSlot(platform, day string) {
	err := p.DB.Model(&models.PublishCounter{}).
		Where("platform = ? AND day = ? AND published_count > 0", platform, day).
		UpdateColumn("published_count", gorm.Expr("published_count - 1")).Error
	if err != nil {
		p.Logger.Error("Failed to release publish slot",
			zap.String("platform", platform), zap.String("day", day), zap.Error(err))
	}
}

// capLocation liest die Zeitzone für den Tageswechsel des Limits.
func (p *PublishService) capLocation() *time.Location {
	name := p.Settings.String(settings.KeyDailyCapTimezone, "value", "UTC")
	loc, err := time.LoadLocation(name)
	if err != nil {
		p.Logger.Warn("Invalid cap timezone, using UTC", zap.String("timezone", name))
		return time.UTC
	}
	return loc
}

// buildTitle baut den Videotitel aus Hook und Rubrik. Gekürzt wird in
// Zeichen und auf Runen-Grenzen, nie mitten in einer Mehrbyte-Sequenz.
func buildTitle(hook, category string) string {
	title := fmt.Sprintf("%s | %s", hook, category)
	if utf8.RuneCountInString(title) > maxTitleLength {
		title = hook
		if utf8.RuneCountInString(title) > maxTitleLength {
			title = string([]rune(title)[:maxTitleLength-3]) + "..."
		}
	}
	return title
}

// buildDescription baut die Videobeschreibung aus den Skript-Abschnitten.
func buildDescription(script *models.Script) string {
	sections := []string{
		script.WhatHappened,
		script.WhyItMatters,
		script.WhatHappensNext,
		script.CTALine,
		descriptionFooter,
	}
	nonEmpty := sections[:0]
	for _, s := range sections {
		if s != "" {
			nonEmpty = append(nonEmpty, s)
		}
	}
	return strings.Join(nonEmpty, "\n\n")
}
