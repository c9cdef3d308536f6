package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"orbix-worker/models"
	"orbix-worker/settings"
)

// ErrReviewNotFound meldet einen unbekannten Review-Eintrag.
var ErrReviewNotFound = errors.New("review entry not found")

// ErrReviewClosed meldet einen Hook-Edit an einem bereits aufgelösten
// Review-Eintrag.
var ErrReviewClosed = errors.New("review entry already resolved")

// ReviewService löst Review-Einträge auf. Operator-Entscheidung und
// Auto-Approve-Timer laufen beide über dasselbe bedingte Update auf
// PENDING: der erste Schreiber gewinnt, der Verlierer ist ein stiller
// No-op mit won == false.
type ReviewService struct {
	DB       *gorm.DB
	Logger   *zap.Logger
	Settings *settings.Store
}

// NewReviewService erstellt den Review-Service.
func NewReviewService(db *gorm.DB, logger *zap.Logger, store *settings.Store) *ReviewService {
	return &ReviewService{DB: db, Logger: logger, Settings: store}
}

// Approve löst einen Review-Eintrag als APPROVED auf.
func (r *ReviewService) Approve(entryID uint) (bool, error) {
	return r.resolve(entryID, models.ReviewStatusApproved)
}

// Reject löst einen Review-Eintrag als REJECTED auf.
func (r *ReviewService) Reject(entryID uint) (bool, error) {
	return r.resolve(entryID, models.ReviewStatusRejected)
}

// resolve führt die Auflösung als Compare-and-Swap auf PENDING aus und
// spiegelt das Ergebnis auf die Story. won == false heißt: ein anderer
// Schreiber war schneller.
func (r *ReviewService) resolve(entryID uint, to string) (bool, error) {
	won := false
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		var entry models.ReviewQueueEntry
		if err := tx.First(&entry, entryID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrReviewNotFound
			}
			return err
		}

		now := time.Now()
		result := tx.Model(&models.ReviewQueueEntry{}).
			Where("id = ? AND status = ?", entryID, models.ReviewStatusPending).
			Updates(map[string]any{"status": to, "reviewed_at": now})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		won = true

		storyStatus := models.StoryStatusApproved
		if to == models.ReviewStatusRejected {
			storyStatus = models.StoryStatusRejected
		}
		return tx.Model(&models.Story{}).
			Where("id = ? AND status = ?", entry.StoryID, models.StoryStatusPendingReview).
			Update("status", storyStatus).Error
	})
	if err != nil {
		return false, err
	}
	if won {
		r.Logger.Info("Resolved review entry", zap.Uint("entry_id", entryID), zap.String("status", to))
	}
	return won, nil
}

// EditHook setzt den Hook-Override eines Skripts, solange der zugehörige
// Review-Eintrag noch PENDING ist.
func (r *ReviewService) EditHook(entryID uint, hook string) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		var entry models.ReviewQueueEntry
		if err := tx.First(&entry, entryID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrReviewNotFound
			}
			return err
		}
		if entry.Status != models.ReviewStatusPending {
			return ErrReviewClosed
		}
		return tx.Model(&models.Script{}).
			Where("id = ?", entry.ScriptID).
			Update("edited_hook", hook).Error
	})
}

// SweepAutoApprovals genehmigt alle Review-Einträge, die länger als das
// konfigurierte Fenster auf eine Entscheidung warten. Der Sweep nutzt
// dieselbe CAS-Auflösung wie der Operator; parallel eintreffende
// Operator-Entscheidungen gewinnen oder verlieren dadurch sauber.
func (r *ReviewService) SweepAutoApprovals(ctx context.Context) (int, error) {
	minutes := r.Settings.Int(settings.KeyAutoApproveMinutes, "value", 60)
	cutoff := time.Now().Add(-time.Duration(minutes) * time.Minute)

	var entries []models.ReviewQueueEntry
	if err := r.DB.Where("status = ? AND enqueued_at < ?", models.ReviewStatusPending, cutoff).
		Find(&entries).Error; err != nil {
		return 0, err
	}

	approved := 0
	for _, entry := range entries {
		won, err := r.Approve(entry.ID)
		if err != nil {
			r.Logger.Error("Auto-approve failed", zap.Uint("entry_id", entry.ID), zap.Error(err))
			continue
		}
		if won {
			r.Logger.Info("Auto-approved review entry after timeout",
				zap.Uint("entry_id", entry.ID),
				zap.Uint("story_id", entry.StoryID),
				zap.Int("window_minutes", minutes))
			approved++
		}
	}
	return approved, nil
}
