package services

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"orbix-worker/collab"
	"orbix-worker/config"
	"orbix-worker/models"
	"orbix-worker/settings"
)

// ScorerService bewertet neue RawItems mit dem Scoring-Modell und legt
// Stories an. Der Schwellwert wird pro Beitrag frisch aus den Settings
// gelesen, damit Operator-Änderungen sofort greifen.
type ScorerService struct {
	Config   *config.Config
	DB       *gorm.DB
	Logger   *zap.Logger
	Settings *settings.Store
	Model    collab.ScoringModel
}

// NewScorerService erstellt den Scorer.
func NewScorerService(cfg *config.Config, db *gorm.DB, logger *zap.Logger, store *settings.Store, model collab.ScoringModel) *ScorerService {
	return &ScorerService{Config: cfg, DB: db, Logger: logger, Settings: store, Model: model}
}

// Run bewertet alle RawItems im Status NEW und gibt die Zahl der
// qualifizierten Stories zurück. Transiente Modellfehler lassen das Item
// auf NEW; der nächste Durchlauf versucht es erneut.
func (s *ScorerService) Run(ctx context.Context) (int, error) {
	var items []models.RawItem
	if err := s.DB.Where("status = ?", models.RawItemStatusNew).
		Order("created_at ASC").Find(&items).Error; err != nil {
		return 0, err
	}

	qualified := 0
	for i := range items {
		item := &items[i]
		won, err := s.scoreItem(ctx, item)
		if err != nil {
			s.Logger.Error("Failed to score raw item", zap.Uint("raw_item_id", item.ID), zap.Error(err))
			continue
		}
		if won {
			qualified++
		}
	}
	return qualified, nil
}

// scoreItem bewertet ein einzelnes Item und meldet, ob daraus eine
// qualifizierte Story entstand.
func (s *ScorerService) scoreItem(ctx context.Context, item *models.RawItem) (bool, error) {
	verdict, err := s.Model.Score(ctx, item.Title, item.Snippet)
	if err != nil {
		if IsPermanent(err) {
			// Unbrauchbare Modellantwort: Item aussortieren statt endlos
			// neu zu versuchen.
			return false, s.discardItem(item, "classifier rejected item: "+err.Error())
		}
		return false, err
	}

	if verdict.Discard() {
		reason := verdict.Reasoning
		if reason == "" {
			reason = "classifier verdict DISCARD"
		}
		return false, s.discardItem(item, reason)
	}
	if !verdict.ValidCategory() {
		return false, s.discardItem(item, "unknown category: "+verdict.Category)
	}

	score := clampScore(verdict.ShockScore)
	threshold := s.Settings.Int(settings.KeyShockScoreThreshold, "value", 65)

	status := models.StoryStatusNew
	if score >= threshold {
		status = models.StoryStatusQualified
	}

	factors, err := json.Marshal(verdict.Factors)
	if err != nil {
		factors = []byte("{}")
	}

	story := models.Story{
		RawItemID:      item.ID,
		Category:       verdict.Category,
		ShockScore:     score,
		FactorsJSON:    datatypes.JSON(factors),
		Status:         status,
		DecisionReason: verdict.Reasoning,
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		// Überlappende Scorer-Durchläufe: der Unique-Index auf raw_item_id
		// macht das zweite Anlegen zum No-op.
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "raw_item_id"}},
			DoNothing: true,
		}).Create(&story)
		if result.Error != nil {
			return result.Error
		}
		return tx.Model(item).Update("status", models.RawItemStatusProcessed).Error
	})
	if err != nil {
		return false, err
	}

	s.Logger.Info("Scored raw item",
		zap.Uint("raw_item_id", item.ID),
		zap.String("category", verdict.Category),
		zap.Int("shock_score", score),
		zap.String("story_status", status))
	return status == models.StoryStatusQualified, nil
}

// discardItem markiert ein Item terminal als aussortiert.
func (s *ScorerService) discardItem(item *models.RawItem, reason string) error {
	s.Logger.Info("Discarding raw item", zap.Uint("raw_item_id", item.ID), zap.String("reason", reason))
	return s.DB.Model(item).Updates(map[string]any{
		"status":         models.RawItemStatusDiscarded,
		"discard_reason": reason,
	}).Error
}

// clampScore begrenzt den Shock-Score auf [0, 100].
func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
