package settings

import (
	"encoding/json"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"orbix-worker/models"
)

// Bekannte Settings-Keys.
const (
	KeyReviewMode           = "review_mode"
	KeyAutoApproveMinutes   = "auto_approve_minutes"
	KeyShockScoreThreshold  = "shock_score_threshold"
	KeyDailyVideoCap        = "daily_video_cap"
	KeyYouTubeVisibility    = "youtube_visibility"
	KeyEnableRumble         = "enable_rumble"
	KeyBackgroundRandomMode = "background_random_mode"
	KeyBackgroundWeights    = "background_weights"
	KeyDailyCapTimezone     = "daily_cap_timezone"
)

// Store liest und schreibt Settings in der Datenbank. Lesezugriffe gehen
// immer direkt auf die DB, ohne Caching über einen Pipeline-Durchlauf
// hinaus, damit Schwellwert-Änderungen sofort greifen. Fehlende oder
// unbrauchbare Werte fallen auf den übergebenen Default zurück und werden
// geloggt; sie halten die Pipeline nie an.
type Store struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// NewStore erstellt einen Settings-Store.
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{DB: db, Logger: logger}
}

func (s *Store) object(key string) map[string]any {
	var setting models.Setting
	if err := s.DB.Where("key = ?", key).First(&setting).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.Logger.Warn("Failed to read setting, using default", zap.String("key", key), zap.Error(err))
		}
		return nil
	}
	obj := map[string]any{}
	if err := json.Unmarshal(setting.Value, &obj); err != nil {
		s.Logger.Warn("Setting value is not a JSON object, using default", zap.String("key", key), zap.Error(err))
		return nil
	}
	return obj
}

// Int liest ein Zahlenfeld aus einem Setting-Objekt.
func (s *Store) Int(key, field string, def int) int {
	obj := s.object(key)
	if obj == nil {
		return def
	}
	if v, ok := obj[field].(float64); ok {
		return int(v)
	}
	s.Logger.Warn("Setting field missing or not a number, using default",
		zap.String("key", key), zap.String("field", field), zap.Int("default", def))
	return def
}

// Bool liest ein Boolean-Feld aus einem Setting-Objekt.
func (s *Store) Bool(key, field string, def bool) bool {
	obj := s.object(key)
	if obj == nil {
		return def
	}
	if v, ok := obj[field].(bool); ok {
		return v
	}
	s.Logger.Warn("Setting field missing or not a bool, using default",
		zap.String("key", key), zap.String("field", field), zap.Bool("default", def))
	return def
}

// String liest ein Textfeld aus einem Setting-Objekt.
func (s *Store) String(key, field, def string) string {
	obj := s.object(key)
	if obj == nil {
		return def
	}
	if v, ok := obj[field].(string); ok && v != "" {
		return v
	}
	s.Logger.Warn("Setting field missing or not a string, using default",
		zap.String("key", key), zap.String("field", field), zap.String("default", def))
	return def
}

// Float liest ein Gleitkommafeld aus einem Setting-Objekt.
func (s *Store) Float(key, field string, def float64) float64 {
	obj := s.object(key)
	if obj == nil {
		return def
	}
	if v, ok := obj[field].(float64); ok {
		return v
	}
	return def
}

// Put legt ein Setting an oder überschreibt es (Write-Through bei
// Operator-Edits).
func (s *Store) Put(key string, value json.RawMessage) error {
	setting := models.Setting{Key: key, Value: []byte(value)}
	return s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error
}

// Seed legt die dokumentierten Default-Settings an, ohne vorhandene Werte
// zu überschreiben.
func (s *Store) Seed() error {
	defaults := map[string]string{
		KeyReviewMode:           `{"enabled": false}`,
		KeyAutoApproveMinutes:   `{"value": 60}`,
		KeyShockScoreThreshold:  `{"value": 65}`,
		KeyDailyVideoCap:        `{"value": 10}`,
		KeyYouTubeVisibility:    `{"value": "public"}`,
		KeyEnableRumble:         `{"enabled": false}`,
		KeyBackgroundRandomMode: `{"value": "uniform"}`,
		KeyBackgroundWeights:    `{"still": 1, "motion": 1}`,
		KeyDailyCapTimezone:     `{"value": "UTC"}`,
	}
	for key, value := range defaults {
		setting := models.Setting{Key: key, Value: []byte(value)}
		if err := s.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoNothing: true,
		}).Create(&setting).Error; err != nil {
			return err
		}
	}
	return nil
}
