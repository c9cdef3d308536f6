package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"orbix-worker/models"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Setting{}))
	return NewStore(db, zap.NewNop())
}

func TestSeedWritesDefaultsOnce(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Seed())

	assert.Equal(t, 65, store.Int(KeyShockScoreThreshold, "value", 0))
	assert.Equal(t, 10, store.Int(KeyDailyVideoCap, "value", 0))
	assert.False(t, store.Bool(KeyReviewMode, "enabled", true))
	assert.Equal(t, "public", store.String(KeyYouTubeVisibility, "value", ""))

	// Ein zweiter Seed überschreibt angepasste Werte nicht.
	require.NoError(t, store.Put(KeyDailyVideoCap, []byte(`{"value": 3}`)))
	require.NoError(t, store.Seed())
	assert.Equal(t, 3, store.Int(KeyDailyVideoCap, "value", 0))
}

func TestMissingKeyFallsBackToDefault(t *testing.T) {
	store := newStore(t)

	assert.Equal(t, 42, store.Int("does_not_exist", "value", 42))
	assert.True(t, store.Bool("does_not_exist", "enabled", true))
	assert.Equal(t, "fallback", store.String("does_not_exist", "value", "fallback"))
	assert.Equal(t, 1.5, store.Float("does_not_exist", "still", 1.5))
}

func TestMalformedValueFallsBackToDefault(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Put(KeyShockScoreThreshold, []byte(`{"value": "not a number"}`)))

	assert.Equal(t, 65, store.Int(KeyShockScoreThreshold, "value", 65))
}

func TestPutOverwritesExistingValue(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Put(KeyAutoApproveMinutes, []byte(`{"value": 60}`)))
	require.NoError(t, store.Put(KeyAutoApproveMinutes, []byte(`{"value": 15}`)))

	assert.Equal(t, 15, store.Int(KeyAutoApproveMinutes, "value", 0))

	var count int64
	require.NoError(t, store.DB.Model(&models.Setting{}).
		Where("key = ?", KeyAutoApproveMinutes).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestFloatReadsWeights(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Put(KeyBackgroundWeights, []byte(`{"still": 2.5, "motion": 1}`)))

	assert.Equal(t, 2.5, store.Float(KeyBackgroundWeights, "still", 1))
	assert.Equal(t, 1.0, store.Float(KeyBackgroundWeights, "motion", 0))
}
