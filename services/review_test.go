package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"orbix-worker/models"
	"orbix-worker/settings"
)

func newReviewService(t *testing.T) (*ReviewService, *settings.Store) {
	db := newTestDB(t)
	store := newTestStore(t, db)
	return NewReviewService(db, zap.NewNop(), store), store
}

func TestReviewApproveWinsOnce(t *testing.T) {
	svc, _ := newReviewService(t)
	story, entry := createPendingReview(t, svc.DB, time.Now())

	won, err := svc.Approve(entry.ID)
	require.NoError(t, err)
	assert.True(t, won)

	// Zweite Auflösung verliert das CAS und ändert nichts mehr.
	won, err = svc.Reject(entry.ID)
	require.NoError(t, err)
	assert.False(t, won)

	var got models.ReviewQueueEntry
	require.NoError(t, svc.DB.First(&got, entry.ID).Error)
	assert.Equal(t, models.ReviewStatusApproved, got.Status)
	require.NotNil(t, got.ReviewedAt)

	var gotStory models.Story
	require.NoError(t, svc.DB.First(&gotStory, story.ID).Error)
	assert.Equal(t, models.StoryStatusApproved, gotStory.Status)
}

func TestReviewRejectIsTerminal(t *testing.T) {
	svc, _ := newReviewService(t)
	story, entry := createPendingReview(t, svc.DB, time.Now())

	won, err := svc.Reject(entry.ID)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = svc.Approve(entry.ID)
	require.NoError(t, err)
	assert.False(t, won)

	var gotStory models.Story
	require.NoError(t, svc.DB.First(&gotStory, story.ID).Error)
	assert.Equal(t, models.StoryStatusRejected, gotStory.Status)
}

func TestReviewConcurrentResolutionSingleWinner(t *testing.T) {
	svc, _ := newReviewService(t)
	_, entry := createPendingReview(t, svc.DB, time.Now())

	const writers = 8
	var wg sync.WaitGroup
	wins := make(chan string, writers)
	errs := make(chan error, writers)

	for i := 0; i < writers; i++ {
		action := svc.Approve
		outcome := models.ReviewStatusApproved
		if i%2 == 1 {
			action = svc.Reject
			outcome = models.ReviewStatusRejected
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := action(entry.ID)
			if err != nil {
				errs <- err
				return
			}
			if won {
				wins <- outcome
			}
		}()
	}
	wg.Wait()
	close(wins)
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var winners []string
	for w := range wins {
		winners = append(winners, w)
	}
	require.Len(t, winners, 1)

	var got models.ReviewQueueEntry
	require.NoError(t, svc.DB.First(&got, entry.ID).Error)
	assert.Equal(t, winners[0], got.Status)
}

func TestReviewUnknownEntry(t *testing.T) {
	svc, _ := newReviewService(t)
	_, err := svc.Approve(9999)
	assert.ErrorIs(t, err, ErrReviewNotFound)
}

func TestEditHookOnlyWhilePending(t *testing.T) {
	svc, _ := newReviewService(t)
	_, entry := createPendingReview(t, svc.DB, time.Now())

	require.NoError(t, svc.EditHook(entry.ID, "Sharper hook"))
	require.NoError(t, svc.EditHook(entry.ID, "Even sharper hook"))

	var script models.Script
	require.NoError(t, svc.DB.First(&script, entry.ScriptID).Error)
	assert.Equal(t, "Even sharper hook", script.EditedHook)
	assert.Equal(t, "Even sharper hook", script.EffectiveHook())

	won, err := svc.Approve(entry.ID)
	require.NoError(t, err)
	require.True(t, won)

	err = svc.EditHook(entry.ID, "Too late")
	assert.ErrorIs(t, err, ErrReviewClosed)
}

func TestSweepAutoApprovalsHonorsWindow(t *testing.T) {
	svc, store := newReviewService(t)
	putSetting(t, store, settings.KeyAutoApproveMinutes, `{"value": 30}`)

	oldStory, oldEntry := createPendingReview(t, svc.DB, time.Now().Add(-45*time.Minute))
	freshStory, freshEntry := createPendingReview(t, svc.DB, time.Now().Add(-5*time.Minute))

	approved, err := svc.SweepAutoApprovals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, approved)

	var got models.ReviewQueueEntry
	require.NoError(t, svc.DB.First(&got, oldEntry.ID).Error)
	assert.Equal(t, models.ReviewStatusApproved, got.Status)

	var gotFresh models.ReviewQueueEntry
	require.NoError(t, svc.DB.First(&gotFresh, freshEntry.ID).Error)
	assert.Equal(t, models.ReviewStatusPending, gotFresh.Status)

	var story models.Story
	require.NoError(t, svc.DB.First(&story, oldStory.ID).Error)
	assert.Equal(t, models.StoryStatusApproved, story.Status)
	var storyFresh models.Story
	require.NoError(t, svc.DB.First(&storyFresh, freshStory.ID).Error)
	assert.Equal(t, models.StoryStatusPendingReview, storyFresh.Status)
}

func TestSweepLosesAgainstOperator(t *testing.T) {
	svc, store := newReviewService(t)
	putSetting(t, store, settings.KeyAutoApproveMinutes, `{"value": 30}`)

	story, entry := createPendingReview(t, svc.DB, time.Now().Add(-2*time.Hour))

	won, err := svc.Reject(entry.ID)
	require.NoError(t, err)
	require.True(t, won)

	approved, err := svc.SweepAutoApprovals(context.Background())
	require.NoError(t, err)
	assert.Zero(t, approved)

	var gotStory models.Story
	require.NoError(t, svc.DB.First(&gotStory, story.ID).Error)
	assert.Equal(t, models.StoryStatusRejected, gotStory.Status)
}
