package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStoryTransitions(t *testing.T) {
	allowed := []struct{ from, to string }{
		{StoryStatusQualified, StoryStatusPendingReview},
		{StoryStatusQualified, StoryStatusApproved},
		{StoryStatusQualified, StoryStatusRejected},
		{StoryStatusPendingReview, StoryStatusApproved},
		{StoryStatusPendingReview, StoryStatusRejected},
	}
	for _, tc := range allowed {
		assert.True(t, StoryCanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	forbidden := []struct{ from, to string }{
		{StoryStatusNew, StoryStatusApproved},
		{StoryStatusApproved, StoryStatusRejected},
		{StoryStatusRejected, StoryStatusApproved},
		{StoryStatusApproved, StoryStatusQualified},
		{StoryStatusPendingReview, StoryStatusQualified},
	}
	for _, tc := range forbidden {
		assert.False(t, StoryCanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestScriptEffectiveHook(t *testing.T) {
	script := Script{Hook: "Generated hook"}
	assert.Equal(t, "Generated hook", script.EffectiveHook())

	script.EditedHook = "Operator hook"
	assert.Equal(t, "Operator hook", script.EffectiveHook())
}
