package collab

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSONStripsFences(t *testing.T) {
	raw := "```json\n{\"category\": \"Money & Market Shock\", \"shock_score\": 70}\n```"
	assert.JSONEq(t, `{"category": "Money & Market Shock", "shock_score": 70}`, string(extractJSON(raw)))
}

func TestExtractJSONHandlesSurroundingText(t *testing.T) {
	raw := `Here is the result: {"hook": "test"} hope that helps`
	assert.Equal(t, `{"hook": "test"}`, string(extractJSON(raw)))
}

func TestExtractJSONPassesThroughWithoutObject(t *testing.T) {
	assert.Equal(t, "no json here", string(extractJSON("no json here")))
}

func TestVerdictValidation(t *testing.T) {
	v := Verdict{Category: "Money & Market Shock"}
	assert.True(t, v.ValidCategory())
	assert.False(t, v.Discard())

	v = Verdict{Category: "DISCARD"}
	assert.False(t, v.ValidCategory())
	assert.True(t, v.Discard())

	v = Verdict{Category: "Made Up Category"}
	assert.False(t, v.ValidCategory())
}

func TestScorePromptContainsAllCategories(t *testing.T) {
	prompt := scorePrompt("Title", "Snippet")
	for _, category := range Categories {
		assert.Contains(t, prompt, category)
	}
	assert.Contains(t, prompt, "DISCARD")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "abcde", truncate("abcdefgh", 5))
}
