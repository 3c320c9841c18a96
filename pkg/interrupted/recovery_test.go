package interrupted

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyResumePromptPlaceholderSubstitution(t *testing.T) {
	original := json.RawMessage(`{"prompt":"fix the bug","other_field":true}`)

	out := applyResumePrompt(original, "[Resumed] {original_prompt}")

	var fields map[string]any
	assert.NoError(t, json.Unmarshal(out, &fields))
	assert.Equal(t, "[Resumed] fix the bug", fields["prompt"])
	assert.Equal(t, true, fields["other_field"])
}

func TestApplyResumePromptFullReplacement(t *testing.T) {
	original := json.RawMessage(`{"prompt":"fix the bug"}`)

	out := applyResumePrompt(original, "[Process restarted. Continue]")

	var fields map[string]any
	assert.NoError(t, json.Unmarshal(out, &fields))
	assert.Equal(t, "[Process restarted. Continue]", fields["prompt"])
}

func TestApplyResumePromptPassesThroughUnrecognizedPayload(t *testing.T) {
	original := json.RawMessage(`not json`)

	out := applyResumePrompt(original, "[Process restarted. Continue]")

	assert.Equal(t, original, out)
}
