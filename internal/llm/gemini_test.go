package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/soaringjerry/ProbeAI/internal/services"
)

func TestSafeParseJSONPlain(t *testing.T) {
	var v services.FollowUpJudgment
	ok := SafeParseJSON(`{"should_follow_up": true, "follow_up_question": "Why?", "reason": "shallow"}`, &v)
	assert.True(t, ok)
	assert.True(t, v.ShouldFollowUp)
	assert.Equal(t, "Why?", v.FollowUpQuestion)
}

func TestSafeParseJSONFenced(t *testing.T) {
	var v services.FollowUpJudgment
	text := "```json\n{\"should_follow_up\": false, \"reason\": \"substantial\"}\n```"
	ok := SafeParseJSON(text, &v)
	assert.True(t, ok)
	assert.False(t, v.ShouldFollowUp)
	assert.Equal(t, "substantial", v.Reason)
}

func TestSafeParseJSONChatty(t *testing.T) {
	var v services.FollowUpJudgment
	text := `Sure! Here is the verdict you asked for: {"should_follow_up": true, "follow_up_question": "What made it slow?", "reason": "vague"} Hope that helps.`
	ok := SafeParseJSON(text, &v)
	assert.True(t, ok)
	assert.Equal(t, "What made it slow?", v.FollowUpQuestion)
}

func TestSafeParseJSONGarbage(t *testing.T) {
	var v services.FollowUpJudgment
	assert.False(t, SafeParseJSON("the model had a bad day", &v))
	assert.False(t, SafeParseJSON("", &v))
	assert.False(t, SafeParseJSON("{not json}", &v))
}

func TestSafeParseJSONNullQuestion(t *testing.T) {
	var v services.FollowUpJudgment
	ok := SafeParseJSON(`{"should_follow_up": false, "follow_up_question": null, "reason": "fine"}`, &v)
	assert.True(t, ok)
	assert.Empty(t, v.FollowUpQuestion)
}
