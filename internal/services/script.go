package services

import (
	"fmt"
	"strconv"
	"strings"
)

// The Question Script Builder is deliberately deterministic: the same goal
// string always yields the same script, so two sessions that fall back to a
// generated script see identical questions.

const (
	DefaultGeneratedQuestions = 7
	MaxGeneratedQuestions     = 20
)

var scriptTemplates = []string{
	"In your own words, what initially attracted you to %s?",
	"Can you walk me through the last time you engaged with %s?",
	"What specific problems were you hoping %s would solve for you?",
	"What, if anything, felt confusing or frustrating about %s?",
	"If you could change one thing about %s, what would it be and why?",
	"How does %s compare to other options you've tried?",
	"What would make you excited to recommend %s to a friend or colleague?",
	"What almost stopped you from trying or continuing with %s?",
	"What's the biggest value you feel you've gotten from %s so far?",
	"Imagine we're meeting again in six months, what would need to be true for you to say %s was a success?",
}

var fallbackTemplates = []string{
	"To start, in your own words, what interested you most about %s?",
	"Can you describe the last time you used or thought about %s?",
	"What were you hoping %s would help you achieve or change?",
	"What, if anything, has been frustrating or confusing about %s?",
	"If you could improve one thing about %s, what would it be and why?",
}

func goalOrDefault(goal string) string {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return "this product or experience"
	}
	return goal
}

// BuildQuestionScript renders count open questions from the goal. Count is
// clamped to [1, MaxGeneratedQuestions]; non-positive counts use the default.
// Indices past the template list repeat the final template, matching the
// setup wizard's behavior.
func BuildQuestionScript(goal string, count int) []*Question {
	if count <= 0 {
		count = DefaultGeneratedQuestions
	}
	if count > MaxGeneratedQuestions {
		count = MaxGeneratedQuestions
	}
	subject := goalOrDefault(goal)
	out := make([]*Question, 0, count)
	for i := 0; i < count; i++ {
		tmpl := scriptTemplates[len(scriptTemplates)-1]
		if i < len(scriptTemplates) {
			tmpl = scriptTemplates[i]
		}
		q := &Question{
			Text:          fmt.Sprintf(tmpl, subject),
			Type:          QuestionOpen,
			Category:      GeneralCategory,
			IsRequired:    false,
			AllowFollowUp: true,
			OrderIndex:    i,
		}
		applyQuestionDefaults(q)
		out = append(out, q)
	}
	return out
}

// FallbackQuestionScript is the session engine's stand-in when a survey has
// no persisted questions. The script lives only for the session's lifetime;
// ids are synthetic ordinals, never database keys.
func FallbackQuestionScript(surveyID, goal string) []*Question {
	subject := goalOrDefault(goal)
	out := make([]*Question, 0, len(fallbackTemplates))
	for i, tmpl := range fallbackTemplates {
		q := &Question{
			ID:            strconv.Itoa(i),
			SurveyID:      surveyID,
			Text:          fmt.Sprintf(tmpl, subject),
			Type:          QuestionOpen,
			Category:      GeneralCategory,
			IsRequired:    false,
			AllowFollowUp: true,
			OrderIndex:    i,
		}
		applyQuestionDefaults(q)
		out = append(out, q)
	}
	return out
}
