// Package llm wraps the hosted generative-language API used for follow-up
// judgment. The engine consumes it fail-open: anything this package cannot
// parse becomes a "do not follow up" verdict, never an error the respondent
// sees.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	genai "google.golang.org/genai"

	"github.com/soaringjerry/ProbeAI/internal/services"
)

const DefaultModel = "gemini-1.5-flash"

const followUpSystemPrompt = `Analyze if the provided answer is shallow or significant. If shallow, generate a context-aware probing follow-up.
RETURN JSON: { "should_follow_up": boolean, "follow_up_question": "string|null", "reason": "string" }
Follow-up must be conversational and target the core GOAL.
Never follow up on an answer that was itself a reply to a follow-up, and never follow up merely to thank the respondent; in both cases return should_follow_up=false.`

// GeminiJudge asks Gemini whether an answer deserves a probing follow-up.
type GeminiJudge struct {
	cli   *genai.Client
	model string
}

func NewGeminiJudge(ctx context.Context, apiKey, model string) (*GeminiJudge, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = DefaultModel
	}
	return &GeminiJudge{cli: cli, model: model}, nil
}

var _ services.FollowUpJudge = (*GeminiJudge)(nil)

// Judge returns the model's structured verdict. A reachable model whose
// output cannot be parsed yields a negative verdict, not an error; only
// transport-level failures surface as errors (the engine logs and advances).
func (g *GeminiJudge) Judge(ctx context.Context, questionText, answer, goal string) (*services.FollowUpJudgment, error) {
	userMessage := fmt.Sprintf("GOAL: %s\nLAST_Q: %s\nUSER_A: %s", goal, questionText, answer)
	full := followUpSystemPrompt + "\n\n" + userMessage

	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: full}}}},
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return noFollowUp("empty model response"), nil
	}
	text := resp.Candidates[0].Content.Parts[0].Text
	verdict := &services.FollowUpJudgment{}
	if !SafeParseJSON(text, verdict) {
		return noFollowUp("unparseable model response"), nil
	}
	return verdict, nil
}

func noFollowUp(reason string) *services.FollowUpJudgment {
	return &services.FollowUpJudgment{ShouldFollowUp: false, Reason: reason}
}

// SafeParseJSON parses possibly fenced or chatty model output into v. It
// tries the whole text first, then the outermost JSON object. Returns false
// when nothing parses; callers treat that as a negative judgment.
func SafeParseJSON(text string, v any) bool {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)
	if json.Unmarshal([]byte(text), v) == nil {
		return true
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return json.Unmarshal([]byte(text[start:end+1]), v) == nil
	}
	return false
}
