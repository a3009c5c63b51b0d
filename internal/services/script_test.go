package services

import (
	"strings"
	"testing"
)

func TestBuildQuestionScriptClamping(t *testing.T) {
	if got := len(BuildQuestionScript("g", 0)); got != DefaultGeneratedQuestions {
		t.Fatalf("count 0 should use the default %d, got %d", DefaultGeneratedQuestions, got)
	}
	if got := len(BuildQuestionScript("g", -3)); got != DefaultGeneratedQuestions {
		t.Fatalf("negative count should use the default, got %d", got)
	}
	if got := len(BuildQuestionScript("g", 50)); got != MaxGeneratedQuestions {
		t.Fatalf("count should clamp to %d, got %d", MaxGeneratedQuestions, got)
	}
	if got := len(BuildQuestionScript("g", 3)); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestBuildQuestionScriptDeterministic(t *testing.T) {
	a := BuildQuestionScript("the beta dashboard", 10)
	b := BuildQuestionScript("the beta dashboard", 10)
	for i := range a {
		if a[i].Text != b[i].Text {
			t.Fatalf("script must be deterministic; %q vs %q at %d", a[i].Text, b[i].Text, i)
		}
		if !strings.Contains(a[i].Text, "the beta dashboard") {
			t.Fatalf("goal missing from question %q", a[i].Text)
		}
		if a[i].Type != QuestionOpen || !a[i].AllowFollowUp {
			t.Fatalf("generated questions are open with follow-ups: %+v", a[i])
		}
		if a[i].OrderIndex != i {
			t.Fatalf("order index mismatch at %d", i)
		}
	}
}

func TestBuildQuestionScriptRepeatsLastTemplate(t *testing.T) {
	qs := BuildQuestionScript("g", 12)
	if qs[10].Text != qs[11].Text || qs[11].Text != qs[len(scriptTemplates)-1].Text {
		t.Fatalf("indices past the template list repeat the final template")
	}
}

func TestBuildQuestionScriptEmptyGoal(t *testing.T) {
	qs := BuildQuestionScript("   ", 1)
	if !strings.Contains(qs[0].Text, "this product or experience") {
		t.Fatalf("empty goal should use the generic subject, got %q", qs[0].Text)
	}
}

func TestFallbackQuestionScript(t *testing.T) {
	qs := FallbackQuestionScript("sv1", "a note-taking app")
	if len(qs) != len(fallbackTemplates) {
		t.Fatalf("expected %d fallback questions, got %d", len(fallbackTemplates), len(qs))
	}
	for i, q := range qs {
		if q.ID == "" || q.SurveyID != "sv1" {
			t.Fatalf("fallback question %d missing synthetic identity: %+v", i, q)
		}
		if !strings.Contains(q.Text, "a note-taking app") {
			t.Fatalf("goal missing from fallback question %q", q.Text)
		}
	}
	again := FallbackQuestionScript("sv1", "a note-taking app")
	for i := range qs {
		if qs[i].ID != again[i].ID || qs[i].Text != again[i].Text {
			t.Fatalf("fallback script must be identical across calls")
		}
	}
}
