package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/montanaflynn/stats"
)

// LexiconStrategy is the default, fully deterministic analysis strategy: a
// small sentiment lexicon scores each answer, themes group by question
// category, and the rest of the report is templated from the survey goal.
// No model inference happens here.
type LexiconStrategy struct{}

var positiveLexicon = wordSet(
	"love", "loved", "great", "good", "easy", "helpful", "useful", "fast",
	"excellent", "amazing", "simple", "intuitive", "clear", "enjoy",
	"enjoyed", "happy", "valuable", "recommend", "smooth", "reliable",
	"convenient", "better", "best", "nice", "awesome",
)

var negativeLexicon = wordSet(
	"hate", "hated", "confusing", "confused", "frustrating", "frustrated",
	"slow", "bad", "difficult", "hard", "broken", "annoying", "expensive",
	"clunky", "unclear", "missing", "problem", "problems", "bug", "bugs",
	"crash", "crashes", "disappointing", "worse", "worst", "stuck",
)

func wordSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// scoreAnswer returns a sentiment in [-1, 1]; 0 when the lexicon has nothing
// to say about the text.
func scoreAnswer(text string) float64 {
	pos, neg := 0, 0
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return r < 'a' || r > 'z'
	}) {
		if _, ok := positiveLexicon[tok]; ok {
			pos++
		}
		if _, ok := negativeLexicon[tok]; ok {
			neg++
		}
	}
	if pos+neg == 0 {
		return 0
	}
	return float64(pos-neg) / float64(pos+neg)
}

func (LexiconStrategy) Analyze(sv *Survey, transcripts []*SessionTranscript) *Analysis {
	goal := goalOrDefault(sv.Goal)

	var answers []string
	var scores []float64
	byCategory := map[string][]*Response{}
	for _, tr := range transcripts {
		for _, r := range tr.Responses {
			answers = append(answers, r.Answer)
			scores = append(scores, scoreAnswer(r.Answer))
			cat := r.Category
			if cat == "" {
				cat = GeneralCategory
			}
			byCategory[cat] = append(byCategory[cat], r)
		}
	}

	// Overall sentiment on a 0..10 scale; neutral when nothing was said.
	overall := 5.0
	if len(scores) > 0 {
		mean, err := stats.Mean(scores)
		if err == nil {
			overall, _ = stats.Round((mean+1)*5, 1)
		}
	}

	// NPS-like score: share of clearly positive answers minus share of
	// clearly negative ones.
	nps := 0.0
	if len(scores) > 0 {
		promoters, detractors := 0, 0
		for _, sc := range scores {
			switch {
			case sc > 0.3:
				promoters++
			case sc < -0.3:
				detractors++
			}
		}
		nps, _ = stats.Round(float64(promoters-detractors)/float64(len(scores))*100, 0)
	}

	categories := make([]string, 0, len(byCategory))
	for cat := range byCategory {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	themes := make([]Theme, 0, len(byCategory))
	worstCategory := ""
	worstScore := 0.0
	for _, cat := range categories {
		rs := byCategory[cat]
		catScores := make([]float64, 0, len(rs))
		quotes := make([]string, 0, 3)
		for _, r := range rs {
			catScores = append(catScores, scoreAnswer(r.Answer))
			if len(quotes) < 3 && strings.TrimSpace(r.Answer) != "" {
				quotes = append(quotes, r.Answer)
			}
		}
		mean, err := stats.Mean(catScores)
		if err != nil {
			mean = 0
		}
		mean, _ = stats.Round(mean, 2)
		themes = append(themes, Theme{
			Theme:     themeTitle(cat),
			Summary:   fmt.Sprintf("What respondents said when asked about %s in the context of %s.", strings.ToLower(themeTitle(cat)), goal),
			Sentiment: mean,
			Quotes:    quotes,
		})
		if mean < worstScore {
			worstScore = mean
			worstCategory = cat
		}
	}
	if len(themes) == 0 {
		themes = append(themes, Theme{
			Theme:     "Perceived Value",
			Summary:   "Respondents can clearly articulate what they expect to get from the experience and how it fits into their workflow.",
			Sentiment: 0.5,
			Quotes:    firstN(answers, 3),
		})
	}

	painPoints := []PainPoint{{
		Point:    "Onboarding & clarity",
		Severity: 6,
		Evidence: "Several respondents mentioned moments of confusion, hesitation, or friction when first trying the experience.",
	}}
	if worstCategory != "" {
		painPoints = append(painPoints, PainPoint{
			Point:    fmt.Sprintf("Friction around %s", strings.ToLower(themeTitle(worstCategory))),
			Severity: severityFromScore(worstScore),
			Evidence: fmt.Sprintf("Answers tagged %q lean negative; this is the weakest area of the current experience.", worstCategory),
		})
	}

	opportunities := []Opportunity{{
		Opportunity: "Tighten first-time experience",
		Impact:      "High",
		Effort:      "Med",
		Evidence:    "Many comments suggest that clearer guidance and expectations on first use would unlock more value, faster.",
	}}
	if worstCategory != "" {
		opportunities = append(opportunities, Opportunity{
			Opportunity: fmt.Sprintf("Address %s friction", strings.ToLower(themeTitle(worstCategory))),
			Impact:      "High",
			Effort:      "Med",
			Evidence:    fmt.Sprintf("Improving the weakest theme is the most direct path to lifting overall sentiment about %s.", goal),
		})
	}

	actionPlan := []ActionItem{{
		Action:    "Redesign the first 5 minutes of the experience",
		Priority:  "Urgent",
		Rationale: "Early moments shape overall sentiment; streamlining onboarding is the fastest way to improve outcomes for new users.",
	}}

	return &Analysis{
		ExecutiveSummary: summarySentence(sv.Goal, len(transcripts)),
		OverallSentiment: overall,
		NPSScore:         nps,
		ResponseCount:    len(transcripts),
		Themes:           themes,
		PainPoints:       painPoints,
		Opportunities:    opportunities,
		ActionPlan:       actionPlan,
	}
}

func themeTitle(category string) string {
	category = strings.TrimSpace(category)
	if category == "" || strings.EqualFold(category, GeneralCategory) {
		return "General Feedback"
	}
	words := strings.Fields(strings.ReplaceAll(strings.ReplaceAll(category, "_", " "), "-", " "))
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
		}
	}
	return strings.Join(words, " ")
}

func severityFromScore(score float64) int {
	// score is in [-1, 0); map to severity 5..10.
	sev := 5 + int(-score*5+0.5)
	if sev > 10 {
		sev = 10
	}
	if sev < 1 {
		sev = 1
	}
	return sev
}

func firstN(items []string, n int) []string {
	if len(items) < n {
		n = len(items)
	}
	out := make([]string, 0, n)
	for _, it := range items[:n] {
		if strings.TrimSpace(it) != "" {
			out = append(out, it)
		}
	}
	return out
}
