package temporal

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sells-group/answer-router/internal/model"
)

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// highPatterns mark answers that move quickly: leadership, releases, markets,
// results, rankings and anything pinned to a recent year.
var highPatterns = compile(
	`\b(who is the current|who is|who's the)\s+(president|ceo|leader|prime minister|chairman)\b`,
	`\b(current|latest|recent|new)\s+(events?|news|developments?|updates?|breakthroughs?)\b`,
	`\b(what's happening|what is happening|what happened)\s+(today|now|recently)\b`,
	`\bbreaking news\b`,
	`\b(latest|newest|recent|current)\s+(ai|llm|gpt|claude|gemini|model|version|release)\b`,
	`\bwhat (ai|llm|gpt|language) models?\s+(exist|are available|are there)\b`,
	`\b(chatgpt|openai|anthropic|google|meta)\s+(released?|launched?|announced?)\b`,
	`\b(stock|market|crypto|bitcoin|ethereum)\s+(price|performance|value)\b`,
	`\b(tech stocks?|s&p 500|nasdaq|dow jones)\s+(performing|trading)\b`,
	`\bmarket\s+(trends?|conditions?|outlook)\b`,
	`\bwho won\s+(the|last|this year's)\s+\w+\s*(championship|cup|bowl|series|title|election|award)\b`,
	`\b(super bowl|world cup|olympics|grammy|oscar|emmy)\s+(winner|champion|results?)\b`,
	`\bcurrent\s+(champion|leader|holder|ranking)\b`,
	`\b(top|best|most popular)\s+\d+\s+(programming languages?|frameworks?|tools?|apps?|games?)\b`,
	`\b(trending|popular)\s+(on|in)\s+(social media|twitter|x|tiktok|youtube)\b`,
	`\b(most used|most popular|top)\s+\w+\s+(in\s+)?\d{4}\b`,
	`\bwhat'?s?\s+trending\b`,
	`\bviral\s+(content|video|post|meme)\b`,
	`\b(latest|recent|new)\s+(findings?|discoveries?|research|studies?|papers?)\b`,
	`\bbreakthrough\s+(in|for)\b`,
	`\b202[4-9]\b`,
	`\b203\d\b`,
	`\b(this year|this month|this week|today|right now)\b`,
)

var mediumPatterns = compile(
	`\bhow has\s+\w+\s+(changed|evolved|grown|developed)\b`,
	`\b(company|product|service)\s+(strategy|direction|evolution)\b`,
	`\b(current|modern)\s+(understanding|knowledge|view)\s+of\b`,
	`\bstate of\s+(the art|research|science)\b`,
	`\b(best practices?|standards?|guidelines?)\s+(in|for)\b`,
	`\b(recommended|suggested)\s+(approach|method|practice)\b`,
	`\b(regulations?|laws?|policies?|compliance)\s+(around|for|about)\b`,
	`\b(gdpr|ccpa|hipaa|data privacy)\s+(requirements?|updates?)\b`,
)

// timelessPatterns mark settled facts and definitions. They win over every
// other signal.
var timelessPatterns = compile(
	`\bhow many\s+(continents?|planets?|states?|countries?)\b`,
	`\bwhat is\s+the\s+(capital|population|area|distance)\s+of\b`,
	`\bwhat is\s+(photosynthesis|gravity|electricity|evolution)\b`,
	`\bhow does\s+(the body|the heart|the brain|digestion)\s+work\b`,
	`\bwhat is\s+(recursion|polymorphism|inheritance|encapsulation)\b`,
	`\b(explain|define)\s+(algorithm|data structure|design pattern)\b`,
	`\bwhat is\s+(happiness|love|meaning|consciousness|ethics)\b`,
	`\bwhy do\s+(humans?|we|people)\b`,
	`\bwhat is\s+a\s+(database|server|variable|function|class)\b`,
	`\bdefinition of\b`,
)

var futureYearPattern = regexp.MustCompile(`\b(202[4-9]|203\d)\b`)

// ClassifySensitivity grades how much question's answer depends on when it is
// asked, returning the level and a one-sentence explanation.
func ClassifySensitivity(question string) (model.Sensitivity, string) {
	q := strings.ToLower(strings.TrimSpace(question))

	for _, p := range timelessPatterns {
		if p.MatchString(q) {
			return model.SensitivityNone,
				"Question asks about timeless facts or concepts that don't change over time."
		}
	}

	if hits := firstMatches(highPatterns, q, 3); len(hits) > 0 {
		return model.SensitivityHigh, fmt.Sprintf(
			"Question contains high temporal sensitivity indicators: %s. Answer likely changes significantly over time.",
			strings.Join(hits, ", "))
	}

	if hits := firstMatches(mediumPatterns, q, 3); len(hits) > 0 {
		return model.SensitivityMedium, fmt.Sprintf(
			"Question contains moderate temporal sensitivity indicators: %s. Answer may evolve over time.",
			strings.Join(hits, ", "))
	}

	if years := futureYearPattern.FindAllString(question, -1); len(years) > 0 {
		return model.SensitivityHigh, fmt.Sprintf(
			"Question references years %s which are after model knowledge cutoff. Requires time-travel analysis.",
			strings.Join(years, ", "))
	}

	return model.SensitivityLow,
		"No strong temporal indicators detected. Answer is relatively stable over time."
}

func firstMatches(patterns []*regexp.Regexp, s string, limit int) []string {
	var out []string
	for _, p := range patterns {
		if m := p.FindString(s); m != "" {
			out = append(out, m)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}
