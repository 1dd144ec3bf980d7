package classify

import "strings"

const systemPrompt = "You are a query classifier. Respond only with valid JSON."

// promptTemplate placeholders: {{cutoff}}, {{cheap}}, {{mid}}, {{best}}, {{question}}.
const promptTemplate = `You classify incoming questions so they can be routed to the right AI models.

KNOWLEDGE CUTOFF: every model only knows about events up to {{cutoff}}. A question about anything after that date needs web search.

Classify the question on these dimensions.

COMPLEXITY
- simple: one-step direct answers such as facts, definitions and quick lookups.
- moderate: two-step reasoning or multi-part analysis needing some explanation or comparison.
- complex: deep reasoning, subjective or multi-perspective topics, long creative work, specialist knowledge.
A question with temporal keywords (latest, current, recent, trending, breaking, this week, now, today, or a year after the cutoff) is never simple.

INTENT
- factual: facts, information, data.
- creative: original writing, ideas, designs, stories.
- analytical: explain, break down or give insight into a concept.
- procedural: how-to guides and step-by-step instructions.
- comparative: alternatives, pros and cons, recommendations.

DOMAIN
- coding: software development, debugging, architecture, programming languages.
- technical: science, engineering, mathematics, systems.
- general: everyday questions and general knowledge.
- creative: art, writing, music, design.
- research: academic or deep domain expertise.

REQUIRES_SEARCH
- true when the question needs real-time data, current events or anything after {{cutoff}}.
- false when training knowledge is enough.

RECOMMENDED_MODELS
- {{cheap}}: fast and cheap, for simple factual lookups.
- {{mid}}: balanced, for moderate and creative work.
- {{best}}: strongest reasoning, for complex analysis.
Recommend at least two models for temporal questions that need search.

EXAMPLES
Question: "What is the capital of France?"
{"complexity": "simple", "intent": "factual", "domain": "general", "requires_search": false, "recommended_models": ["{{cheap}}"], "reasoning": "Single definitive fact.", "confidence": 0.98}

Question: "What's trending in tech right now?"
{"complexity": "moderate", "intent": "factual", "domain": "technical", "requires_search": true, "recommended_models": ["{{cheap}}", "{{mid}}"], "reasoning": "TEMPORAL QUERY: 'trending' and 'right now' need data past the cutoff.", "confidence": 0.92}

Question: "Compare React vs Vue for a new web project"
{"complexity": "moderate", "intent": "comparative", "domain": "coding", "requires_search": false, "recommended_models": ["{{cheap}}", "{{mid}}"], "reasoning": "Comparison of two well-known frameworks.", "confidence": 0.90}

Question: "How do I make pasta carbonara?"
{"complexity": "simple", "intent": "procedural", "domain": "general", "requires_search": false, "recommended_models": ["{{cheap}}"], "reasoning": "Straightforward recipe.", "confidence": 0.96}

Question: "Design a microservices architecture for an e-commerce platform"
{"complexity": "complex", "intent": "analytical", "domain": "coding", "requires_search": false, "recommended_models": ["{{best}}", "{{mid}}", "{{cheap}}"], "reasoning": "Architectural design with many trade-offs.", "confidence": 0.94}

Question: "What are the current stock prices for NVIDIA?"
{"complexity": "moderate", "intent": "factual", "domain": "general", "requires_search": true, "recommended_models": ["{{cheap}}", "{{mid}}"], "reasoning": "TEMPORAL QUERY: prices change constantly.", "confidence": 0.96}

Question: "Write a 2000-word short story about a time traveler"
{"complexity": "complex", "intent": "creative", "domain": "creative", "requires_search": false, "recommended_models": ["{{best}}", "{{mid}}", "{{cheap}}"], "reasoning": "Long-form creative writing.", "confidence": 0.93}

Question: "Help me understand quantum entanglement"
{"complexity": "complex", "intent": "analytical", "domain": "technical", "requires_search": false, "recommended_models": ["{{best}}", "{{mid}}", "{{cheap}}"], "reasoning": "Hard physics concept needing careful explanation.", "confidence": 0.90}

Now classify this question:

Question: "{{question}}"

Respond with ONLY a JSON object in this exact shape:
{"complexity": "simple|moderate|complex", "intent": "factual|creative|analytical|procedural|comparative", "domain": "coding|technical|general|creative|research", "requires_search": true|false, "recommended_models": ["model1", "model2"], "reasoning": "explanation", "confidence": 0.0-1.0}`

func (c *Classifier) buildPrompt(question string) string {
	return strings.NewReplacer(
		"{{cutoff}}", c.cfg.CutoffDisplay,
		"{{cheap}}", c.cfg.Tiers.Cheap,
		"{{mid}}", c.cfg.Tiers.Mid,
		"{{best}}", c.cfg.Tiers.Best,
		"{{question}}", question,
	).Replace(promptTemplate)
}
