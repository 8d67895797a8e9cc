package assistant

import (
	"fmt"
	"strings"

	"github.com/suPer8Hu/mind-weather/internal/reflection"
)

const insightSystem = "You are a compassionate mental health companion who helps people explore their thoughts with kindness and wisdom."

const categorizeSystem = "You are a compassionate mental health companion. Analyze thoughts and provide gentle categorization and reflection. Reply with JSON only."

func orDefault(s, d string) string {
	if strings.TrimSpace(s) == "" {
		return d
	}
	return s
}

func insightPrompt(req reflection.InsightRequest) string {
	return fmt.Sprintf(`You are a compassionate mental health companion. Analyze this thought and provide gentle insights.

Thought: "%s"
Primary Feeling: %s
User Reflection: %s

Provide a brief, compassionate response (2-3 sentences) that:
1. Acknowledges their feeling
2. Offers a gentle perspective
3. Encourages self-compassion

Keep the tone warm, non-judgmental, and supportive.`,
		req.ThoughtText,
		orDefault(req.Feeling, "Not specified"),
		orDefault(req.Reflection, "None provided"),
	)
}

func categorizePrompt(texts []string) string {
	var list strings.Builder
	for i, t := range texts {
		fmt.Fprintf(&list, "%d. %s\n", i, t)
	}
	return fmt.Sprintf(`Analyze these thoughts and provide:
1. A category for each (worry, future, rumination, or other)
2. A theme for grouping similar thoughts
3. An overall compassionate reflection (2-3 sentences)

Thoughts (numbered by index):
%s
Respond in JSON format:
{
  "categorized": [
    {
      "index": 0,
      "category": "worry|future|rumination|other",
      "theme": "work|relationships|health|future|etc"
    }
  ],
  "overallReflection": "Your compassionate reflection here"
}`, list.String())
}
