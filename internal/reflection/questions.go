package reflection

import (
	"fmt"
	"strconv"
	"strings"
)

type QuestionID string

const (
	QuestionCanChange  QuestionID = "can-change"
	QuestionHelpsHurts QuestionID = "helps-hurts"
	QuestionFeeling    QuestionID = "feeling"
	QuestionReflection QuestionID = "reflection"
	QuestionIntensity  QuestionID = "intensity"
)

type QuestionKind string

const (
	KindChoice QuestionKind = "choice"
	KindText   QuestionKind = "text"
)

type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

type Question struct {
	ID          QuestionID   `json:"id"`
	Text        string       `json:"text"`
	Kind        QuestionKind `json:"type"`
	Options     []Option     `json:"options,omitempty"`
	Placeholder string       `json:"placeholder,omitempty"`
}

// Prompt is the text shown and narrated for the question, with the
// thought under reflection substituted where the question refers to it.
func (q Question) Prompt(thoughtText string) string {
	if strings.Contains(q.Text, "%s") {
		return fmt.Sprintf(q.Text, thoughtText)
	}
	return q.Text
}

func (q Question) Accepts(value string) bool {
	if q.Kind != KindChoice {
		return true
	}
	for _, o := range q.Options {
		if o.Value == value {
			return true
		}
	}
	return false
}

// Questions is the fixed sequence every thought walks through.
var Questions = []Question{
	{
		ID:   QuestionCanChange,
		Text: "Is this something you can still change in any way, or is it more about accepting what has already happened?",
		Kind: KindChoice,
		Options: []Option{
			{Value: "can-change", Label: "I can change something about it"},
			{Value: "accept", Label: "I can't change it; I may need to accept it"},
			{Value: "not-sure", Label: "I'm not sure yet"},
		},
	},
	{
		ID:   QuestionHelpsHurts,
		Text: "Does holding onto this thought mostly help you, or mostly hurt you?",
		Kind: KindChoice,
		Options: []Option{
			{Value: "helps", Label: "It mostly helps me"},
			{Value: "hurts", Label: "It mostly hurts me"},
			{Value: "not-sure", Label: "I'm not sure"},
		},
	},
	{
		ID:          QuestionFeeling,
		Text:        "When this thought shows up, what feeling do you notice most strongly?",
		Kind:        KindText,
		Placeholder: "For example: anxious, guilty, sad, tense, heavy, angry, numb, or something else",
	},
	{
		ID:          QuestionReflection,
		Text:        "Let's look gently at this thought: \"%s\" What part of this feels most true to you?",
		Kind:        KindText,
		Placeholder: "Type a few words about how this feels...",
	},
	{
		ID:          QuestionIntensity,
		Text:        "On a scale of 1-10, how intense does this thought feel right now?",
		Kind:        KindText,
		Placeholder: "Enter a number from 1 to 10",
	},
}

// TotalSteps is the number of questions per thought.
var TotalSteps = len(Questions)

const (
	DefaultIntensity = 5
	MinIntensity     = 1
	MaxIntensity     = 10
)

// ParseIntensity reads the leading integer of the intensity answer, so
// "7.5" and "7 or so" read as 7. No number, or zero, yields
// DefaultIntensity; other values are clamped to 1..10.
func ParseIntensity(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil || n == 0 {
		return DefaultIntensity
	}
	if n < MinIntensity {
		return MinIntensity
	}
	if n > MaxIntensity {
		return MaxIntensity
	}
	return n
}

// Answers holds one thought's in-progress answers keyed by question.
type Answers map[QuestionID]string

// heuristicCategory derives a category and theme from the two choice answers.
// It stands in until the assistant classifies the thought.
func (a Answers) heuristicCategory() (Category, string) {
	c := CategoryOther
	switch a[QuestionCanChange] {
	case "can-change":
		c = CategoryFuture
	case "accept":
		c = CategoryRumination
	case "not-sure":
		c = CategoryWorry
	}
	theme := strings.TrimSpace(a[QuestionHelpsHurts])
	if theme == "" {
		theme = ThemeOther
	}
	return c, theme
}

// patch converts the answers into the thought columns they persist to.
func (a Answers) patch() ThoughtPatch {
	opt := func(id QuestionID) *string {
		v, ok := a[id]
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		v = strings.TrimSpace(v)
		return &v
	}
	intensity := ParseIntensity(a[QuestionIntensity])
	return ThoughtPatch{
		CanChange:      opt(QuestionCanChange),
		HelpsOrHurts:   opt(QuestionHelpsHurts),
		PrimaryFeeling: opt(QuestionFeeling),
		Reflection:     opt(QuestionReflection),
		Intensity:      &intensity,
	}
}
