package reflection

import (
	"fmt"
	"strings"
	"time"
)

type MindWeather string

const (
	WeatherSunny  MindWeather = "sunny"
	WeatherCloudy MindWeather = "cloudy"
	WeatherStormy MindWeather = "stormy"
	WeatherFoggy  MindWeather = "foggy"
)

func ParseMindWeather(s string) (MindWeather, error) {
	w := MindWeather(strings.ToLower(strings.TrimSpace(s)))
	switch w {
	case WeatherSunny, WeatherCloudy, WeatherStormy, WeatherFoggy:
		return w, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidWeather, s)
}

type Category string

const (
	CategoryWorry      Category = "worry"
	CategoryFuture     Category = "future"
	CategoryRumination Category = "rumination"
	CategoryOther      Category = "other"
)

// Categories lists every category in display order.
var Categories = []Category{CategoryWorry, CategoryFuture, CategoryRumination, CategoryOther}

// ParseCategory maps free text onto the closed category set; anything
// unrecognised becomes other.
func ParseCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case CategoryWorry, CategoryFuture, CategoryRumination, CategoryOther:
		return c
	}
	return CategoryOther
}

const ThemeOther = "other"

type Session struct {
	ID                string      `gorm:"primaryKey;type:varchar(26)" json:"id"`
	MindWeather       MindWeather `gorm:"type:varchar(16);not null" json:"mind_weather"`
	StartedAt         time.Time   `gorm:"not null" json:"started_at"`
	CompletedAt       *time.Time  `json:"completed_at,omitempty"`
	ThoughtsExplored  int         `gorm:"not null;default:0" json:"thoughts_explored"`
	AverageIntensity  *float64    `json:"average_intensity,omitempty"`
	OverallReflection *string     `gorm:"type:text" json:"overall_reflection,omitempty"`
}

func (Session) TableName() string { return "sessions" }

type Thought struct {
	ID          string `gorm:"primaryKey;type:varchar(26)" json:"id"`
	SessionID   string `gorm:"type:varchar(26);not null;index:idx_thoughts_session_created,priority:1" json:"session_id"`
	ThoughtText string `gorm:"type:text;not null" json:"thought_text"`

	// answers recorded by the question flow
	CanChange      *string `gorm:"type:varchar(16)" json:"can_change,omitempty"`
	HelpsOrHurts   *string `gorm:"type:varchar(16)" json:"helps_or_hurts,omitempty"`
	PrimaryFeeling *string `gorm:"type:text" json:"primary_feeling,omitempty"`
	Reflection     *string `gorm:"type:text" json:"reflection,omitempty"`
	Intensity      *int    `json:"intensity,omitempty"`

	Category *Category `gorm:"type:varchar(16)" json:"category,omitempty"`
	Theme    *string   `gorm:"type:varchar(64)" json:"theme,omitempty"`

	CreatedAt time.Time `gorm:"not null;index:idx_thoughts_session_created,priority:2" json:"created_at"`
}

func (Thought) TableName() string { return "thoughts" }

// SessionPatch is a partial update; nil fields are left untouched.
type SessionPatch struct {
	ThoughtsExplored  *int
	CompletedAt       *time.Time
	AverageIntensity  *float64
	OverallReflection *string
}

func (p SessionPatch) Apply(s *Session) {
	if p.ThoughtsExplored != nil {
		s.ThoughtsExplored = *p.ThoughtsExplored
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		s.CompletedAt = &t
	}
	if p.AverageIntensity != nil {
		v := *p.AverageIntensity
		s.AverageIntensity = &v
	}
	if p.OverallReflection != nil {
		v := *p.OverallReflection
		s.OverallReflection = &v
	}
}

// Columns returns the patch as a column map for gorm Updates.
func (p SessionPatch) Columns() map[string]any {
	cols := map[string]any{}
	if p.ThoughtsExplored != nil {
		cols["thoughts_explored"] = *p.ThoughtsExplored
	}
	if p.CompletedAt != nil {
		cols["completed_at"] = *p.CompletedAt
	}
	if p.AverageIntensity != nil {
		cols["average_intensity"] = *p.AverageIntensity
	}
	if p.OverallReflection != nil {
		cols["overall_reflection"] = *p.OverallReflection
	}
	return cols
}

// ThoughtPatch is a partial update; nil fields are left untouched.
// Category and Theme travel together.
type ThoughtPatch struct {
	CanChange      *string
	HelpsOrHurts   *string
	PrimaryFeeling *string
	Reflection     *string
	Intensity      *int

	Category *Category
	Theme    *string
}

func (p ThoughtPatch) Validate() error {
	if (p.Category == nil) != (p.Theme == nil) {
		return ErrCategoryWithoutTheme
	}
	return nil
}

func (p ThoughtPatch) Apply(t *Thought) {
	setStr := func(dst **string, v *string) {
		if v != nil {
			s := *v
			*dst = &s
		}
	}
	setStr(&t.CanChange, p.CanChange)
	setStr(&t.HelpsOrHurts, p.HelpsOrHurts)
	setStr(&t.PrimaryFeeling, p.PrimaryFeeling)
	setStr(&t.Reflection, p.Reflection)
	setStr(&t.Theme, p.Theme)
	if p.Intensity != nil {
		n := *p.Intensity
		t.Intensity = &n
	}
	if p.Category != nil {
		c := *p.Category
		t.Category = &c
	}
}

func (p ThoughtPatch) Columns() map[string]any {
	cols := map[string]any{}
	if p.CanChange != nil {
		cols["can_change"] = *p.CanChange
	}
	if p.HelpsOrHurts != nil {
		cols["helps_or_hurts"] = *p.HelpsOrHurts
	}
	if p.PrimaryFeeling != nil {
		cols["primary_feeling"] = *p.PrimaryFeeling
	}
	if p.Reflection != nil {
		cols["reflection"] = *p.Reflection
	}
	if p.Intensity != nil {
		cols["intensity"] = *p.Intensity
	}
	if p.Category != nil {
		cols["category"] = string(*p.Category)
	}
	if p.Theme != nil {
		cols["theme"] = *p.Theme
	}
	return cols
}

// CategorizedAs builds the patch that sets category and theme together.
func CategorizedAs(c Category, theme string) ThoughtPatch {
	if strings.TrimSpace(theme) == "" {
		theme = ThemeOther
	}
	return ThoughtPatch{Category: &c, Theme: &theme}
}
