package model

import (
	"github.com/google/uuid"
)

// Question is the read-only problem metadata the engine needs. Authoring
// lives in the content service; this service only reads it.
type Question struct {
	ID          uuid.UUID         `json:"id"`
	Title       string            `json:"title"`
	Difficulty  string            `json:"difficulty"`
	PatternName string            `json:"pattern_name"`
	Templates   map[string]string `json:"templates"`
	HintCount   int               `json:"hint_count"`
	BaseXP      int               `json:"base_xp"`
}

// Template returns the starter code for a language, or "" if none exists.
func (q *Question) Template(language string) string {
	if q.Templates == nil {
		return ""
	}
	return q.Templates[language]
}
