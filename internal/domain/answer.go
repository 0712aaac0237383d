// Package domain contains core domain types for the Helpi assistant.
package domain

// ScoredAnswer is a single ranked candidate answer from the knowledge base.
// Answers arrive ordered descending by score and are never persisted.
type ScoredAnswer struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Percent returns the score as a rounded whole percentage for display.
func (a ScoredAnswer) Percent() int {
	return int(a.Score*100 + 0.5)
}
