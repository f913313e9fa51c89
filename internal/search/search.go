// Package search finds cards by text and color. Meilisearch serves queries
// when it is configured and healthy; otherwise a SQL fallback does substring
// matching against the store.
package search

import "context"

// Query filters the live cards of one board.
type Query struct {
	BoardID string
	Text    string
	Color   string
	Limit   int
}

// Result is one matching card with enough fields to render it.
type Result struct {
	ID          string `json:"id"`
	BoardID     string `json:"boardId"`
	ColumnID    string `json:"columnId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       string `json:"color"`
	Position    int    `json:"position"`
}

// CardRecord is the indexed shape of a card.
type CardRecord struct {
	ID          string `json:"id"`
	BoardID     string `json:"boardId"`
	ColumnID    string `json:"columnId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       string `json:"color"`
	Position    int    `json:"position"`
	Archived    bool   `json:"archived"`
}

// Fallback answers queries when Meilisearch cannot.
type Fallback interface {
	Search(ctx context.Context, q Query) ([]Result, error)
}
