package store

import "time"

type Board struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Column struct {
	ID        string
	BoardID   string
	Name      string
	Position  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Card struct {
	ID          string
	BoardID     string
	ColumnID    string
	Title       string
	Description string
	Color       string
	Position    int
	ArchivedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Archived reports whether the card is soft-deleted. archived_at is the single
// source of truth: a card is either visible in its column or archived, never both.
func (c Card) Archived() bool {
	return c.ArchivedAt != nil
}

// CardPatch is a partial card update; nil fields are left untouched.
type CardPatch struct {
	Title       *string
	Description *string
	Color       *string
}

// PositionUpdate is one row of a rebalance batch.
type PositionUpdate struct {
	ID       string
	Position int
}
