package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()
	db, dialect, err := Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := ApplyMigrations(ctx, db, dialect, "../../db/migrations"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewSQLStore(db, dialect)
}

func seedBoard(t *testing.T, s *SQLStore, boardID string) {
	t.Helper()
	now := time.Now().UTC()
	if err := s.CreateBoard(context.Background(), Board{ID: boardID, Name: "Test", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("seed board: %v", err)
	}
}

func seedColumn(t *testing.T, s *SQLStore, columnID, boardID string, pos int) {
	t.Helper()
	now := time.Now().UTC()
	err := s.CreateColumn(context.Background(), Column{
		ID: columnID, BoardID: boardID, Name: columnID, Position: pos, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("seed column: %v", err)
	}
}

func seedCard(t *testing.T, s *SQLStore, card Card) {
	t.Helper()
	now := time.Now().UTC()
	card.CreatedAt = now
	card.UpdatedAt = now
	if err := s.CreateCard(context.Background(), card); err != nil {
		t.Fatalf("seed card: %v", err)
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	db, dialect, err := Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	for i := 0; i < 2; i++ {
		if err := ApplyMigrations(ctx, db, dialect, "../../db/migrations"); err != nil {
			t.Fatalf("migrate pass %d: %v", i+1, err)
		}
	}
}

func TestBoardRoundtrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedBoard(t, s, "brd_1")

	board, err := s.GetBoard(ctx, "brd_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if board.Name != "Test" {
		t.Errorf("name = %q", board.Name)
	}

	ok, err := s.RenameBoard(ctx, "brd_1", "Renamed", time.Now().UTC())
	if err != nil || !ok {
		t.Fatalf("rename: ok=%v err=%v", ok, err)
	}
	board, _ = s.GetBoard(ctx, "brd_1")
	if board.Name != "Renamed" {
		t.Errorf("name after rename = %q", board.Name)
	}

	if ok, _ := s.RenameBoard(ctx, "brd_missing", "X", time.Now().UTC()); ok {
		t.Error("rename of missing board reported success")
	}
}

func TestDeleteBoardCascades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedBoard(t, s, "brd_1")
	seedColumn(t, s, "col_1", "brd_1", 1000)
	seedCard(t, s, Card{ID: "crd_1", BoardID: "brd_1", ColumnID: "col_1", Title: "Task", Position: 1000})

	ok, err := s.DeleteBoard(ctx, "brd_1")
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}

	if _, err := s.GetColumn(ctx, "col_1"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("column survived board delete: %v", err)
	}
	if _, err := s.GetCard(ctx, "crd_1"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("card survived board delete: %v", err)
	}
}

func TestDeleteColumnKeepsArchivedCards(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedBoard(t, s, "brd_1")
	seedColumn(t, s, "col_1", "brd_1", 1000)
	seedCard(t, s, Card{ID: "crd_live", BoardID: "brd_1", ColumnID: "col_1", Title: "Live", Position: 1000})
	seedCard(t, s, Card{ID: "crd_arch", BoardID: "brd_1", ColumnID: "col_1", Title: "Archived", Position: 2000})

	if err := s.ArchiveCard(ctx, "crd_arch", time.Now().UTC()); err != nil {
		t.Fatalf("archive: %v", err)
	}

	ok, err := s.DeleteColumn(ctx, "col_1")
	if err != nil || !ok {
		t.Fatalf("delete column: ok=%v err=%v", ok, err)
	}

	if _, err := s.GetCard(ctx, "crd_live"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("live card survived column delete: %v", err)
	}
	card, err := s.GetCard(ctx, "crd_arch")
	if err != nil {
		t.Fatalf("archived card lost in column delete: %v", err)
	}
	if !card.Archived() {
		t.Error("card lost its archived flag")
	}
	if card.ColumnID != "col_1" {
		t.Errorf("archived card column rewritten to %q", card.ColumnID)
	}
}

func TestArchiveRestoreLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedBoard(t, s, "brd_1")
	seedColumn(t, s, "col_1", "brd_1", 1000)
	seedColumn(t, s, "col_2", "brd_1", 2000)
	seedCard(t, s, Card{ID: "crd_1", BoardID: "brd_1", ColumnID: "col_1", Title: "Task", Position: 1000})

	if err := s.ArchiveCard(ctx, "crd_1", time.Now().UTC()); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if cards, _ := s.ListCards(ctx, "col_1"); len(cards) != 0 {
		t.Errorf("archived card still listed as live: %d", len(cards))
	}
	if count, _ := s.CountArchivedCards(ctx, "brd_1"); count != 1 {
		t.Errorf("archived count = %d", count)
	}

	if err := s.RestoreCard(ctx, "crd_1", "col_2", time.Now().UTC()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	card, err := s.GetCard(ctx, "crd_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if card.Archived() {
		t.Error("card still archived after restore")
	}
	if card.ColumnID != "col_2" {
		t.Errorf("restored into %q, want col_2", card.ColumnID)
	}
	if card.Position != 1000 {
		t.Errorf("restore changed position to %d", card.Position)
	}
}

func TestFirstColumnOrdersByPosition(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedBoard(t, s, "brd_1")
	seedColumn(t, s, "col_b", "brd_1", 2000)
	seedColumn(t, s, "col_a", "brd_1", 1000)

	first, err := s.FirstColumn(ctx, "brd_1")
	if err != nil {
		t.Fatalf("first column: %v", err)
	}
	if first.ID != "col_a" {
		t.Errorf("first column = %s", first.ID)
	}

	if _, err := s.FirstColumn(ctx, "brd_empty"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("empty board err = %v", err)
	}
}

func TestSearchCardsFilters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedBoard(t, s, "brd_1")
	seedColumn(t, s, "col_1", "brd_1", 1000)
	seedCard(t, s, Card{ID: "crd_1", BoardID: "brd_1", ColumnID: "col_1", Title: "Fix login bug", Color: "red", Position: 1000})
	seedCard(t, s, Card{ID: "crd_2", BoardID: "brd_1", ColumnID: "col_1", Title: "Ship release", Description: "login flow polish", Color: "blue", Position: 2000})
	seedCard(t, s, Card{ID: "crd_3", BoardID: "brd_1", ColumnID: "col_1", Title: "Write docs", Position: 3000})

	cards, err := s.SearchCards(ctx, "brd_1", "LOGIN", "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(cards) != 2 {
		t.Errorf("substring match over title and description = %d cards", len(cards))
	}

	cards, err = s.SearchCards(ctx, "brd_1", "login", "red")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(cards) != 1 || cards[0].ID != "crd_1" {
		t.Errorf("color filter = %+v", cards)
	}

	if err := s.ArchiveCard(ctx, "crd_1", time.Now().UTC()); err != nil {
		t.Fatalf("archive: %v", err)
	}
	cards, _ = s.SearchCards(ctx, "brd_1", "login", "")
	if len(cards) != 1 {
		t.Errorf("search returned archived cards: %d", len(cards))
	}
}

func TestUpdateCardPatchesOnlySetFields(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedBoard(t, s, "brd_1")
	seedColumn(t, s, "col_1", "brd_1", 1000)
	seedCard(t, s, Card{ID: "crd_1", BoardID: "brd_1", ColumnID: "col_1", Title: "Old", Description: "keep me", Position: 1000})

	title := "New"
	ok, err := s.UpdateCard(ctx, "crd_1", CardPatch{Title: &title}, time.Now().UTC())
	if err != nil || !ok {
		t.Fatalf("update: ok=%v err=%v", ok, err)
	}
	card, _ := s.GetCard(ctx, "crd_1")
	if card.Title != "New" || card.Description != "keep me" {
		t.Errorf("patch touched unset fields: %+v", card)
	}

	if ok, err := s.UpdateCard(ctx, "crd_1", CardPatch{}, time.Now().UTC()); ok || err != nil {
		t.Errorf("empty patch: ok=%v err=%v", ok, err)
	}
}

func TestUpdateCardPositionsBatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedBoard(t, s, "brd_1")
	seedColumn(t, s, "col_1", "brd_1", 1000)
	seedCard(t, s, Card{ID: "crd_1", BoardID: "brd_1", ColumnID: "col_1", Title: "A", Position: 1000})
	seedCard(t, s, Card{ID: "crd_2", BoardID: "brd_1", ColumnID: "col_1", Title: "B", Position: 1001})

	err := s.UpdateCardPositions(ctx, []PositionUpdate{
		{ID: "crd_1", Position: 1000},
		{ID: "crd_2", Position: 2000},
	}, time.Now().UTC())
	if err != nil {
		t.Fatalf("batch: %v", err)
	}

	cards, err := s.ListCards(ctx, "col_1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if cards[0].Position != 1000 || cards[1].Position != 2000 {
		t.Errorf("positions = %d/%d", cards[0].Position, cards[1].Position)
	}
}

func TestRebindRewritesPlaceholdersForPostgres(t *testing.T) {
	query := `UPDATE cards SET position = ?, updated_at = ? WHERE id = ?`
	got := Postgres.rebind(query)
	want := `UPDATE cards SET position = $1, updated_at = $2 WHERE id = $3`
	if got != want {
		t.Errorf("rebind = %q", got)
	}
	if SQLite.rebind(query) != query {
		t.Errorf("sqlite rebind changed the query")
	}
}
