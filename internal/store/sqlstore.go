package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SQLStore persists boards, columns and cards. It is handed an open *sql.DB
// rather than owning a global connection; the dialect drives placeholder
// rebinding so the same queries run on SQLite and Postgres.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) q(query string) string {
	return s.dialect.rebind(query)
}

// ---- boards ----

func (s *SQLStore) CreateBoard(ctx context.Context, board Board) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO boards (id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`), board.ID, board.Name, board.CreatedAt, board.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert board: %w", err)
	}
	return nil
}

func (s *SQLStore) GetBoard(ctx context.Context, boardID string) (Board, error) {
	var board Board
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, name, created_at, updated_at FROM boards WHERE id = ?
	`), boardID).Scan(&board.ID, &board.Name, &board.CreatedAt, &board.UpdatedAt)
	if err != nil {
		return Board{}, err
	}
	return board, nil
}

func (s *SQLStore) ListBoards(ctx context.Context) ([]Board, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at, updated_at FROM boards ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	defer rows.Close()

	var boards []Board
	for rows.Next() {
		var board Board
		if err := rows.Scan(&board.ID, &board.Name, &board.CreatedAt, &board.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan board: %w", err)
		}
		boards = append(boards, board)
	}
	return boards, rows.Err()
}

func (s *SQLStore) RenameBoard(ctx context.Context, boardID, name string, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, s.q(`
		UPDATE boards SET name = ?, updated_at = ? WHERE id = ?
	`), name, now, boardID)
	if err != nil {
		return false, fmt.Errorf("rename board: %w", err)
	}
	affected, err := result.RowsAffected()
	return affected > 0, err
}

func (s *SQLStore) DeleteBoard(ctx context.Context, boardID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, s.q(`DELETE FROM boards WHERE id = ?`), boardID)
	if err != nil {
		return false, fmt.Errorf("delete board: %w", err)
	}
	affected, err := result.RowsAffected()
	return affected > 0, err
}

// ---- columns ----

func (s *SQLStore) CreateColumn(ctx context.Context, column Column) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO columns (id, board_id, name, position, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), column.ID, column.BoardID, column.Name, column.Position, column.CreatedAt, column.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert column: %w", err)
	}
	return nil
}

func (s *SQLStore) GetColumn(ctx context.Context, columnID string) (Column, error) {
	var column Column
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, board_id, name, position, created_at, updated_at
		FROM columns WHERE id = ?
	`), columnID).Scan(&column.ID, &column.BoardID, &column.Name, &column.Position, &column.CreatedAt, &column.UpdatedAt)
	if err != nil {
		return Column{}, err
	}
	return column, nil
}

func (s *SQLStore) ListColumns(ctx context.Context, boardID string) ([]Column, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, board_id, name, position, created_at, updated_at
		FROM columns WHERE board_id = ? ORDER BY position
	`), boardID)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var column Column
		if err := rows.Scan(&column.ID, &column.BoardID, &column.Name, &column.Position, &column.CreatedAt, &column.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, column)
	}
	return columns, rows.Err()
}

// FirstColumn returns the board's lowest-positioned column, or sql.ErrNoRows
// if the board has none.
func (s *SQLStore) FirstColumn(ctx context.Context, boardID string) (Column, error) {
	var column Column
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, board_id, name, position, created_at, updated_at
		FROM columns WHERE board_id = ? ORDER BY position LIMIT 1
	`), boardID).Scan(&column.ID, &column.BoardID, &column.Name, &column.Position, &column.CreatedAt, &column.UpdatedAt)
	if err != nil {
		return Column{}, err
	}
	return column, nil
}

func (s *SQLStore) RenameColumn(ctx context.Context, columnID, name string, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, s.q(`
		UPDATE columns SET name = ?, updated_at = ? WHERE id = ?
	`), name, now, columnID)
	if err != nil {
		return false, fmt.Errorf("rename column: %w", err)
	}
	affected, err := result.RowsAffected()
	return affected > 0, err
}

func (s *SQLStore) UpdateColumnPosition(ctx context.Context, columnID string, pos int, now time.Time) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		UPDATE columns SET position = ?, updated_at = ? WHERE id = ?
	`), pos, now, columnID)
	if err != nil {
		return fmt.Errorf("update column position: %w", err)
	}
	return nil
}

// UpdateColumnPositions applies a rebalance batch in one transaction. A
// partial rebalance would reintroduce duplicate positions, so the batch is
// all-or-nothing.
func (s *SQLStore) UpdateColumnPositions(ctx context.Context, updates []PositionUpdate, now time.Time) error {
	return s.applyPositions(ctx, "columns", updates, now)
}

// DeleteColumn removes a column and its active cards. Archived cards keep
// their row (and a dangling column_id) so restore can re-home them.
func (s *SQLStore) DeleteColumn(ctx context.Context, columnID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin delete column: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.q(`
		DELETE FROM cards WHERE column_id = ? AND archived_at IS NULL
	`), columnID); err != nil {
		return false, fmt.Errorf("delete column cards: %w", err)
	}

	result, err := tx.ExecContext(ctx, s.q(`DELETE FROM columns WHERE id = ?`), columnID)
	if err != nil {
		return false, fmt.Errorf("delete column: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete column: %w", err)
	}
	return affected > 0, nil
}

// ---- cards ----

const cardColumns = `id, board_id, column_id, title, description, color, position, archived_at, created_at, updated_at`

func scanCard(row interface{ Scan(...any) error }) (Card, error) {
	var card Card
	err := row.Scan(&card.ID, &card.BoardID, &card.ColumnID, &card.Title, &card.Description,
		&card.Color, &card.Position, &card.ArchivedAt, &card.CreatedAt, &card.UpdatedAt)
	return card, err
}

func (s *SQLStore) CreateCard(ctx context.Context, card Card) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO cards (id, board_id, column_id, title, description, color, position, archived_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), card.ID, card.BoardID, card.ColumnID, card.Title, card.Description, card.Color,
		card.Position, card.ArchivedAt, card.CreatedAt, card.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert card: %w", err)
	}
	return nil
}

func (s *SQLStore) GetCard(ctx context.Context, cardID string) (Card, error) {
	return scanCard(s.db.QueryRowContext(ctx, s.q(`
		SELECT `+cardColumns+` FROM cards WHERE id = ?
	`), cardID))
}

// ListCards returns a column's live cards ordered by position.
func (s *SQLStore) ListCards(ctx context.Context, columnID string) ([]Card, error) {
	return s.queryCards(ctx, `
		SELECT `+cardColumns+` FROM cards
		WHERE column_id = ? AND archived_at IS NULL
		ORDER BY position
	`, columnID)
}

// ListBoardCards returns every live card on a board, ordered for display.
func (s *SQLStore) ListBoardCards(ctx context.Context, boardID string) ([]Card, error) {
	return s.queryCards(ctx, `
		SELECT `+cardColumns+` FROM cards
		WHERE board_id = ? AND archived_at IS NULL
		ORDER BY column_id, position
	`, boardID)
}

func (s *SQLStore) ListArchivedCards(ctx context.Context, boardID string) ([]Card, error) {
	return s.queryCards(ctx, `
		SELECT `+cardColumns+` FROM cards
		WHERE board_id = ? AND archived_at IS NOT NULL
		ORDER BY archived_at DESC
	`, boardID)
}

func (s *SQLStore) CountArchivedCards(ctx context.Context, boardID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT COUNT(1) FROM cards WHERE board_id = ? AND archived_at IS NOT NULL
	`), boardID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count archived cards: %w", err)
	}
	return count, nil
}

// SearchCards filters a board's live cards by case-insensitive substring on
// title/description and by exact color. Empty filters match everything.
func (s *SQLStore) SearchCards(ctx context.Context, boardID, query, color string) ([]Card, error) {
	sqlText := `
		SELECT ` + cardColumns + ` FROM cards
		WHERE board_id = ? AND archived_at IS NULL
	`
	args := []any{boardID}
	if query != "" {
		sqlText += ` AND (LOWER(title) LIKE ? OR LOWER(description) LIKE ?)`
		pattern := "%" + strings.ToLower(query) + "%"
		args = append(args, pattern, pattern)
	}
	if color != "" {
		sqlText += ` AND color = ?`
		args = append(args, color)
	}
	sqlText += ` ORDER BY column_id, position`
	return s.queryCards(ctx, sqlText, args...)
}

// UpdateCard applies the non-nil fields of patch. Returns false when the card
// does not exist or nothing was set.
func (s *SQLStore) UpdateCard(ctx context.Context, cardID string, patch CardPatch, now time.Time) (bool, error) {
	sets := []string{}
	args := []any{}
	if patch.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *patch.Title)
	}
	if patch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *patch.Description)
	}
	if patch.Color != nil {
		sets = append(sets, "color = ?")
		args = append(args, *patch.Color)
	}
	if len(sets) == 0 {
		return false, nil
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, now, cardID)

	result, err := s.db.ExecContext(ctx, s.q(`UPDATE cards SET `+strings.Join(sets, ", ")+` WHERE id = ?`), args...)
	if err != nil {
		return false, fmt.Errorf("update card: %w", err)
	}
	affected, err := result.RowsAffected()
	return affected > 0, err
}

func (s *SQLStore) UpdateCardPosition(ctx context.Context, cardID string, pos int, now time.Time) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		UPDATE cards SET position = ?, updated_at = ? WHERE id = ?
	`), pos, now, cardID)
	if err != nil {
		return fmt.Errorf("update card position: %w", err)
	}
	return nil
}

// UpdateCardPositions applies a rebalance batch in one transaction.
func (s *SQLStore) UpdateCardPositions(ctx context.Context, updates []PositionUpdate, now time.Time) error {
	return s.applyPositions(ctx, "cards", updates, now)
}

// MoveCard re-homes a card into a column at the given position; column_id and
// position change in one write, board_id never does.
func (s *SQLStore) MoveCard(ctx context.Context, cardID, columnID string, pos int, now time.Time) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		UPDATE cards SET column_id = ?, position = ?, updated_at = ? WHERE id = ?
	`), columnID, pos, now, cardID)
	if err != nil {
		return fmt.Errorf("move card: %w", err)
	}
	return nil
}

func (s *SQLStore) ArchiveCard(ctx context.Context, cardID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		UPDATE cards SET archived_at = ?, updated_at = ? WHERE id = ?
	`), at, at, cardID)
	if err != nil {
		return fmt.Errorf("archive card: %w", err)
	}
	return nil
}

// RestoreCard clears archived_at and places the card in columnID, which the
// caller has already resolved per the re-homing rules.
func (s *SQLStore) RestoreCard(ctx context.Context, cardID, columnID string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		UPDATE cards SET archived_at = NULL, column_id = ?, updated_at = ? WHERE id = ?
	`), columnID, now, cardID)
	if err != nil {
		return fmt.Errorf("restore card: %w", err)
	}
	return nil
}

func (s *SQLStore) DeleteCard(ctx context.Context, cardID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, s.q(`DELETE FROM cards WHERE id = ?`), cardID)
	if err != nil {
		return false, fmt.Errorf("delete card: %w", err)
	}
	affected, err := result.RowsAffected()
	return affected > 0, err
}

// ---- shared ----

func (s *SQLStore) queryCards(ctx context.Context, query string, args ...any) ([]Card, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query cards: %w", err)
	}
	defer rows.Close()

	var cards []Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

func (s *SQLStore) applyPositions(ctx context.Context, table string, updates []PositionUpdate, now time.Time) error {
	if len(updates) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin position batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.q(`UPDATE `+table+` SET position = ?, updated_at = ? WHERE id = ?`))
	if err != nil {
		return fmt.Errorf("prepare position batch: %w", err)
	}
	defer stmt.Close()

	for _, update := range updates {
		if _, err := stmt.ExecContext(ctx, update.Position, now, update.ID); err != nil {
			return fmt.Errorf("apply position %s: %w", update.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit position batch: %w", err)
	}
	return nil
}
