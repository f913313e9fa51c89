package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"kanbo/api/internal/cache"
	"kanbo/api/internal/config"
	"kanbo/api/internal/live"
	"kanbo/api/internal/position"
	"kanbo/api/internal/search"
	"kanbo/api/internal/store"
	"kanbo/api/internal/util"
)

type dataStore interface {
	Ping(context.Context) error

	CreateBoard(context.Context, store.Board) error
	GetBoard(context.Context, string) (store.Board, error)
	ListBoards(context.Context) ([]store.Board, error)
	RenameBoard(context.Context, string, string, time.Time) (bool, error)
	DeleteBoard(context.Context, string) (bool, error)

	CreateColumn(context.Context, store.Column) error
	GetColumn(context.Context, string) (store.Column, error)
	ListColumns(context.Context, string) ([]store.Column, error)
	FirstColumn(context.Context, string) (store.Column, error)
	RenameColumn(context.Context, string, string, time.Time) (bool, error)
	UpdateColumnPosition(context.Context, string, int, time.Time) error
	UpdateColumnPositions(context.Context, []store.PositionUpdate, time.Time) error
	DeleteColumn(context.Context, string) (bool, error)

	CreateCard(context.Context, store.Card) error
	GetCard(context.Context, string) (store.Card, error)
	ListCards(context.Context, string) ([]store.Card, error)
	ListBoardCards(context.Context, string) ([]store.Card, error)
	ListArchivedCards(context.Context, string) ([]store.Card, error)
	CountArchivedCards(context.Context, string) (int, error)
	SearchCards(context.Context, string, string, string) ([]store.Card, error)
	UpdateCard(context.Context, string, store.CardPatch, time.Time) (bool, error)
	UpdateCardPosition(context.Context, string, int, time.Time) error
	UpdateCardPositions(context.Context, []store.PositionUpdate, time.Time) error
	MoveCard(context.Context, string, string, int, time.Time) error
	ArchiveCard(context.Context, string, time.Time) error
	RestoreCard(context.Context, string, string, time.Time) error
	DeleteCard(context.Context, string) (bool, error)
}

type snapshotCache interface {
	Get(context.Context, string) ([]byte, error)
	Set(context.Context, string, []byte) error
	Invalidate(context.Context, string) error
}

type eventBus interface {
	Broadcast(live.Event)
}

type Service struct {
	cfg    config.Config
	store  dataStore
	search *search.Service
	cache  snapshotCache
	events eventBus
}

// New wires the service. meili, boardCache and hub may all be nil; search then
// answers from SQL, board fetches skip the cache, and no events are published.
func New(cfg config.Config, dataStore *store.SQLStore, meili *search.Meili, boardCache *cache.BoardCache, hub *live.Hub) *Service {
	svc := &Service{
		cfg:    cfg,
		store:  dataStore,
		search: search.NewService(meili, storeFallback{dataStore}),
	}
	if boardCache != nil {
		svc.cache = boardCache
	}
	if hub != nil {
		svc.events = hub
	}
	return svc
}

// Bootstrap pushes the current card set into the search index so Meilisearch
// catches up on anything written while it was down.
func (s *Service) Bootstrap(ctx context.Context) error {
	boards, err := s.store.ListBoards(ctx)
	if err != nil {
		return err
	}
	var records []search.CardRecord
	for _, board := range boards {
		active, err := s.store.ListBoardCards(ctx, board.ID)
		if err != nil {
			return err
		}
		archived, err := s.store.ListArchivedCards(ctx, board.ID)
		if err != nil {
			return err
		}
		for _, card := range append(active, archived...) {
			records = append(records, cardRecord(card))
		}
	}
	s.search.ReindexAll(records)
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Card colors come from a fixed palette; empty means uncolored.
var allowedCardColors = map[string]struct{}{
	"red":    {},
	"orange": {},
	"yellow": {},
	"green":  {},
	"blue":   {},
	"purple": {},
	"pink":   {},
	"gray":   {},
}

// Columns every new board starts with.
var defaultColumnNames = []string{"To Do", "In Progress", "Done"}

// ---- views ----

type BoardView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type ColumnView struct {
	ID       string     `json:"id"`
	BoardID  string     `json:"boardId"`
	Name     string     `json:"name"`
	Position int        `json:"position"`
	Cards    []CardView `json:"cards"`
}

type CardView struct {
	ID          string     `json:"id"`
	BoardID     string     `json:"boardId"`
	ColumnID    string     `json:"columnId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Color       string     `json:"color"`
	Position    int        `json:"position"`
	ArchivedAt  *time.Time `json:"archivedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// BoardSnapshot is the full rendering of one board: columns in order, each
// with its live cards in order.
type BoardSnapshot struct {
	Board   BoardView    `json:"board"`
	Columns []ColumnView `json:"columns"`
}

type SearchResponse struct {
	Results       []search.Result `json:"results"`
	MatchCount    int             `json:"matchCount"`
	ArchivedCount int             `json:"archivedCount"`
}

func toBoardView(board store.Board) BoardView {
	return BoardView{ID: board.ID, Name: board.Name, CreatedAt: board.CreatedAt, UpdatedAt: board.UpdatedAt}
}

func toCardView(card store.Card) CardView {
	return CardView{
		ID:          card.ID,
		BoardID:     card.BoardID,
		ColumnID:    card.ColumnID,
		Title:       card.Title,
		Description: card.Description,
		Color:       card.Color,
		Position:    card.Position,
		ArchivedAt:  card.ArchivedAt,
		CreatedAt:   card.CreatedAt,
		UpdatedAt:   card.UpdatedAt,
	}
}

// ---- inputs ----

type CreateBoardInput struct {
	Name string `json:"name"`
}

type RenameInput struct {
	Name string `json:"name"`
}

type CreateColumnInput struct {
	Name string `json:"name"`
}

type MoveColumnInput struct {
	Index int `json:"index"`
}

type CreateCardInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       string `json:"color"`
}

type UpdateCardInput struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Color       *string `json:"color"`
}

type MoveCardInput struct {
	ColumnID *string `json:"columnId"`
	Index    *int    `json:"index"`
}

// ---- boards ----

func (s *Service) ListBoards(ctx context.Context) ([]BoardView, error) {
	boards, err := s.store.ListBoards(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]BoardView, 0, len(boards))
	for _, board := range boards {
		views = append(views, toBoardView(board))
	}
	return views, nil
}

func (s *Service) CreateBoard(ctx context.Context, input CreateBoardInput) (BoardSnapshot, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return BoardSnapshot{}, invalid("board name is required")
	}

	now := time.Now().UTC()
	board := store.Board{
		ID:        util.NewID(util.BoardPrefix),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateBoard(ctx, board); err != nil {
		return BoardSnapshot{}, err
	}

	snapshot := BoardSnapshot{Board: toBoardView(board), Columns: []ColumnView{}}
	for i, columnName := range defaultColumnNames {
		column := store.Column{
			ID:        util.NewID(util.ColumnPrefix),
			BoardID:   board.ID,
			Name:      columnName,
			Position:  (i + 1) * position.Gap,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.store.CreateColumn(ctx, column); err != nil {
			return BoardSnapshot{}, err
		}
		snapshot.Columns = append(snapshot.Columns, ColumnView{
			ID:       column.ID,
			BoardID:  column.BoardID,
			Name:     column.Name,
			Position: column.Position,
			Cards:    []CardView{},
		})
	}
	return snapshot, nil
}

func (s *Service) GetBoard(ctx context.Context, boardID string) (BoardSnapshot, error) {
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, boardID); err == nil {
			var snapshot BoardSnapshot
			if err := json.Unmarshal(data, &snapshot); err == nil {
				return snapshot, nil
			}
		} else if !errors.Is(err, cache.ErrMiss) {
			log.Printf("cache: board %s: %v", boardID, err)
		}
	}

	board, err := s.store.GetBoard(ctx, boardID)
	if errors.Is(err, sql.ErrNoRows) {
		return BoardSnapshot{}, notFound("board")
	}
	if err != nil {
		return BoardSnapshot{}, err
	}

	columns, err := s.store.ListColumns(ctx, boardID)
	if err != nil {
		return BoardSnapshot{}, err
	}
	cards, err := s.store.ListBoardCards(ctx, boardID)
	if err != nil {
		return BoardSnapshot{}, err
	}

	byColumn := make(map[string][]CardView, len(columns))
	for _, card := range cards {
		byColumn[card.ColumnID] = append(byColumn[card.ColumnID], toCardView(card))
	}

	snapshot := BoardSnapshot{Board: toBoardView(board), Columns: make([]ColumnView, 0, len(columns))}
	for _, column := range columns {
		cardViews := byColumn[column.ID]
		if cardViews == nil {
			cardViews = []CardView{}
		}
		snapshot.Columns = append(snapshot.Columns, ColumnView{
			ID:       column.ID,
			BoardID:  column.BoardID,
			Name:     column.Name,
			Position: column.Position,
			Cards:    cardViews,
		})
	}

	if s.cache != nil {
		if data, err := json.Marshal(snapshot); err == nil {
			if err := s.cache.Set(ctx, boardID, data); err != nil {
				log.Printf("cache: store board %s: %v", boardID, err)
			}
		}
	}
	return snapshot, nil
}

func (s *Service) RenameBoard(ctx context.Context, boardID string, input RenameInput) error {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return invalid("board name is required")
	}
	ok, err := s.store.RenameBoard(ctx, boardID, name, time.Now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return notFound("board")
	}
	s.invalidate(ctx, boardID)
	s.publish("board.updated", boardID, map[string]any{"name": name})
	return nil
}

func (s *Service) DeleteBoard(ctx context.Context, boardID string) error {
	ok, err := s.store.DeleteBoard(ctx, boardID)
	if err != nil {
		return err
	}
	if !ok {
		return notFound("board")
	}
	s.invalidate(ctx, boardID)
	s.publish("board.deleted", boardID, nil)
	return nil
}

// ---- columns ----

func (s *Service) CreateColumn(ctx context.Context, boardID string, input CreateColumnInput) (ColumnView, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return ColumnView{}, invalid("column name is required")
	}
	if _, err := s.store.GetBoard(ctx, boardID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ColumnView{}, notFound("board")
		}
		return ColumnView{}, err
	}

	siblings, err := s.store.ListColumns(ctx, boardID)
	if err != nil {
		return ColumnView{}, err
	}

	now := time.Now().UTC()
	column := store.Column{
		ID:        util.NewID(util.ColumnPrefix),
		BoardID:   boardID,
		Name:      name,
		Position:  position.Append(columnItems(siblings)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateColumn(ctx, column); err != nil {
		return ColumnView{}, err
	}

	s.invalidate(ctx, boardID)
	s.publish("column.created", boardID, map[string]any{"columnId": column.ID, "name": name})
	return ColumnView{ID: column.ID, BoardID: boardID, Name: name, Position: column.Position, Cards: []CardView{}}, nil
}

func (s *Service) RenameColumn(ctx context.Context, columnID string, input RenameInput) error {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return invalid("column name is required")
	}
	column, err := s.store.GetColumn(ctx, columnID)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("column")
	}
	if err != nil {
		return err
	}
	if _, err := s.store.RenameColumn(ctx, columnID, name, time.Now().UTC()); err != nil {
		return err
	}
	s.invalidate(ctx, column.BoardID)
	s.publish("column.updated", column.BoardID, map[string]any{"columnId": columnID, "name": name})
	return nil
}

// MoveColumn reorders a column to targetIndex among its board's columns. A
// collision rebalances the whole board's column positions and retries; the
// retry cannot collide again.
func (s *Service) MoveColumn(ctx context.Context, columnID string, input MoveColumnInput) error {
	column, err := s.store.GetColumn(ctx, columnID)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("column")
	}
	if err != nil {
		return err
	}

	siblings, err := s.store.ListColumns(ctx, column.BoardID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	pos, err := s.planWithRebalance(ctx, columnItems(siblings), columnID, input.Index, s.store.UpdateColumnPositions, now)
	if err != nil {
		return err
	}
	if pos != column.Position {
		if err := s.store.UpdateColumnPosition(ctx, columnID, pos, now); err != nil {
			return err
		}
	}

	s.invalidate(ctx, column.BoardID)
	s.publish("column.moved", column.BoardID, map[string]any{"columnId": columnID, "position": pos})
	return nil
}

// DeleteColumn removes a column and its live cards. Archived cards keep their
// rows; restore re-homes them to the board's first remaining column.
func (s *Service) DeleteColumn(ctx context.Context, columnID string) error {
	column, err := s.store.GetColumn(ctx, columnID)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("column")
	}
	if err != nil {
		return err
	}

	cards, err := s.store.ListCards(ctx, columnID)
	if err != nil {
		return err
	}
	if _, err := s.store.DeleteColumn(ctx, columnID); err != nil {
		return err
	}
	for _, card := range cards {
		s.search.DeleteCard(card.ID)
	}

	s.invalidate(ctx, column.BoardID)
	s.publish("column.deleted", column.BoardID, map[string]any{"columnId": columnID})
	return nil
}

// ---- cards ----

func (s *Service) CreateCard(ctx context.Context, columnID string, input CreateCardInput) (CardView, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return CardView{}, invalid("card title is required")
	}
	if err := validateColor(input.Color); err != nil {
		return CardView{}, err
	}

	column, err := s.store.GetColumn(ctx, columnID)
	if errors.Is(err, sql.ErrNoRows) {
		return CardView{}, notFound("column")
	}
	if err != nil {
		return CardView{}, err
	}

	siblings, err := s.store.ListCards(ctx, columnID)
	if err != nil {
		return CardView{}, err
	}

	now := time.Now().UTC()
	card := store.Card{
		ID:          util.NewID(util.CardPrefix),
		BoardID:     column.BoardID,
		ColumnID:    columnID,
		Title:       title,
		Description: input.Description,
		Color:       input.Color,
		Position:    position.Append(cardItems(siblings)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateCard(ctx, card); err != nil {
		return CardView{}, err
	}

	s.search.IndexCard(cardRecord(card))
	s.invalidate(ctx, card.BoardID)
	s.publish("card.created", card.BoardID, toCardView(card))
	return toCardView(card), nil
}

func (s *Service) GetCard(ctx context.Context, cardID string) (CardView, error) {
	card, err := s.store.GetCard(ctx, cardID)
	if errors.Is(err, sql.ErrNoRows) {
		return CardView{}, notFound("card")
	}
	if err != nil {
		return CardView{}, err
	}
	return toCardView(card), nil
}

func (s *Service) UpdateCard(ctx context.Context, cardID string, input UpdateCardInput) (CardView, error) {
	card, err := s.store.GetCard(ctx, cardID)
	if errors.Is(err, sql.ErrNoRows) {
		return CardView{}, notFound("card")
	}
	if err != nil {
		return CardView{}, err
	}

	patch := store.CardPatch{}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return CardView{}, invalid("card title is required")
		}
		patch.Title = &title
		card.Title = title
	}
	if input.Description != nil {
		patch.Description = input.Description
		card.Description = *input.Description
	}
	if input.Color != nil {
		if err := validateColor(*input.Color); err != nil {
			return CardView{}, err
		}
		patch.Color = input.Color
		card.Color = *input.Color
	}
	if patch.Title == nil && patch.Description == nil && patch.Color == nil {
		return toCardView(card), nil
	}

	now := time.Now().UTC()
	if _, err := s.store.UpdateCard(ctx, cardID, patch, now); err != nil {
		return CardView{}, err
	}
	card.UpdatedAt = now

	s.search.IndexCard(cardRecord(card))
	s.invalidate(ctx, card.BoardID)
	s.publish("card.updated", card.BoardID, toCardView(card))
	return toCardView(card), nil
}

// MoveCard reorders a card within its column or re-homes it into another
// column on the same board. A nil index on a cross-column move appends to the
// target column's tail. board_id never changes here.
func (s *Service) MoveCard(ctx context.Context, cardID string, input MoveCardInput) (CardView, error) {
	card, err := s.store.GetCard(ctx, cardID)
	if errors.Is(err, sql.ErrNoRows) {
		return CardView{}, notFound("card")
	}
	if err != nil {
		return CardView{}, err
	}
	if card.Archived() {
		return CardView{}, alreadyArchived()
	}

	targetColumnID := card.ColumnID
	if input.ColumnID != nil && *input.ColumnID != "" {
		targetColumnID = *input.ColumnID
	}
	now := time.Now().UTC()

	if targetColumnID == card.ColumnID {
		if input.Index == nil {
			return toCardView(card), nil
		}
		siblings, err := s.store.ListCards(ctx, card.ColumnID)
		if err != nil {
			return CardView{}, err
		}
		pos, err := s.planWithRebalance(ctx, cardItems(siblings), cardID, *input.Index, s.store.UpdateCardPositions, now)
		if err != nil {
			return CardView{}, err
		}
		if pos != card.Position {
			if err := s.store.UpdateCardPosition(ctx, cardID, pos, now); err != nil {
				return CardView{}, err
			}
			card.Position = pos
			card.UpdatedAt = now
		}
	} else {
		target, err := s.store.GetColumn(ctx, targetColumnID)
		if errors.Is(err, sql.ErrNoRows) {
			return CardView{}, notFound("column")
		}
		if err != nil {
			return CardView{}, err
		}
		if target.BoardID != card.BoardID {
			return CardView{}, invalid("card cannot move to a column on another board")
		}

		siblings, err := s.store.ListCards(ctx, targetColumnID)
		if err != nil {
			return CardView{}, err
		}
		items := cardItems(siblings)

		var pos int
		if input.Index == nil {
			pos = position.Append(items)
		} else {
			// The card joins the target column's ordering space at the
			// tail, then moves to the requested slot.
			items = append(items, position.Item{ID: cardID, Position: position.Append(items)})
			pos, err = s.planWithRebalance(ctx, items, cardID, *input.Index, s.store.UpdateCardPositions, now)
			if err != nil {
				return CardView{}, err
			}
		}
		if err := s.store.MoveCard(ctx, cardID, targetColumnID, pos, now); err != nil {
			return CardView{}, err
		}
		card.ColumnID = targetColumnID
		card.Position = pos
		card.UpdatedAt = now
	}

	s.search.IndexCard(cardRecord(card))
	s.invalidate(ctx, card.BoardID)
	s.publish("card.moved", card.BoardID, toCardView(card))
	return toCardView(card), nil
}

// ArchiveCard soft-deletes a card by stamping archived_at; position is left
// untouched so an in-place restore keeps its slot.
func (s *Service) ArchiveCard(ctx context.Context, cardID string) (CardView, error) {
	card, err := s.store.GetCard(ctx, cardID)
	if errors.Is(err, sql.ErrNoRows) {
		return CardView{}, notFound("card")
	}
	if err != nil {
		return CardView{}, err
	}
	if card.Archived() {
		return CardView{}, alreadyArchived()
	}

	now := time.Now().UTC()
	if err := s.store.ArchiveCard(ctx, cardID, now); err != nil {
		return CardView{}, err
	}
	card.ArchivedAt = &now
	card.UpdatedAt = now

	s.search.IndexCard(cardRecord(card))
	s.invalidate(ctx, card.BoardID)
	s.publish("card.archived", card.BoardID, map[string]any{"cardId": cardID})
	return toCardView(card), nil
}

// RestoreCard brings an archived card back: original column if it still
// exists, otherwise the board's first column by position. A board with no
// columns left cannot take the card and the restore fails.
func (s *Service) RestoreCard(ctx context.Context, cardID string) (CardView, error) {
	card, err := s.store.GetCard(ctx, cardID)
	if errors.Is(err, sql.ErrNoRows) {
		return CardView{}, notFound("card")
	}
	if err != nil {
		return CardView{}, err
	}
	if !card.Archived() {
		return CardView{}, notArchived("card is not archived")
	}

	targetColumnID := card.ColumnID
	if _, err := s.store.GetColumn(ctx, card.ColumnID); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return CardView{}, err
		}
		first, err := s.store.FirstColumn(ctx, card.BoardID)
		if errors.Is(err, sql.ErrNoRows) {
			return CardView{}, noColumnsAvailable()
		}
		if err != nil {
			return CardView{}, err
		}
		targetColumnID = first.ID
	}

	now := time.Now().UTC()
	if err := s.store.RestoreCard(ctx, cardID, targetColumnID, now); err != nil {
		return CardView{}, err
	}
	card.ArchivedAt = nil
	card.ColumnID = targetColumnID
	card.UpdatedAt = now

	s.search.IndexCard(cardRecord(card))
	s.invalidate(ctx, card.BoardID)
	s.publish("card.restored", card.BoardID, toCardView(card))
	return toCardView(card), nil
}

// PurgeCard hard-deletes a card; only archived cards qualify.
func (s *Service) PurgeCard(ctx context.Context, cardID string) error {
	card, err := s.store.GetCard(ctx, cardID)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("card")
	}
	if err != nil {
		return err
	}
	if !card.Archived() {
		return notArchived("only archived cards can be permanently deleted")
	}

	if _, err := s.store.DeleteCard(ctx, cardID); err != nil {
		return err
	}
	s.search.DeleteCard(cardID)
	s.invalidate(ctx, card.BoardID)
	s.publish("card.purged", card.BoardID, map[string]any{"cardId": cardID})
	return nil
}

// ---- search & archive listing ----

func (s *Service) SearchCards(ctx context.Context, boardID, text, color string) (SearchResponse, error) {
	if color != "" {
		if err := validateColor(color); err != nil {
			return SearchResponse{}, err
		}
	}
	if _, err := s.store.GetBoard(ctx, boardID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SearchResponse{}, notFound("board")
		}
		return SearchResponse{}, err
	}

	results, err := s.search.Search(ctx, search.Query{BoardID: boardID, Text: text, Color: color})
	if err != nil {
		return SearchResponse{}, err
	}
	archived, err := s.store.CountArchivedCards(ctx, boardID)
	if err != nil {
		return SearchResponse{}, err
	}
	return SearchResponse{Results: results, MatchCount: len(results), ArchivedCount: archived}, nil
}

func (s *Service) ListArchive(ctx context.Context, boardID string) ([]CardView, error) {
	if _, err := s.store.GetBoard(ctx, boardID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("board")
		}
		return nil, err
	}
	cards, err := s.store.ListArchivedCards(ctx, boardID)
	if err != nil {
		return nil, err
	}
	views := make([]CardView, 0, len(cards))
	for _, card := range cards {
		views = append(views, toCardView(card))
	}
	return views, nil
}

// ---- helpers ----

// planWithRebalance runs the position engine and, on collision, persists a
// rebalance batch and retries against the rebalanced snapshot.
func (s *Service) planWithRebalance(ctx context.Context, items []position.Item, movedID string, targetIndex int, persist func(context.Context, []store.PositionUpdate, time.Time) error, now time.Time) (int, error) {
	pos, err := position.Plan(items, movedID, targetIndex)
	if !errors.Is(err, position.ErrCollision) {
		return pos, err
	}

	updates := position.Rebalance(items)
	batch := make([]store.PositionUpdate, len(updates))
	for i, update := range updates {
		batch[i] = store.PositionUpdate{ID: update.ID, Position: update.Position}
		items[i].Position = update.Position
	}
	if err := persist(ctx, batch, now); err != nil {
		return 0, fmt.Errorf("rebalance: %w", err)
	}

	pos, err = position.Plan(items, movedID, targetIndex)
	if err != nil {
		return 0, fmt.Errorf("reorder after rebalance: %w", err)
	}
	return pos, nil
}

func (s *Service) invalidate(ctx context.Context, boardID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, boardID); err != nil {
		log.Printf("cache: invalidate board %s: %v", boardID, err)
	}
}

func (s *Service) publish(eventType, boardID string, payload any) {
	if s.events == nil {
		return
	}
	s.events.Broadcast(live.Event{Type: eventType, BoardID: boardID, Payload: payload})
}

func validateColor(color string) error {
	if color == "" {
		return nil
	}
	if _, ok := allowedCardColors[color]; !ok {
		return invalid("unknown card color: " + color)
	}
	return nil
}

func columnItems(columns []store.Column) []position.Item {
	items := make([]position.Item, len(columns))
	for i, column := range columns {
		items[i] = position.Item{ID: column.ID, Position: column.Position}
	}
	return items
}

func cardItems(cards []store.Card) []position.Item {
	items := make([]position.Item, len(cards))
	for i, card := range cards {
		items[i] = position.Item{ID: card.ID, Position: card.Position}
	}
	return items
}

func cardRecord(card store.Card) search.CardRecord {
	return search.CardRecord{
		ID:          card.ID,
		BoardID:     card.BoardID,
		ColumnID:    card.ColumnID,
		Title:       card.Title,
		Description: card.Description,
		Color:       card.Color,
		Position:    card.Position,
		Archived:    card.Archived(),
	}
}

// storeFallback answers search queries straight from SQL when Meilisearch is
// not available.
type storeFallback struct {
	store dataStore
}

func (f storeFallback) Search(ctx context.Context, q search.Query) ([]search.Result, error) {
	cards, err := f.store.SearchCards(ctx, q.BoardID, q.Text, q.Color)
	if err != nil {
		return nil, err
	}
	results := make([]search.Result, 0, len(cards))
	for _, card := range cards {
		results = append(results, search.Result{
			ID:          card.ID,
			BoardID:     card.BoardID,
			ColumnID:    card.ColumnID,
			Title:       card.Title,
			Description: card.Description,
			Color:       card.Color,
			Position:    card.Position,
		})
	}
	return results, nil
}
