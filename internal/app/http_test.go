package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"kanbo/api/internal/store"
)

func newTestHandler(fs *fakeStore) http.Handler {
	server := NewHTTPServer(newTestService(fs), nil, "*")
	return server.Handler()
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v\n%s", err, rec.Body.String())
	}
	return body
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestHandler(&fakeStore{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := decodeResponse(t, rec); body["ok"] != true {
		t.Errorf("body = %v", body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestReadyEndpoint(t *testing.T) {
	handler := newTestHandler(&fakeStore{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ready", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := decodeResponse(t, rec); body["status"] != "ready" {
		t.Errorf("body = %v", body)
	}
}

func TestCreateBoardEndpoint(t *testing.T) {
	handler := newTestHandler(&fakeStore{})

	rec := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/api/boards", strings.NewReader(`{"name":"Roadmap"}`))
	handler.ServeHTTP(rec, request)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var snapshot BoardSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snapshot.Board.Name != "Roadmap" {
		t.Errorf("board name = %q", snapshot.Board.Name)
	}
	if len(snapshot.Columns) != 3 {
		t.Errorf("expected 3 seeded columns, got %d", len(snapshot.Columns))
	}
}

func TestCreateBoardRejectsBadJSON(t *testing.T) {
	handler := newTestHandler(&fakeStore{})

	rec := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/api/boards", strings.NewReader(`{"name":`))
	handler.ServeHTTP(rec, request)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := decodeResponse(t, rec); body["code"] != "VALIDATION" {
		t.Errorf("code = %v", body["code"])
	}
}

func TestGetBoardNotFound(t *testing.T) {
	fs := &fakeStore{
		getBoardFn: func(context.Context, string) (store.Board, error) {
			return store.Board{}, sql.ErrNoRows
		},
	}
	handler := newTestHandler(fs)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/boards/brd_missing", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := decodeResponse(t, rec); body["code"] != "NOT_FOUND" {
		t.Errorf("code = %v", body["code"])
	}
}

func TestRestoreWithoutColumnsReturnsConflict(t *testing.T) {
	archivedAt := time.Now()
	card := cardAt("crd_1", "col_gone", 1000)
	card.ArchivedAt = &archivedAt
	fs := &fakeStore{
		getCardFn: func(context.Context, string) (store.Card, error) { return card, nil },
		getColumnFn: func(context.Context, string) (store.Column, error) {
			return store.Column{}, sql.ErrNoRows
		},
	}
	handler := newTestHandler(fs)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/cards/crd_1/restore", nil))

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if body := decodeResponse(t, rec); body["code"] != "NO_COLUMNS_AVAILABLE" {
		t.Errorf("code = %v", body["code"])
	}
}

func TestPurgeActiveCardReturnsConflict(t *testing.T) {
	fs := &fakeStore{
		getCardFn: func(context.Context, string) (store.Card, error) {
			return cardAt("crd_1", "col_1", 1000), nil
		},
	}
	handler := newTestHandler(fs)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/cards/crd_1", nil))

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := decodeResponse(t, rec); body["code"] != "NOT_ARCHIVED" {
		t.Errorf("code = %v", body["code"])
	}
}

func TestMoveCardEndpoint(t *testing.T) {
	moved := cardAt("crd_1", "col_1", 3000)
	fs := &fakeStore{
		getCardFn: func(context.Context, string) (store.Card, error) { return moved, nil },
		listCardsFn: func(context.Context, string) ([]store.Card, error) {
			return []store.Card{cardAt("a", "col_1", 1000), cardAt("b", "col_1", 2000), moved}, nil
		},
	}
	handler := newTestHandler(fs)

	rec := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/api/cards/crd_1/move", strings.NewReader(`{"index":0}`))
	handler.ServeHTTP(rec, request)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var view CardView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Position != 500 {
		t.Errorf("position = %d, want 500", view.Position)
	}
}

func TestSearchEndpointForwardsFilters(t *testing.T) {
	fs := &fakeStore{
		searchCardsFn: func(_ context.Context, _ string, query, color string) ([]store.Card, error) {
			if query != "login" || color != "red" {
				t.Errorf("filters = %q/%q", query, color)
			}
			return []store.Card{cardAt("crd_1", "col_1", 1000)}, nil
		},
		countArchivedFn: func(context.Context, string) (int, error) { return 1, nil },
	}
	handler := newTestHandler(fs)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/boards/brd_1/cards?q=login&color=red", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var response SearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if response.MatchCount != 1 || response.ArchivedCount != 1 {
		t.Errorf("counts = %d/%d", response.MatchCount, response.ArchivedCount)
	}
}

func TestRequestIDPassthrough(t *testing.T) {
	handler := newTestHandler(&fakeStore{})

	rec := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	request.Header.Set("X-Request-ID", "req-123")
	handler.ServeHTTP(rec, request)

	if got := rec.Header().Get("X-Request-ID"); got != "req-123" {
		t.Errorf("X-Request-ID = %q", got)
	}
}

func TestWebsocketUnavailableWithoutHub(t *testing.T) {
	handler := newTestHandler(&fakeStore{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ws?board=brd_1", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}
