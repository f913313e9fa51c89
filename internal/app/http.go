package app

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"kanbo/api/internal/live"
)

type HTTPServer struct {
	service    *Service
	hub        *live.Hub
	corsOrigin string
}

func NewHTTPServer(service *Service, hub *live.Hub, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, hub: hub, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet, http.MethodHead)

	api.HandleFunc("/boards", s.handleListBoards).Methods(http.MethodGet)
	api.HandleFunc("/boards", s.handleCreateBoard).Methods(http.MethodPost)
	api.HandleFunc("/boards/{boardID}", s.handleGetBoard).Methods(http.MethodGet)
	api.HandleFunc("/boards/{boardID}", s.handleRenameBoard).Methods(http.MethodPatch)
	api.HandleFunc("/boards/{boardID}", s.handleDeleteBoard).Methods(http.MethodDelete)
	api.HandleFunc("/boards/{boardID}/columns", s.handleCreateColumn).Methods(http.MethodPost)
	api.HandleFunc("/boards/{boardID}/cards", s.handleSearchCards).Methods(http.MethodGet)
	api.HandleFunc("/boards/{boardID}/archive", s.handleListArchive).Methods(http.MethodGet)

	api.HandleFunc("/columns/{columnID}", s.handleRenameColumn).Methods(http.MethodPatch)
	api.HandleFunc("/columns/{columnID}", s.handleDeleteColumn).Methods(http.MethodDelete)
	api.HandleFunc("/columns/{columnID}/move", s.handleMoveColumn).Methods(http.MethodPost)
	api.HandleFunc("/columns/{columnID}/cards", s.handleCreateCard).Methods(http.MethodPost)

	api.HandleFunc("/cards/{cardID}", s.handleGetCard).Methods(http.MethodGet)
	api.HandleFunc("/cards/{cardID}", s.handleUpdateCard).Methods(http.MethodPatch)
	api.HandleFunc("/cards/{cardID}", s.handlePurgeCard).Methods(http.MethodDelete)
	api.HandleFunc("/cards/{cardID}/move", s.handleMoveCard).Methods(http.MethodPost)
	api.HandleFunc("/cards/{cardID}/archive", s.handleArchiveCard).Methods(http.MethodPost)
	api.HandleFunc("/cards/{cardID}/restore", s.handleRestoreCard).Methods(http.MethodPost)

	api.HandleFunc("/ws", s.handleWebsocket).Methods(http.MethodGet)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{s.corsOrigin},
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowedHeaders: []string{"*"},
	})
	return s.withMiddleware(corsHandler.Handler(router))
}

// ---- health ----

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{"status": "error", "error": err.Error()}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

// ---- boards ----

func (s *HTTPServer) handleListBoards(w http.ResponseWriter, r *http.Request) {
	boards, err := s.service.ListBoards(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"boards": boards})
}

func (s *HTTPServer) handleCreateBoard(w http.ResponseWriter, r *http.Request) {
	var input CreateBoardInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}
	snapshot, err := s.service.CreateBoard(r.Context(), input)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snapshot)
}

func (s *HTTPServer) handleGetBoard(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.service.GetBoard(r.Context(), mux.Vars(r)["boardID"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *HTTPServer) handleRenameBoard(w http.ResponseWriter, r *http.Request) {
	var input RenameInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}
	if err := s.service.RenameBoard(r.Context(), mux.Vars(r)["boardID"], input); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleDeleteBoard(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteBoard(r.Context(), mux.Vars(r)["boardID"]); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// ---- columns ----

func (s *HTTPServer) handleCreateColumn(w http.ResponseWriter, r *http.Request) {
	var input CreateColumnInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}
	column, err := s.service.CreateColumn(r.Context(), mux.Vars(r)["boardID"], input)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, column)
}

func (s *HTTPServer) handleRenameColumn(w http.ResponseWriter, r *http.Request) {
	var input RenameInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}
	if err := s.service.RenameColumn(r.Context(), mux.Vars(r)["columnID"], input); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleMoveColumn(w http.ResponseWriter, r *http.Request) {
	var input MoveColumnInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}
	if err := s.service.MoveColumn(r.Context(), mux.Vars(r)["columnID"], input); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleDeleteColumn(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteColumn(r.Context(), mux.Vars(r)["columnID"]); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// ---- cards ----

func (s *HTTPServer) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	var input CreateCardInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}
	card, err := s.service.CreateCard(r.Context(), mux.Vars(r)["columnID"], input)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, card)
}

func (s *HTTPServer) handleGetCard(w http.ResponseWriter, r *http.Request) {
	card, err := s.service.GetCard(r.Context(), mux.Vars(r)["cardID"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *HTTPServer) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	var input UpdateCardInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}
	card, err := s.service.UpdateCard(r.Context(), mux.Vars(r)["cardID"], input)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *HTTPServer) handleMoveCard(w http.ResponseWriter, r *http.Request) {
	var input MoveCardInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}
	card, err := s.service.MoveCard(r.Context(), mux.Vars(r)["cardID"], input)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *HTTPServer) handleArchiveCard(w http.ResponseWriter, r *http.Request) {
	card, err := s.service.ArchiveCard(r.Context(), mux.Vars(r)["cardID"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *HTTPServer) handleRestoreCard(w http.ResponseWriter, r *http.Request) {
	card, err := s.service.RestoreCard(r.Context(), mux.Vars(r)["cardID"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *HTTPServer) handlePurgeCard(w http.ResponseWriter, r *http.Request) {
	if err := s.service.PurgeCard(r.Context(), mux.Vars(r)["cardID"]); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// ---- search & archive ----

func (s *HTTPServer) handleSearchCards(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	response, err := s.service.SearchCards(r.Context(), mux.Vars(r)["boardID"], query.Get("q"), query.Get("color"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleListArchive(w http.ResponseWriter, r *http.Request) {
	cards, err := s.service.ListArchive(r.Context(), mux.Vars(r)["boardID"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cards": cards})
}

// ---- websocket ----

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS policy is enforced by the HTTP middleware; the websocket endpoint
	// carries no credentials.
	CheckOrigin: func(*http.Request) bool { return true },
}

func (s *HTTPServer) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "live updates are not enabled", nil)
		return
	}
	boardID := r.URL.Query().Get("board")
	if boardID == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION", "board query parameter is required", nil)
		return
	}
	if _, err := s.service.GetBoard(r.Context(), boardID); err != nil {
		writeServiceError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("live: upgrade: %v", err)
		return
	}

	client := live.NewClient(s.hub, conn, boardID)
	s.hub.Register(client)
	go client.WritePump()
	go client.ReadPump()
}

// ---- middleware & helpers ----

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrade work through the status recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

func randomRequestID() string {
	bytes := make([]byte, 8)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

// writeServiceError maps a service failure onto the wire: DomainErrors keep
// their status and code, anything else is an opaque 500.
func writeServiceError(w http.ResponseWriter, err error) {
	var derr *DomainError
	if errors.As(err, &derr) {
		writeError(w, derr.Status, derr.Code, derr.Message, derr.Details)
		return
	}
	log.Printf("internal error: %v", err)
	writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}
