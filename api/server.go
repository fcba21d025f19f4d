package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/samber/lo"
	"github.com/wricardo/connectn/auth"
	"github.com/wricardo/connectn/game/config"
	"github.com/wricardo/connectn/game/engine"
	"github.com/wricardo/connectn/game/service"
	"github.com/wricardo/connectn/game/session"
	"github.com/wricardo/connectn/storage"
)

var validate = validator.New()

// GameSocket upgrades a request into a live game connection
type GameSocket interface {
	ServeWS(w http.ResponseWriter, r *http.Request, sessionID string)
}

// Server represents the REST API server
type Server struct {
	service service.GameService
	socket  GameSocket
	logger  *slog.Logger
	router  *mux.Router
}

// NewServer creates a new API server
func NewServer(gameService service.GameService, socket GameSocket, logger *slog.Logger) *Server {
	s := &Server{
		service: gameService,
		socket:  socket,
		logger:  logger,
		router:  mux.NewRouter(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Session management
	api.HandleFunc("/sessions", s.handleCreateSession).Methods("POST")
	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/bot", s.handleAddBot).Methods("POST")

	// Results and statistics
	api.HandleFunc("/results", s.handleGetResults).Methods("GET")
	api.HandleFunc("/results/search", s.handleSearchResults).Methods("POST")
	api.HandleFunc("/players/{id}/stats", s.handlePlayerStats).Methods("GET")

	// Identity and configuration
	api.HandleFunc("/tokens", s.handleIssueToken).Methods("POST")
	api.HandleFunc("/variants", s.handleListVariants).Methods("GET")
	api.HandleFunc("/variants", s.handleSaveVariant).Methods("POST")

	// Live play
	s.router.HandleFunc("/ws/game/{id}", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps domain errors to HTTP status codes
func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, storage.ErrResultNotFound),
		errors.Is(err, config.ErrVariantNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrAlreadyStarted),
		errors.Is(err, session.ErrSessionFull),
		errors.Is(err, session.ErrWrongPhase):
		status = http.StatusConflict
	case errors.Is(err, storage.ErrInvalidSearch),
		errors.Is(err, auth.ErrInvalidIdentity),
		errors.Is(err, config.ErrInvalidVariant):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrBotsDisabled),
		errors.Is(err, service.ErrStoreDisabled),
		errors.Is(err, config.ErrNoConfigDir):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	respondError(w, status, err.Error())
}

// decodeBody decodes and validates a JSON body. An empty body leaves req
// at its zero value when allowEmpty is set.
func decodeBody(r *http.Request, req any, allowEmpty bool) error {
	if r.Body == nil || (r.ContentLength == 0 && allowEmpty) {
		return validate.Struct(req)
	}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return validate.Struct(req)
}

// Session Handlers

type createSessionRequest struct {
	Variant string `json:"variant,omitempty" validate:"omitempty,max=64"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeBody(r, &req, true); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	info, err := s.service.CreateSession(r.Context(), req.Variant)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, info)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.service.ListSessions(r.Context())
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	if phase := r.URL.Query().Get("phase"); phase != "" {
		sessions = lo.Filter(sessions, func(info *service.SessionInfo, _ int) bool {
			return string(info.Phase) == phase
		})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(sessions),
		"sessions": sessions,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	info, err := s.service.GetSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	if err := s.service.DeleteSession(r.Context(), sessionID); err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Session %s deleted", sessionID),
	})
}

func (s *Server) handleAddBot(w http.ResponseWriter, r *http.Request) {
	bot, err := s.service.AddBot(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, bot)
}

// Result Handlers

func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	ids := lo.Compact(lo.Map(strings.Split(r.URL.Query().Get("ids"), ","), func(id string, _ int) string {
		return strings.TrimSpace(id)
	}))
	if len(ids) == 0 {
		respondError(w, http.StatusBadRequest, "ids query parameter is required")
		return
	}

	results, err := s.service.GetResults(r.Context(), ids)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
	})
}

func (s *Server) handleSearchResults(w http.ResponseWriter, r *http.Request) {
	var params storage.SearchParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	results, err := s.service.SearchResults(r.Context(), params)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(results),
		"results": results,
	})
}

func (s *Server) handlePlayerStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.GetPlayerStats(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

// Identity and Configuration Handlers

type issueTokenRequest struct {
	ParticipantID string `json:"participantId" validate:"required,max=64"`
}

func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req issueTokenRequest
	if err := decodeBody(r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	token, err := s.service.IssueToken(r.Context(), req.ParticipantID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, token)
}

func (s *Server) handleListVariants(w http.ResponseWriter, r *http.Request) {
	variants, err := s.service.ListVariants(r.Context())
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, variants)
}

func (s *Server) handleSaveVariant(w http.ResponseWriter, r *http.Request) {
	var v engine.Variant
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	saved, err := s.service.SaveVariant(r.Context(), v)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, saved)
}

// WebSocket Handler

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.socket.ServeWS(w, r, mux.Vars(r)["id"])
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
