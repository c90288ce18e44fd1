package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"webpage-rag/internal/models"
	"webpage-rag/internal/rag"
)

// Server maps the two core operations onto HTTP endpoints:
// POST /load-url, POST /ask, plus a health line on GET /.
type Server struct {
	registry *rag.Registry
}

func New(registry *rag.Registry) *Server {
	return &Server{registry: registry}
}

// Handler builds the route table wrapped in CORS and access logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /load-url", s.handleLoadURL)
	mux.HandleFunc("POST /ask", s.handleAsk)
	mux.HandleFunc("GET /{$}", s.handleHome)
	return corsMiddleware(loggingMiddleware(mux))
}

type loadURLRequest struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

type askRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleLoadURL(w http.ResponseWriter, r *http.Request) {
	var req loadURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_request", "malformed request body")
		return
	}
	if req.SessionID == "" || req.URL == "" {
		writeError(w, http.StatusUnprocessableEntity, "invalid_request", "session_id and url are required")
		return
	}

	if err := s.registry.LoadURL(r.Context(), req.SessionID, req.URL); err != nil {
		log.Error().Err(err).Str("session_id", req.SessionID).Str("url", req.URL).Msg("load-url failed")
		writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_request", "malformed request body")
		return
	}
	if req.SessionID == "" || req.Question == "" {
		writeError(w, http.StatusUnprocessableEntity, "invalid_request", "session_id and question are required")
		return
	}

	answer, err := s.registry.Ask(r.Context(), req.SessionID, req.Question)
	if err != nil {
		log.Error().Err(err).Str("session_id", req.SessionID).Msg("ask failed")
		writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "RAG Chatbot API is running"})
}

// writeTaxonomyError translates core failures into status codes and stable
// error codes callers can branch on.
func writeTaxonomyError(w http.ResponseWriter, err error) {
	var (
		fetchErr *models.FetchError
		embedErr *models.EmbeddingError
		genErr   *models.GenerationError
	)
	switch {
	case errors.Is(err, models.ErrSessionNotFound):
		writeError(w, http.StatusBadRequest, "session_not_found", err.Error())
	case errors.Is(err, models.ErrEmptyContent):
		writeError(w, http.StatusUnprocessableEntity, "empty_content", err.Error())
	case errors.As(err, &fetchErr):
		writeError(w, http.StatusBadGateway, "fetch_error", err.Error())
	case errors.As(err, &embedErr):
		writeError(w, http.StatusBadGateway, "embedding_error", err.Error())
	case errors.As(err, &genErr):
		writeError(w, http.StatusBadGateway, "generation_error", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Error encoding response")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]errorBody{"error": {Code: code, Message: message}})
}
