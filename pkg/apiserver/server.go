// Package apiserver exposes the concierge over a small JSON HTTP API.
// Transport is deliberately thin: validation, error mapping and encoding
// only; all routing behavior lives behind the service layer.
package apiserver

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/campbellsechrest/im-concierge-starter/pkg/embedding"
	"github.com/campbellsechrest/im-concierge-starter/pkg/observability/logging"
	"github.com/campbellsechrest/im-concierge-starter/pkg/services"
)

// Server serves the concierge HTTP API.
type Server struct {
	svc  *services.ConciergeService
	port int
}

// NewServer builds the API server.
func NewServer(svc *services.ConciergeService, port int) *Server {
	return &Server{svc: svc, port: port}
}

// QueryRequest is the body of POST /v1/query.
type QueryRequest struct {
	Question string `json:"question"`
}

// ErrorResponse is the body of any non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Start blocks serving the API.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/query", s.handleQuery)
	mux.HandleFunc("/healthz", s.handleHealth)

	addr := fmt.Sprintf(":%d", s.port)
	logging.Infof("Starting concierge API server on %s", addr)

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return srv.ListenAndServe()
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	requestID := newRequestID()
	answer, err := s.svc.Ask(r.Context(), requestID, req.Question)
	if err != nil {
		var validationErr *services.ValidationError
		var providerErr *embedding.ProviderError
		switch {
		case errors.As(err, &validationErr):
			writeError(w, http.StatusBadRequest, validationErr.Error())
		case errors.As(err, &providerErr):
			logging.Errorf("Request %s failed: %v", requestID, err)
			writeError(w, http.StatusBadGateway, "embedding provider unavailable")
		default:
			logging.Errorf("Request %s failed: %v", requestID, err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-Id", requestID)
	if err := json.NewEncoder(w).Encode(answer); err != nil {
		logging.Errorf("Failed to encode response: %v", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	// Reaching here means configuration loaded and the router is serving.
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintln(w, `{"status":"ok"}`)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
}

func newRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
