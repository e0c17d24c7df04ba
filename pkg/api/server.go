// Package api exposes the compliance engine over HTTP for POS frontends and
// back-office tooling.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cannaflow/cannaflow/pkg/common/logging"
	"github.com/cannaflow/cannaflow/pkg/compliance"
)

// APIResponse is the envelope for every JSON endpoint.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Server wires the compliance engine into an HTTP router.
type Server struct {
	engine *compliance.Engine
	logger *logging.Logger
	router *mux.Router
}

// NewServer creates a server over engine. The logger may be nil.
func NewServer(engine *compliance.Engine, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewLogger(nil)
	}
	s := &Server{
		engine: engine,
		logger: logger.WithComponent("api"),
	}
	s.router = s.buildRouter()
	return s
}

// Router returns the configured HTTP handler.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) buildRouter() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.Use(s.observe)

	api.HandleFunc("/settings", s.handleGetSettings).Methods("GET")
	api.HandleFunc("/settings", s.handleUpdateSettings).Methods("PATCH")

	api.HandleFunc("/logs", s.handleGetLogs).Methods("GET")
	api.HandleFunc("/logs/sale", s.handleLogSale).Methods("POST")
	api.HandleFunc("/logs/inventory", s.handleLogInventory).Methods("POST")
	api.HandleFunc("/logs/cashfloat", s.handleLogCashFloat).Methods("POST")
	api.HandleFunc("/summary", s.handleGenerateSummary).Methods("POST")

	api.HandleFunc("/issues", s.handleGetIssues).Methods("GET")
	api.HandleFunc("/retention", s.handleGetRetention).Methods("GET")
	api.HandleFunc("/retention/archive", s.handleArchive).Methods("POST")
	api.HandleFunc("/export", s.handleExport).Methods("POST")

	return router
}

// observe records request metrics and logs completed requests.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if template, err := current.GetPathTemplate(); err == nil {
				route = template
			}
		}
		observeRequest(r.Method, route, recorder.status, time.Since(start))

		s.logger.Debug("request completed", map[string]interface{}{
			"method":      r.Method,
			"path":        route,
			"status":      recorder.status,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.engine.Settings(r.Context())
	if err != nil {
		sendError(w, err, http.StatusInternalServerError)
		return
	}
	sendJSON(w, APIResponse{Success: true, Data: settings})
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch compliance.SettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		sendError(w, err, http.StatusBadRequest)
		return
	}
	settings, err := s.engine.UpdateSettings(r.Context(), patch)
	if err != nil {
		sendError(w, err, http.StatusBadRequest)
		return
	}
	sendJSON(w, APIResponse{Success: true, Data: settings})
}

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		sendError(w, err, http.StatusBadRequest)
		return
	}
	logs, err := s.engine.Logs(r.Context(), filter)
	if err != nil {
		sendError(w, err, http.StatusInternalServerError)
		return
	}
	sendJSON(w, APIResponse{Success: true, Data: logs})
}

func (s *Server) handleLogSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, err, http.StatusBadRequest)
		return
	}
	entry, err := s.engine.LogSale(r.Context(), req.toRecord())
	if err != nil {
		sendError(w, err, http.StatusInternalServerError)
		return
	}
	sendJSONStatus(w, http.StatusCreated, APIResponse{Success: true, Data: entry})
}

func (s *Server) handleLogInventory(w http.ResponseWriter, r *http.Request) {
	var req inventoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, err, http.StatusBadRequest)
		return
	}
	entry, err := s.engine.LogInventoryAdjustment(r.Context(), req.toRecord())
	if err != nil {
		sendError(w, err, http.StatusInternalServerError)
		return
	}
	sendJSONStatus(w, http.StatusCreated, APIResponse{Success: true, Data: entry})
}

func (s *Server) handleLogCashFloat(w http.ResponseWriter, r *http.Request) {
	var req cashFloatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, err, http.StatusBadRequest)
		return
	}
	entry, err := s.engine.LogCashFloat(r.Context(), req.toRecord())
	if err != nil {
		sendError(w, err, http.StatusInternalServerError)
		return
	}
	sendJSONStatus(w, http.StatusCreated, APIResponse{Success: true, Data: entry})
}

func (s *Server) handleGenerateSummary(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date string `json:"date"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			sendError(w, err, http.StatusBadRequest)
			return
		}
	}
	entry, err := s.engine.GenerateDailySummary(r.Context(), req.Date)
	if err != nil {
		sendError(w, err, http.StatusBadRequest)
		return
	}
	sendJSONStatus(w, http.StatusCreated, APIResponse{Success: true, Data: entry})
}

func (s *Server) handleGetIssues(w http.ResponseWriter, r *http.Request) {
	issues, err := s.engine.CheckIssues(r.Context())
	if err != nil {
		sendError(w, err, http.StatusInternalServerError)
		return
	}
	sendJSON(w, APIResponse{Success: true, Data: issues})
}

func (s *Server) handleGetRetention(w http.ResponseWriter, r *http.Request) {
	status, err := s.engine.RetentionStatus(r.Context())
	if err != nil {
		sendError(w, err, http.StatusInternalServerError)
		return
	}
	sendJSON(w, APIResponse{Success: true, Data: status})
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.ArchiveExpired(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, compliance.ErrSinkNotDurable) {
			status = http.StatusConflict
		}
		sendError(w, err, status)
		return
	}
	sendJSON(w, APIResponse{Success: true, Data: result})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	options, err := parseExportOptions(r)
	if err != nil {
		sendError(w, err, http.StatusBadRequest)
		return
	}
	result, err := s.engine.Export(r.Context(), options)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, compliance.ErrNoLogsToExport) {
			status = http.StatusNotFound
		}
		sendError(w, err, status)
		return
	}
	sendJSON(w, APIResponse{Success: true, Data: result})
}

func sendJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func sendJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func sendError(w http.ResponseWriter, err error, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}
