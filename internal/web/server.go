package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/elys-network/yieldcore/internal/config"
	"github.com/elys-network/yieldcore/internal/logger"
	"github.com/elys-network/yieldcore/internal/state"
	"github.com/elys-network/yieldcore/internal/types"
	"github.com/elys-network/yieldcore/internal/validator"
)

var webLogger = logger.GetForComponent("web_server")

const maxProblemBytes = 1 << 20

// Store is the read side of the audit store.
type Store interface {
	RecentRounds(ctx context.Context, limit int) ([]state.RoundSummary, error)
	RequestInfo(ctx context.Context, requestID string) (*state.RequestInfo, error)
	RoundResponses(ctx context.Context, requestID string) ([]state.MinerResponseRow, error)
	MinerResponses(ctx context.Context, uid types.MinerUID, limit int) ([]state.MinerResponseRow, error)
	ActiveParameters(ctx context.Context) (*config.ScoringFile, error)
	Ping() error
}

// RoundRunner is the part of the validator the API drives.
type RoundRunner interface {
	Scores() map[types.MinerUID]float64
	Params() config.ScoringFile
	RunOrganicRound(ctx context.Context, problem types.AssetsAndPools) (*validator.RoundOutcome, error)
}

// WebServer serves the round audit trail, current scores and the organic round entry point
type WebServer struct {
	router  *mux.Router
	port    string
	store   Store
	runner  RoundRunner
	metrics http.Handler
	started time.Time
	server  *http.Server
}

// NewWebServer creates a new web server instance. store and metrics may be nil, in which case the
// routes depending on them answer 503.
func NewWebServer(port string, store Store, runner RoundRunner, metrics http.Handler) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:  mux.NewRouter(),
		port:    port,
		store:   store,
		runner:  runner,
		metrics: metrics,
		started: time.Now(),
	}

	server.setupRoutes()
	server.server = &http.Server{
		Addr:         ":" + port,
		Handler:      server.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // organic rounds wait for every miner
		IdleTimeout:  60 * time.Second,
	}
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Health endpoint (direct route)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	ws.router.HandleFunc("/metrics", ws.handleMetrics).Methods("GET")

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/rounds", ws.handleGetRounds).Methods("GET")
	api.HandleFunc("/rounds/latest", ws.handleGetLatestRound).Methods("GET")
	api.HandleFunc("/rounds/organic", ws.handleOrganicRound).Methods("POST", "OPTIONS")
	api.HandleFunc("/rounds/{id}", ws.handleGetRound).Methods("GET")
	api.HandleFunc("/miners/{uid}/responses", ws.handleGetMinerResponses).Methods("GET")
	api.HandleFunc("/scores", ws.handleGetScores).Methods("GET")
	api.HandleFunc("/parameters", ws.handleGetParameters).Methods("GET")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Handler returns the router, for embedding or tests.
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// Start starts the web server and blocks until it stops. http.ErrServerClosed is returned after
// Shutdown.
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")
	return ws.server.ListenAndServe()
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (ws *WebServer) Shutdown(ctx context.Context) error {
	return ws.server.Shutdown(ctx)
}

// handleHealth reports process stats, database reachability and the latest round
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hasErrors := false
	dbStatus := "disabled"
	roundInfo := map[string]interface{}{
		"last_round":      0,
		"last_request_id": nil,
		"last_round_time": nil,
	}

	if ws.store != nil {
		dbStatus = "healthy"
		if err := ws.store.Ping(); err != nil {
			webLogger.Warn().Err(err).Msg("Database health check failed")
			dbStatus = "unreachable"
			hasErrors = true
		} else if rounds, err := ws.store.RecentRounds(r.Context(), 1); err == nil && len(rounds) > 0 {
			roundInfo = map[string]interface{}{
				"last_round":      rounds[0].Round,
				"last_request_id": rounds[0].RequestID,
				"last_round_time": rounds[0].CreatedAt,
			}
		}
	}

	overallStatus := "OK"
	if hasErrors {
		overallStatus = "DEGRADED"
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":            runtime.Version(),
			"goroutines_count":   runtime.NumGoroutine(),
			"heap_objects_count": memStats.HeapObjects,
			"alloc_bytes":        memStats.Alloc,
			"sys_bytes":          memStats.Sys,
			"gc_cycles":          memStats.NumGC,
			"uptime_seconds":     int64(time.Since(ws.started).Seconds()),
		},
		"component": map[string]interface{}{
			"name":    "yieldcore-validator",
			"version": "1.0.0",
		},
		"validator_status": map[string]interface{}{
			"database":      dbStatus,
			"scored_miners": len(ws.runner.Scores()),
			"round_info":    roundInfo,
		},
	}

	statusCode := http.StatusOK
	if hasErrors {
		statusCode = http.StatusServiceUnavailable
	}
	ws.writeJSONResponse(w, statusCode, response)
}

func (ws *WebServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if ws.metrics == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Metrics not configured")
		return
	}
	ws.metrics.ServeHTTP(w, r)
}

// handleGetRounds returns the most recent rounds
func (ws *WebServer) handleGetRounds(w http.ResponseWriter, r *http.Request) {
	if !ws.requireStore(w) {
		return
	}
	limit := parseLimit(r, 20)

	rounds, err := ws.store.RecentRounds(r.Context(), limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent rounds")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve rounds")
		return
	}

	response := map[string]interface{}{
		"rounds": rounds,
		"count":  len(rounds),
		"limit":  limit,
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetLatestRound returns the most recent round with its responses
func (ws *WebServer) handleGetLatestRound(w http.ResponseWriter, r *http.Request) {
	if !ws.requireStore(w) {
		return
	}
	rounds, err := ws.store.RecentRounds(r.Context(), 1)
	if err != nil || len(rounds) == 0 {
		webLogger.Error().Err(err).Msg("Failed to get latest round")
		ws.writeErrorResponse(w, http.StatusNotFound, "No rounds found")
		return
	}
	ws.writeRound(w, r, rounds[0].RequestID)
}

// handleGetRound returns one round by request id
func (ws *WebServer) handleGetRound(w http.ResponseWriter, r *http.Request) {
	if !ws.requireStore(w) {
		return
	}
	ws.writeRound(w, r, mux.Vars(r)["id"])
}

func (ws *WebServer) writeRound(w http.ResponseWriter, r *http.Request, requestID string) {
	info, err := ws.store.RequestInfo(r.Context(), requestID)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			ws.writeErrorResponse(w, http.StatusNotFound, "Round not found")
			return
		}
		webLogger.Error().Err(err).Str("request_id", requestID).Msg("Failed to get round")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve round")
		return
	}

	responses, err := ws.store.RoundResponses(r.Context(), requestID)
	if err != nil {
		webLogger.Error().Err(err).Str("request_id", requestID).Msg("Failed to get round responses")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve round responses")
		return
	}

	response := map[string]interface{}{
		"request":   info,
		"responses": responses,
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetMinerResponses returns the latest scored responses of one miner
func (ws *WebServer) handleGetMinerResponses(w http.ResponseWriter, r *http.Request) {
	if !ws.requireStore(w) {
		return
	}
	uid, err := strconv.ParseUint(mux.Vars(r)["uid"], 10, 16)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid miner uid")
		return
	}
	limit := parseLimit(r, 10)

	rows, err := ws.store.MinerResponses(r.Context(), types.MinerUID(uid), limit)
	if err != nil {
		webLogger.Error().Err(err).Uint64("uid", uid).Msg("Failed to get miner responses")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve miner responses")
		return
	}

	response := map[string]interface{}{
		"uid":       uid,
		"responses": rows,
		"count":     len(rows),
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

type scoreEntry struct {
	UID   types.MinerUID `json:"uid"`
	Score float64        `json:"score"`
}

// handleGetScores returns the moving-average scores, highest first
func (ws *WebServer) handleGetScores(w http.ResponseWriter, r *http.Request) {
	scores := ws.runner.Scores()
	entries := make([]scoreEntry, 0, len(scores))
	for uid, s := range scores {
		entries = append(entries, scoreEntry{UID: uid, Score: s})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].UID < entries[j].UID
	})

	response := map[string]interface{}{
		"scores":    entries,
		"count":     len(entries),
		"timestamp": time.Now().UTC(),
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetParameters returns the parameters in effect and, when stored, the active stored version
func (ws *WebServer) handleGetParameters(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"parameters": ws.runner.Params(),
		"timestamp":  time.Now().UTC(),
	}
	if ws.store != nil {
		stored, err := ws.store.ActiveParameters(r.Context())
		switch {
		case err == nil:
			response["stored"] = stored
		case !errors.Is(err, state.ErrNotFound):
			webLogger.Error().Err(err).Msg("Failed to get stored scoring parameters")
		}
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleOrganicRound runs an organic round on the posted problem and answers with the best
// allocation
func (ws *WebServer) handleOrganicRound(w http.ResponseWriter, r *http.Request) {
	var problem types.AssetsAndPools
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxProblemBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&problem); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid problem: "+err.Error())
		return
	}

	outcome, err := ws.runner.RunOrganicRound(r.Context(), problem)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrMalformedProblem):
			ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, validator.ErrNoMiners):
			ws.writeErrorResponse(w, http.StatusServiceUnavailable, "No allocation miners available")
		default:
			webLogger.Error().Err(err).Msg("Organic round failed")
			ws.writeErrorResponse(w, http.StatusInternalServerError, "Organic round failed")
		}
		return
	}

	uid, allocation, ok := outcome.Best()
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadGateway, "No miner produced a valid allocation")
		return
	}

	response := map[string]interface{}{
		"request_id":  outcome.Record.RequestID,
		"round":       outcome.Record.Round,
		"uid":         uid,
		"reward":      outcome.Record.Rewards[uid],
		"apy":         outcome.Record.AllocInfos[uid].APY,
		"allocations": allocation,
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

func (ws *WebServer) requireStore(w http.ResponseWriter) bool {
	if ws.store == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Audit store not configured")
		return false
	}
	return true
}

func parseLimit(r *http.Request, def int) int {
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			return parsedLimit
		}
	}
	return def
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
