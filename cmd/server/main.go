package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmntable/dmntable"
	"github.com/dmntable/dmntable/cache"
	"github.com/dmntable/dmntable/internal/logger"
	"github.com/dmntable/dmntable/metrics"
	"github.com/dmntable/dmntable/registry"
	"github.com/dmntable/dmntable/store"
)

// Server hosts the decision-table registry behind a chi router.
type Server struct {
	db       *sql.DB
	registry *registry.NamespaceManager
	store    store.TableStore
	metrics  *metrics.Metrics
	router   *chi.Mux
}

// NewServer opens databaseURL and loads every persisted namespace.
func NewServer(databaseURL string) (*Server, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewServerWithDB(db)
}

// NewServerWithDB wires a server around an already-open database handle, so
// tests can point it at a testcontainer.
func NewServerWithDB(db *sql.DB) (*Server, error) {
	tableStore := store.NewPostgresTableStore(db)
	tableCache := cache.NewInMemoryTableCache(cache.DefaultConfig())
	m := metrics.New()

	nsManager := registry.NewNamespaceManager(db, tableStore, tableCache, m)

	logger.Info("loading namespaces from database")
	if err := nsManager.LoadAllNamespaces(); err != nil {
		return nil, fmt.Errorf("failed to load namespaces: %w", err)
	}
	namespaces := nsManager.ListNamespaces()
	logger.Info("loaded namespaces", "count", len(namespaces))

	s := &Server{
		db:       db,
		registry: nsManager,
		store:    tableStore,
		metrics:  m,
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/api/v1/evaluate", s.handleEvaluate)

	r.Route("/api/v1/namespaces", func(r chi.Router) {
		r.Get("/", s.handleListNamespaces)
		r.Post("/", s.handleCreateNamespace)

		r.Route("/{namespaceId}", func(r chi.Router) {
			r.Post("/schema", s.handleCreateOrUpdateSchema)
			r.Get("/schema", s.handleGetSchema)

			r.Post("/tables", s.handleCreateTable)
			r.Get("/tables", s.handleListTables)
			r.Get("/tables/{tableId}", s.handleGetTable)
			r.Put("/tables/{tableId}", s.handleUpdateTable)
			r.Delete("/tables/{tableId}", s.handleDeleteTable)
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":            "healthy",
		"namespacesLoaded":  len(s.registry.ListNamespaces()),
		"totalErrors":       logger.TotalErrors.Load(),
		"totalEvalFailures": logger.TotalEvalFailures.Load(),
	})
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NamespaceID string         `json:"namespaceId"`
		TableID     string         `json:"tableId"`
		Variables   map[string]any `json:"variables"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.NamespaceID == "" {
		respondError(w, http.StatusBadRequest, "namespaceId is required", nil)
		return
	}
	if req.TableID == "" {
		respondError(w, http.StatusBadRequest, "tableId is required", nil)
		return
	}
	if req.Variables == nil {
		respondError(w, http.StatusBadRequest, "variables are required", nil)
		return
	}

	en, err := s.registry.GetEngine(req.NamespaceID)
	if err != nil {
		respondError(w, http.StatusNotFound, "namespace not found", err)
		return
	}

	start := time.Now()
	result, err := en.Evaluate(req.TableID, req.Variables)
	elapsed := time.Since(start)

	if err != nil {
		if f, ok := err.(*dmntable.Failure); ok {
			respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"failure":        f.Kind.String(),
				"message":        f.Message,
				"evaluationTime": elapsed.String(),
			})
			return
		}
		respondError(w, http.StatusNotFound, "table not found", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"result":         resultJSON(result),
		"evaluationTime": elapsed.String(),
	})
}

// resultJSON shapes a dmntable.Result the way §4.5/§4.6 describe: a bare
// scalar, a mapping, or a sequence of either, never nested.
func resultJSON(result dmntable.Result) any {
	switch result.Kind {
	case dmntable.ResultAbsent:
		return nil
	case dmntable.ResultScalar:
		return result.Scalar
	case dmntable.ResultMapping:
		return result.Mapping
	case dmntable.ResultSequence:
		return result.Sequence
	default:
		return nil
	}
}

func (s *Server) handleListNamespaces(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.Query("SELECT id, name, created_at FROM namespaces ORDER BY created_at DESC")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list namespaces", err)
		return
	}
	defer rows.Close()

	type namespace struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		CreatedAt time.Time `json:"createdAt"`
	}

	namespaces := []namespace{}
	for rows.Next() {
		var n namespace
		if err := rows.Scan(&n.ID, &n.Name, &n.CreatedAt); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to scan namespace", err)
			return
		}
		namespaces = append(namespaces, n)
	}

	respondJSON(w, http.StatusOK, map[string]any{"namespaces": namespaces})
}

func (s *Server) handleCreateNamespace(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string          `json:"name"`
		Schema registry.Schema `json:"schema"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	namespaceID, err := s.registry.NewNamespace(req.Schema)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create namespace", err)
		return
	}

	if _, err := s.db.Exec(`
		INSERT INTO namespaces (id, name, created_at) VALUES ($1, $2, NOW())
	`, namespaceID, req.Name); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to persist namespace", err)
		return
	}

	schemaJSON, err := json.Marshal(req.Schema)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to marshal schema", err)
		return
	}
	if _, err := s.db.Exec(`
		INSERT INTO namespace_schemas (namespace_id, version, definition, active) VALUES ($1, 1, $2, true)
	`, namespaceID, schemaJSON); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to persist schema", err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"id":   namespaceID,
		"name": req.Name,
	})
}

func (s *Server) handleCreateOrUpdateSchema(w http.ResponseWriter, r *http.Request) {
	namespaceID := chi.URLParam(r, "namespaceId")

	var req struct {
		Definition registry.Schema `json:"definition"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if err := s.registry.UpdateNamespaceSchema(namespaceID, req.Definition); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update schema", err)
		return
	}

	activeTables, _ := s.store.ListActive(namespaceID)

	respondJSON(w, http.StatusOK, map[string]any{
		"status":           "active",
		"tablesRecompiled": len(activeTables),
	})
}

func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	namespaceID := chi.URLParam(r, "namespaceId")

	var schemaJSON []byte
	var version int
	err := s.db.QueryRow(`
		SELECT version, definition FROM namespace_schemas WHERE namespace_id = $1 AND active = true
	`, namespaceID).Scan(&version, &schemaJSON)
	if err == sql.ErrNoRows {
		respondError(w, http.StatusNotFound, "schema not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get schema", err)
		return
	}

	var schema registry.Schema
	if err := json.Unmarshal(schemaJSON, &schema); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to parse schema", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"version":    version,
		"definition": schema,
	})
}

func (s *Server) handleCreateTable(w http.ResponseWriter, r *http.Request) {
	namespaceID := chi.URLParam(r, "namespaceId")

	var req struct {
		Name  string                 `json:"name"`
		Table *dmntable.DecisionTable `json:"table"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Name == "" || req.Table == nil {
		respondError(w, http.StatusBadRequest, "name and table are required", nil)
		return
	}

	en, err := s.registry.GetEngine(namespaceID)
	if err != nil {
		respondError(w, http.StatusNotFound, "namespace not found", err)
		return
	}

	def := &store.Definition{
		ID:        uuid.New().String(),
		Namespace: namespaceID,
		Name:      req.Name,
		Table:     req.Table,
		Active:    true,
	}

	if err := en.AddTable(def); err != nil {
		respondError(w, http.StatusBadRequest, "failed to add table", err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"id":     def.ID,
		"name":   def.Name,
		"active": def.Active,
	})
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	namespaceID := chi.URLParam(r, "namespaceId")

	defs, err := s.store.ListActive(namespaceID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list tables", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"tables": defs})
}

func (s *Server) handleGetTable(w http.ResponseWriter, r *http.Request) {
	namespaceID := chi.URLParam(r, "namespaceId")
	tableID := chi.URLParam(r, "tableId")

	def, err := s.store.Get(namespaceID, tableID)
	if err != nil {
		respondError(w, http.StatusNotFound, "table not found", err)
		return
	}
	respondJSON(w, http.StatusOK, def)
}

func (s *Server) handleUpdateTable(w http.ResponseWriter, r *http.Request) {
	namespaceID := chi.URLParam(r, "namespaceId")
	tableID := chi.URLParam(r, "tableId")

	var req struct {
		Name   string                  `json:"name"`
		Table  *dmntable.DecisionTable `json:"table"`
		Active *bool                   `json:"active,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	en, err := s.registry.GetEngine(namespaceID)
	if err != nil {
		respondError(w, http.StatusNotFound, "namespace not found", err)
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	def := &store.Definition{
		ID:        tableID,
		Namespace: namespaceID,
		Name:      req.Name,
		Table:     req.Table,
		Active:    active,
	}

	if err := en.UpdateTable(def); err != nil {
		respondError(w, http.StatusBadRequest, "failed to update table", err)
		return
	}

	respondJSON(w, http.StatusOK, def)
}

func (s *Server) handleDeleteTable(w http.ResponseWriter, r *http.Request) {
	namespaceID := chi.URLParam(r, "namespaceId")
	tableID := chi.URLParam(r, "tableId")

	en, err := s.registry.GetEngine(namespaceID)
	if err != nil {
		respondError(w, http.StatusNotFound, "namespace not found", err)
		return
	}

	if err := en.DeleteTable(tableID); err != nil {
		respondError(w, http.StatusNotFound, "table not found", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{"error": message}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}

func main() {
	logger.SetLevelFromEnv("LOG_LEVEL", logger.LevelInfo)

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		logger.Fatal("DATABASE_URL environment variable is required")
	}

	server, err := NewServer(databaseURL)
	if err != nil {
		logger.Fatal("failed to create server", "error", err)
	}
	defer server.db.Close()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	logger.Shutdown(ctx)

	logger.Info("server stopped")
}
