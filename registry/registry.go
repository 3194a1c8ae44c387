// Package registry hosts many independently-versioned decision-table
// namespaces behind one process: each namespace declares its own set of
// top-level CEL variable names and gets its own engine.Engine.
package registry

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/uuid"

	"github.com/dmntable/dmntable"
	"github.com/dmntable/dmntable/cache"
	"github.com/dmntable/dmntable/engine"
	"github.com/dmntable/dmntable/metrics"
	"github.com/dmntable/dmntable/store"
)

// Schema declares the top-level variable names a namespace's decision
// tables may reference, along with an optional field-shape hint per
// variable for documentation and future validation. Only the map's keys
// currently drive CEL environment construction; the inner map is carried
// through unchanged.
type Schema map[string]map[string]string

// variableNames returns schema's keys in no particular order, suitable for
// dmntable.NewEnv / cel.Variable declarations.
func (s Schema) variableNames() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	return names
}

// NamespaceEngine pairs an engine.Engine with the namespace metadata it was
// built from.
type NamespaceEngine struct {
	NamespaceID string
	Schema      Schema
	Engine      *engine.Engine
}

// NamespaceManager manages one engine.Engine per namespace, backed by a
// shared Postgres table store.
type NamespaceManager struct {
	engines map[string]*NamespaceEngine
	db      *sql.DB
	store   store.TableStore
	cache   cache.TableCache
	metrics *metrics.Metrics
	mu      sync.RWMutex
}

// NewNamespaceManager creates a manager instance over db, sharing st, c, and
// m across every namespace it loads or creates. m may be nil, in which case
// every namespace's engine observes metrics as nil-safe no-ops.
func NewNamespaceManager(db *sql.DB, st store.TableStore, c cache.TableCache, m *metrics.Metrics) *NamespaceManager {
	return &NamespaceManager{
		engines: make(map[string]*NamespaceEngine),
		db:      db,
		store:   st,
		cache:   c,
		metrics: m,
	}
}

// newEnvFromSchema creates a CEL environment declaring one DynType variable
// per top-level name in schema, plus the reserved INPUT binding every
// decision table's input entries may reference.
func newEnvFromSchema(schema Schema) (*cel.Env, error) {
	return dmntable.NewEnv(schema.variableNames()...)
}

// LoadAllNamespaces loads every active namespace schema from Postgres and
// initializes its engine.
func (m *NamespaceManager) LoadAllNamespaces() error {
	rows, err := m.db.Query(`
		SELECT n.id, s.definition
		FROM namespaces n
		JOIN namespace_schemas s ON s.namespace_id = n.id
		WHERE s.active = true
	`)
	if err != nil {
		return fmt.Errorf("failed to fetch namespaces: %w", err)
	}
	defer rows.Close()

	loaded := 0
	for rows.Next() {
		var namespaceID string
		var schemaJSON []byte
		if err := rows.Scan(&namespaceID, &schemaJSON); err != nil {
			return fmt.Errorf("failed to scan namespace row: %w", err)
		}

		var schema Schema
		if err := json.Unmarshal(schemaJSON, &schema); err != nil {
			return fmt.Errorf("invalid schema for namespace %s: %w", namespaceID, err)
		}

		if err := m.CreateNamespace(namespaceID, schema); err != nil {
			return fmt.Errorf("failed to initialize namespace %s: %w", namespaceID, err)
		}
		loaded++
	}

	return rows.Err()
}

// CreateNamespace creates a new namespace engine with the given schema and
// registers it under namespaceID.
func (m *NamespaceManager) CreateNamespace(namespaceID string, schema Schema) error {
	if err := validateSchema(schema); err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}

	env, err := newEnvFromSchema(schema)
	if err != nil {
		return err
	}

	en, err := engine.NewEngine(namespaceID, env, m.store, m.cache)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	en.SetMetrics(m.metrics)

	m.mu.Lock()
	m.engines[namespaceID] = &NamespaceEngine{
		NamespaceID: namespaceID,
		Schema:      schema,
		Engine:      en,
	}
	m.mu.Unlock()

	return nil
}

// NewNamespace allocates a fresh namespace ID via google/uuid and creates
// its engine.
func (m *NamespaceManager) NewNamespace(schema Schema) (string, error) {
	namespaceID := uuid.New().String()
	if err := m.CreateNamespace(namespaceID, schema); err != nil {
		return "", err
	}
	return namespaceID, nil
}

// GetEngine retrieves the engine for a specific namespace.
func (m *NamespaceManager) GetEngine(namespaceID string) (*engine.Engine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ne, exists := m.engines[namespaceID]
	if !exists {
		return nil, fmt.Errorf("namespace %s not found", namespaceID)
	}
	return ne.Engine, nil
}

// UpdateNamespaceSchema swaps a namespace to newSchema, persisting a new
// schema version and atomically replacing its engine so in-flight
// evaluations against the old engine are unaffected.
func (m *NamespaceManager) UpdateNamespaceSchema(namespaceID string, newSchema Schema) error {
	if err := validateSchema(newSchema); err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}

	m.mu.RLock()
	_, exists := m.engines[namespaceID]
	m.mu.RUnlock()
	if !exists {
		return m.CreateNamespace(namespaceID, newSchema)
	}

	_, err := m.db.Exec(`
		UPDATE namespace_schemas
		SET active = false
		WHERE namespace_id = $1
	`, namespaceID)
	if err != nil {
		return fmt.Errorf("failed to deactivate old schemas: %w", err)
	}

	schemaJSON, err := json.Marshal(newSchema)
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}

	_, err = m.db.Exec(`
		INSERT INTO namespace_schemas (namespace_id, version, definition, active, created_at)
		SELECT $1, COALESCE(MAX(version), 0) + 1, $2, true, NOW()
		FROM namespace_schemas
		WHERE namespace_id = $1
	`, namespaceID, schemaJSON)
	if err != nil {
		return fmt.Errorf("failed to save new schema: %w", err)
	}

	env, err := newEnvFromSchema(newSchema)
	if err != nil {
		return err
	}

	newEngine, err := engine.NewEngine(namespaceID, env, m.store, m.cache)
	if err != nil {
		return fmt.Errorf("failed to create new engine: %w", err)
	}
	newEngine.SetMetrics(m.metrics)

	m.mu.Lock()
	m.engines[namespaceID] = &NamespaceEngine{
		NamespaceID: namespaceID,
		Schema:      newSchema,
		Engine:      newEngine,
	}
	m.mu.Unlock()

	return nil
}

// ListNamespaces returns every loaded namespace ID.
func (m *NamespaceManager) ListNamespaces() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.engines))
	for id := range m.engines {
		ids = append(ids, id)
	}
	return ids
}

// DeleteNamespace removes a namespace's engine from the registry. It does
// not delete the namespace's rows from the database.
func (m *NamespaceManager) DeleteNamespace(namespaceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.engines[namespaceID]; !exists {
		return fmt.Errorf("namespace %s not found", namespaceID)
	}
	delete(m.engines, namespaceID)
	return nil
}
