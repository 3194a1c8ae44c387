package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/dmntable/dmntable"
)

// PostgresTableStore implements TableStore backed by PostgreSQL. The table
// body is stored as a JSON column; namespace and ID make up the natural key.
type PostgresTableStore struct {
	db *sql.DB
}

// NewPostgresTableStore wraps an already-open, already-migrated database
// handle.
func NewPostgresTableStore(db *sql.DB) *PostgresTableStore {
	return &PostgresTableStore{db: db}
}

func (s *PostgresTableStore) Add(def *Definition) error {
	body, err := json.Marshal(def.Table)
	if err != nil {
		return fmt.Errorf("failed to marshal decision table: %w", err)
	}

	var exists bool
	err = s.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM decision_tables WHERE namespace = $1 AND id = $2)
	`, def.Namespace, def.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check decision table existence: %w", err)
	}
	if exists {
		return fmt.Errorf("decision table %s/%s already exists", def.Namespace, def.ID)
	}

	now := time.Now()
	_, err = s.db.Exec(`
		INSERT INTO decision_tables (namespace, id, name, body, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, def.Namespace, def.ID, def.Name, body, def.Active, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert decision table: %w", err)
	}

	def.CreatedAt = now
	def.UpdatedAt = now
	return nil
}

func (s *PostgresTableStore) Get(namespace, id string) (*Definition, error) {
	var def Definition
	var body []byte
	err := s.db.QueryRow(`
		SELECT namespace, id, name, body, active, created_at, updated_at
		FROM decision_tables
		WHERE namespace = $1 AND id = $2
	`, namespace, id).Scan(
		&def.Namespace, &def.ID, &def.Name, &body, &def.Active, &def.CreatedAt, &def.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("decision table %s/%s not found", namespace, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get decision table: %w", err)
	}

	var table dmntable.DecisionTable
	if err := json.Unmarshal(body, &table); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decision table body: %w", err)
	}
	def.Table = &table

	return &def, nil
}

func (s *PostgresTableStore) ListActive(namespace string) ([]*Definition, error) {
	rows, err := s.db.Query(`
		SELECT namespace, id, name, body, active, created_at, updated_at
		FROM decision_tables
		WHERE namespace = $1 AND active = true
		ORDER BY created_at ASC
	`, namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to list active decision tables: %w", err)
	}
	defer rows.Close()

	var defs []*Definition
	for rows.Next() {
		var def Definition
		var body []byte
		if err := rows.Scan(&def.Namespace, &def.ID, &def.Name, &body, &def.Active, &def.CreatedAt, &def.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan decision table: %w", err)
		}
		var table dmntable.DecisionTable
		if err := json.Unmarshal(body, &table); err != nil {
			return nil, fmt.Errorf("failed to unmarshal decision table body: %w", err)
		}
		def.Table = &table
		defs = append(defs, &def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decision tables: %w", err)
	}

	return defs, nil
}

func (s *PostgresTableStore) Update(def *Definition) error {
	if _, err := s.Get(def.Namespace, def.ID); err != nil {
		return err
	}

	body, err := json.Marshal(def.Table)
	if err != nil {
		return fmt.Errorf("failed to marshal decision table: %w", err)
	}
	def.UpdatedAt = time.Now()

	result, err := s.db.Exec(`
		UPDATE decision_tables
		SET name = $1, body = $2, active = $3, updated_at = $4
		WHERE namespace = $5 AND id = $6
	`, def.Name, body, def.Active, def.UpdatedAt, def.Namespace, def.ID)
	if err != nil {
		return fmt.Errorf("failed to update decision table: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("decision table %s/%s not found", def.Namespace, def.ID)
	}

	return nil
}

func (s *PostgresTableStore) Delete(namespace, id string) error {
	result, err := s.db.Exec(`
		DELETE FROM decision_tables
		WHERE namespace = $1 AND id = $2
	`, namespace, id)
	if err != nil {
		return fmt.Errorf("failed to delete decision table: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("decision table %s/%s not found", namespace, id)
	}

	return nil
}
