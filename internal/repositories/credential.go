package repositories

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/desertthunder/recents/internal/models"
)

// CredentialRepository implements [models.CredentialStore] on the SQLite credentials table.
type CredentialRepository struct {
	db   *sql.DB
	keys Keys
}

// NewCredentialRepository creates a new [CredentialRepository] for namespace ns
func NewCredentialRepository(db *sql.DB, ns string) *CredentialRepository {
	return &CredentialRepository{db: db, keys: NewKeys(ns)}
}

// Load reads whichever of the namespaced keys exist
func (r *CredentialRepository) Load() (models.TokenState, error) {
	keys := r.keys.All()
	query := fmt.Sprintf(`SELECT key, value FROM credentials WHERE key IN (%s)`, placeholders(len(keys)))

	rows, err := r.db.Query(query, toArgs(keys)...)
	if err != nil {
		return models.TokenState{}, fmt.Errorf("failed to query credentials: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string, len(keys))
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return models.TokenState{}, fmt.Errorf("failed to scan credential: %w", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return models.TokenState{}, fmt.Errorf("error iterating credentials: %w", err)
	}

	return DecodeTokenState(r.keys, values), nil
}

// Save upserts the present fields of s in one transaction
func (r *CredentialRepository) Save(s models.TokenState) error {
	values := EncodeTokenState(r.keys, s)
	if len(values) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO credentials (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`
	for _, key := range r.keys.All() {
		value, ok := values[key]
		if !ok {
			continue
		}
		if _, err := tx.Exec(query, key, value); err != nil {
			return fmt.Errorf("failed to save credential %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit credentials: %w", err)
	}
	return nil
}

// Clear deletes all namespaced keys
func (r *CredentialRepository) Clear() error {
	keys := r.keys.All()
	query := fmt.Sprintf(`DELETE FROM credentials WHERE key IN (%s)`, placeholders(len(keys)))

	if _, err := r.db.Exec(query, toArgs(keys)...); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toArgs(keys []string) []any {
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	return args
}
