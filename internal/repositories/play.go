package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/desertthunder/recents/internal/models"
)

// playedAtLayout is fixed-width so TEXT ordering matches time ordering.
const playedAtLayout = "2006-01-02T15:04:05.000Z07:00"

// PlayRepository caches fetched listening history in the plays table.
//
// Plays are keyed by (played_at, track_id); re-caching an overlapping page replaces rows.
type PlayRepository struct {
	db *sql.DB
}

// NewPlayRepository creates a new [PlayRepository] with the given database connection
func NewPlayRepository(db *sql.DB) *PlayRepository {
	return &PlayRepository{db: db}
}

// CachePlays stores each play's JSON payload
func (r *PlayRepository) CachePlays(plays []models.Play) error {
	if len(plays) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO plays (played_at, track_id, payload, fetched_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(played_at, track_id) DO UPDATE SET payload = excluded.payload, fetched_at = CURRENT_TIMESTAMP
	`
	for _, p := range plays {
		payload, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to encode play: %w", err)
		}
		if _, err := tx.Exec(query, p.PlayedAt.UTC().Format(playedAtLayout), p.Track.ID, string(payload)); err != nil {
			return fmt.Errorf("failed to cache play: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit plays: %w", err)
	}
	return nil
}

// Recent returns up to limit cached plays, most recent first
func (r *PlayRepository) Recent(limit int) ([]models.Play, error) {
	return r.query(`SELECT payload FROM plays ORDER BY played_at DESC LIMIT ?`, limit)
}

// ByTrack returns up to limit cached plays of one track, most recent first
func (r *PlayRepository) ByTrack(trackID string, limit int) ([]models.Play, error) {
	return r.query(`SELECT payload FROM plays WHERE track_id = ? ORDER BY played_at DESC LIMIT ?`, trackID, limit)
}

// Purge removes every cached play
func (r *PlayRepository) Purge() error {
	if _, err := r.db.Exec(`DELETE FROM plays`); err != nil {
		return fmt.Errorf("failed to purge plays: %w", err)
	}
	return nil
}

func (r *PlayRepository) query(query string, args ...any) ([]models.Play, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query plays: %w", err)
	}
	defer rows.Close()

	plays := []models.Play{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan play: %w", err)
		}

		var p models.Play
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, fmt.Errorf("failed to decode cached play: %w", err)
		}
		plays = append(plays, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plays: %w", err)
	}
	return plays, nil
}
