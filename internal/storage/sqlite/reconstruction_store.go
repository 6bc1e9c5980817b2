package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/banshee-data/sfm/internal/sfm"
	"github.com/banshee-data/sfm/internal/timeutil"
	"github.com/google/uuid"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("reconstruction run not found")

// ErrReconstructionNotFound is returned when a reconstruction id is unknown.
var ErrReconstructionNotFound = errors.New("reconstruction not found")

// Run is one invocation of the reconstruction builder.
type Run struct {
	RunID              string `json:"run_id"`
	CreatedAt          int64  `json:"created_at"`
	Notes              string `json:"notes,omitempty"`
	NumReconstructions int    `json:"num_reconstructions"`
}

// ReconstructionSummary describes a stored reconstruction without decoding
// it.
type ReconstructionSummary struct {
	ReconstructionID string `json:"reconstruction_id"`
	RunID            string `json:"run_id"`
	Index            int    `json:"index"`
	NumViews         int    `json:"num_views"`
	NumTracks        int    `json:"num_tracks"`
	CreatedAt        int64  `json:"created_at"`
}

// ReconstructionStore persists the reconstructions produced by builder runs.
type ReconstructionStore struct {
	db    *sql.DB
	clock timeutil.Clock
}

// NewReconstructionStore creates a store on db.
func NewReconstructionStore(db *sql.DB) *ReconstructionStore {
	return &ReconstructionStore{db: db, clock: timeutil.RealClock{}}
}

// SetClock replaces the clock used for creation timestamps.
func (s *ReconstructionStore) SetClock(c timeutil.Clock) {
	s.clock = c
}

// CreateRun records a new run and returns its id.
func (s *ReconstructionStore) CreateRun(notes string) (string, error) {
	runID := uuid.New().String()
	err := retryOnBusy(func() error {
		_, err := s.db.Exec(`INSERT INTO reconstruction_runs (run_id, created_at, notes) VALUES (?, ?, ?)`,
			runID, s.clock.Now().UnixNano(), notes)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return runID, nil
}

// Save stores recon as the index-th reconstruction of runID and returns the
// new reconstruction id.
func (s *ReconstructionStore) Save(runID string, index int, recon *sfm.Reconstruction) (string, error) {
	raw, err := json.Marshal(recon.Record())
	if err != nil {
		return "", fmt.Errorf("encode reconstruction: %w", err)
	}
	id := uuid.New().String()
	err = retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO reconstructions (
				reconstruction_id, run_id, run_index, num_views, num_tracks, record_json, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, runID, index, recon.NumViews(), recon.NumTracks(), string(raw), s.clock.Now().UnixNano())
		return err
	})
	if err != nil {
		return "", fmt.Errorf("insert reconstruction %d of run %s: %w", index, runID, err)
	}
	return id, nil
}

// ListRuns returns all runs, newest first.
func (s *ReconstructionStore) ListRuns() ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT r.run_id, r.created_at, COALESCE(r.notes, ''), COUNT(c.reconstruction_id)
		FROM reconstruction_runs r
		LEFT JOIN reconstructions c ON c.run_id = r.run_id
		GROUP BY r.run_id
		ORDER BY r.created_at DESC, r.run_id`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.RunID, &r.CreatedAt, &r.Notes, &r.NumReconstructions); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListReconstructions returns the reconstructions of runID in index order.
func (s *ReconstructionStore) ListReconstructions(runID string) ([]ReconstructionSummary, error) {
	var exists bool
	if err := s.db.QueryRow(`SELECT COUNT(*) > 0 FROM reconstruction_runs WHERE run_id = ?`, runID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("query run %s: %w", runID, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	rows, err := s.db.Query(`
		SELECT reconstruction_id, run_id, run_index, num_views, num_tracks, created_at
		FROM reconstructions
		WHERE run_id = ?
		ORDER BY run_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("query reconstructions: %w", err)
	}
	defer rows.Close()

	var out []ReconstructionSummary
	for rows.Next() {
		var r ReconstructionSummary
		if err := rows.Scan(&r.ReconstructionID, &r.RunID, &r.Index, &r.NumViews, &r.NumTracks, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reconstruction: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Load decodes a stored reconstruction.
func (s *ReconstructionStore) Load(reconstructionID string) (*sfm.Reconstruction, error) {
	var raw string
	err := s.db.QueryRow(`SELECT record_json FROM reconstructions WHERE reconstruction_id = ?`,
		reconstructionID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrReconstructionNotFound, reconstructionID)
	}
	if err != nil {
		return nil, fmt.Errorf("query reconstruction %s: %w", reconstructionID, err)
	}
	var rec sfm.ReconstructionRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode reconstruction %s: %w", reconstructionID, err)
	}
	return sfm.FromRecord(rec)
}

// DeleteRun removes a run and its reconstructions.
func (s *ReconstructionStore) DeleteRun(runID string) error {
	return retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.Exec(`DELETE FROM reconstructions WHERE run_id = ?`, runID); err != nil {
			return err
		}
		result, err := tx.Exec(`DELETE FROM reconstruction_runs WHERE run_id = ?`, runID)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return tx.Commit()
	})
}
