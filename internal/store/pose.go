package store

import (
	"database/sql"
	"encoding/json"
)

// PoseFrame is the stored pose estimate for one sampled frame.
// Keypoints is nil when no person was detected.
type PoseFrame struct {
	FrameIndex int
	Keypoints  json.RawMessage
}

// PoseRepository stores per-frame pose estimates.
type PoseRepository struct {
	db *sql.DB
}

// Poses returns the pose repository for this store.
func (s *Store) Poses() *PoseRepository {
	return &PoseRepository{db: s.db}
}

// Save replaces the pose frames of a run in a single transaction.
func (r *PoseRepository) Save(runID string, frames []PoseFrame) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM run_poses WHERE run_id = ?`, runID); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO run_poses (run_id, frame_index, keypoints) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, f := range frames {
		var keypoints any
		if f.Keypoints != nil {
			keypoints = string(f.Keypoints)
		}
		if _, err := stmt.Exec(runID, f.FrameIndex, keypoints); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// List retrieves the pose frames of a run in frame order.
func (r *PoseRepository) List(runID string) ([]PoseFrame, error) {
	rows, err := r.db.Query(
		`SELECT frame_index, keypoints FROM run_poses WHERE run_id = ? ORDER BY frame_index`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frames []PoseFrame
	for rows.Next() {
		var f PoseFrame
		var keypoints sql.NullString
		if err := rows.Scan(&f.FrameIndex, &keypoints); err != nil {
			return nil, err
		}
		if keypoints.Valid {
			f.Keypoints = json.RawMessage(keypoints.String)
		}
		frames = append(frames, f)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return frames, nil
}
