package store

import "database/sql"

// Punch is a stored punch event.
type Punch struct {
	Side       string `json:"side"`
	FrameIndex int    `json:"frame_index"`
}

// PunchRepository stores the counted punches of a run.
type PunchRepository struct {
	db *sql.DB
}

// Punches returns the punch repository for this store.
func (s *Store) Punches() *PunchRepository {
	return &PunchRepository{db: s.db}
}

// Save replaces the punches of a run, preserving their order.
func (r *PunchRepository) Save(runID string, punches []Punch) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM run_punches WHERE run_id = ?`, runID); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO run_punches (run_id, sequence, side, frame_index) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, p := range punches {
		if _, err := stmt.Exec(runID, i, p.Side, p.FrameIndex); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// List retrieves the punches of a run in order.
func (r *PunchRepository) List(runID string) ([]Punch, error) {
	rows, err := r.db.Query(
		`SELECT side, frame_index FROM run_punches WHERE run_id = ? ORDER BY sequence`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	punches := []Punch{}
	for rows.Next() {
		var p Punch
		if err := rows.Scan(&p.Side, &p.FrameIndex); err != nil {
			return nil, err
		}
		punches = append(punches, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return punches, nil
}
