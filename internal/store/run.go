package store

import (
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// SourceType is what a run analyzed.
type SourceType string

const (
	// SourceVideo is a video file decoded and pose-estimated by the run.
	SourceVideo SourceType = "video"
	// SourcePoses is a folder of previously estimated poses.
	SourcePoses SourceType = "poses"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Run represents one analysis of a video or pose folder.
type Run struct {
	ID           string
	Source       string
	SourceType   SourceType
	Status       Status
	TargetFPS    int
	FrameStride  int
	Threshold    float64
	MinGap       int
	Frames       int
	TotalPunches int
	LeftPunches  int
	RightPunches int
	Error        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RunRepository provides CRUD operations for runs.
type RunRepository struct {
	db *sql.DB
}

// Runs returns the run repository for this store.
func (s *Store) Runs() *RunRepository {
	return &RunRepository{db: s.db}
}

const runColumns = `id, source, source_type, status, target_fps, frame_stride, threshold, min_gap,
	frames, total_punches, left_punches, right_punches, error, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	r := &Run{}
	var sourceType, status string

	err := row.Scan(&r.ID, &r.Source, &sourceType, &status, &r.TargetFPS, &r.FrameStride,
		&r.Threshold, &r.MinGap, &r.Frames, &r.TotalPunches, &r.LeftPunches, &r.RightPunches,
		&r.Error, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	r.SourceType = SourceType(sourceType)
	r.Status = Status(status)
	return r, nil
}

// Create inserts a new run into the database.
func (r *RunRepository) Create(run *Run) error {
	now := time.Now()
	run.CreatedAt = now
	run.UpdatedAt = now

	_, err := r.db.Exec(
		`INSERT INTO runs (`+runColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source, string(run.SourceType), string(run.Status), run.TargetFPS, run.FrameStride,
		run.Threshold, run.MinGap, run.Frames, run.TotalPunches, run.LeftPunches, run.RightPunches,
		run.Error, run.CreatedAt, run.UpdatedAt,
	)
	return err
}

// GetByID retrieves a run by its ID.
func (r *RunRepository) GetByID(id string) (*Run, error) {
	run, err := scanRun(r.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return run, nil
}

// List retrieves all runs, newest first.
func (r *RunRepository) List() ([]*Run, error) {
	rows, err := r.db.Query(`SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

// Update writes every mutable field of an existing run.
func (r *RunRepository) Update(run *Run) error {
	run.UpdatedAt = time.Now()

	result, err := r.db.Exec(
		`UPDATE runs SET status = ?, frame_stride = ?, threshold = ?, min_gap = ?, frames = ?,
		 total_punches = ?, left_punches = ?, right_punches = ?, error = ?, updated_at = ?
		 WHERE id = ?`,
		string(run.Status), run.FrameStride, run.Threshold, run.MinGap, run.Frames,
		run.TotalPunches, run.LeftPunches, run.RightPunches, run.Error, run.UpdatedAt, run.ID,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes a run and, by cascade, its poses and punches.
func (r *RunRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
