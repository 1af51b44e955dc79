package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Runs table - one row per analyzed video or pose folder
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			source_type TEXT NOT NULL CHECK(source_type IN ('video', 'poses')),
			status TEXT NOT NULL CHECK(status IN ('running', 'completed', 'failed')),
			target_fps INTEGER NOT NULL DEFAULT 5,
			frame_stride INTEGER NOT NULL DEFAULT 1,
			threshold REAL NOT NULL DEFAULT 0.02,
			min_gap INTEGER NOT NULL DEFAULT 5,
			frames INTEGER NOT NULL DEFAULT 0,
			total_punches INTEGER NOT NULL DEFAULT 0,
			left_punches INTEGER NOT NULL DEFAULT 0,
			right_punches INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Pose frames - raw per sampled frame estimates, keypoints NULL when nobody was detected
		`CREATE TABLE IF NOT EXISTS run_poses (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			frame_index INTEGER NOT NULL,
			keypoints TEXT,
			UNIQUE(run_id, frame_index)
		)`,

		// Punches - merged punch events of the latest count for a run
		`CREATE TABLE IF NOT EXISTS run_punches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			sequence INTEGER NOT NULL,
			side TEXT NOT NULL CHECK(side IN ('left', 'right')),
			frame_index INTEGER NOT NULL
		)`,

		// Indexes for better query performance
		`CREATE INDEX IF NOT EXISTS idx_run_poses_run_id ON run_poses(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_run_punches_run_id ON run_punches(run_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
