// Package app provides the main application logic for the punch counter.
package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/ayusman/punchcounter/internal/capture"
	"github.com/ayusman/punchcounter/internal/motion"
	"github.com/ayusman/punchcounter/internal/pose"
	"github.com/ayusman/punchcounter/internal/report"
	"github.com/ayusman/punchcounter/internal/store"
)

// ErrNoStore is returned when an operation needs persisted poses but the app has no store.
var ErrNoStore = errors.New("no store configured")

// ErrNotRecountable is returned by Recount for runs that did not complete.
var ErrNotRecountable = errors.New("run cannot be recounted")

// Publisher sends a finished run's results somewhere, such as an MQTT broker.
type Publisher interface {
	Publish(r *report.Results) error
}

// EstimatorFactory creates the pose estimator for one analysis job.
type EstimatorFactory func() (pose.Estimator, error)

// SourceOpener returns the frame source for a video path.
type SourceOpener func(path string) capture.Source

// Config holds configuration options for the application.
type Config struct {
	Store      *store.Store
	Motion     motion.Config
	TargetFPS  int
	DataDir    string
	SaveFrames bool

	// NewEstimator defaults to a MediaPipe estimator with default settings.
	NewEstimator EstimatorFactory
	// OpenSource defaults to capture.NewVideoFile.
	OpenSource SourceOpener
	// Publisher is optional.
	Publisher Publisher
	// OnProgress is called from the analyzing goroutine; it must not block.
	OnProgress func(Progress)
}

// Stage is a step in the life of a run.
type Stage string

const (
	StageStarted   Stage = "started"
	StageFrame     Stage = "frame"
	StageCompleted Stage = "completed"
	StageFailed    Stage = "failed"
)

// Progress reports a run's advance to observers such as the websocket hub.
type Progress struct {
	RunID    string         `json:"run_id"`
	Source   string         `json:"source"`
	Stage    Stage          `json:"stage"`
	Frame    int            `json:"frame,omitempty"`
	Detected bool           `json:"detected,omitempty"`
	Report   *motion.Report `json:"report,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// App orchestrates sampling, pose estimation, punch counting and persistence.
type App struct {
	config  Config
	counter *motion.Counter
}

// New creates a new App instance with the given configuration.
func New(config Config) (*App, error) {
	counter, err := motion.NewCounter(config.Motion)
	if err != nil {
		return nil, err
	}

	if config.TargetFPS <= 0 {
		config.TargetFPS = capture.DefaultTargetFPS
	}
	if config.DataDir == "" {
		config.DataDir = "data"
	}
	if config.NewEstimator == nil {
		config.NewEstimator = func() (pose.Estimator, error) {
			return pose.NewMediaPipeEstimator(pose.DefaultConfig())
		}
	}
	if config.OpenSource == nil {
		config.OpenSource = capture.NewVideoFile
	}

	return &App{
		config:  config,
		counter: counter,
	}, nil
}

// Config returns the effective configuration.
func (a *App) Config() Config {
	return a.config
}

// Counter returns the punch counter used for new runs.
func (a *App) Counter() *motion.Counter {
	return a.counter
}

// ResultsDir is where results documents are written.
func (a *App) ResultsDir() string {
	return filepath.Join(a.config.DataDir, "results")
}

// FramesDir returns the folder for a run's sampled frame images.
func (a *App) FramesDir(runID string) string {
	return filepath.Join(a.config.DataDir, "processed", "frames_"+runID)
}

// PoseDir returns the folder for a run's per-frame pose files.
func (a *App) PoseDir(runID string) string {
	return filepath.Join(a.config.DataDir, "processed", "pose_"+runID)
}

func newRunID() string {
	return uuid.NewString()[:8]
}

func (a *App) progress(p Progress) {
	if a.config.OnProgress != nil {
		a.config.OnProgress(p)
	}
}

// finish counts punches over records, persists everything and writes the
// results document. The run is updated in place.
func (a *App) finish(run *store.Run, counter *motion.Counter, records []pose.Record, res *report.Results) (*report.Results, error) {
	rep, err := counter.Count(records)
	if err != nil {
		return nil, err
	}

	cfg := counter.Config()
	res.RunID = run.ID
	res.Frames = len(records)
	res.Report = rep
	res.Threshold = cfg.Threshold
	res.MinGap = cfg.MinGap

	if a.config.Store != nil {
		if err := a.config.Store.Poses().Save(run.ID, recordsToStore(records)); err != nil {
			return nil, fmt.Errorf("save poses: %w", err)
		}
		if err := a.savePunches(run, rep, cfg, len(records)); err != nil {
			return nil, err
		}
	}

	if _, err := report.Write(a.ResultsDir(), res); err != nil {
		return nil, err
	}

	a.publish(res)
	return res, nil
}

func (a *App) savePunches(run *store.Run, rep motion.Report, cfg motion.Config, frames int) error {
	punches := make([]store.Punch, len(rep.Events))
	for i, e := range rep.Events {
		punches[i] = store.Punch{Side: string(e.Side), FrameIndex: e.Frame}
	}
	if err := a.config.Store.Punches().Save(run.ID, punches); err != nil {
		return fmt.Errorf("save punches: %w", err)
	}

	run.Status = store.StatusCompleted
	run.Error = ""
	run.Threshold = cfg.Threshold
	run.MinGap = cfg.MinGap
	run.Frames = frames
	run.TotalPunches = rep.Total
	run.LeftPunches = rep.Left
	run.RightPunches = rep.Right

	if err := a.config.Store.Runs().Update(run); err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

func (a *App) publish(res *report.Results) {
	if a.config.Publisher == nil {
		return
	}
	if err := a.config.Publisher.Publish(res); err != nil {
		slog.Warn("failed to publish results", "run_id", res.RunID, "error", err)
	}
}

// createRun records a new running run when a store is configured.
func (a *App) createRun(run *store.Run) error {
	if a.config.Store == nil {
		return nil
	}
	if err := a.config.Store.Runs().Create(run); err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// fail marks run failed and notifies observers. It returns err unchanged.
func (a *App) fail(run *store.Run, err error) error {
	slog.Error("run failed", "run_id", run.ID, "source", run.Source, "error", err)

	if a.config.Store != nil {
		run.Status = store.StatusFailed
		run.Error = err.Error()
		if uerr := a.config.Store.Runs().Update(run); uerr != nil {
			slog.Warn("failed to record run failure", "run_id", run.ID, "error", uerr)
		}
	}

	a.progress(Progress{RunID: run.ID, Source: run.Source, Stage: StageFailed, Error: err.Error()})
	return err
}

// recordsToStore converts pose records to stored pose frames.
func recordsToStore(records []pose.Record) []store.PoseFrame {
	frames := make([]store.PoseFrame, len(records))
	for i, r := range records {
		frames[i] = store.PoseFrame{FrameIndex: r.Index}
		if !r.Detected() {
			continue
		}
		data, err := json.Marshal(r.Pose.Keypoints())
		if err != nil {
			continue
		}
		frames[i].Keypoints = data
	}
	return frames
}

// storeToRecords converts stored pose frames back to records. Frames whose
// keypoints no longer parse become "no detection".
func storeToRecords(frames []store.PoseFrame) []pose.Record {
	records := make([]pose.Record, len(frames))
	for i, f := range frames {
		records[i] = pose.Record{Index: f.FrameIndex}
		if f.Keypoints == nil {
			continue
		}

		var kps []pose.Keypoint
		if err := json.Unmarshal(f.Keypoints, &kps); err != nil {
			slog.Warn("invalid stored pose", "frame", f.FrameIndex, "error", err)
			continue
		}
		p, err := pose.FromKeypoints(kps)
		if err != nil {
			slog.Warn("malformed stored pose", "frame", f.FrameIndex, "error", err)
			continue
		}
		records[i].Pose = p
	}
	return records
}
