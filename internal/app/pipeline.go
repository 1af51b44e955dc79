package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/punchcounter/internal/capture"
	"github.com/ayusman/punchcounter/internal/motion"
	"github.com/ayusman/punchcounter/internal/pose"
	"github.com/ayusman/punchcounter/internal/report"
	"github.com/ayusman/punchcounter/internal/store"
)

// AnalyzeVideo counts punches in the video at path.
//
// Pipeline:
// 1. Open the video and derive the frame stride from its frame rate
// 2. Estimate a pose on every stride-th frame, writing one pose file per frame
// 3. Optionally dump the sampled frames as JPEG
// 4. Count punches over the pose sequence
// 5. Persist poses and punches, write the results file and publish it
func (a *App) AnalyzeVideo(ctx context.Context, path string) (*report.Results, error) {
	src := a.config.OpenSource(path)
	if err := src.Open(); err != nil {
		return nil, err
	}
	defer src.Close()

	sampler := capture.NewSampler(src, a.config.TargetFPS)

	run := &store.Run{
		ID:          newRunID(),
		Source:      path,
		SourceType:  store.SourceVideo,
		Status:      store.StatusRunning,
		TargetFPS:   a.config.TargetFPS,
		FrameStride: sampler.Stride(),
		Threshold:   a.counter.Config().Threshold,
		MinGap:      a.counter.Config().MinGap,
	}
	if err := a.createRun(run); err != nil {
		return nil, err
	}

	slog.Info("analyzing video",
		"run_id", run.ID,
		"path", path,
		"source_fps", src.FPS(),
		"stride", sampler.Stride())
	a.progress(Progress{RunID: run.ID, Source: path, Stage: StageStarted})

	est, err := a.config.NewEstimator()
	if err != nil {
		return nil, a.fail(run, fmt.Errorf("create pose estimator: %w", err))
	}
	defer est.Close()

	res := &report.Results{
		Video:       path,
		TargetFPS:   a.config.TargetFPS,
		FrameStride: sampler.Stride(),
		PoseFolder:  a.PoseDir(run.ID),
	}
	if a.config.SaveFrames {
		res.FrameFolder = a.FramesDir(run.ID)
	}

	records, err := a.estimateAll(ctx, run, sampler, est, res)
	if err != nil {
		return nil, a.fail(run, err)
	}

	res, err = a.finish(run, a.counter, records, res)
	if err != nil {
		return nil, a.fail(run, err)
	}

	slog.Info("video analyzed",
		"run_id", run.ID,
		"frames", len(records),
		"total_punches", res.Total,
		"left_punches", res.Left,
		"right_punches", res.Right)
	a.progress(Progress{RunID: run.ID, Source: path, Stage: StageCompleted, Report: &res.Report})

	return res, nil
}

// estimateAll runs the estimator over every sampled frame.
func (a *App) estimateAll(ctx context.Context, run *store.Run, sampler *capture.Sampler, est pose.Estimator, res *report.Results) ([]pose.Record, error) {
	if err := os.MkdirAll(res.PoseFolder, 0755); err != nil {
		return nil, fmt.Errorf("create pose folder: %w", err)
	}
	if res.FrameFolder != "" {
		if err := os.MkdirAll(res.FrameFolder, 0755); err != nil {
			return nil, fmt.Errorf("create frame folder: %w", err)
		}
	}

	var records []pose.Record
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		frame, idx, err := sampler.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read frame: %w", err)
		}

		if res.FrameFolder != "" {
			name := filepath.Join(res.FrameFolder, pose.FrameName(idx))
			if ok := gocv.IMWrite(name, *frame); !ok {
				slog.Warn("failed to write frame image", "path", name)
			}
		}

		p, err := est.Estimate(frame)
		frame.Close()
		if err != nil {
			return nil, fmt.Errorf("estimate pose on frame %d: %w", idx, err)
		}

		rec := pose.Record{Index: idx, Pose: p}
		if err := pose.WriteFrame(res.PoseFolder, rec); err != nil {
			return nil, err
		}
		records = append(records, rec)

		a.progress(Progress{RunID: run.ID, Source: run.Source, Stage: StageFrame, Frame: idx, Detected: p != nil})
	}

	return records, nil
}

// AnalyzePoses counts punches in a folder of previously estimated poses.
func (a *App) AnalyzePoses(ctx context.Context, dir string) (*report.Results, error) {
	records, err := pose.ReadFolder(dir)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := a.counter.Config()
	run := &store.Run{
		ID:         newRunID(),
		Source:     dir,
		SourceType: store.SourcePoses,
		Status:     store.StatusRunning,
		Threshold:  cfg.Threshold,
		MinGap:     cfg.MinGap,
	}
	if err := a.createRun(run); err != nil {
		return nil, err
	}
	a.progress(Progress{RunID: run.ID, Source: dir, Stage: StageStarted})

	res, err := a.finish(run, a.counter, records, &report.Results{Video: dir, PoseFolder: dir})
	if err != nil {
		return nil, a.fail(run, err)
	}

	slog.Info("pose folder analyzed",
		"run_id", run.ID,
		"path", dir,
		"frames", len(records),
		"total_punches", res.Total)
	a.progress(Progress{RunID: run.ID, Source: dir, Stage: StageCompleted, Report: &res.Report})

	return res, nil
}

// Recount re-runs punch counting over a stored run's poses with a different
// configuration. The run's punches, totals and results file are replaced.
// Only completed runs have a full pose sequence; any other run fails with
// ErrNotRecountable and is left untouched.
func (a *App) Recount(runID string, cfg motion.Config) (*report.Results, error) {
	if a.config.Store == nil {
		return nil, ErrNoStore
	}

	counter, err := motion.NewCounter(cfg)
	if err != nil {
		return nil, err
	}

	run, err := a.config.Store.Runs().GetByID(runID)
	if err != nil {
		return nil, err
	}
	if run.Status != store.StatusCompleted {
		return nil, fmt.Errorf("%w: run %s is %s", ErrNotRecountable, runID, run.Status)
	}

	frames, err := a.config.Store.Poses().List(runID)
	if err != nil {
		return nil, fmt.Errorf("load poses: %w", err)
	}

	res := &report.Results{
		Video:       run.Source,
		TargetFPS:   run.TargetFPS,
		FrameStride: run.FrameStride,
	}
	switch run.SourceType {
	case store.SourceVideo:
		res.PoseFolder = a.PoseDir(run.ID)
	case store.SourcePoses:
		res.PoseFolder = run.Source
	}

	res, err = a.finish(run, counter, storeToRecords(frames), res)
	if err != nil {
		return nil, err
	}

	slog.Info("run recounted",
		"run_id", run.ID,
		"threshold", cfg.Threshold,
		"min_gap", cfg.MinGap,
		"total_punches", res.Total)
	a.progress(Progress{RunID: run.ID, Source: run.Source, Stage: StageCompleted, Report: &res.Report})

	return res, nil
}

// BatchResult is the outcome of one video in a batch.
type BatchResult struct {
	Path    string
	Results *report.Results
	Err     error
}

// AnalyzeBatch analyzes videos with at most parallelism running at once.
// Each video gets its own estimator. A failed video does not stop the
// others; the returned error joins every failure. Results keep the order
// of paths.
func (a *App) AnalyzeBatch(ctx context.Context, paths []string, parallelism int) ([]BatchResult, error) {
	if parallelism <= 0 {
		parallelism = 1
	}

	results := make([]BatchResult, len(paths))

	var g errgroup.Group
	g.SetLimit(parallelism)

	for i, path := range paths {
		g.Go(func() error {
			res, err := a.AnalyzeVideo(ctx, path)
			results[i] = BatchResult{Path: path, Results: res, Err: err}
			return nil
		})
	}
	g.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Path, r.Err))
		}
	}

	return results, errors.Join(errs...)
}
