package pose

import "gocv.io/x/gocv"

// Estimator defines the interface for single-person pose estimation.
type Estimator interface {
	// Estimate analyzes a video frame and returns the detected pose.
	// Returns nil, nil if no person is detected.
	Estimate(frame *gocv.Mat) (*FramePose, error)

	// Close releases any resources held by the estimator.
	Close() error
}

// Config holds configuration options for pose estimation.
type Config struct {
	// Python is the interpreter used to run the pose service. Empty means
	// a virtual environment interpreter if one is found, else python3.
	Python string

	// Script is the path to pose_service.py. Empty means search the usual
	// locations.
	Script string

	// ModelComplexity is passed to MediaPipe Pose (0, 1 or 2).
	ModelComplexity int

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		ModelComplexity: 1,
		MinConfidence:   0.5,
	}
}
