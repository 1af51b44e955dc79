package pose

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockEstimator is a test implementation of the Estimator interface.
// It returns scripted poses in order, one per call to Estimate.
type MockEstimator struct {
	mu     sync.Mutex
	poses  []*FramePose
	next   int
	err    error
	closed bool
}

// NewMockEstimator creates a new MockEstimator that plays back poses.
// A nil entry is reported as "no person detected".
func NewMockEstimator(poses ...*FramePose) *MockEstimator {
	return &MockEstimator{poses: poses}
}

// SetPoses replaces the scripted poses and rewinds playback.
func (m *MockEstimator) SetPoses(poses []*FramePose) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.poses = poses
	m.next = 0
}

// SetError sets the error that will be returned by Estimate.
func (m *MockEstimator) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Estimate returns the next scripted pose, or nil once the script is exhausted.
func (m *MockEstimator) Estimate(frame *gocv.Mat) (*FramePose, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	if m.next >= len(m.poses) {
		return nil, nil
	}
	p := m.poses[m.next]
	m.next++
	return p, nil
}

// Calls returns how many poses have been handed out.
func (m *MockEstimator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.next
}

// Closed reports whether Close was called.
func (m *MockEstimator) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Close marks the estimator closed.
func (m *MockEstimator) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GuardPose returns a preset pose of a boxer standing in orthodox guard,
// both fists held near the chin.
func GuardPose() *FramePose {
	p := &FramePose{}

	// Every landmark starts at the chest so unset joints stay plausible.
	for i := range p.Points {
		p.Points[i] = Keypoint{X: 0.5, Y: 0.5, Z: 0.0, Visibility: 0.9}
	}

	p.Points[Nose] = Keypoint{X: 0.50, Y: 0.20, Z: -0.30, Visibility: 0.99}

	p.Points[LeftShoulder] = Keypoint{X: 0.60, Y: 0.35, Z: -0.10, Visibility: 0.99}
	p.Points[RightShoulder] = Keypoint{X: 0.40, Y: 0.35, Z: -0.10, Visibility: 0.99}

	// Elbows tucked in
	p.Points[LeftElbow] = Keypoint{X: 0.63, Y: 0.48, Z: -0.15, Visibility: 0.95}
	p.Points[RightElbow] = Keypoint{X: 0.37, Y: 0.48, Z: -0.15, Visibility: 0.95}

	// Fists at the chin
	p.Points[LeftWrist] = Keypoint{X: 0.56, Y: 0.28, Z: -0.35, Visibility: 0.95}
	p.Points[RightWrist] = Keypoint{X: 0.44, Y: 0.28, Z: -0.35, Visibility: 0.95}

	p.Points[LeftHip] = Keypoint{X: 0.57, Y: 0.65, Z: 0.0, Visibility: 0.9}
	p.Points[RightHip] = Keypoint{X: 0.43, Y: 0.65, Z: 0.0, Visibility: 0.9}

	return p
}

// JabPose returns GuardPose with the given arm fully extended toward the
// camera. side must be "left" or "right"; anything else returns the guard.
func JabPose(side string) *FramePose {
	p := GuardPose()

	switch side {
	case "left":
		p.Points[LeftElbow] = Keypoint{X: 0.58, Y: 0.33, Z: -0.45, Visibility: 0.9}
		p.Points[LeftWrist] = Keypoint{X: 0.54, Y: 0.30, Z: -0.75, Visibility: 0.85}
	case "right":
		p.Points[RightElbow] = Keypoint{X: 0.42, Y: 0.33, Z: -0.45, Visibility: 0.9}
		p.Points[RightWrist] = Keypoint{X: 0.46, Y: 0.30, Z: -0.75, Visibility: 0.85}
	}

	return p
}
