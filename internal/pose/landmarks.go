// Package pose provides body pose keypoint types and pose estimation for punch counting.
package pose

import (
	"errors"
	"fmt"
	"math"
)

// Body landmark indices following the MediaPipe Pose convention.
// See: https://developers.google.com/mediapipe/solutions/vision/pose_landmarker
const (
	Nose           = 0
	LeftEyeInner   = 1
	LeftEye        = 2
	LeftEyeOuter   = 3
	RightEyeInner  = 4
	RightEye       = 5
	RightEyeOuter  = 6
	LeftEar        = 7
	RightEar       = 8
	MouthLeft      = 9
	MouthRight     = 10
	LeftShoulder   = 11
	RightShoulder  = 12
	LeftElbow      = 13
	RightElbow     = 14
	LeftWrist      = 15
	RightWrist     = 16
	LeftPinky      = 17
	RightPinky     = 18
	LeftIndex      = 19
	RightIndex     = 20
	LeftThumb      = 21
	RightThumb     = 22
	LeftHip        = 23
	RightHip       = 24
	LeftKnee       = 25
	RightKnee      = 26
	LeftAnkle      = 27
	RightAnkle     = 28
	LeftHeel       = 29
	RightHeel      = 30
	LeftFootIndex  = 31
	RightFootIndex = 32
	NumLandmarks   = 33
)

// RequiredJoints are the joints a pose must carry to be usable for wrist
// tracking and the arm skeleton.
var RequiredJoints = []int{
	LeftShoulder, RightShoulder,
	LeftElbow, RightElbow,
	LeftWrist, RightWrist,
}

// ErrMalformedPose is returned when raw keypoints cannot form a FramePose.
var ErrMalformedPose = errors.New("malformed pose")

// Keypoint is one landmark in normalized image coordinates plus the model's
// visibility confidence.
type Keypoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

// FramePose holds all landmarks detected for one sampled frame.
type FramePose struct {
	Points [NumLandmarks]Keypoint
}

// Record is a raw pose estimate for one sampled frame.
// A nil Pose means no person was detected.
type Record struct {
	Index int
	Pose  *FramePose
}

// Detected reports whether the record carries a pose.
func (r Record) Detected() bool {
	return r.Pose != nil
}

// FromKeypoints builds a FramePose from a flat keypoint list as produced by
// MediaPipe. It fails with ErrMalformedPose when landmarks are missing or a
// required joint has non-finite coordinates. Any other non-finite value is
// zeroed so the pose can always be written back out as JSON.
func FromKeypoints(kps []Keypoint) (*FramePose, error) {
	if len(kps) < NumLandmarks {
		return nil, fmt.Errorf("%w: got %d keypoints, want %d", ErrMalformedPose, len(kps), NumLandmarks)
	}

	for _, j := range RequiredJoints {
		if !finite(kps[j]) {
			return nil, fmt.Errorf("%w: joint %d is not finite", ErrMalformedPose, j)
		}
	}

	p := &FramePose{}
	for i := range p.Points {
		p.Points[i] = sanitize(kps[i])
	}
	return p, nil
}

// Keypoints returns the landmarks as a slice, the shape used on the wire.
func (p *FramePose) Keypoints() []Keypoint {
	if p == nil {
		return nil
	}
	out := make([]Keypoint, NumLandmarks)
	copy(out, p.Points[:])
	return out
}

// Distance calculates the Euclidean distance between two keypoints in
// normalized x, y, z space. Visibility is ignored.
func Distance(a, b Keypoint) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func finite(k Keypoint) bool {
	for _, v := range []float64{k.X, k.Y, k.Z} {
		if !isFinite(v) {
			return false
		}
	}
	return true
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func sanitize(k Keypoint) Keypoint {
	for _, v := range []*float64{&k.X, &k.Y, &k.Z, &k.Visibility} {
		if !isFinite(*v) {
			*v = 0
		}
	}
	return k
}
