package motion

import "github.com/ayusman/punchcounter/internal/pose"

// WristSpeed is the displacement of each wrist over one frame transition.
type WristSpeed struct {
	Right float64
	Left  float64
}

// WristSpeeds returns one WristSpeed per consecutive pair of samples, so the
// result has len(seq)-1 elements (none for sequences shorter than two).
// Element i describes the transition from frame i to frame i+1. A transition
// touching an Absent sample is zero motion.
func WristSpeeds(seq []Sample) []WristSpeed {
	if len(seq) < 2 {
		return []WristSpeed{}
	}

	speeds := make([]WristSpeed, len(seq)-1)
	for i := range speeds {
		from, to := seq[i], seq[i+1]

		if !from.Present() || !to.Present() {
			speeds[i] = WristSpeed{}
			continue
		}

		speeds[i] = WristSpeed{
			Right: pose.Distance(from.Pose.Points[pose.RightWrist], to.Pose.Points[pose.RightWrist]),
			Left:  pose.Distance(from.Pose.Points[pose.LeftWrist], to.Pose.Points[pose.LeftWrist]),
		}
	}

	return speeds
}
