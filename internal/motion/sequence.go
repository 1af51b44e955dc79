package motion

import (
	"errors"
	"fmt"

	"github.com/ayusman/punchcounter/internal/pose"
)

// ErrFrameOrder is returned when records are not indexed 0, 1, 2, ... in order.
var ErrFrameOrder = errors.New("frame indices must be contiguous and start at 0")

// SampleKind tags where a sample's pose came from.
type SampleKind int

const (
	// Absent means no pose has been detected yet at or before this frame.
	Absent SampleKind = iota
	// Detected means the estimator produced a pose for this frame.
	Detected
	// Held means this frame had no detection and repeats the last detected pose.
	Held
)

// String returns the kind name.
func (k SampleKind) String() string {
	switch k {
	case Detected:
		return "detected"
	case Held:
		return "held"
	default:
		return "absent"
	}
}

// Sample is one element of a gap-filled pose sequence.
// Pose is nil if and only if Kind is Absent.
type Sample struct {
	Kind SampleKind
	Pose *pose.FramePose
}

// Present reports whether the sample carries a pose.
func (s Sample) Present() bool {
	return s.Kind != Absent
}

// LoadSequence fills detection gaps by holding the last detected pose.
// Frames before the first detection stay Absent. The output has the same
// length as records.
func LoadSequence(records []pose.Record) ([]Sample, error) {
	seq := make([]Sample, len(records))

	var last *pose.FramePose
	for i, r := range records {
		if r.Index != i {
			return nil, fmt.Errorf("%w: record %d has index %d", ErrFrameOrder, i, r.Index)
		}

		switch {
		case r.Pose != nil:
			last = r.Pose
			seq[i] = Sample{Kind: Detected, Pose: r.Pose}
		case last != nil:
			seq[i] = Sample{Kind: Held, Pose: last}
		default:
			seq[i] = Sample{Kind: Absent}
		}
	}

	return seq, nil
}
