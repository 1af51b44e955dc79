package motion

import (
	"encoding/json"
	"fmt"
)

// Side identifies the punching hand.
type Side string

const (
	// Left is the boxer's left hand.
	Left Side = "left"
	// Right is the boxer's right hand.
	Right Side = "right"
)

// Event is a punch attributed to one hand at a sampled frame index.
type Event struct {
	Side  Side
	Frame int
}

// MarshalJSON encodes the event as a two element array: ["right", 12].
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{string(e.Side), e.Frame})
}

// UnmarshalJSON decodes the two element array form.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("punch event: want 2 elements, got %d", len(raw))
	}

	var side string
	if err := json.Unmarshal(raw[0], &side); err != nil {
		return fmt.Errorf("punch event side: %w", err)
	}
	if Side(side) != Left && Side(side) != Right {
		return fmt.Errorf("punch event side: unknown %q", side)
	}

	var frame int
	if err := json.Unmarshal(raw[1], &frame); err != nil {
		return fmt.Errorf("punch event frame: %w", err)
	}

	e.Side = Side(side)
	e.Frame = frame
	return nil
}

// DetectCandidates flags every transition where a wrist moved faster than
// threshold. Right is checked before left, so when both exceed the threshold
// the candidate is recorded as a single left event.
func DetectCandidates(speeds []WristSpeed, threshold float64) []Event {
	candidates := []Event{}

	for i, s := range speeds {
		var side Side
		if s.Right > threshold {
			side = Right
		}
		if s.Left > threshold {
			side = Left
		}
		if side != "" {
			candidates = append(candidates, Event{Side: side, Frame: i})
		}
	}

	return candidates
}

// MergeBursts keeps the first candidate of every burst. A candidate is kept
// only when it is more than minGap frames after the last kept event; side is
// not considered. Candidates must be in frame order.
func MergeBursts(candidates []Event, minGap int) []Event {
	merged := []Event{}

	for _, c := range candidates {
		if len(merged) > 0 && c.Frame-merged[len(merged)-1].Frame <= minGap {
			continue
		}
		merged = append(merged, c)
	}

	return merged
}
