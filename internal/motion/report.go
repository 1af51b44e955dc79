package motion

// Report is the punch count summary for one analyzed sequence.
// Total always equals Left + Right and len(Events).
type Report struct {
	Total  int     `json:"total_punches"`
	Left   int     `json:"left_punches"`
	Right  int     `json:"right_punches"`
	Events []Event `json:"punch_frames"`
}

// Summarize tallies merged events by side.
func Summarize(events []Event) Report {
	r := Report{
		Total:  len(events),
		Events: make([]Event, len(events)),
	}
	copy(r.Events, events)

	for _, e := range events {
		switch e.Side {
		case Left:
			r.Left++
		case Right:
			r.Right++
		}
	}

	return r
}
