// Package motion turns a sequence of per-frame pose estimates into counted
// punch events.
//
// The pipeline is five pure stages run in order:
//
//	LoadSequence      records  -> []Sample      (hold-last-known-value gap fill)
//	WristSpeeds       []Sample -> []WristSpeed  (per-transition wrist displacement)
//	DetectCandidates  speeds   -> []Event       (fixed speed threshold)
//	MergeBursts       []Event  -> []Event       (one event per burst)
//	Summarize         []Event  -> Report
//
// Calibration: wrist speed is measured in the pose model's normalized
// coordinate space (x and y in 0..1 of the image, z on roughly the same scale),
// so it is independent of video resolution but not of the model. The default
// threshold of 0.02 per sampled frame was tuned on MediaPipe Pose output at
// 5 sampled frames per second. A different pose model, a different sampling
// rate or a very different camera distance needs a new threshold.
//
// Known limitations, kept on purpose:
//   - When both wrists exceed the threshold in the same transition only one
//     candidate is recorded and it is attributed to the left hand.
//   - Bursts are merged regardless of side, so a right followed by a left
//     within MinGap frames counts as one punch.
//
// Frame indices in events refer to sampled frames, not source video frames.
package motion
