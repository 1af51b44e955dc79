package capture

import "gocv.io/x/gocv"

// Sampling defaults
const (
	// DefaultTargetFPS is the number of frames per second kept for pose estimation.
	DefaultTargetFPS = 5
	// FallbackFPS is assumed when the container does not report a frame rate.
	FallbackFPS = 30
)

// FrameStride returns how many source frames to advance per sampled frame.
// A sourceFPS of 0 (unknown) falls back to FallbackFPS. The stride is never
// below 1, so a target above the source rate keeps every frame.
func FrameStride(sourceFPS float64, targetFPS int) int {
	if sourceFPS <= 0 {
		sourceFPS = FallbackFPS
	}
	if targetFPS <= 0 {
		return 1
	}

	stride := int(sourceFPS / float64(targetFPS))
	if stride < 1 {
		return 1
	}
	return stride
}

// Sampler reads an open Source and yields every stride-th frame.
type Sampler struct {
	src     Source
	stride  int
	read    int
	sampled int
}

// NewSampler creates a Sampler for an open source at the given target rate.
func NewSampler(src Source, targetFPS int) *Sampler {
	return &Sampler{
		src:    src,
		stride: FrameStride(src.FPS(), targetFPS),
	}
}

// Next returns the next sampled frame and its index in sampled-frame space.
// It returns io.EOF when the source is exhausted. The caller owns the Mat.
func (s *Sampler) Next() (*gocv.Mat, int, error) {
	for {
		frame, err := s.src.ReadFrame()
		if err != nil {
			return nil, 0, err
		}

		keep := s.read%s.stride == 0
		s.read++

		if !keep {
			frame.Close()
			continue
		}

		idx := s.sampled
		s.sampled++
		return frame, idx, nil
	}
}

// Stride returns the number of source frames per sampled frame.
func (s *Sampler) Stride() int {
	return s.stride
}

// Read returns how many source frames have been decoded.
func (s *Sampler) Read() int {
	return s.read
}

// Sampled returns how many frames have been yielded.
func (s *Sampler) Sampled() int {
	return s.sampled
}
