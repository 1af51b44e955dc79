package capture

import (
	"io"
	"testing"

	"gocv.io/x/gocv"
)

func TestFrameStride(t *testing.T) {
	tests := []struct {
		name      string
		sourceFPS float64
		targetFPS int
		want      int
	}{
		{name: "30 to 5", sourceFPS: 30, targetFPS: 5, want: 6},
		{name: "60 to 5", sourceFPS: 60, targetFPS: 5, want: 12},
		{name: "29.97 truncates", sourceFPS: 29.97, targetFPS: 5, want: 5},
		{name: "unknown source uses fallback", sourceFPS: 0, targetFPS: 5, want: 6},
		{name: "target above source keeps every frame", sourceFPS: 24, targetFPS: 60, want: 1},
		{name: "non-positive target keeps every frame", sourceFPS: 30, targetFPS: 0, want: 1},
		{name: "equal rates", sourceFPS: 25, targetFPS: 25, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FrameStride(tt.sourceFPS, tt.targetFPS); got != tt.want {
				t.Errorf("FrameStride(%v, %d) = %d, want %d", tt.sourceFPS, tt.targetFPS, got, tt.want)
			}
		})
	}
}

func newFrames(t *testing.T, n int) []*gocv.Mat {
	t.Helper()

	frames := make([]*gocv.Mat, n)
	for i := range frames {
		m := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
		frames[i] = &m
	}
	t.Cleanup(func() {
		for _, f := range frames {
			f.Close()
		}
	})
	return frames
}

func TestSampler_Stride(t *testing.T) {
	src := NewMockSource(newFrames(t, 13), 30)
	if err := src.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer src.Close()

	s := NewSampler(src, 5)
	if s.Stride() != 6 {
		t.Fatalf("Stride() = %d, want 6", s.Stride())
	}

	// Source frames 0, 6 and 12 are kept
	for want := 0; want < 3; want++ {
		frame, idx, err := s.Next()
		if err != nil {
			t.Fatalf("Next() %d error = %v", want, err)
		}
		if idx != want {
			t.Errorf("sampled index = %d, want %d", idx, want)
		}
		frame.Close()
	}

	if _, _, err := s.Next(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}

	if s.Read() != 13 {
		t.Errorf("Read() = %d, want 13", s.Read())
	}
	if s.Sampled() != 3 {
		t.Errorf("Sampled() = %d, want 3", s.Sampled())
	}
}

func TestSampler_Empty(t *testing.T) {
	src := NewMockSource(nil, 30)
	src.Open()
	defer src.Close()

	s := NewSampler(src, 5)
	if _, _, err := s.Next(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestMockSource_NotOpen(t *testing.T) {
	src := NewMockSource(newFrames(t, 1), 30)

	if _, err := src.ReadFrame(); err != ErrSourceNotOpen {
		t.Errorf("expected ErrSourceNotOpen, got %v", err)
	}
}

func TestVideoFile_NotOpened(t *testing.T) {
	v := NewVideoFile("does-not-exist.mp4")

	if v.IsOpen() {
		t.Error("IsOpen() should return false before Open() is called")
	}

	if _, err := v.ReadFrame(); err != ErrSourceNotOpen {
		t.Errorf("expected ErrSourceNotOpen, got %v", err)
	}

	// Close on an unopened video should not panic and return nil
	if err := v.Close(); err != nil {
		t.Errorf("Close() on unopened video should return nil, got: %v", err)
	}
}

func TestVideoFile_OpenMissing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping OpenCV integration test in short mode")
	}

	v := NewVideoFile("does-not-exist.mp4")
	if err := v.Open(); err == nil {
		v.Close()
		t.Error("expected error opening a missing file")
	}
	if v.IsOpen() {
		t.Error("IsOpen() should stay false after a failed Open()")
	}
}
