// Package capture provides video file decoding and frame sampling using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"gocv.io/x/gocv"
)

// ErrSourceNotOpen is returned when trying to read from a source that is not open.
var ErrSourceNotOpen = errors.New("video source is not open")

// Source defines the interface for decoded video frame sources.
type Source interface {
	Open() error
	Close() error
	// ReadFrame returns the next decoded frame, or io.EOF after the last one.
	// The caller is responsible for closing the returned Mat.
	ReadFrame() (*gocv.Mat, error)
	// FPS returns the source frame rate, or 0 if unknown.
	FPS() float64
	IsOpen() bool
}

// videoFile decodes frames from a video file using GoCV.
type videoFile struct {
	path    string
	capture *gocv.VideoCapture
	mu      sync.Mutex
	running bool
	fps     float64
}

// NewVideoFile creates a Source reading the video at path.
func NewVideoFile(path string) Source {
	return &videoFile{path: path}
}

// Open opens the video file for decoding.
func (v *videoFile) Open() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.running {
		return nil
	}

	capture, err := gocv.VideoCaptureFile(v.path)
	if err != nil {
		return fmt.Errorf("open video %s: %w", v.path, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("open video %s: cannot decode", v.path)
	}

	v.capture = capture
	v.fps = capture.Get(gocv.VideoCaptureFPS)
	v.running = true

	return nil
}

// Close closes the video and releases resources.
func (v *videoFile) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.running || v.capture == nil {
		v.running = false
		return nil
	}

	err := v.capture.Close()
	v.capture = nil
	v.running = false

	return err
}

// ReadFrame decodes the next frame.
func (v *videoFile) ReadFrame() (*gocv.Mat, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.running || v.capture == nil {
		return nil, ErrSourceNotOpen
	}

	mat := gocv.NewMat()
	if ok := v.capture.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, io.EOF
	}

	return &mat, nil
}

// FPS returns the frame rate reported by the container.
func (v *videoFile) FPS() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.fps
}

// IsOpen returns true if the video is open.
func (v *videoFile) IsOpen() bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.running
}
