package pose

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"gocv.io/x/gocv"
)

// idleTimeout is how long the Python process may sit unused before it is stopped.
const idleTimeout = 30 * time.Second

// maxMessageSize bounds a single response from the pose service.
const maxMessageSize = 16 << 20

// ErrServiceNotFound is returned when pose_service.py cannot be located.
var ErrServiceNotFound = errors.New("pose_service.py not found")

// MediaPipeEstimator implements Estimator using a Python MediaPipe Pose subprocess.
//
// Each request is a 4-byte big-endian length followed by a msgpack encoded
// serviceRequest; responses use the same framing.
type MediaPipeEstimator struct {
	config    Config
	script    string
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	mu        sync.Mutex
	started   bool
	frames    int
	idleTimer *time.Timer
}

type serviceRequest struct {
	FrameIndex      int     `msgpack:"frame_index"`
	Image           []byte  `msgpack:"image"`
	ModelComplexity int     `msgpack:"model_complexity"`
	MinConfidence   float64 `msgpack:"min_confidence"`
}

type serviceResponse struct {
	Detected  bool           `msgpack:"detected"`
	Keypoints []wireKeypoint `msgpack:"keypoints"`
	Error     string         `msgpack:"error"`
}

type wireKeypoint struct {
	X          float64 `msgpack:"x"`
	Y          float64 `msgpack:"y"`
	Z          float64 `msgpack:"z"`
	Visibility float64 `msgpack:"visibility"`
}

// NewMediaPipeEstimator creates a new MediaPipe pose estimator.
// The Python process is started lazily on first estimation.
func NewMediaPipeEstimator(config Config) (*MediaPipeEstimator, error) {
	script := config.Script
	if script == "" {
		script = findPoseScript()
	}
	if script == "" {
		return nil, ErrServiceNotFound
	}
	if _, err := os.Stat(script); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceNotFound, err)
	}

	return &MediaPipeEstimator{
		config: config,
		script: script,
	}, nil
}

// Estimate runs pose estimation on a frame.
// A frame in which the service reports malformed landmarks yields no detection.
func (e *MediaPipeEstimator) Estimate(frame *gocv.Mat) (*FramePose, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if frame == nil || frame.Empty() {
		return nil, errors.New("empty frame")
	}

	if err := e.ensureStarted(); err != nil {
		return nil, err
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	req := serviceRequest{
		FrameIndex:      e.frames,
		Image:           buf.GetBytes(),
		ModelComplexity: e.config.ModelComplexity,
		MinConfidence:   e.config.MinConfidence,
	}
	e.frames++

	if err := writeMessage(e.stdin, req); err != nil {
		return nil, err
	}

	var resp serviceResponse
	if err := readMessage(e.stdout, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("pose service: %s", resp.Error)
	}

	e.resetIdleTimer()

	if !resp.Detected {
		return nil, nil
	}

	kps := make([]Keypoint, len(resp.Keypoints))
	for i, k := range resp.Keypoints {
		kps[i] = Keypoint{X: k.X, Y: k.Y, Z: k.Z, Visibility: k.Visibility}
	}

	p, err := FromKeypoints(kps)
	if err != nil {
		slog.Warn("discarding malformed pose", "frame", req.FrameIndex, "error", err)
		return nil, nil
	}
	return p, nil
}

// Close shuts down the Python process.
func (e *MediaPipeEstimator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shutdown()
}

func (e *MediaPipeEstimator) ensureStarted() error {
	if e.started {
		return nil
	}

	python := e.config.Python
	if python == "" {
		python = findVenvPython()
	}
	if python == "" {
		python = "python3"
	}

	e.cmd = exec.Command(python, e.script)

	stdin, err := e.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := e.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	e.cmd.Stderr = os.Stderr

	if err := e.cmd.Start(); err != nil {
		return fmt.Errorf("start pose service: %w", err)
	}

	e.stdin = stdin
	e.stdout = bufio.NewReader(stdout)
	e.started = true

	slog.Debug("pose service started", "python", python, "script", e.script)
	return nil
}

func (e *MediaPipeEstimator) shutdown() error {
	if !e.started {
		return nil
	}

	if e.idleTimer != nil {
		e.idleTimer.Stop()
		e.idleTimer = nil
	}

	if e.stdin != nil {
		e.stdin.Close()
	}

	err := e.cmd.Wait()
	e.started = false
	e.cmd = nil
	e.stdin = nil
	e.stdout = nil

	return err
}

func (e *MediaPipeEstimator) resetIdleTimer() {
	if e.idleTimer != nil {
		e.idleTimer.Stop()
	}
	e.idleTimer = time.AfterFunc(idleTimeout, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if err := e.shutdown(); err != nil {
			slog.Debug("pose service idle shutdown", "error", err)
		}
	})
}

// writeMessage writes a length-prefixed msgpack message.
func writeMessage(w io.Writer, v any) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := w.Write(length); err != nil {
		return fmt.Errorf("write length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write data: %w", err)
	}
	return nil
}

// readMessage reads a length-prefixed msgpack message into v.
func readMessage(r io.Reader, v any) error {
	length := make([]byte, 4)
	if _, err := io.ReadFull(r, length); err != nil {
		return fmt.Errorf("read length: %w", err)
	}

	n := binary.BigEndian.Uint32(length)
	if n > maxMessageSize {
		return fmt.Errorf("response too large: %d bytes", n)
	}

	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return fmt.Errorf("read data: %w", err)
	}

	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func findPoseScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		"scripts/pose_service.py",
		"../scripts/pose_service.py",
		filepath.Join(execDir, "scripts/pose_service.py"),
		filepath.Join(os.Getenv("HOME"), ".punchcounter/scripts/pose_service.py"),
	}

	return firstExisting(candidates)
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".punchcounter/venv/bin/python"),
	}

	return firstExisting(candidates)
}

func firstExisting(paths []string) string {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}
