// Package report writes and reads the results document of a punch counting run.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ayusman/punchcounter/internal/motion"
)

// Results is the persisted outcome of one run. The embedded report's fields
// (total_punches, left_punches, right_punches, punch_frames) appear at the top
// level of the JSON document.
type Results struct {
	Video       string `json:"video"`
	RunID       string `json:"run_id"`
	TargetFPS   int    `json:"target_fps,omitempty"`
	FrameStride int    `json:"frame_stride,omitempty"`
	Frames      int    `json:"frames"`
	motion.Report
	Threshold   float64 `json:"threshold"`
	MinGap      int     `json:"min_gap"`
	FrameFolder string  `json:"frame_folder,omitempty"`
	PoseFolder  string  `json:"pose_folder,omitempty"`
}

// SourceFrame maps a sampled frame index back to the source video frame.
func (r *Results) SourceFrame(sampled int) int {
	stride := r.FrameStride
	if stride < 1 {
		stride = 1
	}
	return sampled * stride
}

// FileName returns the results file name for a source path:
// "/videos/sparring.mp4" becomes "sparring_results.json".
func FileName(source string) string {
	base := filepath.Base(filepath.Clean(source))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return base + "_results.json"
}

// Write stores r as indented JSON in dir and returns the file path.
func Write(dir string, r *Results) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create results dir: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "    ")
	if err != nil {
		return "", fmt.Errorf("marshal results: %w", err)
	}

	path := filepath.Join(dir, FileName(r.Video))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write results: %w", err)
	}

	return path, nil
}

// Read loads a results file written by Write.
func Read(path string) (*Results, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}

	var r Results
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse results: %w", err)
	}
	return &r, nil
}
