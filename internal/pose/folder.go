package pose

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FrameFile is the on-disk JSON document for one sampled frame in a pose folder.
// PoseKeypoints is null when no person was detected.
type FrameFile struct {
	Frame         string     `json:"frame"`
	PoseKeypoints []Keypoint `json:"pose_keypoints"`
}

// FrameName returns the image name of the i-th sampled frame.
func FrameName(i int) string {
	return fmt.Sprintf("frame_%05d.jpg", i)
}

// ReadFolder loads every *.json file in dir, sorted by name, as an ordered
// sequence of records. Files that cannot be read or decoded, and poses that
// are malformed, become "no detection" records so that a partially corrupt
// folder still yields one record per frame.
func ReadFolder(dir string) ([]Record, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read pose folder: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	records := make([]Record, len(names))
	for i, name := range names {
		records[i] = Record{Index: i}

		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("unreadable pose file, treating as no detection", "path", path, "error", err)
			continue
		}

		var ff FrameFile
		if err := json.Unmarshal(data, &ff); err != nil {
			slog.Warn("invalid pose file, treating as no detection", "path", path, "error", err)
			continue
		}

		if ff.PoseKeypoints == nil {
			continue
		}

		p, err := FromKeypoints(ff.PoseKeypoints)
		if err != nil {
			slog.Warn("malformed pose, treating as no detection", "path", path, "error", err)
			continue
		}
		records[i].Pose = p
	}

	return records, nil
}

// WriteFolder writes one JSON file per record into dir, creating it if needed.
func WriteFolder(dir string, records []Record) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create pose folder: %w", err)
	}

	for _, r := range records {
		if err := WriteFrame(dir, r); err != nil {
			return err
		}
	}
	return nil
}

// WriteFrame writes a single record as frame_NNNNN.json into dir.
func WriteFrame(dir string, r Record) error {
	ff := FrameFile{
		Frame:         FrameName(r.Index),
		PoseKeypoints: r.Pose.Keypoints(),
	}

	data, err := json.Marshal(ff)
	if err != nil {
		return fmt.Errorf("marshal frame %d: %w", r.Index, err)
	}

	name := strings.TrimSuffix(ff.Frame, filepath.Ext(ff.Frame)) + ".json"
	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
		return fmt.Errorf("write frame %d: %w", r.Index, err)
	}
	return nil
}
