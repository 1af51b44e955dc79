// Package testdata holds pose folder fixtures shared by integration tests.
package testdata

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/ayusman/punchcounter/internal/motion"
)

//go:embed poses
var posesFS embed.FS

// Sparring is 30 sampled frames of a boxer in guard throwing a right jab at
// frame 3, a left at frame 15 and a right at frame 24. Frame 10 has no
// detected pose.
const Sparring = "sparring"

// SparringEvents is the punch list expected from Sparring with the default
// threshold and min gap.
var SparringEvents = []motion.Event{
	{Side: motion.Right, Frame: 3},
	{Side: motion.Left, Frame: 15},
	{Side: motion.Right, Frame: 24},
}

// PoseFiles lists the file names of a fixture in frame order.
func PoseFiles(name string) ([]string, error) {
	entries, err := posesFS.ReadDir(path.Join("poses", name))
	if err != nil {
		return nil, fmt.Errorf("fixture %s: %w", name, err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() {
			files = append(files, entry.Name())
		}
	}
	return files, nil
}

// CopyPoses writes the named fixture into a new folder under dir and
// returns its path.
func CopyPoses(name, dir string) (string, error) {
	files, err := PoseFiles(name)
	if err != nil {
		return "", err
	}

	dst := filepath.Join(dir, "pose_"+name)
	if err := os.MkdirAll(dst, 0755); err != nil {
		return "", err
	}

	for _, f := range files {
		data, err := fs.ReadFile(posesFS, path.Join("poses", name, f))
		if err != nil {
			return "", fmt.Errorf("fixture %s/%s: %w", name, f, err)
		}
		if err := os.WriteFile(filepath.Join(dst, f), data, 0644); err != nil {
			return "", err
		}
	}

	return dst, nil
}
