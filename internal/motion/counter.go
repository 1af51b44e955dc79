package motion

import (
	"errors"
	"fmt"

	"github.com/ayusman/punchcounter/internal/pose"
)

// Defaults tuned on MediaPipe Pose at 5 sampled frames per second.
const (
	DefaultThreshold = 0.02
	DefaultMinGap    = 5
)

// ErrInvalidConfig is returned for a counter configuration that cannot
// produce meaningful counts.
var ErrInvalidConfig = errors.New("invalid motion config")

// Config holds the detection parameters.
type Config struct {
	// Threshold is the wrist displacement per sampled frame, in normalized
	// pose coordinates, above which a transition is a punch candidate.
	Threshold float64 `yaml:"threshold" json:"threshold"`

	// MinGap is the number of sampled frames within which candidates after
	// a kept event are treated as the same burst.
	MinGap int `yaml:"min_gap" json:"min_gap"`
}

// DefaultConfig returns the MediaPipe-calibrated defaults.
func DefaultConfig() Config {
	return Config{
		Threshold: DefaultThreshold,
		MinGap:    DefaultMinGap,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if !(c.Threshold > 0) {
		return fmt.Errorf("%w: threshold must be > 0, got %v", ErrInvalidConfig, c.Threshold)
	}
	if c.MinGap < 0 {
		return fmt.Errorf("%w: min_gap must be >= 0, got %d", ErrInvalidConfig, c.MinGap)
	}
	return nil
}

// Counter runs the full pipeline with a fixed configuration.
type Counter struct {
	config Config
}

// NewCounter creates a Counter after validating config.
func NewCounter(config Config) (*Counter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Counter{config: config}, nil
}

// Config returns the counter's configuration.
func (c *Counter) Config() Config {
	return c.config
}

// Count runs every stage over raw pose records and returns the report.
func (c *Counter) Count(records []pose.Record) (Report, error) {
	seq, err := LoadSequence(records)
	if err != nil {
		return Report{}, err
	}
	return c.CountSequence(seq), nil
}

// CountSequence runs the stages after loading over an already filled sequence.
func (c *Counter) CountSequence(seq []Sample) Report {
	speeds := WristSpeeds(seq)
	candidates := DetectCandidates(speeds, c.config.Threshold)
	return Summarize(MergeBursts(candidates, c.config.MinGap))
}
