package completion

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// Default polling parameters.
const (
	DefaultInterval  = 250 * time.Millisecond
	DefaultThreshold = 5
	DefaultMaxWait   = 60 * time.Second
)

// ErrNotCompleted is returned when the watched file did not settle before the
// deadline. It says nothing about why the guest failed to finish.
var ErrNotCompleted = errors.New("guest did not complete operation")

// Result describes a successful wait.
type Result struct {
	Size    int64
	Samples int
	Elapsed time.Duration
}

// Detector polls a file's size until it stops changing.
type Detector struct {
	// Interval is the time between samples.
	Interval time.Duration

	// Threshold is the number of consecutive equal, non-empty samples
	// required before the file is considered complete.
	Threshold int

	// MaxWait bounds the whole wait. A context deadline that expires earlier
	// takes precedence.
	MaxWait time.Duration

	// stat returns the current size of path. Tests replace it.
	stat func(path string) (int64, error)
}

// New creates a detector with the given parameters. Zero values fall back to
// the package defaults.
func New(interval time.Duration, threshold int, maxWait time.Duration) *Detector {
	d := &Detector{Interval: interval, Threshold: threshold, MaxWait: maxWait}
	if d.Interval <= 0 {
		d.Interval = DefaultInterval
	}
	if d.Threshold <= 0 {
		d.Threshold = DefaultThreshold
	}
	if d.MaxWait <= 0 {
		d.MaxWait = DefaultMaxWait
	}
	return d
}

// Wait blocks until the size of path has been identical and non-zero for
// Threshold consecutive samples. A file that does not exist yet is sampled as
// size zero. Wait returns an error wrapping ErrNotCompleted once MaxWait (or
// the context deadline) passes, and ctx.Err() if ctx is cancelled.
func (d *Detector) Wait(ctx context.Context, path string) (Result, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, d.MaxWait)
	defer cancel()

	stat := d.stat
	if stat == nil {
		stat = fileSize
	}

	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()

	var (
		prev    int64
		stable  int
		samples int
	)
	for {
		size, err := stat(path)
		if err != nil {
			return Result{}, fmt.Errorf("sample %s: %w", path, err)
		}
		samples++

		switch {
		case size == 0:
			stable = 0
		case size == prev:
			stable++
		default:
			stable = 1
		}
		prev = size

		if stable >= d.Threshold {
			return Result{Size: size, Samples: samples, Elapsed: time.Since(start)}, nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return Result{}, fmt.Errorf("%s not stable after %d samples (last size %d): %w",
					path, samples, prev, ErrNotCompleted)
			}
			return Result{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// fileSize returns the size of path, or zero if it does not exist yet.
func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
