package workers

import (
	"os"
	"runtime"
	"strconv"
)

// Count returns the optimal number of workers for a given task type.
// It respects container CPU limits via GOMAXPROCS (Go 1.19+).
//
// The multiplier adjusts for task characteristics:
//   - 1.0 for CPU-bound tasks
//   - 2.0 for I/O-bound tasks
//
// The limit parameter caps the worker count to prevent resource exhaustion.
// Use 0 for no limit.
//
// Can be overridden with the THUMBNAIL_WORKERS environment variable.
func Count(multiplier float64, limit int) int {
	if override := os.Getenv("THUMBNAIL_WORKERS"); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			if limit > 0 && count > limit {
				return limit
			}
			return count
		}
	}

	available := runtime.GOMAXPROCS(0)

	n := int(float64(available) * multiplier)

	if n < 1 {
		n = 1
	}
	if limit > 0 && n > limit {
		n = limit
	}

	return n
}

// ForCPU returns worker count for CPU-bound tasks (1 per CPU).
// The limit parameter caps the maximum number of workers.
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// ForIO returns worker count for I/O-bound tasks (2 per CPU).
// The limit parameter caps the maximum number of workers.
func ForIO(limit int) int {
	return Count(2.0, limit)
}

// ForThumbnails returns the worker count for the thumbnail pool: one per
// CPU minus headroom kept free for the caller's interactive thread, never
// fewer than 2. The limit parameter caps the maximum number of workers.
func ForThumbnails(limit int) int {
	const headroom = 2

	if override := os.Getenv("THUMBNAIL_WORKERS"); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			if limit > 0 && count > limit {
				return limit
			}
			return count
		}
	}

	n := runtime.GOMAXPROCS(0) - headroom
	if n < 2 {
		n = 2
	}
	if limit > 0 && n > limit {
		n = limit
	}
	return n
}
