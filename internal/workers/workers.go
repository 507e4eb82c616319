package workers

import "runtime"

// Count returns a worker count scaled to the CPUs available to the process.
// GOMAXPROCS follows container CPU limits, so it is used instead of NumCPU.
//
// A positive override is used as is. The result is never below 1 and, when
// limit is positive, never above limit.
func Count(multiplier float64, limit, override int) int {
	workers := override
	if workers <= 0 {
		workers = int(float64(runtime.GOMAXPROCS(0)) * multiplier)
	}

	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}
	return workers
}

// ForCPU returns one worker per available CPU, capped at limit.
func ForCPU(limit, override int) int {
	return Count(1.0, limit, override)
}
