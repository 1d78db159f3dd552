package texrender

import "runtime"

// Worker sizing constants.
const (
	// MinWorkers ensures at least one document is processed at a time.
	MinWorkers = 1

	// MaxWorkers caps parallel documents; renders are batched per document
	// so each worker may hold one renderer process.
	MaxWorkers = 8

	// cpuDivisor leaves headroom for renderer child processes.
	cpuDivisor = 2
)

// ResolveWorkers determines how many documents to process in parallel.
// Priority: explicit workers > GOMAXPROCS-based calculation.
// Exported for use by servers and CLIs.
func ResolveWorkers(workers int) int {
	if workers > 0 {
		return workers
	}

	// Auto-calculate based on GOMAXPROCS (adjusted by automaxprocs for containers)
	available := runtime.GOMAXPROCS(0)
	n := available / cpuDivisor

	if n < MinWorkers {
		return MinWorkers
	}
	if n > MaxWorkers {
		return MaxWorkers
	}
	return n
}
