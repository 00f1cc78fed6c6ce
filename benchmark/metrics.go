// Package benchmark - Synthetic post-processing benchmarks for the Tiny-YOLO decoder and NMS.
package benchmark

import (
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"
)

// PerformanceMetrics captures detailed performance data
type PerformanceMetrics struct {
	Scenario        Scenario      `json:"scenario"`
	Timestamp       time.Time     `json:"timestamp"`
	TotalDuration   time.Duration `json:"total_duration"`
	Latency         LatencyStats  `json:"latency"`
	FramesPerSecond float64       `json:"frames_per_second"`
	MemoryStats     MemoryMetrics `json:"memory_stats"`
	CPUStats        CPUMetrics    `json:"cpu_stats"`
	Candidates      int           `json:"candidates"`
	DetectionCount  int           `json:"detection_count"`
	ErrorRate       float64       `json:"error_rate"`
}

// LatencyStats summarizes per-iteration post-processing latency.
type LatencyStats struct {
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"std_dev"`
	Min    time.Duration `json:"min"`
	P50    time.Duration `json:"p50"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Max    time.Duration `json:"max"`
}

// MemoryMetrics captures memory usage statistics
type MemoryMetrics struct {
	AllocBytes      uint64 `json:"alloc_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes"`
	SysBytes        uint64 `json:"sys_bytes"`
	NumGC           uint32 `json:"num_gc"`
	HeapAllocBytes  uint64 `json:"heap_alloc_bytes"`
	HeapSysBytes    uint64 `json:"heap_sys_bytes"`
}

// CPUMetrics captures CPU usage statistics
type CPUMetrics struct {
	NumCPU     int `json:"num_cpu"`
	GOMAXPROCS int `json:"gomaxprocs"`
}

// NewLatencyStats computes latency statistics over the samples.
//
// Quantiles use the empirical distribution: P95 is the smallest sample that is greater than or
// equal to 95% of all samples.
//
// Arguments:
//   - samples: The per-iteration durations. The slice is not modified.
//
// Returns:
//   - LatencyStats: The zero value when samples is empty.
func NewLatencyStats(samples []time.Duration) LatencyStats {
	if len(samples) == 0 {
		return LatencyStats{}
	}

	x := make([]float64, len(samples))
	for i, s := range samples {
		x[i] = float64(s)
	}
	slices.Sort(x)

	mean, std := stat.MeanStdDev(x, nil)
	if len(x) < 2 {
		std = 0
	}

	return LatencyStats{
		Mean:   time.Duration(mean),
		StdDev: time.Duration(std),
		Min:    time.Duration(x[0]),
		P50:    time.Duration(stat.Quantile(0.50, stat.Empirical, x, nil)),
		P95:    time.Duration(stat.Quantile(0.95, stat.Empirical, x, nil)),
		P99:    time.Duration(stat.Quantile(0.99, stat.Empirical, x, nil)),
		Max:    time.Duration(x[len(x)-1]),
	}
}
