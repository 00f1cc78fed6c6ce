package benchmark

import (
	"context"
	"math/rand/v2"
	"runtime"
	"time"

	"github.com/nvr-ai/go-tinyyolo/models/tinyyolo"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

const (
	// backgroundLogit is the objectness logit of empty cells, well below any useful threshold.
	backgroundLogit = -8
	// classLogit is the logit of the winning class of a planted cell.
	classLogit = 6
)

// SyntheticOutput builds a raw prediction tensor in which every anchor slot is background
// except objects randomly chosen slots carrying a confident detection of a random class.
//
// Planted slots have objectness logits in [1, 5) and a class logit of 6, so they pass the
// default confidence threshold. objects is capped at the number of anchor slots.
//
// Arguments:
//   - config: The model layout to generate for.
//   - objects: The number of confident slots.
//   - rng: The random source. The same seed yields the same tensor.
//
// Returns:
//   - *tensor.Dense: A tensor of shape (anchors, 5+classes, grid, grid).
//   - error: A shape error if config is inconsistent.
func SyntheticOutput(config tinyyolo.Config, objects int, rng *rand.Rand) (*tensor.Dense, error) {
	g, a, ch := config.GridSize, config.NumAnchors(), config.Channels()
	plane := g * g

	data := make([]float32, config.Len())
	for anchor := range a {
		objectness := anchor*ch*plane + 4*plane
		for i := range plane {
			data[objectness+i] = backgroundLogit
		}
	}

	slots := rng.Perm(plane * a)
	for _, slot := range slots[:min(max(objects, 0), len(slots))] {
		// Slots follow the decoder's enumeration: cell-major, anchor-minor.
		cell, anchor := slot/a, slot%a
		base := anchor*ch*plane + cell

		data[base] = rng.Float32()*4 - 2
		data[base+plane] = rng.Float32()*4 - 2
		data[base+2*plane] = rng.Float32()*2 - 1
		data[base+3*plane] = rng.Float32()*2 - 1
		data[base+4*plane] = 1 + rng.Float32()*4
		data[base+(5+rng.IntN(config.NumClasses))*plane] = classLogit
	}

	return tinyyolo.NewPredictionTensor(data, config)
}

// Run executes a single benchmark scenario.
//
// The synthetic output is generated once; every iteration then times a full PostProcess call
// (decode followed by NMS) on it.
//
// Arguments:
//   - ctx: Cancels the run between iterations.
//   - scenario: The workload to run.
//
// Returns:
//   - *PerformanceMetrics: Latency, throughput and memory statistics.
//   - error: ErrInvalidScenario, a generation error or the context error.
func Run(ctx context.Context, scenario Scenario) (*PerformanceMetrics, error) {
	if err := scenario.Validate(); err != nil {
		return nil, err
	}

	config := scenario.ModelConfig()
	m, err := tinyyolo.New(config)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create model")
	}

	seed := uint64(scenario.Seed)
	output, err := SyntheticOutput(config, scenario.Objects, rand.New(rand.NewPCG(seed, seed)))
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate synthetic output")
	}

	candidates, err := tinyyolo.Decode(output, config)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode synthetic output")
	}

	metrics := &PerformanceMetrics{
		Scenario:   scenario,
		Timestamp:  time.Now(),
		Candidates: len(candidates),
	}

	// Warmup runs
	for range scenario.WarmupRuns {
		if _, err := m.PostProcess(output); err != nil {
			continue
		}
	}

	// Capture initial memory stats
	var startMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&startMem)

	samples := make([]time.Duration, 0, scenario.Iterations)
	failures := 0
	startTime := time.Now()

	for range scenario.Iterations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		detections, err := m.PostProcess(output)
		samples = append(samples, time.Since(start))
		if err != nil {
			failures++
			continue
		}

		metrics.DetectionCount = len(detections)
	}

	metrics.TotalDuration = time.Since(startTime)

	// Capture final memory stats
	var endMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&endMem)

	metrics.Latency = NewLatencyStats(samples)
	if metrics.TotalDuration > 0 {
		metrics.FramesPerSecond = float64(scenario.Iterations) / metrics.TotalDuration.Seconds()
	}
	metrics.ErrorRate = float64(failures) / float64(scenario.Iterations)

	metrics.MemoryStats = MemoryMetrics{
		AllocBytes:      endMem.Alloc,
		TotalAllocBytes: endMem.TotalAlloc - startMem.TotalAlloc,
		SysBytes:        endMem.Sys,
		NumGC:           endMem.NumGC - startMem.NumGC,
		HeapAllocBytes:  endMem.HeapAlloc,
		HeapSysBytes:    endMem.HeapSys,
	}

	metrics.CPUStats = CPUMetrics{
		NumCPU:     runtime.NumCPU(),
		GOMAXPROCS: runtime.GOMAXPROCS(0),
	}

	return metrics, nil
}
