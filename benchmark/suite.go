package benchmark

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Suite manages and executes benchmark scenarios
type Suite struct {
	scenarios []Scenario
	outputDir string
	logger    *zap.Logger
	mu        sync.RWMutex
	results   []PerformanceMetrics
}

// NewSuite creates a new benchmark suite.
//
// Arguments:
//   - outputDir: The directory SaveResults writes to.
//   - logger: The logger for per-scenario progress. Nil disables logging.
//
// Returns:
//   - *Suite: The benchmark suite.
func NewSuite(outputDir string, logger *zap.Logger) *Suite {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Suite{
		outputDir: outputDir,
		logger:    logger,
		scenarios: make([]Scenario, 0),
		results:   make([]PerformanceMetrics, 0),
	}
}

// AddScenario adds a test scenario to the benchmark suite
func (bs *Suite) AddScenario(scenario Scenario) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.scenarios = append(bs.scenarios, scenario)
}

// AddScenarioSet adds every scenario of the set.
func (bs *Suite) AddScenarioSet(set *ScenarioSet) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.scenarios = append(bs.scenarios, set.Scenarios...)
}

// RunAllScenarios executes all configured benchmark scenarios in order.
//
// A failing scenario is logged and skipped. Cancellation stops the run and returns the context
// error.
func (bs *Suite) RunAllScenarios(ctx context.Context) error {
	bs.mu.RLock()
	scenarios := make([]Scenario, len(bs.scenarios))
	copy(scenarios, bs.scenarios)
	bs.mu.RUnlock()

	for _, scenario := range scenarios {
		metrics, err := Run(ctx, scenario)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			bs.logger.Warn("scenario failed", zap.String("scenario", scenario.Name), zap.Error(err))
			continue
		}

		bs.mu.Lock()
		bs.results = append(bs.results, *metrics)
		bs.mu.Unlock()

		bs.logger.Info("scenario completed",
			zap.String("scenario", scenario.Name),
			zap.Int("candidates", metrics.Candidates),
			zap.Int("detections", metrics.DetectionCount),
			zap.Duration("p50", metrics.Latency.P50),
			zap.Duration("p99", metrics.Latency.P99),
			zap.Float64("fps", metrics.FramesPerSecond),
		)
	}

	return nil
}

// GetResults returns all benchmark results
func (bs *Suite) GetResults() []PerformanceMetrics {
	bs.mu.RLock()
	defer bs.mu.RUnlock()

	results := make([]PerformanceMetrics, len(bs.results))
	copy(results, bs.results)
	return results
}

// SaveResults persists benchmark results as a detailed JSON file and a CSV summary.
//
// Returns:
//   - string: The JSON results path.
//   - string: The CSV summary path.
//   - error: Any file system error.
func (bs *Suite) SaveResults() (string, string, error) {
	results := bs.GetResults()

	if err := os.MkdirAll(bs.outputDir, 0o755); err != nil {
		return "", "", errors.Wrap(err, "failed to create output directory")
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	resultsFile := filepath.Join(bs.outputDir, fmt.Sprintf("benchmark_results_%s.json", timestamp))

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", "", errors.Wrap(err, "failed to marshal results")
	}

	if err := os.WriteFile(resultsFile, data, 0o644); err != nil {
		return "", "", errors.Wrap(err, "failed to write results file")
	}

	summaryFile := filepath.Join(bs.outputDir, fmt.Sprintf("benchmark_summary_%s.csv", timestamp))
	if err := saveSummaryCSV(summaryFile, results); err != nil {
		return "", "", errors.Wrap(err, "failed to save summary CSV")
	}

	bs.logger.Info("benchmark results saved", zap.String("results", resultsFile), zap.String("summary", summaryFile))

	return resultsFile, summaryFile, nil
}

var summaryHeader = []string{
	"Scenario", "Grid", "Classes", "Anchors", "Objects", "Candidates", "Detections",
	"Mean_us", "P50_us", "P95_us", "P99_us", "FPS", "Alloc_MB", "Error_Rate",
}

func saveSummaryCSV(filename string, results []PerformanceMetrics) (err error) {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()

	w := csv.NewWriter(file)
	if err := w.Write(summaryHeader); err != nil {
		return err
	}

	for _, r := range results {
		row := []string{
			r.Scenario.Name,
			strconv.Itoa(r.Scenario.GridSize),
			strconv.Itoa(r.Scenario.NumClasses),
			strconv.Itoa(r.Scenario.NumAnchors),
			strconv.Itoa(r.Scenario.Objects),
			strconv.Itoa(r.Candidates),
			strconv.Itoa(r.DetectionCount),
			micros(r.Latency.Mean),
			micros(r.Latency.P50),
			micros(r.Latency.P95),
			micros(r.Latency.P99),
			strconv.FormatFloat(r.FramesPerSecond, 'f', 2, 64),
			strconv.FormatFloat(float64(r.MemoryStats.TotalAllocBytes)/(1024*1024), 'f', 2, 64),
			strconv.FormatFloat(r.ErrorRate, 'f', 4, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func micros(d time.Duration) string {
	return strconv.FormatFloat(float64(d)/float64(time.Microsecond), 'f', 2, 64)
}
