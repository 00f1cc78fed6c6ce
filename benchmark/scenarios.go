package benchmark

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/nvr-ai/go-tinyyolo/models/tinyyolo"
	"github.com/pkg/errors"
)

// ErrInvalidScenario is returned when a scenario cannot be run.
var ErrInvalidScenario = errors.New("invalid scenario")

// Scenario defines one synthetic post-processing workload.
type Scenario struct {
	Name       string `json:"name"`
	GridSize   int    `json:"grid_size"`
	NumClasses int    `json:"num_classes"`
	NumAnchors int    `json:"num_anchors"`
	// Objects is the number of cells planted with a confident detection.
	Objects    int   `json:"objects"`
	Iterations int   `json:"iterations"`
	WarmupRuns int   `json:"warmup_runs"`
	Seed       int64 `json:"seed"`
}

// Validate checks that the scenario describes a runnable workload.
func (s Scenario) Validate() error {
	switch {
	case s.Iterations <= 0:
		return errors.Wrapf(ErrInvalidScenario, "%s: iterations %d must be positive", s.Name, s.Iterations)
	case s.WarmupRuns < 0:
		return errors.Wrapf(ErrInvalidScenario, "%s: warmup runs %d must not be negative", s.Name, s.WarmupRuns)
	case s.Objects < 0:
		return errors.Wrapf(ErrInvalidScenario, "%s: objects %d must not be negative", s.Name, s.Objects)
	}

	if err := s.ModelConfig().Validate(); err != nil {
		return errors.Wrapf(ErrInvalidScenario, "%s: %v", s.Name, err)
	}

	return nil
}

// ModelConfig returns the Tiny-YOLO configuration exercised by the scenario. Anchors beyond the
// five defaults repeat the default shapes.
func (s Scenario) ModelConfig() tinyyolo.Config {
	config := tinyyolo.DefaultConfig()
	config.GridSize = s.GridSize
	config.NumClasses = s.NumClasses

	defaults := tinyyolo.DefaultAnchors()
	config.Anchors = make([]tinyyolo.Anchor, max(s.NumAnchors, 0))
	for i := range config.Anchors {
		config.Anchors[i] = defaults[i%len(defaults)]
	}

	return config
}

// ScenarioBuilder helps build test scenarios with fluent API
type ScenarioBuilder struct {
	scenario Scenario
}

// NewScenarioBuilder creates a builder preset to the stock 13x13, 5-anchor, 80-class layout.
func NewScenarioBuilder(name string) *ScenarioBuilder {
	return &ScenarioBuilder{
		scenario: Scenario{
			Name:       name,
			GridSize:   tinyyolo.DefaultGridSize,
			NumClasses: tinyyolo.DefaultNumClasses,
			NumAnchors: len(tinyyolo.DefaultAnchors()),
			Iterations: 100,
			WarmupRuns: 10,
			Seed:       1,
		},
	}
}

// WithGrid sets the grid size
func (sb *ScenarioBuilder) WithGrid(size int) *ScenarioBuilder {
	sb.scenario.GridSize = size
	return sb
}

// WithClasses sets the number of classes
func (sb *ScenarioBuilder) WithClasses(classes int) *ScenarioBuilder {
	sb.scenario.NumClasses = classes
	return sb
}

// WithAnchors sets the number of anchors per cell
func (sb *ScenarioBuilder) WithAnchors(anchors int) *ScenarioBuilder {
	sb.scenario.NumAnchors = anchors
	return sb
}

// WithObjects sets the number of planted detections
func (sb *ScenarioBuilder) WithObjects(objects int) *ScenarioBuilder {
	sb.scenario.Objects = objects
	return sb
}

// WithIterations sets the number of test iterations
func (sb *ScenarioBuilder) WithIterations(iterations int) *ScenarioBuilder {
	sb.scenario.Iterations = iterations
	return sb
}

// WithWarmupRuns sets the number of warmup runs
func (sb *ScenarioBuilder) WithWarmupRuns(warmups int) *ScenarioBuilder {
	sb.scenario.WarmupRuns = warmups
	return sb
}

// WithSeed sets the seed of the synthetic output generator
func (sb *ScenarioBuilder) WithSeed(seed int64) *ScenarioBuilder {
	sb.scenario.Seed = seed
	return sb
}

// Build returns the configured test scenario
func (sb *ScenarioBuilder) Build() Scenario {
	return sb.scenario
}

// ScenarioSet represents a collection of related test scenarios
type ScenarioSet struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Scenarios   []Scenario `json:"scenarios"`
}

// QuickScenarios returns a small set covering an empty frame, a typical frame and a crowded one.
func QuickScenarios() *ScenarioSet {
	scenarios := make([]Scenario, 0, 3)
	for _, objects := range []int{0, 10, 100} {
		scenarios = append(scenarios, NewScenarioBuilder(fmt.Sprintf("quick_13x13_%d_objects", objects)).
			WithObjects(objects).
			WithIterations(50).
			WithWarmupRuns(5).
			Build())
	}

	return &ScenarioSet{
		Name:        "Quick Post-Processing Test",
		Description: "Stock layout with an empty, a typical and a crowded frame",
		Scenarios:   scenarios,
	}
}

// DensityScenarios returns scenarios with an increasing share of confident cells, up to every
// anchor slot of the stock grid.
func DensityScenarios() *ScenarioSet {
	total := tinyyolo.DefaultGridSize * tinyyolo.DefaultGridSize * len(tinyyolo.DefaultAnchors())

	scenarios := make([]Scenario, 0, 5)
	for _, objects := range []int{1, 25, 100, 400, total} {
		scenarios = append(scenarios, NewScenarioBuilder(fmt.Sprintf("density_%d_of_%d", objects, total)).
			WithObjects(objects).
			Build())
	}

	return &ScenarioSet{
		Name:        "Detection Density",
		Description: "Decode and NMS cost as the number of candidates grows",
		Scenarios:   scenarios,
	}
}

// GridScenarios compares grid sizes with a fixed number of planted objects.
func GridScenarios() *ScenarioSet {
	scenarios := make([]Scenario, 0, 4)
	for _, grid := range []int{7, 13, 19, 26} {
		scenarios = append(scenarios, NewScenarioBuilder(fmt.Sprintf("grid_%dx%d", grid, grid)).
			WithGrid(grid).
			WithObjects(20).
			Build())
	}

	return &ScenarioSet{
		Name:        "Grid Size Comparison",
		Description: "Decode cost for different output grids",
		Scenarios:   scenarios,
	}
}

// SaveScenarioSet saves a scenario set to a JSON file
func SaveScenarioSet(scenarioSet *ScenarioSet, filename string) error {
	data, err := json.MarshalIndent(scenarioSet, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal scenario set")
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write scenario file")
	}

	return nil
}

// LoadScenarioSet loads a scenario set from a JSON file
func LoadScenarioSet(filename string) (*ScenarioSet, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read scenario file")
	}

	var scenarioSet ScenarioSet
	if err := json.Unmarshal(data, &scenarioSet); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal scenario set")
	}

	for _, s := range scenarioSet.Scenarios {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}

	return &scenarioSet, nil
}
