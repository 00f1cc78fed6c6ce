package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/nvr-ai/go-tinyyolo/benchmark"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// scenarioSets are the predefined sets selectable with --set.
var scenarioSets = map[string]func() *benchmark.ScenarioSet{
	"quick":   benchmark.QuickScenarios,
	"density": benchmark.DensityScenarios,
	"grid":    benchmark.GridScenarios,
}

func newBenchCommand(a *app) *cobra.Command {
	var (
		set        string
		scenarios  string
		outputDir  string
		iterations int
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark decoding and NMS on synthetic network output",
		Long: `Benchmark the post-processing stage (grid decode followed by NMS) on generated
network output. No model or ONNX Runtime is required.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scenarioSet, err := selectScenarios(set, scenarios)
			if err != nil {
				return err
			}
			if iterations > 0 {
				for i := range scenarioSet.Scenarios {
					scenarioSet.Scenarios[i].Iterations = iterations
				}
			}

			suite := benchmark.NewSuite(outputDir, a.logger)
			suite.AddScenarioSet(scenarioSet)

			a.logger.Info("running benchmark",
				zap.String("set", scenarioSet.Name),
				zap.Int("scenarios", len(scenarioSet.Scenarios)),
			)

			if err := suite.RunAllScenarios(cmd.Context()); err != nil {
				return err
			}

			if err := printResults(cmd.OutOrStdout(), suite.GetResults()); err != nil {
				return err
			}

			if outputDir != "" {
				if _, _, err := suite.SaveResults(); err != nil {
					return err
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&set, "set", "quick", "predefined scenario set (quick, density, grid)")
	cmd.Flags().StringVar(&scenarios, "scenarios", "", "JSON scenario set file, overrides --set")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "directory for JSON and CSV results")
	cmd.Flags().IntVar(&iterations, "iterations", 0, "override the iteration count of every scenario")

	return cmd
}

func selectScenarios(set, file string) (*benchmark.ScenarioSet, error) {
	if file != "" {
		return benchmark.LoadScenarioSet(file)
	}

	build, ok := scenarioSets[set]
	if !ok {
		return nil, errors.Errorf("unknown scenario set %q", set)
	}
	return build(), nil
}

func printResults(w io.Writer, results []benchmark.PerformanceMetrics) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCENARIO\tCANDIDATES\tDETECTIONS\tP50\tP95\tP99\tFPS")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%v\t%v\t%v\t%.0f\n",
			r.Scenario.Name, r.Candidates, r.DetectionCount,
			r.Latency.P50, r.Latency.P95, r.Latency.P99, r.FramesPerSecond)
	}
	return tw.Flush()
}
