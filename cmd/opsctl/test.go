package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/api/option"

	"github.com/customerapi/opsctl/internal/config"
	"github.com/customerapi/opsctl/internal/gcf"
	"github.com/customerapi/opsctl/internal/probe"
)

const probeTimeout = 15 * time.Second

func newTestCmd() *cobra.Command {
	var configPath string
	var planPath string

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run the black-box probe suite against the deployed endpoint",
		Long: `Test resolves the deployed endpoint URL and issues a sequence of HTTP
probes against it, comparing status codes to expectations. The built-in
probe table covers the customer API surface; --plan substitutes a YAML
plan file.

A failed probe does not stop the run; the command exits non-zero if any
probe failed.

Examples:
    opsctl test
    opsctl test --plan probes.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTest(configPath, planPath, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the settings file")
	cmd.Flags().StringVarP(&planPath, "plan", "p", "", "YAML probe plan overriding the built-in table")

	return cmd
}

// runTest resolves the endpoint and runs the plan. Client options are
// passed through to the management API client; tests use them to point at
// a fake endpoint.
func runTest(configPath, planPath string, out io.Writer, clientOpts ...option.ClientOption) error {
	s, err := config.Load(configPath)
	if err != nil {
		return err
	}

	plan, err := loadPlan(planPath)
	if err != nil {
		return err
	}

	ctx := context.Background()
	client, err := gcf.NewClient(ctx, clientOpts...)
	if err != nil {
		return err
	}
	info, err := client.Describe(ctx, s)
	if err != nil {
		return fmt.Errorf("resolving endpoint: %w", err)
	}
	if info.URL == "" {
		return fmt.Errorf("function %s has no endpoint URL (state %s)", s.Name, info.State)
	}

	fmt.Fprintf(out, "Probing %s\n\n", info.URL)
	return runProbes(ctx, info.URL, plan, out)
}

// runProbes executes the plan and prints per-probe results plus a summary.
// Any failed probe makes the returned error non-nil.
func runProbes(ctx context.Context, baseURL string, plan *probe.Plan, out io.Writer) error {
	runner := probe.NewRunner(baseURL, probeTimeout)
	defer runner.Close()

	summary, err := runner.Run(ctx, plan)
	if err != nil {
		return err
	}

	for _, res := range summary.Results {
		if res.Passed() {
			fmt.Fprintf(out, "  PASS  %-22s %s %s (%d)\n", res.Probe.Name, res.Probe.Method, res.Probe.Path, res.Status)
		} else {
			fmt.Fprintf(out, "  FAIL  %-22s %s %s: %v\n", res.Probe.Name, res.Probe.Method, res.Probe.Path, res.Err)
		}
	}
	fmt.Fprintf(out, "\n%d passed, %d failed\n", summary.Passed, summary.Failed)

	if !summary.OK() {
		return fmt.Errorf("%d of %d probes failed", summary.Failed, len(summary.Results))
	}
	return nil
}

func loadPlan(planPath string) (*probe.Plan, error) {
	if planPath == "" {
		return probe.DefaultPlan(), nil
	}
	return probe.LoadPlan(planPath)
}
