package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/customerapi/opsctl/internal/probe"
)

func newPlanCmd() *cobra.Command {
	var planPath string
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the probe plan the test command will run",
		Long: `Plan prints the probe table without touching any endpoint. The DOT
format renders the plan's value-capture dependencies for Graphviz:

    opsctl plan -f dot | dot -Tpng -o plan.png

Examples:
    opsctl plan
    opsctl plan --plan probes.yaml -f dot`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(planPath, outputFormat, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&planPath, "plan", "p", "", "YAML probe plan overriding the built-in table")
	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text or dot")

	return cmd
}

func runPlan(planPath, format string, out io.Writer) error {
	plan, err := loadPlan(planPath)
	if err != nil {
		return err
	}

	switch format {
	case "dot":
		return probe.WriteGraph(plan, out)
	case "text":
		for i, p := range plan.Probes {
			fmt.Fprintf(out, "%2d. %-22s %-4s %-28s expect %d", i+1, p.Name, p.Method, p.Path, p.ExpectStatus)
			if p.CaptureFirstAs != "" {
				fmt.Fprintf(out, "  (captures {{%s}})", p.CaptureFirstAs)
			}
			fmt.Fprintln(out)
		}
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
	return nil
}
