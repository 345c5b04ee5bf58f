// Command opsctl deploys and black-box-tests the mock customer API on
// Cloud Functions. Every deployment parameter comes from a flat key=value
// config file; the commands themselves take almost no flags.
//
// Usage:
//
//	opsctl deploy --config function.conf     Deploy the function
//	opsctl test --config function.conf       Probe the deployed endpoint
//	opsctl teardown --config function.conf   Delete the function
//	opsctl describe --config function.conf   Show state and endpoint URL
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "opsctl",
		Short: "Deploy and verify the customer API cloud function",
		Long: `opsctl is the operational tool for the mock customer API function.

All deployment parameters (name, region, runtime, entry point, source
directory, access, memory, timeout) are read from an INI-style config
file rather than flags:

    name = customer-api
    region = us-central1
    runtime = python312
    entry_point = customer_api
    project = demo-project
    allow_unauthenticated = true

Then deploy and verify:

    opsctl deploy
    opsctl test`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			})))
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(
		newDeployCmd(),
		newTeardownCmd(),
		newDescribeCmd(),
		newTestCmd(),
		newPlanCmd(),
		newWatchCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("opsctl %s\n", getVersion())
		},
	}
}
