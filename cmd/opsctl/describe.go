package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/api/option"

	"github.com/customerapi/opsctl/internal/config"
	"github.com/customerapi/opsctl/internal/gcf"
)

const describeTimeout = 30 * time.Second

func newDescribeCmd() *cobra.Command {
	var configPath string
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "describe",
		Short: "Show the deployed function's state and endpoint URL",
		Long: `Describe fetches the function's current state from the platform.

Examples:
    opsctl describe
    opsctl describe --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDescribe(configPath, outputFormat, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the settings file")
	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text or json")

	return cmd
}

func runDescribe(configPath, format string, out io.Writer, clientOpts ...option.ClientOption) error {
	s, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), describeTimeout)
	defer cancel()

	client, err := gcf.NewClient(ctx, clientOpts...)
	if err != nil {
		return err
	}
	info, err := client.Describe(ctx, s)
	if err != nil {
		return err
	}

	switch format {
	case "json":
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
	case "text":
		fmt.Fprintf(out, "Function:    %s\n", info.Name)
		fmt.Fprintf(out, "State:       %s\n", info.State)
		fmt.Fprintf(out, "Runtime:     %s\n", info.Runtime)
		fmt.Fprintf(out, "Endpoint:    %s\n", info.URL)
		if info.UpdateTime != "" {
			fmt.Fprintf(out, "Updated:     %s\n", info.UpdateTime)
		}
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
	return nil
}
