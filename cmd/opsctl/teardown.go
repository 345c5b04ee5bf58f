package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/api/option"

	"github.com/customerapi/opsctl/internal/config"
	"github.com/customerapi/opsctl/internal/gcf"
)

const teardownTimeout = 5 * time.Minute

func newTeardownCmd() *cobra.Command {
	var configPath string
	var yes bool

	cmd := &cobra.Command{
		Use:   "teardown",
		Short: "Delete the deployed function",
		Long: `Teardown deletes the function named in the config file, after an
interactive confirmation.

Examples:
    opsctl teardown
    opsctl teardown --yes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTeardown(configPath, yes, os.Stdin, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the settings file")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}

func runTeardown(configPath string, yes bool, in io.Reader, out io.Writer, clientOpts ...option.ClientOption) error {
	s, err := config.Load(configPath)
	if err != nil {
		return err
	}

	prompt := fmt.Sprintf("Delete function %s in %s/%s?", s.Name, s.Project, s.Region)
	if !yes && !confirm(in, out, prompt) {
		return fmt.Errorf("teardown aborted")
	}

	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	client, err := gcf.NewClient(ctx, clientOpts...)
	if err != nil {
		return err
	}
	if err := client.Delete(ctx, s); err != nil {
		return err
	}

	fmt.Fprintf(out, "Deleted %s\n", s.Name)
	return nil
}
