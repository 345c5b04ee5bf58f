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
	"github.com/customerapi/opsctl/internal/source"
)

// deployTimeout bounds a full deploy including the platform-side build.
const deployTimeout = 15 * time.Minute

func newDeployCmd() *cobra.Command {
	var configPath string
	var yes bool

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy the function described by the config file",
		Long: `Deploy validates the config file, verifies the source tree, prints
the deployment plan and asks for confirmation before touching the platform.

The source directory is zipped, uploaded, and the function is created or
updated in place. On success the endpoint URL is printed.

Examples:
    opsctl deploy
    opsctl deploy --config staging.conf --yes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(configPath, yes, os.Stdin, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the settings file")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}

func runDeploy(configPath string, yes bool, in io.Reader, out io.Writer) error {
	s, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := source.Verify(s.SourceDir, s.Runtime); err != nil {
		return err
	}

	printPlan(out, s)
	if !yes && !confirm(in, out, "Proceed with deploy?") {
		return fmt.Errorf("deploy aborted")
	}

	ctx, cancel := context.WithTimeout(context.Background(), deployTimeout)
	defer cancel()

	return deploy(ctx, s, out)
}

// deploy packages the source and rolls it out. Shared with the watch
// command, which skips the plan/confirmation steps.
func deploy(ctx context.Context, s *config.Settings, out io.Writer, clientOpts ...option.ClientOption) error {
	archive, err := source.Archive(s.SourceDir)
	if err != nil {
		return err
	}

	client, err := gcf.NewClient(ctx, clientOpts...)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Deploying %s (%d byte archive)...\n", s.Name, len(archive))
	res, err := client.Deploy(ctx, s, archive)
	if err != nil {
		return err
	}

	if res.Created {
		fmt.Fprintf(out, "Created %s\n", s.Name)
	} else {
		fmt.Fprintf(out, "Updated %s\n", s.Name)
	}
	fmt.Fprintf(out, "Endpoint: %s\n", res.URL)
	return nil
}

// printPlan shows what the deploy will do before asking for confirmation.
func printPlan(out io.Writer, s *config.Settings) {
	fmt.Fprintln(out, "Deployment plan:")
	fmt.Fprintf(out, "  function:     %s\n", s.Name)
	fmt.Fprintf(out, "  project:      %s\n", s.Project)
	fmt.Fprintf(out, "  region:       %s\n", s.Region)
	fmt.Fprintf(out, "  runtime:      %s\n", s.Runtime)
	fmt.Fprintf(out, "  entry point:  %s\n", s.EntryPoint)
	fmt.Fprintf(out, "  source:       %s\n", s.SourceDir)
	fmt.Fprintf(out, "  memory:       %s\n", s.Memory)
	fmt.Fprintf(out, "  timeout:      %s\n", s.Timeout)
	fmt.Fprintf(out, "  access:       %s\n", s.Access)
}
