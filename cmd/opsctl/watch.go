package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/customerapi/opsctl/internal/config"
	"github.com/customerapi/opsctl/internal/source"
)

func newWatchCmd() *cobra.Command {
	var configPath string
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Redeploy automatically when the source tree changes",
		Long: `Watch monitors the config file's source directory and redeploys the
function on each change, without the interactive confirmation. Rapid
changes are debounced into a single deploy.

Examples:
    opsctl watch
    opsctl watch --debounce 2s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(configPath, debounce)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the settings file")
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "Debounce duration for rapid changes")

	return cmd
}

func runWatch(configPath string, debounce time.Duration) error {
	s, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := source.Verify(s.SourceDir, s.Runtime); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	if err := addDirRecursive(watcher, s.SourceDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.SourceDir, err)
	}
	fmt.Printf("Watching: %s\n", s.SourceDir)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	fmt.Println("Running initial deploy...")
	watchDeploy(s)

	var debounceTimer *time.Timer
	redeployChan := make(chan struct{}, 1)

	fmt.Println("\nWatching for changes... (Ctrl+C to stop)")

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			// Editors churn out temp and hidden files; ignore them.
			if strings.HasPrefix(filepath.Base(event.Name), ".") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			// Debounce: reset timer on each change
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounce, func() {
				select {
				case redeployChan <- struct{}{}:
				default:
				}
			})

		case <-redeployChan:
			fmt.Printf("\n[%s] Change detected, redeploying...\n", time.Now().Format("15:04:05"))
			watchDeploy(s)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "Watch error: %v\n", err)

		case <-sigChan:
			fmt.Println("\nStopping watch...")
			return nil
		}
	}
}

// watchDeploy runs one deploy, reporting failure without stopping the watch.
func watchDeploy(s *config.Settings) {
	ctx, cancel := context.WithTimeout(context.Background(), deployTimeout)
	defer cancel()

	if err := deploy(ctx, s, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Deploy failed: %v\n", err)
	}
}

// addDirRecursive adds a directory and all subdirectories to the watcher.
func addDirRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			// Skip hidden and dependency directories
			base := filepath.Base(path)
			if path != dir && (strings.HasPrefix(base, ".") || base == "node_modules" || base == "__pycache__") {
				return filepath.SkipDir
			}
			return watcher.Add(path)
		}
		return nil
	})
}
