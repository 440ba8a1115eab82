package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"grove/internal/config"
	"grove/internal/graph"
	"grove/internal/template"
)

// Exit codes for CLI commands.
const (
	ExitCodeSuccess = 0
	// ExitCodeConfigError indicates a malformed or invalid configuration.
	ExitCodeConfigError = 1
	// ExitCodeTaskError indicates the task graph finished with a failure.
	ExitCodeTaskError = 2
	// ExitCodeError indicates any other failure.
	ExitCodeError = 3
)

// rootCmd is the entry point when grove is invoked without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "grove",
	Short: "Resolve and run a grove project's configuration and task graphs",
	Long: `grove parses a project's declarative module configuration, resolves it
into a dependency graph, and schedules the derived build/deploy/test/run
tasks against whatever providers are configured — demonstrating the
execution core without re-implementing the command-line surface, dashboard,
or provider plugins that sit outside it.`,
	SilenceUsage: true,
}

// SetVersion sets the version reported by `grove version`.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the root command and exits the process with a status code
// derived from the error it returns.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "grove version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

func getExitCode(err error) int {
	var cfgErr *config.ConfigError
	if errors.As(err, &cfgErr) {
		return ExitCodeConfigError
	}
	var parseErr *config.ParseError
	if errors.As(err, &parseErr) {
		return ExitCodeConfigError
	}
	var cycleErr *graph.CircularDependencyError
	if errors.As(err, &cycleErr) {
		return ExitCodeConfigError
	}
	var tmplErr *template.CircularReferenceError
	if errors.As(err, &tmplErr) {
		return ExitCodeConfigError
	}

	var taskErr *taskGraphError
	if errors.As(err, &taskErr) {
		return ExitCodeTaskError
	}

	return ExitCodeError
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newGraphCmd())
	rootCmd.AddCommand(newRunCmd())
}
