// Package cmd provides the CLI commands for CaseGrounds.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/casegrounds/casegrounds/internal/app"
	"github.com/casegrounds/casegrounds/internal/config"
	"github.com/casegrounds/casegrounds/internal/logging"
	"github.com/casegrounds/casegrounds/internal/profiling"
	"github.com/casegrounds/casegrounds/pkg/version"
)

var (
	debugMode      bool
	loggingCleanup func()

	profileCPU string
	profileMem string
	cpuStop    func()
)

// NewRootCmd creates the root command for the casegrounds CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "casegrounds",
		Short: "Grounded legal research over per-case document sets",
		Long: `CaseGrounds indexes a case's documents for hybrid keyword + semantic
search, snapshots whitelisted legal web sources, and answers questions
with citations that are validated against the underlying evidence.

Configuration is read from .casegrounds.yaml in the working directory,
~/.config/casegrounds/config.yaml, and environment variables.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("casegrounds version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.casegrounds/logs/")
	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write a CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write a heap profile to file on exit")
	cmd.PersistentPreRunE = startDiagnostics
	cmd.PersistentPostRunE = stopDiagnostics

	cmd.AddCommand(newCasesCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newDocsCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newFetchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func startDiagnostics(_ *cobra.Command, _ []string) error {
	if debugMode {
		logger, cleanup, err := logging.Setup(logging.DebugConfig())
		if err != nil {
			return fmt.Errorf("failed to setup debug logging: %w", err)
		}
		loggingCleanup = cleanup
		slog.SetDefault(logger)
		slog.Info("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	}

	if profileCPU != "" {
		stop, err := profiling.StartCPU(profileCPU)
		if err != nil {
			return err
		}
		cpuStop = stop
	}
	return nil
}

func stopDiagnostics(_ *cobra.Command, _ []string) error {
	if cpuStop != nil {
		cpuStop()
		cpuStop = nil
	}
	if profileMem != "" {
		if err := profiling.WriteHeap(profileMem); err != nil {
			return err
		}
	}
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// loadProviders loads configuration and wires the application. The caller
// owns the returned providers and must Close them.
func loadProviders() (*app.Providers, error) {
	cfg, err := config.Load(".")
	if err != nil {
		return nil, err
	}
	return app.NewProviders(cfg, slog.Default())
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
