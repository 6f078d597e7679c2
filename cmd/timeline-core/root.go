package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JamesPrial/timeline-core/internal/consistency"
	"github.com/JamesPrial/timeline-core/internal/scan"
	"github.com/JamesPrial/timeline-core/internal/storage"
	"github.com/JamesPrial/timeline-core/pkg/config"
	"github.com/JamesPrial/timeline-core/pkg/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	EnvFile    string

	settings *config.Settings
}

// NewRootCommand creates the root command for the timeline engine CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "timeline-core",
		Short: "Timeline consistency engine",
		Long: `Checks manuscript timelines for characters in two places at once,
impossible travel, out of order timestamps and appearances after death.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return logging.Shutdown()
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before reading TIMELINE_* variables")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewScanCommand(opts))

	return cmd
}

// load reads the dotenv file, the configuration and initializes logging
func (o *RootOptions) load(cmd *cobra.Command) error {
	if o.EnvFile != "" {
		// A missing default .env is normal; an explicit one must exist.
		if err := godotenv.Load(o.EnvFile); err != nil {
			if !errors.Is(err, fs.ErrNotExist) || cmd.Flags().Changed("env-file") {
				return fmt.Errorf("load env file: %w", err)
			}
		}
	}

	var err error
	if o.ConfigPath != "" {
		o.settings, err = config.Load(o.ConfigPath)
	} else {
		o.settings, err = config.LoadFromEnv()
	}
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logging.Initialize(&o.settings.Logging); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	return nil
}

// app is the set of components one command invocation works with
type app struct {
	backend storage.Backend
	service *consistency.Service
	runner  *scan.Runner
}

func (o *RootOptions) open() (*app, error) {
	settings := o.settings
	if settings == nil {
		settings = config.Default()
	}

	backend, err := storage.NewBackend(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage backend: %w", err)
	}

	service := consistency.NewService(backend, settings)
	runner := scan.NewRunner(scan.NewCoordinator(), backend, service, settings.Scan.Workers)
	return &app{backend: backend, service: service, runner: runner}, nil
}

func (a *app) Close() {
	a.runner.Close()
	if err := a.backend.Close(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "close storage:", err)
	}
}
