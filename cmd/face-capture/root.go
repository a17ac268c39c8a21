package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	facecapture "github.com/menta2k/face-capture"
	"github.com/menta2k/face-capture/internal/config"
	"github.com/menta2k/face-capture/internal/logging"
	"github.com/menta2k/face-capture/internal/utils"
)

// globalOptions are the flags shared by every subcommand
type globalOptions struct {
	ConfigPath string
	EnvFile    string
	Backend    string
	URL        string
	Model      string
	LogLevel   string
	Verbose    bool
}

var (
	opts globalOptions

	// cfg is the effective configuration: file, then environment, then flags
	cfg *config.Config
	log *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:     "face-capture",
	Short:   "Capture readiness evaluation for live face capture",
	Version: facecapture.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = loadConfig(cmd)
		if err != nil {
			return err
		}

		log, err = logging.New(cfg.Log.ToLogging())
		if err != nil {
			return fmt.Errorf("failed to set up logging: %w", err)
		}
		return nil
	},
	SilenceUsage: true,
}

// Execute runs the root command until it finishes or the process is interrupted
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file (default "+config.GetConfigPath()+")")
	pf.StringVar(&opts.EnvFile, "env-file", "", "env file with FACE_CAPTURE_* overrides (default .env if present)")
	pf.StringVar(&opts.Backend, "backend", "", "face detector backend: ollama|llamacpp|ws")
	pf.StringVar(&opts.URL, "url", "", "backend server URL")
	pf.StringVar(&opts.Model, "model", "", "vision model name")
	pf.StringVar(&opts.LogLevel, "log-level", "", "log level: error|warn|info|debug")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "shorthand for --log-level debug")
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := opts.ConfigPath
	if path == "" {
		path = config.GetConfigPath()
	}

	c := config.Default()
	if utils.FileExists(path) {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		c = loaded
	} else if opts.ConfigPath != "" {
		return nil, fmt.Errorf("config file %s not found", path)
	}

	var envFiles []string
	if opts.EnvFile != "" {
		envFiles = append(envFiles, opts.EnvFile)
	}
	if err := c.LoadEnv(envFiles...); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("backend") {
		c.Backend.Kind = opts.Backend
	}
	if flags.Changed("url") {
		c.Backend.URL = opts.URL
	}
	if flags.Changed("model") {
		c.Backend.Model = opts.Model
	}
	if flags.Changed("log-level") {
		c.Log.Level = opts.LogLevel
	}
	if opts.Verbose {
		c.Log.Level = "debug"
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}
