package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	a := &app{out: os.Stdout}
	err := NewRootCommand(a).ExecuteContext(ctx)
	a.close()
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app lazily builds the service from the environment so that --help and
// flag errors never open connections.
type app struct {
	out     io.Writer
	output  string
	prefix  string
	verbose bool

	service simplemedia.Service
	runtime *config.Runtime
}

func (a *app) svc(ctx context.Context) (simplemedia.Service, error) {
	if a.service != nil {
		return a.service, nil
	}

	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(config.WithEnv(a.prefix))
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if a.verbose {
		logger.Debug("configuration loaded",
			"database", cfg.DatabaseType,
			"storage", cfg.Storage.Type,
			"transcode", cfg.Transcode.Enabled,
			"provider", cfg.Variants.DefaultProvider,
		)
	}

	rt, err := cfg.Build(ctx, config.BuildOptions{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("build service: %w", err)
	}
	a.runtime = rt
	a.service = rt.Service
	return a.service, nil
}

func (a *app) close() {
	if a.runtime != nil {
		_ = a.runtime.Close()
		a.runtime = nil
	}
}

func (a *app) print(v any) error {
	switch a.output {
	case "yaml":
		enc := yaml.NewEncoder(a.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "json", "":
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("unsupported output format %q", a.output)
	}
}

func NewRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mediactl",
		Short: "Manage spaces and media items",
		Long: `mediactl drives the simple-media service directly.

Storage, database and providers are configured from the same environment
variables as the server (DATABASE_URL, STORAGE_URL, OPENAI_API_KEY, ...).`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&a.output, "output", "o", "json", "output format: json or yaml")
	rootCmd.PersistentFlags().StringVar(&a.prefix, "env-prefix", "", "prefix for configuration environment variables")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(NewSpaceCommand(a))
	rootCmd.AddCommand(NewIngestCommand(a))
	rootCmd.AddCommand(NewResolveCommand(a))
	rootCmd.AddCommand(NewRetireCommand(a))
	rootCmd.AddCommand(NewTranscodeCommand(a))
	rootCmd.AddCommand(NewVariantsCommand(a))

	return rootCmd
}
