package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/workprogress/internal/app"
	"github.com/JakeFAU/workprogress/internal/config"
	"github.com/JakeFAU/workprogress/internal/runner"
)

// application is the part of *app.App the commands use.
type application interface {
	RunPlan(ctx context.Context, plan runner.Plan) (uuid.UUID, error)
	Serve(ctx context.Context) error
	Close(ctx context.Context) error
}

// newApp is a variable so tests can inject a fake application.
var newApp = func(ctx context.Context, cfg *config.Config) (application, error) {
	return app.Build(ctx, cfg)
}

type configKey struct{}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "progressd",
		Short: "Run monitored batch plans and report their progress.",
		Long: `progressd executes a plan of nested steps against a progress monitor
tree and forwards every monitor event to structured logs, Prometheus,
an in-memory run store and optionally Pub/Sub.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), configKey{}, &cfg))
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML/JSON/TOML config file")

	cmd.AddCommand(newRunCmd(), newServeCmd())
	return cmd
}

func newRunCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the configured plan once and exit.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := configFrom(cmd.Context())
			if cfg.Plan.Name == "" {
				return errors.New("no plan configured")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			a, err := newApp(ctx, cfg)
			if err != nil {
				return fmt.Errorf("initialize application: %w", err)
			}
			runID, runErr := a.RunPlan(ctx, cfg.Plan)

			closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout())
			defer cancel()
			closeErr := a.Close(closeCtx)

			if runID != uuid.Nil {
				fmt.Fprintf(cmd.OutOrStdout(), "run %s\n", runID)
			}
			return errors.Join(runErr, closeErr)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "cancel the plan after this duration (0 disables)")
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the progress API and metrics, running the configured plan if any.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := configFrom(cmd.Context())
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("initialize application: %w", err)
			}
			return a.Serve(cmd.Context())
		},
	}
}

func configFrom(ctx context.Context) *config.Config {
	if cfg, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return cfg
	}
	return &config.Config{}
}
