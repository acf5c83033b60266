package app

import (
	"context"
	"fmt"

	"github.com/prometheus/common/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/autopeer-io/polestar-exporter/cmd/polestar-exporter/app/options"
	"github.com/autopeer-io/polestar-exporter/pkg/log"
)

const (
	commandName = "polestar-exporter"
	commandDesc = `The Polestar exporter periodically reads vehicle telemetry from the
Polestar cloud and serves it as Prometheus metrics, one series per VIN.

Every setting can be given as a flag or through the environment:
EXPORTER_PORT, EXPORTER_BIND_ADDRESS, EXPORTER_INTERVAL (seconds), EXPORTER_USERNAME,
EXPORTER_PASSWORD and EXPORTER_VIN (comma-separated). The POLESTAR_EXPORTER_* names
are accepted as well. Flags take precedence over the environment.`
)

func NewExporterCommand(ctx context.Context) *cobra.Command {
	opts := options.NewExporterOptions()
	cmd := &cobra.Command{
		Use:           commandName,
		Short:         "Export Polestar vehicle telemetry as Prometheus metrics",
		Long:          commandDesc,
		Version:       version.Info(),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return complete(opts, cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(ctx, opts)
		},
	}

	fs := cmd.PersistentFlags()
	for _, f := range opts.Flags().FlagSets {
		fs.AddFlagSet(f)
	}

	cmd.AddCommand(newSnapshotCommand(ctx, opts))
	return cmd
}

// complete merges the environment into opts, starts logging and validates.
// Errors are logged here because main only sees the exit status.
func complete(opts *options.ExporterOptions, cmd *cobra.Command) error {
	envErr := opts.LoadEnv(viper.New(), cmd.Flags())

	log.Init(opts.Log)
	if envErr != nil {
		log.Error(envErr, "Invalid environment configuration")
		return envErr
	}
	if err := opts.Validate(); err != nil {
		log.Error(err, "Missing or invalid configuration")
		return err
	}
	return nil
}

func run(ctx context.Context, opts *options.ExporterOptions) error {
	defer func() { _ = log.Sync() }()

	log.Info("Polestar exporter configured",
		"addr", opts.HttpOptions.Addr,
		"interval", opts.RefreshOptions.Interval,
		"vins", opts.PolestarOptions.VINs,
		"mqtt", opts.MqttOptions.Enabled(),
		"version", version.Version,
	)

	cfg, err := opts.Config()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	daemon, err := cfg.NewDaemon()
	if err != nil {
		log.Error(err, "Failed to create exporter")
		return err
	}

	if err := daemon.Run(ctx); err != nil {
		log.Error(err, "Polestar exporter failed")
		return err
	}
	return nil
}
