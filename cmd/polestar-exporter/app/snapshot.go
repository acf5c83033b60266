package app

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/gosuri/uitable"
	dto "github.com/prometheus/client_model/go"
	"github.com/spf13/cobra"

	"github.com/autopeer-io/polestar-exporter/cmd/polestar-exporter/app/options"
	"github.com/autopeer-io/polestar-exporter/internal/exporter"
	"github.com/autopeer-io/polestar-exporter/pkg/log"
)

func newSnapshotCommand(ctx context.Context, opts *options.ExporterOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Log in, refresh every vehicle once and print the resulting metrics",
		Long: `Runs a single fetch-and-publish cycle for every configured VIN against a
private registry and prints the metrics as a table. Nothing is served. Useful
to check credentials and VINs before deploying the exporter.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshot(ctx, opts, cmd.OutOrStdout())
		},
	}
}

func runSnapshot(ctx context.Context, opts *options.ExporterOptions, out io.Writer) error {
	defer func() { _ = log.Sync() }()

	client, err := exporter.NewVehicleClient(opts.PolestarOptions)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opts.RefreshOptions.Timeout())
	defer cancel()

	if err := client.Init(ctx); err != nil {
		log.Error(err, "Failed to initialize vehicle client")
		return err
	}

	cfg := &exporter.Config{Client: client, VINs: opts.PolestarOptions.VINs}
	e, err := cfg.NewExporter()
	if err != nil {
		return err
	}
	if err := e.UpdateAll(ctx); err != nil {
		log.Error(err, "Failed to update vehicle metrics")
		return err
	}

	families, err := e.Registry().Gatherer().Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	writeTable(out, families)
	return nil
}

func writeTable(out io.Writer, families []*dto.MetricFamily) {
	table := uitable.New()
	table.MaxColWidth = 80
	table.Wrap = true
	table.AddRow("METRIC", "VIN", "LABELS", "VALUE")

	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			vin, labels := splitLabels(m.GetLabel())
			table.AddRow(mf.GetName(), vin, labels, strconv.FormatFloat(m.GetGauge().GetValue(), 'f', -1, 64))
		}
	}
	fmt.Fprintln(out, table)
}

func splitLabels(pairs []*dto.LabelPair) (string, string) {
	var vin string
	var rest []string
	for _, p := range pairs {
		if p.GetName() == exporter.VINLabel {
			vin = p.GetValue()
			continue
		}
		rest = append(rest, fmt.Sprintf("%s=%q", p.GetName(), p.GetValue()))
	}
	sort.Strings(rest)
	return vin, strings.Join(rest, " ")
}
