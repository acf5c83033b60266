package exporter

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/autopeer-io/polestar-exporter/internal/exporter/refresh"
	"github.com/autopeer-io/polestar-exporter/internal/polestar"
	"github.com/autopeer-io/polestar-exporter/pkg/log"
	"github.com/autopeer-io/polestar-exporter/pkg/mqtt"
	"github.com/autopeer-io/polestar-exporter/pkg/mqtt/topic"
	"github.com/autopeer-io/polestar-exporter/pkg/options"
)

// DaemonConfig wires a complete exporter process from its option groups.
type DaemonConfig struct {
	HttpOptions     *options.HttpOptions
	PolestarOptions *options.PolestarOptions
	RefreshOptions  *options.RefreshOptions
	MqttOptions     *options.MqttOptions
}

// Daemon runs the exposition server, the refresh loop and, when configured,
// the MQTT mirror.
type Daemon struct {
	client   VehicleClient
	exporter *Exporter
	server   *Server
	loop     *refresh.Loop
	mirror   *Mirror
}

// NewVehicleClient builds the vehicle-cloud client from its options.
func NewVehicleClient(o *options.PolestarOptions) (*polestar.Client, error) {
	return polestar.NewClient(&polestar.Config{
		Username:       o.Username,
		Password:       o.Password,
		VINs:           o.VINs,
		IssuerURL:      o.IssuerURL,
		APIURL:         o.APIURL,
		ClientID:       o.ClientID,
		RedirectURL:    o.RedirectURL,
		RequestTimeout: o.RequestTimeout,
	})
}

func (cfg *DaemonConfig) NewDaemon() (*Daemon, error) {
	client, err := NewVehicleClient(cfg.PolestarOptions)
	if err != nil {
		return nil, err
	}

	registry := NewRegistry()
	if err := registry.RegisterRuntimeCollectors(); err != nil {
		return nil, err
	}

	d := &Daemon{client: client}

	exporterCfg := &Config{
		Client:   client,
		VINs:     cfg.PolestarOptions.VINs,
		Registry: registry,
	}
	if cfg.MqttOptions.Enabled() {
		if d.mirror, err = cfg.newMirror(); err != nil {
			return nil, err
		}
		exporterCfg.Sink = d.mirror
	}

	if d.exporter, err = exporterCfg.NewExporter(); err != nil {
		return nil, err
	}
	d.loop = refresh.NewLoop(d.exporter, cfg.RefreshOptions.Interval, refresh.WithTimeout(cfg.RefreshOptions.Timeout()))
	d.server = NewServer(cfg.HttpOptions, registry, d.exporter.Ready)
	return d, nil
}

func (cfg *DaemonConfig) newMirror() (*Mirror, error) {
	topics := topic.NewTopicBuilder(cfg.MqttOptions.TopicRoot)

	clientCfg := cfg.MqttOptions.ToClientConfig()
	if clientCfg.ClientID == "" {
		clientCfg.ClientID = "polestar-exporter-" + cfg.PolestarOptions.VINs[0]
	}
	SetStatusWill(clientCfg, topics)

	client, err := mqtt.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create mqtt client: %w", err)
	}

	return NewMirror(MirrorConfig{
		Client:    client,
		Topics:    topics,
		QoS:       cfg.MqttOptions.QoS,
		Retain:    cfg.MqttOptions.Retain,
		QueueSize: cfg.MqttOptions.QueueSize,
	}), nil
}

// Run binds the listener, logs in to the vehicle cloud and then serves until
// ctx is done. A bind or login failure is returned before anything is served.
func (d *Daemon) Run(ctx context.Context) error {
	lis, err := d.server.Listen()
	if err != nil {
		return err
	}

	if err := d.client.Init(ctx); err != nil {
		_ = lis.Close()
		return fmt.Errorf("failed to initialize vehicle client: %w", err)
	}
	log.Info("Vehicle client initialized", "vins", d.exporter.VINs())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.server.Serve(ctx, lis) })
	g.Go(func() error { return d.loop.Run(ctx) })
	if d.mirror != nil {
		g.Go(func() error { return d.mirror.Run(ctx) })
	}

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Polestar exporter stopped")
	return nil
}
