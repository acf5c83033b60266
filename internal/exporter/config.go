package exporter

import (
	"errors"

	"k8s.io/utils/clock"
)

type Config struct {
	Client VehicleClient
	VINs   []string

	// Registry defaults to a fresh registry without runtime collectors.
	Registry *Registry
	// Sink is optional.
	Sink SnapshotSink
	// Clock stamps snapshots; defaults to the wall clock.
	Clock clock.PassiveClock
}

func (cfg *Config) NewExporter() (*Exporter, error) {
	if cfg.Client == nil {
		return nil, errors.New("exporter: vehicle client is required")
	}
	if len(cfg.VINs) == 0 {
		return nil, errors.New("exporter: at least one VIN is required")
	}

	e := &Exporter{
		client:   cfg.Client,
		registry: cfg.Registry,
		vins:     cfg.VINs,
		sink:     cfg.Sink,
		clock:    cfg.Clock,
	}
	if e.registry == nil {
		e.registry = NewRegistry()
	}
	if e.clock == nil {
		e.clock = clock.RealClock{}
	}
	return e, nil
}
