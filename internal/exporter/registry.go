package exporter

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"

	"github.com/autopeer-io/polestar-exporter/internal/pkg/metrics"
)

// Namespace prefixes every vehicle metric.
const Namespace = "polestar"

// VINLabel scopes every vehicle metric to one car.
const VINLabel = "vin"

// Registry holds the latest value of every vehicle metric, one series per VIN.
// Values are never removed while the process runs, except that writing an
// info record replaces the previous record of the same VIN.
type Registry struct {
	registry *prometheus.Registry
	gauges   map[string]*prometheus.GaugeVec
	infos    map[string]*prometheus.GaugeVec
	infoKeys map[string][]string
}

// NewRegistry creates a registry with every vehicle metric declared.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		gauges:   make(map[string]*prometheus.GaugeVec),
		infos:    make(map[string]*prometheus.GaugeVec),
		infoKeys: make(map[string][]string),
	}

	for _, d := range gaugeDescs() {
		g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      d.name,
			Help:      d.help,
		}, []string{VINLabel})
		r.registry.MustRegister(g)
		r.gauges[d.name] = g
	}
	for _, d := range infoDescs() {
		g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      d.name,
			Help:      d.help,
		}, append([]string{VINLabel}, d.keys...))
		r.registry.MustRegister(g)
		r.infos[d.name] = g
		r.infoKeys[d.name] = d.keys
	}
	return r
}

// RegisterRuntimeCollectors adds the exporter self-metrics together with the
// Go, process and build-info collectors.
func (r *Registry) RegisterRuntimeCollectors() error {
	if err := metrics.Register(r.registry); err != nil {
		return fmt.Errorf("register exporter metrics: %w", err)
	}
	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		versioncollector.NewCollector("polestar_exporter"),
	} {
		if err := r.registry.Register(c); err != nil {
			return fmt.Errorf("register runtime collector: %w", err)
		}
	}
	return nil
}

// Gatherer exposes the underlying registry to the exposition handler.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// SetGauge sets the gauge name for vin. Unknown names are an error.
func (r *Registry) SetGauge(name, vin string, value float64) error {
	g, ok := r.gauges[name]
	if !ok {
		return fmt.Errorf("unknown gauge %q", name)
	}
	g.WithLabelValues(vin).Set(value)
	return nil
}

// SetInfo replaces the info record name for vin. Keys missing from labels are
// written as empty strings.
func (r *Registry) SetInfo(name, vin string, labels map[string]string) error {
	g, ok := r.infos[name]
	if !ok {
		return fmt.Errorf("unknown info record %q", name)
	}

	series := prometheus.Labels{VINLabel: vin}
	for _, k := range r.infoKeys[name] {
		series[k] = labels[k]
	}

	g.DeletePartialMatch(prometheus.Labels{VINLabel: vin})
	g.With(series).Set(1)
	return nil
}

// Publish writes every present value of a flattened snapshot.
func (r *Registry) Publish(vin string, samples []Sample, records []Record) error {
	for _, s := range samples {
		if err := r.SetGauge(s.Name, vin, s.Value); err != nil {
			return err
		}
	}
	for _, rec := range records {
		if err := r.SetInfo(rec.Name, vin, rec.Labels); err != nil {
			return err
		}
	}
	return nil
}
