// Package exporter republishes vehicle-cloud snapshots as Prometheus metrics.
//
// A fetch-and-publish cycle asks the vehicle client to refresh one car,
// flattens the cached snapshots through a static mapping table and writes
// every present value into the Registry, labeled by VIN. Absent fields leave
// the previous value in place, and a failed refresh writes nothing.
package exporter

import (
	"context"
	"fmt"
	"time"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/polestar-exporter/internal/pkg/metrics"
	"github.com/autopeer-io/polestar-exporter/internal/polestar"
	"github.com/autopeer-io/polestar-exporter/pkg/log"
)

// VehicleClient is the vehicle cloud as seen by the exporter.
type VehicleClient interface {
	Init(ctx context.Context) error
	Initialized() bool
	Refresh(ctx context.Context, vin string) error
	VehicleInfo(vin string) (*polestar.VehicleInfo, bool)
	Telemetry(vin string) (*polestar.Telemetry, bool)
}

var _ VehicleClient = (*polestar.Client)(nil)

// SnapshotSink receives every successfully published snapshot.
type SnapshotSink interface {
	Offer(s *Snapshot)
}

// Snapshot is the flattened view of one vehicle after a successful refresh.
type Snapshot struct {
	VIN     string
	Time    time.Time
	Samples []Sample
	Records []Record
}

type Exporter struct {
	client   VehicleClient
	registry *Registry
	vins     []string
	sink     SnapshotSink
	clock    clock.PassiveClock
}

// FetchAndPublish refreshes vin and writes the result into the registry.
// Errors from the client are returned unchanged and leave the registry
// untouched, as does a context that ended while the refresh was running.
func (e *Exporter) FetchAndPublish(ctx context.Context, vin string) (*Snapshot, error) {
	if err := e.client.Refresh(ctx, vin); err != nil {
		return nil, err
	}
	// An abandoned cycle must not write after its deadline.
	if err := ctx.Err(); err != nil {
		return nil, context.Cause(ctx)
	}

	info, _ := e.client.VehicleInfo(vin)
	telemetry, _ := e.client.Telemetry(vin)
	samples, records := Flatten(info, telemetry)

	if err := e.registry.Publish(vin, samples, records); err != nil {
		return nil, err
	}

	return &Snapshot{
		VIN:     vin,
		Time:    e.clock.Now(),
		Samples: samples,
		Records: records,
	}, nil
}

// UpdateAll runs FetchAndPublish for every configured VIN in turn. A failing
// vehicle does not stop the others; all failures are returned together.
func (e *Exporter) UpdateAll(ctx context.Context) error {
	var errs []error
	for _, vin := range e.vins {
		if ctx.Err() != nil {
			errs = append(errs, context.Cause(ctx))
			break
		}

		logger := log.WithValues(VINLabel, vin)
		snapshot, err := e.FetchAndPublish(log.NewContext(ctx, logger), vin)
		if err != nil {
			if ctx.Err() == nil {
				metrics.VehicleUp.WithLabelValues(vin).Set(0)
			}
			errs = append(errs, fmt.Errorf("vehicle %s: %w", vin, err))
			continue
		}

		metrics.VehicleUp.WithLabelValues(vin).Set(1)
		metrics.LastSuccessTimestamp.WithLabelValues(vin).Set(float64(snapshot.Time.Unix()))
		logger.Debug("Published vehicle snapshot", "gauges", len(snapshot.Samples), "records", len(snapshot.Records))

		if e.sink != nil {
			e.sink.Offer(snapshot)
		}
	}
	return utilerrors.NewAggregate(errs)
}

// Ready reports whether the vehicle client finished its initial login.
func (e *Exporter) Ready() bool {
	return e.client.Initialized()
}

// Registry returns the registry the exporter writes to.
func (e *Exporter) Registry() *Registry {
	return e.registry
}

// VINs returns the vehicles exported, in refresh order.
func (e *Exporter) VINs() []string {
	return e.vins
}
