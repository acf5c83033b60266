package exporter

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/polestar-exporter/internal/pkg/metrics"
	"github.com/autopeer-io/polestar-exporter/internal/polestar"
)

func gauge(t *testing.T, r *Registry, name, vin string) float64 {
	t.Helper()
	g, ok := r.gauges[name]
	require.True(t, ok, "unknown gauge %s", name)
	return testutil.ToFloat64(g.WithLabelValues(vin))
}

func TestFetchAndPublishConvertsOdometerToKilometers(t *testing.T) {
	client := newFakeClient()
	client.stage(vinA, fullInfo(vinA), fullTelemetry())
	e := newTestExporter(t, client, vinA)

	_, err := e.FetchAndPublish(t.Context(), vinA)
	require.NoError(t, err)

	assert.Equal(t, 12.345, gauge(t, e.registry, "odometer_km", vinA))
	assert.Equal(t, 660.0, gauge(t, e.registry, "torque_nm", vinA))
	assert.Equal(t, 324.0, gauge(t, e.registry, "battery_cells", vinA))
	assert.Equal(t, 18.5, gauge(t, e.registry, "energy_consumption_kwh_per_100km", vinA))
	// Zero is a value, not an absent field.
	assert.Equal(t, 0.0, gauge(t, e.registry, "charging_power_watts", vinA))
	assert.Equal(t, 1, testutil.CollectAndCount(e.registry.gauges["charging_power_watts"]))
}

func TestFetchAndPublishRetainsAbsentFields(t *testing.T) {
	client := newFakeClient()
	client.stage(vinA, fullInfo(vinA), fullTelemetry())
	e := newTestExporter(t, client, vinA)

	_, err := e.FetchAndPublish(t.Context(), vinA)
	require.NoError(t, err)

	partial := fullTelemetry()
	partial.Battery.ChargeLevelPercentage = nil
	partial.Odometer = nil
	partial.Health.DaysToService = ptr(150.0)
	client.stage(vinA, fullInfo(vinA), partial)

	_, err = e.FetchAndPublish(t.Context(), vinA)
	require.NoError(t, err)

	assert.Equal(t, 80.0, gauge(t, e.registry, "battery_charge_level_percentage", vinA))
	assert.Equal(t, 12.345, gauge(t, e.registry, "odometer_km", vinA))
	assert.Equal(t, 150.0, gauge(t, e.registry, "days_to_service", vinA))
}

func TestFetchAndPublishBatteryBlockAppears(t *testing.T) {
	client := newFakeClient()
	withoutBattery := fullTelemetry()
	withoutBattery.Battery = nil
	client.stage(vinA, fullInfo(vinA), withoutBattery)
	e := newTestExporter(t, client, vinA)

	_, err := e.FetchAndPublish(t.Context(), vinA)
	require.NoError(t, err)
	for _, f := range batteryGauges {
		assert.Zero(t, testutil.CollectAndCount(e.registry.gauges[f.Name]), f.Name)
	}
	assert.Zero(t, testutil.CollectAndCount(e.registry.infos["charging_status_info"]))

	client.stage(vinA, fullInfo(vinA), fullTelemetry())
	_, err = e.FetchAndPublish(t.Context(), vinA)
	require.NoError(t, err)
	for _, f := range batteryGauges {
		assert.Equal(t, 1, testutil.CollectAndCount(e.registry.gauges[f.Name]), f.Name)
	}
	assert.Equal(t, 80.0, gauge(t, e.registry, "battery_charge_level_percentage", vinA))
	assert.Equal(t, 320.0, gauge(t, e.registry, "estimated_range_km", vinA))
}

func TestFetchAndPublishErrorLeavesRegistryUnchanged(t *testing.T) {
	client := newFakeClient()
	client.stage(vinA, fullInfo(vinA), fullTelemetry())
	e := newTestExporter(t, client, vinA)

	_, err := e.FetchAndPublish(t.Context(), vinA)
	require.NoError(t, err)
	before := expose(t, e.registry)

	changed := fullTelemetry()
	changed.Odometer.OdometerMeters = ptr(99999.0)
	client.stage(vinA, fullInfo(vinA), changed)
	client.fail(vinA, polestar.ErrUnauthorized)

	_, err = e.FetchAndPublish(t.Context(), vinA)
	require.ErrorIs(t, err, polestar.ErrUnauthorized)
	assert.Equal(t, before, expose(t, e.registry))
}

func TestFetchAndPublishAfterDeadlineWritesNothing(t *testing.T) {
	client := newFakeClient()
	client.stage(vinA, fullInfo(vinA), fullTelemetry())
	e := newTestExporter(t, client, vinA)

	errDeadline := errors.New("cycle deadline")
	ctx, cancel := context.WithCancelCause(t.Context())
	cancel(errDeadline)

	_, err := e.FetchAndPublish(ctx, vinA)
	require.ErrorIs(t, err, errDeadline)
	assert.Zero(t, testutil.CollectAndCount(e.registry.gauges["odometer_km"]))
}

func TestFetchAndPublishReplacesInfoRecords(t *testing.T) {
	client := newFakeClient()
	client.stage(vinA, fullInfo(vinA), fullTelemetry())
	e := newTestExporter(t, client, vinA)

	_, err := e.FetchAndPublish(t.Context(), vinA)
	require.NoError(t, err)

	charging := fullTelemetry()
	charging.Battery.ChargingStatus = ptr("CHARGING_STATUS_CHARGING")
	charging.Battery.ChargerConnectionStatus = nil
	client.stage(vinA, fullInfo(vinA), charging)
	_, err = e.FetchAndPublish(t.Context(), vinA)
	require.NoError(t, err)

	expected := `
# HELP polestar_charging_status_info Vehicle charging status information
# TYPE polestar_charging_status_info gauge
polestar_charging_status_info{status="CHARGING_STATUS_CHARGING",vin="YSMYKEAE7RB000001"} 1
`
	require.NoError(t, testutil.GatherAndCompare(e.registry.Gatherer(), strings.NewReader(expected), "polestar_charging_status_info"))

	// An absent status still replaces the record, with an empty value.
	connection := e.registry.infos["connection_status_info"]
	require.Equal(t, 1, testutil.CollectAndCount(connection))
	assert.Equal(t, 1.0, testutil.ToFloat64(connection.With(prometheus.Labels{VINLabel: vinA, "status": ""})))
}

func TestFetchAndPublishSoftwareInfoOnlyWithVersion(t *testing.T) {
	client := newFakeClient()
	info := fullInfo(vinA)
	info.SoftwareVersion = nil
	info.ModelName = nil
	client.stage(vinA, info, nil)
	e := newTestExporter(t, client, vinA)

	snapshot, err := e.FetchAndPublish(t.Context(), vinA)
	require.NoError(t, err)
	assert.Equal(t, vinA, snapshot.VIN)

	assert.Zero(t, testutil.CollectAndCount(e.registry.infos["software_info"]))
	vehicle := e.registry.infos["vehicle_info"]
	require.Equal(t, 1, testutil.CollectAndCount(vehicle))
	assert.Equal(t, 1.0, testutil.ToFloat64(vehicle.With(prometheus.Labels{
		VINLabel:                vinA,
		"registration_no":       "ABC123",
		"model_name":            "",
		"registration_date":     "2024-03-01",
		"factory_complete_date": "2024-01-15",
	})))
}

func TestUpdateAllLabelsEachVehicle(t *testing.T) {
	client := newFakeClient()
	client.stage(vinA, fullInfo(vinA), fullTelemetry())
	other := fullTelemetry()
	other.Odometer.OdometerMeters = ptr(1000.0)
	client.stage(vinB, fullInfo(vinB), other)
	sink := &sliceSink{}

	cfg := &Config{Client: client, VINs: []string{vinA, vinB}, Sink: sink}
	e, err := cfg.NewExporter()
	require.NoError(t, err)

	require.NoError(t, e.UpdateAll(t.Context()))
	assert.Equal(t, 12.345, gauge(t, e.registry, "odometer_km", vinA))
	assert.Equal(t, 1.0, gauge(t, e.registry, "odometer_km", vinB))
	assert.Len(t, sink.snapshots, 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.VehicleUp.WithLabelValues(vinB)))
}

func TestUpdateAllContinuesPastFailingVehicle(t *testing.T) {
	client := newFakeClient()
	client.fail(vinA, polestar.ErrVehicleNotFound)
	client.stage(vinB, fullInfo(vinB), fullTelemetry())
	sink := &sliceSink{}

	cfg := &Config{Client: client, VINs: []string{vinA, vinB}, Sink: sink}
	e, err := cfg.NewExporter()
	require.NoError(t, err)

	err = e.UpdateAll(t.Context())
	require.ErrorIs(t, err, polestar.ErrVehicleNotFound)
	assert.Contains(t, err.Error(), vinA)

	assert.Equal(t, 12.345, gauge(t, e.registry, "odometer_km", vinB))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.VehicleUp.WithLabelValues(vinA)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.VehicleUp.WithLabelValues(vinB)))
	require.Len(t, sink.snapshots, 1)
	assert.Equal(t, vinB, sink.snapshots[0].VIN)
}

func TestNewExporterValidation(t *testing.T) {
	_, err := (&Config{VINs: []string{vinA}}).NewExporter()
	assert.Error(t, err)

	_, err = (&Config{Client: newFakeClient()}).NewExporter()
	assert.Error(t, err)
}
