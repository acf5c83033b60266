package exporter

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/polestar-exporter/internal/polestar"
)

const (
	vinA = "YSMYKEAE7RB000001"
	vinB = "YSMYKEAE7RB000002"
)

// fakeClient serves canned snapshots. Refresh publishes the staged snapshot
// for a VIN into the cache, or fails without touching it.
type fakeClient struct {
	mu        sync.Mutex
	staged    map[string]stagedSnapshot
	info      map[string]*polestar.VehicleInfo
	telemetry map[string]*polestar.Telemetry
	errs      map[string]error
	ready     bool
}

type stagedSnapshot struct {
	info      *polestar.VehicleInfo
	telemetry *polestar.Telemetry
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		staged:    make(map[string]stagedSnapshot),
		info:      make(map[string]*polestar.VehicleInfo),
		telemetry: make(map[string]*polestar.Telemetry),
		errs:      make(map[string]error),
	}
}

func (f *fakeClient) stage(vin string, info *polestar.VehicleInfo, telemetry *polestar.Telemetry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.staged[vin] = stagedSnapshot{info: info, telemetry: telemetry}
}

func (f *fakeClient) fail(vin string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[vin] = err
}

func (f *fakeClient) Init(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ready = true
	return nil
}

func (f *fakeClient) Initialized() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeClient) Refresh(_ context.Context, vin string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[vin]; err != nil {
		return err
	}
	s := f.staged[vin]
	f.info[vin] = s.info
	f.telemetry[vin] = s.telemetry
	return nil
}

func (f *fakeClient) VehicleInfo(vin string) (*polestar.VehicleInfo, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.info[vin]
	return v, v != nil
}

func (f *fakeClient) Telemetry(vin string) (*polestar.Telemetry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.telemetry[vin]
	return t, t != nil
}

type sliceSink struct {
	mu        sync.Mutex
	snapshots []*Snapshot
}

func (s *sliceSink) Offer(snapshot *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snapshot)
}

func ptr[T any](v T) *T { return &v }

func fullInfo(vin string) *polestar.VehicleInfo {
	return &polestar.VehicleInfo{
		VIN:                      vin,
		RegistrationNo:           ptr("ABC123"),
		ModelName:                ptr("Polestar 2"),
		RegistrationDate:         ptr("2024-03-01"),
		FactoryCompleteDate:      ptr("2024-01-15"),
		SoftwareVersion:          ptr("P3.01"),
		SoftwareVersionTimestamp: ptr("2024-06-01T00:00:00Z"),
		TorqueNm:                 ptr(660.0),
		Battery: &polestar.BatteryInformation{
			CapacityKWh: ptr(78.0),
			Voltage:     ptr(400.0),
			Modules:     ptr(27),
			Cells:       ptr(324),
		},
	}
}

func fullTelemetry() *polestar.Telemetry {
	return &polestar.Telemetry{
		Battery: &polestar.BatteryTelemetry{
			ChargeLevelPercentage:               ptr(80.0),
			ChargingPowerWatts:                  ptr(0.0),
			ChargingCurrentAmps:                 ptr(0.0),
			EstimatedDistanceToEmptyKm:          ptr(320.0),
			EstimatedFullChargeRangeKm:          ptr(400.0),
			AverageEnergyConsumptionKwhPer100Km: ptr(18.5),
			EstimatedChargingTimeToFullMinutes:  ptr(0.0),
			ChargingStatus:                      ptr("CHARGING_STATUS_IDLE"),
			ChargerConnectionStatus:             ptr("CHARGER_CONNECTION_STATUS_DISCONNECTED"),
		},
		Odometer: &polestar.OdometerTelemetry{
			OdometerMeters:        ptr(12345.0),
			TripMeterAutomaticKm:  ptr(12.3),
			TripMeterManualKm:     ptr(456.7),
			AverageSpeedKmPerHour: ptr(42.0),
		},
		Health: &polestar.HealthTelemetry{
			DaysToService:             ptr(200.0),
			DistanceToServiceKm:       ptr(25000.0),
			BrakeFluidLevelWarning:    ptr("BRAKE_FLUID_LEVEL_WARNING_NO_WARNING"),
			EngineCoolantLevelWarning: ptr("ENGINE_COOLANT_LEVEL_WARNING_NO_WARNING"),
			OilLevelWarning:           ptr("OIL_LEVEL_WARNING_NO_WARNING"),
			ServiceWarning:            ptr("SERVICE_WARNING_NO_WARNING"),
		},
	}
}

// expose renders the registry in the text exposition format.
func expose(t *testing.T, r *Registry) string {
	t.Helper()
	families, err := r.Gatherer().Gather()
	require.NoError(t, err)

	var buf bytes.Buffer
	for _, mf := range families {
		_, err := expfmt.MetricFamilyToText(&buf, mf)
		require.NoError(t, err)
	}
	return buf.String()
}

func newTestExporter(t *testing.T, client VehicleClient, vins ...string) *Exporter {
	t.Helper()
	cfg := &Config{Client: client, VINs: vins}
	e, err := cfg.NewExporter()
	require.NoError(t, err)
	return e
}
