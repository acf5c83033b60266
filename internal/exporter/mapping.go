package exporter

import (
	"github.com/autopeer-io/polestar-exporter/internal/polestar"
)

// gaugeField maps one optional numeric field of T onto a gauge. Value returns
// nil when the field is absent, in which case the gauge is left untouched.
type gaugeField[T any] struct {
	Name  string
	Help  string
	Value func(*T) *float64
}

// infoField maps fields of T onto an info record. Values returns nil when no
// record should be written for this snapshot.
type infoField[T any] struct {
	Name   string
	Help   string
	Keys   []string
	Values func(*T) map[string]string
}

var vehicleGauges = []gaugeField[polestar.VehicleInfo]{
	{"torque_nm", "Vehicle torque in Nm", func(v *polestar.VehicleInfo) *float64 { return v.TorqueNm }},
	{"battery_capacity_kwh", "Battery capacity in kWh", batteryInformation(func(b *polestar.BatteryInformation) *float64 { return b.CapacityKWh })},
	{"battery_voltage", "Battery voltage", batteryInformation(func(b *polestar.BatteryInformation) *float64 { return b.Voltage })},
	{"battery_modules", "Number of battery modules", batteryInformation(func(b *polestar.BatteryInformation) *float64 { return fromInt(b.Modules) })},
	{"battery_cells", "Number of battery cells", batteryInformation(func(b *polestar.BatteryInformation) *float64 { return fromInt(b.Cells) })},
}

var vehicleInfos = []infoField[polestar.VehicleInfo]{
	{
		Name: "vehicle_info",
		Help: "Vehicle information",
		Keys: []string{"registration_no", "model_name", "registration_date", "factory_complete_date"},
		Values: func(v *polestar.VehicleInfo) map[string]string {
			return map[string]string{
				"registration_no":       deref(v.RegistrationNo),
				"model_name":            deref(v.ModelName),
				"registration_date":     deref(v.RegistrationDate),
				"factory_complete_date": deref(v.FactoryCompleteDate),
			}
		},
	},
	{
		Name: "software_info",
		Help: "Vehicle software information",
		Keys: []string{"version", "update_timestamp"},
		Values: func(v *polestar.VehicleInfo) map[string]string {
			if v.SoftwareVersion == nil {
				return nil
			}
			return map[string]string{
				"version":          *v.SoftwareVersion,
				"update_timestamp": deref(v.SoftwareVersionTimestamp),
			}
		},
	},
}

var batteryGauges = []gaugeField[polestar.BatteryTelemetry]{
	{"battery_charge_level_percentage", "Battery charge level as a percentage", func(b *polestar.BatteryTelemetry) *float64 { return b.ChargeLevelPercentage }},
	{"charging_power_watts", "Current charging power in watts", func(b *polestar.BatteryTelemetry) *float64 { return b.ChargingPowerWatts }},
	{"charging_current_amps", "Current charging current in amps", func(b *polestar.BatteryTelemetry) *float64 { return b.ChargingCurrentAmps }},
	{"estimated_range_km", "Estimated range in kilometers", func(b *polestar.BatteryTelemetry) *float64 { return b.EstimatedDistanceToEmptyKm }},
	{"estimated_full_range_km", "Estimated range at 100% in kilometers", func(b *polestar.BatteryTelemetry) *float64 { return b.EstimatedFullChargeRangeKm }},
	{"energy_consumption_kwh_per_100km", "Average energy consumption in kWh/100km", func(b *polestar.BatteryTelemetry) *float64 { return b.AverageEnergyConsumptionKwhPer100Km }},
	{"charging_time_remaining_minutes", "Estimated time to full charge in minutes", func(b *polestar.BatteryTelemetry) *float64 { return b.EstimatedChargingTimeToFullMinutes }},
}

var batteryInfos = []infoField[polestar.BatteryTelemetry]{
	{
		Name: "charging_status_info",
		Help: "Vehicle charging status information",
		Keys: []string{"status"},
		Values: func(b *polestar.BatteryTelemetry) map[string]string {
			return map[string]string{"status": deref(b.ChargingStatus)}
		},
	},
	{
		Name: "connection_status_info",
		Help: "Charger connection status",
		Keys: []string{"status"},
		Values: func(b *polestar.BatteryTelemetry) map[string]string {
			return map[string]string{"status": deref(b.ChargerConnectionStatus)}
		},
	},
}

var odometerGauges = []gaugeField[polestar.OdometerTelemetry]{
	// Upstream reports meters.
	{"odometer_km", "Vehicle odometer in kilometers", func(o *polestar.OdometerTelemetry) *float64 { return divide(o.OdometerMeters, 1000) }},
	{"trip_meter_automatic_km", "Trip meter automatic in kilometers", func(o *polestar.OdometerTelemetry) *float64 { return o.TripMeterAutomaticKm }},
	{"trip_meter_manual_km", "Trip meter manual in kilometers", func(o *polestar.OdometerTelemetry) *float64 { return o.TripMeterManualKm }},
	{"average_speed_kmh", "Average speed in km/h", func(o *polestar.OdometerTelemetry) *float64 { return o.AverageSpeedKmPerHour }},
}

var healthGauges = []gaugeField[polestar.HealthTelemetry]{
	{"days_to_service", "Days remaining until next service", func(h *polestar.HealthTelemetry) *float64 { return h.DaysToService }},
	{"distance_to_service_km", "Distance remaining until next service in kilometers", func(h *polestar.HealthTelemetry) *float64 { return h.DistanceToServiceKm }},
}

var healthInfos = []infoField[polestar.HealthTelemetry]{
	{
		Name: "health_warnings_info",
		Help: "Health warnings from the vehicle",
		Keys: []string{"brake_fluid", "engine_coolant", "oil_level", "service"},
		Values: func(h *polestar.HealthTelemetry) map[string]string {
			return map[string]string{
				"brake_fluid":    deref(h.BrakeFluidLevelWarning),
				"engine_coolant": deref(h.EngineCoolantLevelWarning),
				"oil_level":      deref(h.OilLevelWarning),
				"service":        deref(h.ServiceWarning),
			}
		},
	},
}

// Sample is one flattened gauge value.
type Sample struct {
	Name  string
	Value float64
}

// Record is one flattened info record.
type Record struct {
	Name   string
	Labels map[string]string
}

// Flatten walks the mapping tables and returns every value present in the
// snapshot. Absent fields and absent groups produce nothing.
func Flatten(info *polestar.VehicleInfo, telemetry *polestar.Telemetry) ([]Sample, []Record) {
	var samples []Sample
	var records []Record

	samples = appendSamples(samples, info, vehicleGauges)
	records = appendRecords(records, info, vehicleInfos)

	if telemetry != nil {
		samples = appendSamples(samples, telemetry.Battery, batteryGauges)
		records = appendRecords(records, telemetry.Battery, batteryInfos)
		samples = appendSamples(samples, telemetry.Odometer, odometerGauges)
		samples = appendSamples(samples, telemetry.Health, healthGauges)
		records = appendRecords(records, telemetry.Health, healthInfos)
	}
	return samples, records
}

func appendSamples[T any](out []Sample, src *T, fields []gaugeField[T]) []Sample {
	if src == nil {
		return out
	}
	for _, f := range fields {
		if v := f.Value(src); v != nil {
			out = append(out, Sample{Name: f.Name, Value: *v})
		}
	}
	return out
}

func appendRecords[T any](out []Record, src *T, fields []infoField[T]) []Record {
	if src == nil {
		return out
	}
	for _, f := range fields {
		if labels := f.Values(src); labels != nil {
			out = append(out, Record{Name: f.Name, Labels: labels})
		}
	}
	return out
}

type metricDesc struct {
	name string
	help string
	keys []string
}

// gaugeDescs and infoDescs list every metric the registry declares.
func gaugeDescs() []metricDesc {
	var out []metricDesc
	out = appendGaugeDescs(out, vehicleGauges)
	out = appendGaugeDescs(out, batteryGauges)
	out = appendGaugeDescs(out, odometerGauges)
	out = appendGaugeDescs(out, healthGauges)
	return out
}

func infoDescs() []metricDesc {
	var out []metricDesc
	out = appendInfoDescs(out, vehicleInfos)
	out = appendInfoDescs(out, batteryInfos)
	out = appendInfoDescs(out, healthInfos)
	return out
}

func appendGaugeDescs[T any](out []metricDesc, fields []gaugeField[T]) []metricDesc {
	for _, f := range fields {
		out = append(out, metricDesc{name: f.Name, help: f.Help})
	}
	return out
}

func appendInfoDescs[T any](out []metricDesc, fields []infoField[T]) []metricDesc {
	for _, f := range fields {
		out = append(out, metricDesc{name: f.Name, help: f.Help, keys: f.Keys})
	}
	return out
}

func batteryInformation(fn func(*polestar.BatteryInformation) *float64) func(*polestar.VehicleInfo) *float64 {
	return func(v *polestar.VehicleInfo) *float64 {
		if v.Battery == nil {
			return nil
		}
		return fn(v.Battery)
	}
}

func fromInt(p *int) *float64 {
	if p == nil {
		return nil
	}
	f := float64(*p)
	return &f
}

func divide(p *float64, by float64) *float64 {
	if p == nil {
		return nil
	}
	f := *p / by
	return &f
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
