package polestar

// VehicleInfo is the static description of one car on the account. Every
// pointer field is optional and nil when the vehicle cloud did not report it.
type VehicleInfo struct {
	VIN                      string
	RegistrationNo           *string
	ModelName                *string
	RegistrationDate         *string
	FactoryCompleteDate      *string
	SoftwareVersion          *string
	SoftwareVersionTimestamp *string
	TorqueNm                 *float64
	Battery                  *BatteryInformation
}

// BatteryInformation describes the installed traction battery pack.
type BatteryInformation struct {
	CapacityKWh *float64
	Voltage     *float64
	Modules     *int
	Cells       *int
}

// Telemetry is the latest telematics reading of one car. A nil group means the
// vehicle cloud returned no data for it.
type Telemetry struct {
	Battery  *BatteryTelemetry  `json:"battery"`
	Odometer *OdometerTelemetry `json:"odometer"`
	Health   *HealthTelemetry   `json:"health"`
}

type BatteryTelemetry struct {
	ChargeLevelPercentage               *float64 `json:"batteryChargeLevelPercentage"`
	ChargingPowerWatts                  *float64 `json:"chargingPowerWatts"`
	ChargingCurrentAmps                 *float64 `json:"chargingCurrentAmps"`
	EstimatedDistanceToEmptyKm          *float64 `json:"estimatedDistanceToEmptyKm"`
	EstimatedFullChargeRangeKm          *float64 `json:"estimatedFullChargeRangeKm"`
	AverageEnergyConsumptionKwhPer100Km *float64 `json:"averageEnergyConsumptionKwhPer100Km"`
	EstimatedChargingTimeToFullMinutes  *float64 `json:"estimatedChargingTimeToFullMinutes"`
	ChargingStatus                      *string  `json:"chargingStatus"`
	ChargerConnectionStatus             *string  `json:"chargerConnectionStatus"`
}

type OdometerTelemetry struct {
	OdometerMeters        *float64 `json:"odometerMeters"`
	TripMeterAutomaticKm  *float64 `json:"tripMeterAutomaticKm"`
	TripMeterManualKm     *float64 `json:"tripMeterManualKm"`
	AverageSpeedKmPerHour *float64 `json:"averageSpeedKmPerHour"`
}

type HealthTelemetry struct {
	DaysToService             *float64 `json:"daysToService"`
	DistanceToServiceKm       *float64 `json:"distanceToServiceKm"`
	BrakeFluidLevelWarning    *string  `json:"brakeFluidLevelWarning"`
	EngineCoolantLevelWarning *string  `json:"engineCoolantLevelWarning"`
	OilLevelWarning           *string  `json:"oilLevelWarning"`
	ServiceWarning            *string  `json:"serviceWarning"`
}
