package polestar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const queryCars = `query GetConsumerCarsV2 {
  getConsumerCarsV2 {
    vin
    registrationNo
    registrationDate
    factoryCompleteDate
    content {
      model { name }
      specification { battery torque }
    }
    software { version versionTimestamp }
  }
}`

const queryTelematics = `query CarTelematics($vin: String!) {
  carTelematics(vin: $vin) {
    battery {
      batteryChargeLevelPercentage
      chargingPowerWatts
      chargingCurrentAmps
      estimatedDistanceToEmptyKm
      estimatedFullChargeRangeKm
      averageEnergyConsumptionKwhPer100Km
      estimatedChargingTimeToFullMinutes
      chargingStatus
      chargerConnectionStatus
    }
    odometer {
      odometerMeters
      tripMeterAutomaticKm
      tripMeterManualKm
      averageSpeedKmPerHour
    }
    health {
      daysToService
      distanceToServiceKm
      brakeFluidLevelWarning
      engineCoolantLevelWarning
      oilLevelWarning
      serviceWarning
    }
  }
}`

type carsResponse struct {
	Cars []carJSON `json:"getConsumerCarsV2"`
}

type carJSON struct {
	VIN                 string `json:"vin"`
	RegistrationNo      string `json:"registrationNo"`
	RegistrationDate    string `json:"registrationDate"`
	FactoryCompleteDate string `json:"factoryCompleteDate"`
	Content             struct {
		Model struct {
			Name string `json:"name"`
		} `json:"model"`
		Specification struct {
			Battery string `json:"battery"`
			Torque  string `json:"torque"`
		} `json:"specification"`
	} `json:"content"`
	Software struct {
		Version          string `json:"version"`
		VersionTimestamp string `json:"versionTimestamp"`
	} `json:"software"`
}

func (c carJSON) toVehicleInfo() *VehicleInfo {
	return &VehicleInfo{
		VIN:                      c.VIN,
		RegistrationNo:           nonEmpty(c.RegistrationNo),
		ModelName:                nonEmpty(c.Content.Model.Name),
		RegistrationDate:         nonEmpty(c.RegistrationDate),
		FactoryCompleteDate:      nonEmpty(c.FactoryCompleteDate),
		SoftwareVersion:          nonEmpty(c.Software.Version),
		SoftwareVersionTimestamp: nonEmpty(c.Software.VersionTimestamp),
		TorqueNm:                 parseTorqueNm(c.Content.Specification.Torque),
		Battery:                  parseBatteryInformation(c.Content.Specification.Battery),
	}
}

type telematicsResponse struct {
	Telematics *Telemetry `json:"carTelematics"`
}

type graphQLRequest struct {
	OperationName string         `json:"operationName"`
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// query posts one GraphQL operation and decodes its data into out.
func (c *Client) query(ctx context.Context, operation, query string, vars map[string]any, out any) error {
	body, err := json.Marshal(graphQLRequest{OperationName: operation, Query: query, Variables: vars})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.api.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%s: reading response: %w", operation, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s: %w", operation, ErrUnauthorized)
	case resp.StatusCode != http.StatusOK:
		return &StatusError{URL: c.cfg.APIURL, StatusCode: resp.StatusCode, Body: truncate(raw)}
	}

	var gr graphQLResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return fmt.Errorf("%s: malformed response: %w", operation, err)
	}
	if len(gr.Errors) > 0 {
		gqlErr := &GraphQLError{Operation: operation}
		for _, e := range gr.Errors {
			gqlErr.Messages = append(gqlErr.Messages, e.Message)
		}
		return gqlErr
	}
	if len(gr.Data) == 0 || string(gr.Data) == "null" {
		return fmt.Errorf("%s: response carried no data", operation)
	}
	if err := json.Unmarshal(gr.Data, out); err != nil {
		return fmt.Errorf("%s: malformed data: %w", operation, err)
	}
	return nil
}

func truncate(b []byte) string {
	const limit = 512
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
