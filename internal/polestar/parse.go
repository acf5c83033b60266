package polestar

import (
	"regexp"
	"strconv"
	"strings"
)

// The car listing reports the battery and torque specification as free text,
// e.g. "400V lithium-ion battery, 78 kWh capacity, 27 modules, 324 cells" and
// "660 Nm / 487 lbf-ft".
var (
	reVoltage  = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*V\b`)
	reCapacity = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*kWh`)
	reModules  = regexp.MustCompile(`(?i)(\d+)\s*modules?`)
	reCells    = regexp.MustCompile(`(?i)(\d+)\s*cells?`)
	reTorque   = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*Nm`)
)

// parseBatteryInformation extracts what it can from a battery specification.
// It returns nil when nothing is recognised.
func parseBatteryInformation(spec string) *BatteryInformation {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil
	}
	b := &BatteryInformation{
		CapacityKWh: matchFloat(reCapacity, spec),
		Voltage:     matchFloat(reVoltage, spec),
		Modules:     matchInt(reModules, spec),
		Cells:       matchInt(reCells, spec),
	}
	if b.CapacityKWh == nil && b.Voltage == nil && b.Modules == nil && b.Cells == nil {
		return nil
	}
	return b
}

func parseTorqueNm(spec string) *float64 {
	return matchFloat(reTorque, spec)
}

func matchFloat(re *regexp.Regexp, s string) *float64 {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return &v
}

func matchInt(re *regexp.Regexp, s string) *int {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &v
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
