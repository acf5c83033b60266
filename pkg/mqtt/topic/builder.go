package topic

import (
	"fmt"
	"strings"
)

// Topic segments published by the exporter. Downstream consumers subscribe to
// these, so changing them breaks existing dashboards and automations.
const (
	// SuffixTelemetry carries one snapshot document per vehicle.
	// Structure: {root}/{vin}/telemetry
	SuffixTelemetry = "telemetry"

	// SuffixStatus carries the exporter's own online/offline state (retained, also the last will).
	// Structure: {root}/exporter/status
	SuffixStatus = "status"

	// Wildcard is the single-level wildcard "+".
	Wildcard = "+"
)

// TopicBuilder encapsulates the logic for constructing MQTT topic strings.
type TopicBuilder struct {
	// root is the base namespace for all topics (e.g., "polestar/v1").
	root string
}

// NewTopicBuilder creates a new instance of TopicBuilder with the specified root namespace.
// Leading and trailing slashes are trimmed.
func NewTopicBuilder(root string) *TopicBuilder {
	return &TopicBuilder{root: strings.Trim(root, "/")}
}

// Telemetry returns the topic a vehicle's snapshots are published to.
func (b *TopicBuilder) Telemetry(vin string) string {
	return b.build(vin, SuffixTelemetry)
}

// TelemetryWildcard returns the filter matching every vehicle's snapshots.
// Result: {root}/+/telemetry
func (b *TopicBuilder) TelemetryWildcard() string {
	return b.build(Wildcard, SuffixTelemetry)
}

// Status returns the exporter status topic.
func (b *TopicBuilder) Status() string {
	return b.build("exporter", SuffixStatus)
}

// build constructs {root}/{id}/{suffix}.
func (b *TopicBuilder) build(id, suffix string) string {
	if b.root == "" {
		return fmt.Sprintf("%s/%s", id, suffix)
	}
	return fmt.Sprintf("%s/%s/%s", b.root, id, suffix)
}
