package mqtt

import (
	"context"
)

// Publisher is the publish-only MQTT client used by the telemetry mirror.
// It hides the underlying paho implementation details.
type Publisher interface {
	// Start initiates the connection to the broker.
	// It is non-blocking and returns immediately. Use AwaitConnection to wait.
	// The connection is torn down when ctx ends, so callers that publish
	// during shutdown pass a context that outlives the run.
	Start(ctx context.Context) error

	// Disconnect cleanly closes the connection.
	Disconnect(ctx context.Context)

	// Publish sends a message to the specified topic.
	Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error

	// AwaitConnection blocks until the client is connected to the broker.
	AwaitConnection(ctx context.Context) error

	// IsConnected returns true if the client is currently connected.
	IsConnected() bool
}
