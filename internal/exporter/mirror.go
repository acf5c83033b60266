package exporter

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/autopeer-io/polestar-exporter/internal/pkg/metrics"
	"github.com/autopeer-io/polestar-exporter/pkg/log"
	"github.com/autopeer-io/polestar-exporter/pkg/mqtt"
	"github.com/autopeer-io/polestar-exporter/pkg/mqtt/topic"
)

// Exporter status payloads published on the status topic.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

const publishTimeout = 5 * time.Second

// Mirror republishes successful snapshots to an MQTT broker. Snapshots are
// handed over through a bounded queue so a slow or absent broker never holds
// up the refresh loop; when the queue is full the oldest snapshot is dropped.
type Mirror struct {
	client mqtt.Publisher
	topics *topic.TopicBuilder
	qos    int
	retain bool
	queue  chan *Snapshot
	logger log.Logger
}

type MirrorConfig struct {
	Client    mqtt.Publisher
	Topics    *topic.TopicBuilder
	QoS       int
	Retain    bool
	QueueSize int
}

func NewMirror(cfg MirrorConfig) *Mirror {
	size := cfg.QueueSize
	if size < 1 {
		size = 1
	}
	return &Mirror{
		client: cfg.Client,
		topics: cfg.Topics,
		qos:    cfg.QoS,
		retain: cfg.Retain,
		queue:  make(chan *Snapshot, size),
		logger: log.WithName("mirror"),
	}
}

// SetStatusWill makes the broker announce the exporter offline if the
// connection drops without a clean disconnect.
func SetStatusWill(cfg *mqtt.ClientConfig, topics *topic.TopicBuilder) {
	cfg.WillTopic = topics.Status()
	cfg.WillPayload = []byte(StatusOffline)
	cfg.WillQoS = 1
	cfg.WillRetain = true
}

// Offer enqueues s without blocking.
func (m *Mirror) Offer(s *Snapshot) {
	for {
		select {
		case m.queue <- s:
			return
		default:
		}

		select {
		case old := <-m.queue:
			metrics.MirrorMessagesTotal.WithLabelValues("dropped").Inc()
			m.logger.Warn("Mirror queue full, dropping oldest snapshot", "vin", old.VIN)
		default:
		}
	}
}

// Run connects to the broker and publishes queued snapshots until ctx is done.
// The connection outlives ctx so the offline status can still be published
// before the explicit disconnect.
func (m *Mirror) Run(ctx context.Context) error {
	if err := m.client.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("start mqtt client: %w", err)
	}
	m.logger.Info("Mirroring vehicle snapshots", "topics", m.topics.TelemetryWildcard())

	go func() {
		if err := m.client.AwaitConnection(ctx); err != nil {
			return
		}
		m.publishStatus(ctx, StatusOnline)
	}()

	for {
		select {
		case <-ctx.Done():
			m.shutdown(ctx)
			return nil
		case s := <-m.queue:
			m.publish(ctx, s)
		}
	}
}

func (m *Mirror) publish(ctx context.Context, s *Snapshot) {
	payload, err := EncodeSnapshot(s)
	if err != nil {
		metrics.MirrorMessagesTotal.WithLabelValues("failed").Inc()
		m.logger.Error(err, "Failed to encode vehicle snapshot", "vin", s.VIN)
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	t := m.topics.Telemetry(s.VIN)
	if err := m.client.Publish(pubCtx, t, m.qos, m.retain, payload); err != nil {
		metrics.MirrorMessagesTotal.WithLabelValues("failed").Inc()
		m.logger.Error(err, "Failed to publish vehicle snapshot", "vin", s.VIN, "topic", t)
		return
	}
	metrics.MirrorMessagesTotal.WithLabelValues("published").Inc()
	m.logger.Debug("Published vehicle snapshot", "vin", s.VIN, "topic", t, "bytes", len(payload))
}

func (m *Mirror) publishStatus(ctx context.Context, status string) {
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := m.client.Publish(pubCtx, m.topics.Status(), 1, true, []byte(status)); err != nil {
		m.logger.Error(err, "Failed to publish exporter status", "status", status)
	}
}

func (m *Mirror) shutdown(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	if m.client.IsConnected() {
		m.publishStatus(ctx, StatusOffline)
	}
	dctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	m.client.Disconnect(dctx)
}

// EncodeSnapshot renders s as a JSON document:
//
//	{"vin": "...", "timestamp": "RFC3339", "gauges": {"odometer_km": 12.345}, "info": {"vehicle_info": {...}}}
func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	gauges := make(map[string]any, len(s.Samples))
	for _, smp := range s.Samples {
		gauges[smp.Name] = smp.Value
	}
	info := make(map[string]any, len(s.Records))
	for _, rec := range s.Records {
		labels := make(map[string]any, len(rec.Labels))
		for k, v := range rec.Labels {
			labels[k] = v
		}
		info[rec.Name] = labels
	}

	doc, err := structpb.NewStruct(map[string]any{
		"vin":       s.VIN,
		"timestamp": s.Time.UTC().Format(time.RFC3339),
		"gauges":    gauges,
		"info":      info,
	})
	if err != nil {
		return nil, fmt.Errorf("build snapshot document: %w", err)
	}
	return protojson.Marshal(doc)
}
