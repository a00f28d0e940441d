package events

import (
	"context"
	"strconv"
	"time"

	"github.com/YuMe-02/Hydroconnect/internal/audit"
	"github.com/YuMe-02/Hydroconnect/internal/auth"
	"github.com/YuMe-02/Hydroconnect/internal/infrastructure/logging"
	"github.com/YuMe-02/Hydroconnect/internal/infrastructure/mqtt"
	"github.com/YuMe-02/Hydroconnect/internal/usage"
)

// UsageMeasurement is the InfluxDB measurement usage sessions are written to.
const UsageMeasurement = "water_usage"

// Publisher is the part of the MQTT client the bus needs.
type Publisher interface {
	PublishJSON(topic string, v any) error
}

// PointWriter is the part of the InfluxDB client the telemetry sink needs.
type PointWriter interface {
	WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time)
}

// UsageEvent is published for every stored usage session.
type UsageEvent struct {
	DeviceID string `json:"device_id"`
	usage.Record
}

// KeyRotatedEvent announces a rotation. It never carries the key.
type KeyRotatedEvent struct {
	DeviceID string `json:"device_id"`
	Rotated  string `json:"rotated"`
}

// Bus publishes usage sessions and key rotations to MQTT.
type Bus struct {
	pub    Publisher
	logger *logging.Logger
}

// NewBus creates a Bus on pub.
func NewBus(pub Publisher, logger *logging.Logger) *Bus {
	if logger == nil {
		logger = logging.Default()
	}
	return &Bus{pub: pub, logger: logger}
}

// SessionStored publishes the session on its sink's usage topic.
func (b *Bus) SessionStored(_ context.Context, s *usage.Session) {
	topic := mqtt.Topics{}.Usage(s.SinkID)
	if err := b.pub.PublishJSON(topic, UsageEvent{DeviceID: s.DeviceID, Record: s.Record()}); err != nil {
		b.logger.Warn("publishing usage session failed", "topic", topic, "error", err)
	}
}

// KeyRotated publishes a rotation notice for deviceID.
func (b *Bus) KeyRotated(_ context.Context, deviceID string, rotated time.Time) {
	topic := mqtt.Topics{}.DeviceKeyRotated(deviceID)
	event := KeyRotatedEvent{DeviceID: deviceID, Rotated: rotated.Format(auth.DateLayout)}
	if err := b.pub.PublishJSON(topic, event); err != nil {
		b.logger.Warn("publishing key rotation failed", "topic", topic, "error", err)
	}
}

// Telemetry writes usage sessions to InfluxDB, stamped with their start time.
type Telemetry struct {
	w PointWriter
}

// NewTelemetry creates a Telemetry sink on w.
func NewTelemetry(w PointWriter) *Telemetry {
	return &Telemetry{w: w}
}

// SessionStored writes one point per session.
func (t *Telemetry) SessionStored(_ context.Context, s *usage.Session) {
	t.w.WritePointWithTime(UsageMeasurement,
		map[string]string{
			"device_id": s.DeviceID,
			"sink_id":   strconv.FormatInt(s.SinkID, 10),
			"sensor_id": strconv.FormatInt(s.SensorID, 10),
		},
		map[string]any{
			"session_id":   s.SessionID,
			"water_amount": s.WaterAmount,
			"duration":     s.Duration,
			"is_error":     s.IsError,
		},
		s.StartTime,
	)
}

// AuditTrail records key rotations in the audit log.
type AuditTrail struct {
	rec *audit.Recorder
}

// NewAuditTrail creates an AuditTrail on rec.
func NewAuditTrail(rec *audit.Recorder) *AuditTrail {
	return &AuditTrail{rec: rec}
}

// KeyRotated records an audit entry for the rotation.
func (a *AuditTrail) KeyRotated(ctx context.Context, deviceID string, rotated time.Time) {
	a.rec.Record(ctx, audit.Entry{
		Action:     audit.ActionKeyRotated,
		EntityType: audit.EntityDevice,
		EntityID:   deviceID,
		Source:     audit.SourceAPI,
		Details:    map[string]any{"last_rotated": rotated.Format(auth.DateLayout)},
	})
}

// Rotations fans a rotation out to several notifiers, skipping nils.
type Rotations []auth.RotationNotifier

// KeyRotated calls every notifier in order.
func (r Rotations) KeyRotated(ctx context.Context, deviceID string, rotated time.Time) {
	for _, n := range r {
		if n != nil {
			n.KeyRotated(ctx, deviceID, rotated)
		}
	}
}
