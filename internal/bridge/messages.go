package bridge

import (
	"time"

	"github.com/nerrad567/meterthing/internal/obis"
)

// StateMessage is the retained payload published for each property on
// meterthing/state/{slug}/{property}.
type StateMessage struct {
	ThingID   string    `json:"thing_id"`
	Property  string    `json:"property"`
	Value     any       `json:"value"`
	Kind      string    `json:"kind"`
	Unit      string    `json:"unit,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewStateMessage builds a state message for one property value.
func NewStateMessage(thingID, property string, v obis.Value, at time.Time) StateMessage {
	return StateMessage{
		ThingID:   thingID,
		Property:  property,
		Value:     v.Interface(),
		Kind:      v.Kind().String(),
		Unit:      v.Unit(),
		Timestamp: at.UTC(),
	}
}

// HealthStatus is the bridge health reported on meterthing/health/{slug}.
type HealthStatus string

// Health statuses.
const (
	HealthStarting HealthStatus = "starting"
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is the retained payload published by HealthReporter.
type HealthMessage struct {
	ThingID       string       `json:"thing_id"`
	Status        HealthStatus `json:"status"`
	Reason        string       `json:"reason,omitempty"`
	Version       string       `json:"version,omitempty"`
	LoopState     string       `json:"loop_state"`
	Readings      uint64       `json:"readings"`
	Updates       uint64       `json:"property_updates"`
	LastReading   *time.Time   `json:"last_reading,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Timestamp     time.Time    `json:"timestamp"`
}

// NewHealthMessage builds a health message from loop stats.
func NewHealthMessage(thingID, version string, status HealthStatus, stats Stats, startTime time.Time) HealthMessage {
	now := time.Now().UTC()
	msg := HealthMessage{
		ThingID:       thingID,
		Status:        status,
		Version:       version,
		LoopState:     stats.State.String(),
		Readings:      stats.Readings,
		Updates:       stats.PropertyUpdates,
		UptimeSeconds: int64(now.Sub(startTime).Seconds()),
		Timestamp:     now,
	}
	if !stats.LastReading.IsZero() {
		last := stats.LastReading.UTC()
		msg.LastReading = &last
	}
	return msg
}
