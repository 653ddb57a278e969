package core

import (
	"context"

	"parking-service/internal/messaging"
	"parking-service/internal/types"
)

// MessagingClient defines the Redis operations needed by ParkingSystem
type MessagingClient interface {
	SetCallbacks(callbacks messaging.Callbacks)
	Connect() error
	StartListening() error
	Close() error

	PublishStatus(status types.Status) error

	// Faults
	ReportFaultPresent(code int, description string) error
	ReportFaultAbsent(code int) error
}

// RangeSensorArray returns one distance per sensor that answered. Sensors
// that failed are missing from the map and described by the error.
type RangeSensorArray interface {
	Read(ctx context.Context) (map[types.SensorName]float64, error)
}

// StatusPublisher receives the periodic status snapshot, e.g. over MQTT.
type StatusPublisher interface {
	PublishStatus(status types.Status) error
}
