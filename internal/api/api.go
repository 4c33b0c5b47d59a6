// Package api implements the read-only HTTP status surface of the duomic
// daemon. Mutations go through the control socket; this API exists for
// dashboards and debugging.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/duomic/duomic-go/internal/models"
)

// Registry is the device/segment view the handlers expose.
type Registry interface {
	Devices() []models.Device
	Statuses() []models.DeviceStatus
	Segment() models.SegmentStatus
}

// EventBus is the interface for subscribing to device change events.
type EventBus interface {
	Subscribe(id string) <-chan []models.Device
	Unsubscribe(id string)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
