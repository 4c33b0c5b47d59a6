package api

import (
	"net/http"
	"time"

	"github.com/duomic/duomic-go/internal/models"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	reg     Registry
	events  EventBus
	version string
	started time.Time
}

func (h *Handlers) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.Status{
		Version: h.version,
		UptimeS: int64(time.Since(h.started).Seconds()),
		Segment: h.reg.Segment(),
		Devices: h.reg.Statuses(),
	})
}

func (h *Handlers) getDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.reg.Devices())
}
