package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"cdpcrawler/internal/crawl"
	"cdpcrawler/internal/domain"
)

// DeviceSource is the read side of the crawl state store
type DeviceSource interface {
	Snapshot() []*domain.DeviceRecord
	Get(key string) (*domain.DeviceRecord, bool)
}

// ProgressSource samples crawl progress
type ProgressSource interface {
	Sample() crawl.Progress
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// StatusHandler serves crawl state
type StatusHandler struct {
	devices  DeviceSource
	progress ProgressSource
	logger   zerolog.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(devices DeviceSource, progress ProgressSource, logger zerolog.Logger) *StatusHandler {
	return &StatusHandler{devices: devices, progress: progress, logger: logger}
}

// ListDevices returns all devices, filtered by ?status= when given
func (h *StatusHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	devices := h.devices.Snapshot()

	if raw := r.URL.Query().Get("status"); raw != "" {
		status, ok := domain.ParseDeviceStatus(raw)
		if !ok {
			h.writeError(w, "Invalid status", "unknown status "+raw, http.StatusBadRequest)
			return
		}
		filtered := devices[:0]
		for _, d := range devices {
			if d.Status == status {
				filtered = append(filtered, d)
			}
		}
		devices = filtered
	}

	if devices == nil {
		devices = []*domain.DeviceRecord{}
	}
	h.writeJSON(w, devices, http.StatusOK)
}

// GetDevice returns a single device
func (h *StatusHandler) GetDevice(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		h.writeError(w, "Invalid device key", "Device key is required", http.StatusBadRequest)
		return
	}

	device, ok := h.devices.Get(key)
	if !ok {
		h.writeError(w, "Not found", "device "+key+" not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, device, http.StatusOK)
}

// GetProgress returns the current progress sample
func (h *StatusHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.progress.Sample(), http.StatusOK)
}

func (h *StatusHandler) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to encode JSON")
	}
}

func (h *StatusHandler) writeError(w http.ResponseWriter, error, details string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Details: details,
	}); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to encode error response")
	}
}

// Routes builds the status API mux. events serves /events when non-nil.
func Routes(h *StatusHandler, events http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/devices", h.ListDevices)
	mux.HandleFunc("GET /api/devices/{key}", h.GetDevice)
	mux.HandleFunc("GET /api/progress", h.GetProgress)
	if events != nil {
		mux.Handle("GET /events", events)
	}
	return mux
}
