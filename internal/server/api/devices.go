package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/swipeshot/internal/capture"
)

// Devices is the camera selection surface.
type Devices interface {
	ListDevices(ctx context.Context) ([]capture.DeviceInfo, error)
	SelectDevice(ctx context.Context, deviceID string) error
	RequestPermission(ctx context.Context) error
	Device() string
}

// DevicesHandler serves /api/devices, /api/devices/select and /api/devices/permission.
type DevicesHandler struct {
	devices Devices
}

// NewDevicesHandler creates a new DevicesHandler.
func NewDevicesHandler(d Devices) *DevicesHandler {
	return &DevicesHandler{devices: d}
}

type listDevicesResponse struct {
	Devices []capture.DeviceInfo `json:"devices"`
	Active  string               `json:"active"`
}

type selectDeviceRequest struct {
	ID string `json:"id" validate:"required"`
}

type deviceErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (h *DevicesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/devices")
	path = strings.TrimPrefix(path, "/")

	switch {
	case path == "" && r.Method == http.MethodGet:
		h.list(w, r)
	case path == "select" && r.Method == http.MethodPost:
		h.selectDevice(w, r)
	case path == "permission" && r.Method == http.MethodPost:
		h.permission(w, r)
	case path == "" || path == "select" || path == "permission":
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	default:
		http.NotFound(w, r)
	}
}

// list handles GET /api/devices. Enumeration failures yield an empty list so
// the picker can fall back to the default device.
func (h *DevicesHandler) list(w http.ResponseWriter, r *http.Request) {
	devices, err := h.devices.ListDevices(r.Context())
	if err != nil || devices == nil {
		devices = []capture.DeviceInfo{}
	}
	writeJSON(w, http.StatusOK, listDevicesResponse{Devices: devices, Active: h.devices.Device()})
}

func (h *DevicesHandler) selectDevice(w http.ResponseWriter, r *http.Request) {
	var req selectDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	if err := h.devices.SelectDevice(r.Context(), req.ID); err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listDevicesResponse{Active: h.devices.Device()})
}

func (h *DevicesHandler) permission(w http.ResponseWriter, r *http.Request) {
	if err := h.devices.RequestPermission(r.Context()); err != nil {
		writeDeviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeDeviceError(w http.ResponseWriter, err error) {
	var devErr *capture.DeviceError
	if !errors.As(err, &devErr) {
		devErr = capture.Categorize(err)
	}

	status := http.StatusServiceUnavailable
	switch devErr.Kind {
	case capture.PermissionDenied:
		status = http.StatusForbidden
	case capture.DeviceNotFound:
		status = http.StatusNotFound
	case capture.DeviceBusy:
		status = http.StatusConflict
	case capture.DeviceTimeout:
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, deviceErrorResponse{Error: devErr.Kind.Message(), Kind: string(devErr.Kind)})
}
