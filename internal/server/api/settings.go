package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ayusman/swipeshot/internal/app"
	"github.com/ayusman/swipeshot/internal/gesture"
)

// Controls is the part of the pipeline the settings and status handlers drive.
type Controls interface {
	Status() app.Status
	Settings() gesture.Settings
	ApplySettings(s gesture.Settings) gesture.Settings
	Preferences() app.Preferences
	SetPreferences(p app.Preferences) error
	Start(ctx context.Context) error
}

var validate = validator.New()

// SettingsHandler serves GET and PUT /api/settings.
type SettingsHandler struct {
	controls Controls
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(c Controls) *SettingsHandler {
	return &SettingsHandler{controls: c}
}

type settingsResponse struct {
	ThresholdPercent int    `json:"threshold_percent"`
	DelaySeconds     int    `json:"delay_seconds"`
	AutoCapture      bool   `json:"auto_capture"`
	Source           string `json:"source"`
	Sound            bool   `json:"sound"`
	ShowSkeleton     bool   `json:"show_skeleton"`
}

// updateSettingsRequest is a partial update; absent fields are left alone.
// Out-of-range thresholds are clamped rather than rejected. Delays outside
// the 0-5 s slider range are rejected.
type updateSettingsRequest struct {
	ThresholdPercent *int    `json:"threshold_percent" validate:"omitempty,gte=0,lte=100"`
	DelaySeconds     *int    `json:"delay_seconds" validate:"omitempty,gte=0,lte=5"`
	AutoCapture      *bool   `json:"auto_capture"`
	Source           *string `json:"source" validate:"omitempty,oneof=video overlay screen"`
	Sound            *bool   `json:"sound"`
	ShowSkeleton     *bool   `json:"show_skeleton"`
}

func (h *SettingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.current())
	case http.MethodPut:
		h.update(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *SettingsHandler) current() settingsResponse {
	view := app.NewSettingsView(h.controls.Settings())
	prefs := h.controls.Preferences()
	return settingsResponse{
		ThresholdPercent: view.ThresholdPercent,
		DelaySeconds:     view.DelaySeconds,
		AutoCapture:      prefs.AutoCapture,
		Source:           prefs.Source,
		Sound:            prefs.Sound,
		ShowSkeleton:     prefs.ShowSkeleton,
	}
}

func (h *SettingsHandler) update(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	if req.ThresholdPercent != nil || req.DelaySeconds != nil {
		s := h.controls.Settings()
		if req.ThresholdPercent != nil {
			s.Threshold = float64(*req.ThresholdPercent) / 100
		}
		if req.DelaySeconds != nil {
			s.Cooldown = time.Duration(*req.DelaySeconds) * time.Second
		}
		h.controls.ApplySettings(s)
	}

	prefs := h.controls.Preferences()
	changed := false
	if req.AutoCapture != nil {
		prefs.AutoCapture, changed = *req.AutoCapture, true
	}
	if req.Source != nil {
		prefs.Source, changed = *req.Source, true
	}
	if req.Sound != nil {
		prefs.Sound, changed = *req.Sound, true
	}
	if req.ShowSkeleton != nil {
		prefs.ShowSkeleton, changed = *req.ShowSkeleton, true
	}
	if changed {
		if err := h.controls.SetPreferences(prefs); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	writeJSON(w, http.StatusOK, h.current())
}

func validationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return "Invalid request"
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}

// StatusHandler serves GET /api/status and POST /api/retry.
type StatusHandler struct {
	controls Controls
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(c Controls) *StatusHandler {
	return &StatusHandler{controls: c}
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/retry" && r.Method == http.MethodPost:
		// Failures are already reflected in the returned status.
		h.controls.Start(r.Context())
		writeJSON(w, http.StatusOK, h.controls.Status())
	case r.URL.Path == "/api/status" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, h.controls.Status())
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
