package handlers

import (
	"context"
	"net/http"

	"otengine/apperr"
	"otengine/attendance"
	"otengine/location"
	"otengine/middleware"

	"github.com/sirupsen/logrus"
)

type AttendanceHandler struct {
	svc *attendance.Service
	log logrus.FieldLogger
}

func NewAttendanceHandler(svc *attendance.Service, log logrus.FieldLogger) *AttendanceHandler {
	return &AttendanceHandler{svc: svc, log: log}
}

// fixRequest leaves coordinates optional so the service can answer with
// "location required" rather than a generic validation failure.
type fixRequest struct {
	Latitude  *float64                  `json:"latitude" validate:"omitempty,latitude"`
	Longitude *float64                  `json:"longitude" validate:"omitempty,longitude"`
	Accuracy  float64                   `json:"accuracy" validate:"gte=0"`
	Device    location.DeviceCapability `json:"device_capability"`
	ImageRef  string                    `json:"image_ref" validate:"max=500"`
	Address   string                    `json:"address" validate:"max=500"`
}

func (f fixRequest) fix() attendance.Fix {
	return attendance.Fix{
		Latitude:  f.Latitude,
		Longitude: f.Longitude,
		Accuracy:  f.Accuracy,
		Device:    f.Device,
		ImageRef:  f.ImageRef,
		Address:   f.Address,
	}
}

func (h *AttendanceHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	h.record(w, r, h.svc.CheckIn, http.StatusCreated)
}

func (h *AttendanceHandler) CheckOut(w http.ResponseWriter, r *http.Request) {
	h.record(w, r, h.svc.CheckOut, http.StatusOK)
}

type recordFunc func(ctx context.Context, userID uint, fix attendance.Fix) (*attendance.Outcome, error)

func (h *AttendanceHandler) record(w http.ResponseWriter, r *http.Request, fn recordFunc, status int) {
	user := middleware.GetUserFromContext(r.Context())
	var req fixRequest
	if !decode(w, r, &req) {
		return
	}

	out, err := fn(r.Context(), user.ID, req.fix())
	if err != nil {
		if out != nil && apperr.KindOf(err) == apperr.KindValidation {
			writeJSON(w, apperr.HTTPStatus(err), map[string]interface{}{
				"error":    apperr.PublicMessage(err),
				"location": out.Location,
			})
			return
		}
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, status, out)
}

func (h *AttendanceHandler) Today(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	rec, err := h.svc.Today(r.Context(), user.ID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type validateLocationRequest struct {
	Latitude  float64                   `json:"latitude" validate:"latitude"`
	Longitude float64                   `json:"longitude" validate:"longitude"`
	Accuracy  float64                   `json:"accuracy" validate:"gte=0"`
	Device    location.DeviceCapability `json:"device_capability"`
}

// ValidateLocation runs the geofence check without recording attendance.
func (h *AttendanceHandler) ValidateLocation(w http.ResponseWriter, r *http.Request) {
	var req validateLocationRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Validate(req.Latitude, req.Longitude, req.Accuracy, req.Device))
}
