package handlers

import (
	"net/http"

	"otengine/middleware"
	"otengine/models"
	"otengine/overtime"

	"github.com/sirupsen/logrus"
)

type OvertimeHandler struct {
	svc *overtime.Service
	log logrus.FieldLogger
}

func NewOvertimeHandler(svc *overtime.Service, log logrus.FieldLogger) *OvertimeHandler {
	return &OvertimeHandler{svc: svc, log: log}
}

type evidenceRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,latitude"`
	Longitude *float64 `json:"longitude" validate:"required,longitude"`
	ImageRef  string   `json:"image_ref" validate:"max=500"`
	Address   string   `json:"address" validate:"max=500"`
}

func (e evidenceRequest) evidence() models.Evidence {
	return models.Evidence{ImageRef: e.ImageRef, Latitude: e.Latitude, Longitude: e.Longitude, Address: e.Address}
}

type startRequest struct {
	evidenceRequest
	OTType    models.OTType `json:"ot_type" validate:"required,oneof=early_arrival late_departure weekend holiday"`
	SessionID string        `json:"session_id" validate:"omitempty,uuid"`
}

func (h *OvertimeHandler) Start(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	var req startRequest
	if !decode(w, r, &req) {
		return
	}

	session, err := h.svc.StartSession(r.Context(), overtime.StartRequest{
		UserID:          user.ID,
		OTType:          req.OTType,
		Evidence:        req.evidence(),
		ClientSessionID: req.SessionID,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

type endRequest struct {
	evidenceRequest
	SessionID string `json:"session_id" validate:"required"`
}

func (h *OvertimeHandler) End(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	var req endRequest
	if !decode(w, r, &req) {
		return
	}

	session, err := h.svc.EndSession(r.Context(), overtime.EndRequest{
		SessionID: req.SessionID,
		UserID:    user.ID,
		Evidence:  req.evidence(),
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type reviewRequest struct {
	SessionID     string               `json:"session_id" validate:"required"`
	Action        models.SessionStatus `json:"action" validate:"required,oneof=APPROVED ADJUSTED REJECTED"`
	Notes         string               `json:"notes" validate:"max=1000"`
	AdjustedHours *float64             `json:"adjusted_hours" validate:"omitempty,gte=0,lte=24"`
}

func (h *OvertimeHandler) Review(w http.ResponseWriter, r *http.Request) {
	admin := middleware.GetUserFromContext(r.Context())
	var req reviewRequest
	if !decode(w, r, &req) {
		return
	}

	session, err := h.svc.ReviewSession(r.Context(), overtime.ReviewRequest{
		SessionID:     req.SessionID,
		Action:        req.Action,
		AdminID:       admin.ID,
		Notes:         req.Notes,
		AdjustedHours: req.AdjustedHours,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}
