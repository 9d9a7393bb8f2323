package handlers

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"otengine/apperr"
	"otengine/middleware"
	"otengine/models"
	"otengine/payroll"
	"otengine/report"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

type PayrollHandler struct {
	guard *payroll.Guard
	log   logrus.FieldLogger
}

func NewPayrollHandler(guard *payroll.Guard, log logrus.FieldLogger) *PayrollHandler {
	return &PayrollHandler{guard: guard, log: log}
}

func period(r *http.Request) (int, int, error) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		return 0, 0, apperr.Validation("year must be a number")
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil {
		return 0, 0, apperr.Validation("month must be a number")
	}
	return month, year, nil
}

func (h *PayrollHandler) Status(w http.ResponseWriter, r *http.Request) {
	month, year, err := period(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	p, err := h.guard.Status(r.Context(), month, year)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *PayrollHandler) Lock(w http.ResponseWriter, r *http.Request) {
	month, year, err := period(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	admin := middleware.GetUserFromContext(r.Context())
	p, err := h.guard.LockPeriod(r.Context(), month, year, admin.ID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type unlockRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

func (h *PayrollHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	month, year, err := period(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	var req unlockRequest
	if !decode(w, r, &req) {
		return
	}
	admin := middleware.GetUserFromContext(r.Context())
	p, err := h.guard.UnlockPeriod(r.Context(), month, year, admin.ID, req.Reason)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *PayrollHandler) Process(w http.ResponseWriter, r *http.Request) {
	month, year, err := period(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	admin := middleware.GetUserFromContext(r.Context())
	p, err := h.guard.MarkProcessed(r.Context(), month, year, admin.ID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *PayrollHandler) Summary(w http.ResponseWriter, r *http.Request) {
	month, year, err := period(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	rows, err := h.guard.Summary(r.Context(), month, year)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *PayrollHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "csv", "text/csv", report.WriteCSV)
}

func (h *PayrollHandler) ExportXLSX(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", report.WriteXLSX)
}

// export renders into a buffer first so a failure can still produce a JSON
// error instead of a truncated file.
func (h *PayrollHandler) export(w http.ResponseWriter, r *http.Request, ext, contentType string, render func(io.Writer, []models.PayrollSummaryRow) error) {
	month, year, err := period(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	rows, err := h.guard.Summary(r.Context(), month, year)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	var buf bytes.Buffer
	if err := render(&buf, rows); err != nil {
		writeError(w, h.log, apperr.Infrastructure(err, "render %s export", ext))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", report.Filename(month, year, ext)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	buf.WriteTo(w)
}
