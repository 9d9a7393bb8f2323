package handlers

import (
	"errors"
	"net/http"

	"otengine/middleware"
	"otengine/reconcile"

	"github.com/sirupsen/logrus"
)

type ReconcileHandler struct {
	sched *reconcile.Scheduler
	log   logrus.FieldLogger
}

func NewReconcileHandler(sched *reconcile.Scheduler, log logrus.FieldLogger) *ReconcileHandler {
	return &ReconcileHandler{sched: sched, log: log}
}

// RunNow triggers a reconciliation run and waits for its summary.
func (h *ReconcileHandler) RunNow(w http.ResponseWriter, r *http.Request) {
	admin := middleware.GetUserFromContext(r.Context())
	summary, err := h.sched.RunNow(r.Context())
	switch {
	case errors.Is(err, reconcile.ErrRunInProgress):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	case err != nil:
		h.log.WithError(err).WithField("run_id", summary.RunID).Error("manual reconcile run failed")
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":   "reconcile run failed; the next scheduled run will retry",
			"summary": summary,
		})
		return
	}
	h.log.WithFields(logrus.Fields{"admin_id": admin.ID, "run_id": summary.RunID, "closed": summary.Closed}).
		Info("manual reconcile run")
	writeJSON(w, http.StatusOK, summary)
}
