package handlers

import (
	"net/http"

	"otengine/middleware"
	"otengine/models"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

type Handlers struct {
	Auth       *AuthHandler
	Attendance *AttendanceHandler
	Overtime   *OvertimeHandler
	Payroll    *PayrollHandler
	Reconcile  *ReconcileHandler
}

func NewRouter(h Handlers, auth *middleware.Auth) http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	router.Route("/api", func(r chi.Router) {
		r.Post("/login", h.Auth.Login)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware)

			r.Get("/me", h.Auth.Me)

			r.Post("/attendance/check-in", h.Attendance.CheckIn)
			r.Post("/attendance/check-out", h.Attendance.CheckOut)
			r.Get("/attendance/today", h.Attendance.Today)
			r.Post("/location/validate", h.Attendance.ValidateLocation)

			r.Post("/ot/start", h.Overtime.Start)
			r.Post("/ot/end", h.Overtime.End)

			// Admin only routes
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(models.RoleAdmin, models.RoleMasterAdmin))
				r.Post("/ot/review", h.Overtime.Review)
				r.Post("/admin/reconcile/run", h.Reconcile.RunNow)
			})

			// Admin and HR routes
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(models.RoleAdmin, models.RoleMasterAdmin, models.RoleHR))
				r.Get("/payroll/{year}/{month}", h.Payroll.Status)
				r.Get("/payroll/{year}/{month}/summary", h.Payroll.Summary)
				r.Get("/payroll/{year}/{month}/export.csv", h.Payroll.ExportCSV)
				r.Get("/payroll/{year}/{month}/export.xlsx", h.Payroll.ExportXLSX)
			})

			// Master admin actions; the guard re-checks the role
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(models.RoleMasterAdmin))
				r.Post("/payroll/{year}/{month}/lock", h.Payroll.Lock)
				r.Post("/payroll/{year}/{month}/unlock", h.Payroll.Unlock)
				r.Post("/payroll/{year}/{month}/process", h.Payroll.Process)
			})
		})
	})

	return router
}
