package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"otengine/attendance"
	"otengine/config"
	"otengine/database"
	"otengine/handlers"
	"otengine/location"
	"otengine/middleware"
	"otengine/overtime"
	"otengine/payroll"
	"otengine/reconcile"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log := logrus.New()
	log.SetLevel(cfg.LogLevel)
	if cfg.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	dbLevel := logger.Warn
	if cfg.LogLevel >= logrus.DebugLevel {
		dbLevel = logger.Info
	}
	db, err := database.Open(cfg.DatabaseURL, log.WithField("component", "gorm"), dbLevel)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db, log); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	store := database.NewStore(db)

	locCfg := location.DefaultConfig()
	locCfg.IndoorAccuracyThreshold = cfg.IndoorAccuracy
	locCfg.IndoorMultiplier = cfg.IndoorMultiplier

	guard := payroll.NewGuard(store, payroll.Options{
		Location:        cfg.Timezone,
		MinReasonLength: cfg.UnlockReasonMinLength,
		Logger:          log.WithField("component", "payroll"),
	})
	otService := overtime.NewService(store, guard, overtime.Options{
		Location:       cfg.Timezone,
		ApprovalPolicy: cfg.OTApprovalPolicy,
		DefaultCheckIn: cfg.DefaultCheckIn,
		Logger:         log.WithField("component", "overtime"),
	})
	attService := attendance.NewService(store, location.NewValidator(locCfg), guard, attendance.Options{
		Location: cfg.Timezone,
		Logger:   log.WithField("component", "attendance"),
	})
	if err := attService.RefreshOffices(ctx); err != nil {
		log.Fatalf("Failed to load office locations: %v", err)
	}

	sched := reconcile.NewScheduler(store, guard, reconcile.Options{
		Schedule:       cfg.ReconcileSchedule,
		LookbackDays:   cfg.ReconcileLookback,
		FlatThreshold:  cfg.ReconcileThreshold,
		EarlyLead:      cfg.ReconcileEarlyLead,
		Concurrency:    cfg.ReconcileConcurrency,
		DefaultCheckIn: cfg.DefaultCheckIn,
		Location:       cfg.Timezone,
		Logger:         log.WithField("component", "reconcile"),
	})
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start reconciliation scheduler: %v", err)
	}

	auth := middleware.NewAuth(cfg.JWTSecret, cfg.JWTExpiration, store)
	router := handlers.NewRouter(handlers.Handlers{
		Auth:       handlers.NewAuthHandler(store, auth, log),
		Attendance: handlers.NewAttendanceHandler(attService, log),
		Overtime:   handlers.NewOvertimeHandler(otService, log),
		Payroll:    handlers.NewPayrollHandler(guard, log),
		Reconcile:  handlers.NewReconcileHandler(sched, log),
	}, auth)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("Server starting on port %s", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown")
	}
	sched.Stop()
}
