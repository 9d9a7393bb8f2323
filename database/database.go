package database

import (
	"fmt"
	"time"

	"otengine/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openSessionIndex enforces at most one in_progress OT session per user and
// calendar day. Concurrent StartSession calls race on this index, not on
// application locks.
const openSessionIndex = `CREATE UNIQUE INDEX IF NOT EXISTS uniq_ot_sessions_open
	ON ot_sessions (user_id, date) WHERE status = 'in_progress'`

func Open(dsn string, log logrus.FieldLogger, level logger.LogLevel) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger: logger.New(log, logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// Migrate creates the schema, the partial unique index and the seed rows.
func Migrate(db *gorm.DB, log logrus.FieldLogger) error {
	err := db.AutoMigrate(
		&models.Department{},
		&models.User{},
		&models.OfficeLocation{},
		&models.AttendanceRecord{},
		&models.OTSession{},
		&models.PayrollPeriod{},
		&models.Notification{},
		&models.ActivityLog{},
	)
	if err != nil {
		return err
	}

	if err := db.Exec(openSessionIndex).Error; err != nil {
		return fmt.Errorf("create open session index: %w", err)
	}

	return seedDefaults(db, log)
}

func seedDefaults(db *gorm.DB, log logrus.FieldLogger) error {
	var dept models.Department
	if err := db.Where(models.Department{Name: "General"}).
		Attrs(models.Department{CheckInTime: "09:00 AM", CheckOutTime: "06:00 PM"}).
		FirstOrCreate(&dept).Error; err != nil {
		return err
	}

	var count int64
	db.Model(&models.User{}).Where("username = ?", "admin").Count(&count)
	if count > 0 {
		return nil
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("admin"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	admin := models.User{
		Username:     "admin",
		FullName:     "Administrator",
		PasswordHash: string(hashedPassword),
		Role:         models.RoleMasterAdmin,
		DepartmentID: &dept.ID,
		Active:       true,
	}

	if err := db.Create(&admin).Error; err != nil {
		return err
	}

	log.Warn("default master admin created (username: admin, password: admin); change it before production use")
	return nil
}
