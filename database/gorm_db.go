package database

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/camden-git/faceenhancer/models"
)

// InitGormDB opens the SQLite history database and migrates its schema.
func InitGormDB(dataSourceName string, log logrus.FieldLogger) (*gorm.DB, error) {
	gormLogger := logger.New(
		log.WithField("component", "gorm"),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(sqlite.Open(dataSourceName), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database using GORM: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB from GORM: %w", err)
	}
	// sqlite serializes writers anyway; one connection avoids SQLITE_BUSY
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
		log.WithError(err).Warn("database: failed to set WAL mode")
	}

	if err := AutoMigrateModels(db); err != nil {
		return nil, err
	}

	log.WithField("dsn", dataSourceName).Info("database initialized")
	return db, nil
}

func AutoMigrateModels(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Enhancement{}); err != nil {
		return fmt.Errorf("GORM AutoMigrate failed: %w", err)
	}
	return nil
}
