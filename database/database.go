package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/anjiri1684/peptide_shop/logger"
	"github.com/anjiri1684/peptide_shop/models"
)

func ConnectDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: false,
	}), &gorm.Config{
		PrepareStmt:                              false,
		SkipDefaultTransaction:                   true,
		DisableForeignKeyConstraintWhenMigrating: true,
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

	logger.Log.Info("database connected")
	return db, nil
}

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Payment{},
		&models.PaySequence{},
		&models.AdminAccount{},
	)
	if err != nil {
		return err
	}
	logger.Log.Info("database migration successful")
	return nil
}

// SeedAdmin creates the admin API account if it does not exist yet.
func SeedAdmin(db *gorm.DB, username, password string) error {
	if password == "" {
		logger.Log.Warn("ADMIN_PASSWORD not set, admin API account not seeded")
		return nil
	}

	var count int64
	if err := db.Model(&models.AdminAccount{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		logger.Log.Info("admin account already exists", zap.String("username", username))
		return nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return errors.New("failed to hash admin password")
	}

	admin := models.AdminAccount{
		Username: username,
		Password: string(hashed),
		Role:     "admin",
	}
	if err := db.Create(&admin).Error; err != nil {
		return err
	}

	logger.Log.Info("admin account seeded", zap.String("username", username))
	return nil
}
