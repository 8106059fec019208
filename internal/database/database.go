package database

import (
	"fmt"

	"github.com/heritago/backend/internal/config"
	"github.com/heritago/backend/internal/models"
	"github.com/heritago/backend/pkg/utils"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func Connect(cfg config.DBConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	if err := seedSuperadmin(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate runs the schema migration shared by the server and the test
// harness, including constraints GORM tags cannot express.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Family{},
		&models.Membership{},
		&models.Invitation{},
		&models.Content{},
		&models.PublicationRequest{},
	); err != nil {
		return err
	}

	// At most one pending publication request per content item. Partial
	// unique indexes work on both postgres and sqlite, so the invariant is
	// identical in production and in tests.
	return db.Exec(`
CREATE UNIQUE INDEX IF NOT EXISTS idx_pub_requests_pending
ON publication_requests (content_id)
WHERE status = 'pending'`).Error
}

func seedSuperadmin(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		return nil
	}

	hash, err := utils.HashPassword("admin123")
	if err != nil {
		return err
	}

	admin := models.User{
		Email:                 "admin@heritago.local",
		PasswordHash:          hash,
		DisplayName:           "Platform Admin",
		Role:                  models.UserRoleSuperadmin,
		Active:                true,
		PasswordResetRequired: true,
	}

	return db.Create(&admin).Error
}
