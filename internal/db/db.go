package db

import (
	"context"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/vikasavnish/botbridge/internal/config"
	"github.com/vikasavnish/botbridge/internal/models"
)

const sqliteScheme = "sqlite://"

// Connect opens the user/account database and migrates its schema. A
// sqlite:// URL selects the embedded driver for local runs.
func Connect(cfg config.DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	if strings.HasPrefix(cfg.URL, sqliteScheme) {
		dialector = sqlite.Open(strings.TrimPrefix(cfg.URL, sqliteScheme))
	} else {
		dialector = postgres.Open(cfg.URL)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	if err := db.AutoMigrate(&models.User{}, &models.Account{}); err != nil {
		return nil, errors.Wrap(err, "migrate schema")
	}

	if err := createDefaultAdmin(db, cfg, logger); err != nil {
		return nil, err
	}

	return db, nil
}

// ConnectRedis establishes a connection to Redis
func ConnectRedis(cfg config.RedisConfig) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}

	client := redis.NewClient(opt)

	// Test the connection
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}

	return client, nil
}

// createDefaultAdmin creates the configured admin user if no users exist
func createDefaultAdmin(db *gorm.DB, cfg config.DatabaseConfig, logger *zap.Logger) error {
	if cfg.AdminUsername == "" || cfg.AdminPassword == "" {
		return nil
	}

	var userCount int64
	if err := db.Model(&models.User{}).Count(&userCount).Error; err != nil {
		return errors.Wrap(err, "count users")
	}
	if userCount > 0 {
		return nil
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "hash admin password")
	}
	err = db.Create(&models.User{
		Username:       cfg.AdminUsername,
		HashedPassword: string(hashedPassword),
		Email:          cfg.AdminEmail,
		Role:           "admin",
	}).Error
	if err != nil {
		return errors.Wrap(err, "create admin user")
	}
	logger.Info("created default admin user", zap.String("username", cfg.AdminUsername))
	return nil
}
