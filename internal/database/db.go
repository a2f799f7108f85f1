package database

import (
	"fmt"
	"log/slog"
	"strings"

	"backoffice/internal/config"
	"backoffice/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewConnection opens postgres when DATABASE_URL is set and a local sqlite file otherwise
func NewConnection(cfg config.DatabaseConfig, level string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	if cfg.URL != "" {
		dialector = postgres.Open(cfg.DSN())
	} else {
		dialector = sqlite.Open(sqliteDSN(cfg.SQLitePath))
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         NewGormLogger(slog.Default(), level, cfg.SlowQueryThreshold),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.URL == "" {
		slog.Warn("DATABASE_URL is empty, using local sqlite database", "path", cfg.SQLitePath)
	}
	return db, nil
}

// Migrate creates or updates every table the API uses
func Migrate(db *gorm.DB) error {
	if err := db.SetupJoinTable(&model.ProcessingDocument{}, "Tags", &model.DocumentTag{}); err != nil {
		return fmt.Errorf("failed to set up document_tags: %w", err)
	}
	return db.AutoMigrate(
		&model.Tenant{},
		&model.Company{},
		&model.Contact{},
		&model.User{},
		&model.Permission{},
		&model.Role{},
		&model.UserRoleAssignment{},
		&model.ProcessingDocument{},
		&model.DocumentRevision{},
		&model.LineItem{},
		&model.Tag{},
		&model.DocumentTag{},
		&model.AuditLog{},
		&model.ContractService{},
		&model.ServiceDeadline{},
		&model.TaxCode{},
	)
}

// sqliteDSN enables foreign keys, which sqlite leaves off per connection
func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path + "&_foreign_keys=on"
	}
	return path + "?_foreign_keys=on"
}
