package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	analyticsdomain "github.com/smallbiznis/referly/internal/analytics/domain"
	authdomain "github.com/smallbiznis/referly/internal/auth/domain"
	referraldomain "github.com/smallbiznis/referly/internal/referral/domain"
	referralmetricdomain "github.com/smallbiznis/referly/internal/referralmetric/domain"
	rewarddomain "github.com/smallbiznis/referly/internal/reward/domain"
	userdomain "github.com/smallbiznis/referly/internal/user/domain"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// RunMigrations applies the embedded postgres migrations.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// Models lists every table the service owns, in dependency order.
func Models() []any {
	return []any{
		&userdomain.User{},
		&authdomain.Session{},
		&referraldomain.Referral{},
		&referralmetricdomain.ReferralMetric{},
		&rewarddomain.RewardPayout{},
		&analyticsdomain.Event{},
	}
}

// AutoMigrate builds the schema from the models for the sqlite and mysql
// development setups.
func AutoMigrate(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
