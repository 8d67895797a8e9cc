package db

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/suPer8Hu/mind-weather/internal/reflection"
	"gorm.io/gorm"
)

func migrations() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		{
			ID: "001_sessions_thoughts",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&reflection.Session{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&reflection.Thought{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("thoughts", "sessions")
			},
		},
	}
}

// Migrate brings the schema up to date.
func Migrate(gdb *gorm.DB) error {
	return gormigrate.New(gdb, gormigrate.DefaultOptions, migrations()).Migrate()
}

// Rollback undoes the most recent migration.
func Rollback(gdb *gorm.DB) error {
	return gormigrate.New(gdb, gormigrate.DefaultOptions, migrations()).RollbackLast()
}
