package migrations

import (
	"context"
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

type Migrations struct {
	Migrations  []*gormigrate.Migration
	GormOptions *gormigrate.Options
}

func (m *Migrations) Migrate(ctx context.Context, db *gorm.DB) error {
	return gormigrate.New(db.WithContext(ctx), m.GormOptions, m.Migrations).Migrate()
}

func (m *Migrations) RollbackLast(ctx context.Context, db *gorm.DB) error {
	gm := gormigrate.New(db.WithContext(ctx), m.GormOptions, m.Migrations)
	if err := gm.RollbackLast(); err != nil {
		return err
	}
	return m.deleteMigrationTableIfEmpty(db)
}

func (m *Migrations) deleteMigrationTableIfEmpty(db *gorm.DB) error {
	count := int64(0)
	sql := fmt.Sprintf("SELECT count(*) FROM %s", m.GormOptions.TableName)
	if err := db.Raw(sql).Scan(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return db.Migrator().DropTable(m.GormOptions.TableName)
	}
	return nil
}
