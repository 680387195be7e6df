package database

import (
	"github.com/projectTest192/FoodTrace/internal/database/migrations"
)

func Migrations() *migrations.Migrations {
	return migrations.New()
}
