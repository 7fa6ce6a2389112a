package repo

import (
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenSqlite opens a standalone sqlite database and migrates the schema.
// Used by tests so they run without a MySQL server. The connection pool is
// pinned to one connection: with an in-memory DSN every pooled connection
// would otherwise see its own empty database.
func OpenSqlite(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	autoMigrateAll(db)
	return db, nil
}
