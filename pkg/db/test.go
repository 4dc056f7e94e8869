package db

import (
	"fmt"
	"sync/atomic"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testSeq atomic.Int64

// NewTest opens an isolated in-memory sqlite database.
// Each call gets its own named shared-cache database so parallel tests do not collide.
func NewTest() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:referly_test_%d?mode=memory&cache=shared&_pragma=foreign_keys(1)", testSeq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	// A single connection keeps the in-memory database alive and serialises writers.
	sqlDB.SetMaxOpenConns(1)
	return conn, nil
}
