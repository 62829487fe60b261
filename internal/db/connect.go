// Package db provides the flat persistence layer for accounts, whitelist
// entries, and leaderboard scores. SQLite is the default backend; a MySQL DSN
// switches to a server-backed store. The fleet core never touches this
// package; credentials and whitelists are handed to it as plain values.
package db

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens a GORM connection to the SQLite store at path.
func Connect(path string) (*gorm.DB, error) {
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", path, err)
	}
	return gdb, nil
}

// ConnectMySQL opens a GORM connection to a MySQL-compatible server.
func ConnectMySQL(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: connect mysql: %w", err)
	}
	return gdb, nil
}

// Open connects to whichever backend the config selects and migrates the
// schema.
func Open(path, mysqlDSN string) (*gorm.DB, error) {
	var gdb *gorm.DB
	var err error
	if mysqlDSN != "" {
		gdb, err = ConnectMySQL(mysqlDSN)
	} else {
		gdb, err = Connect(path)
	}
	if err != nil {
		return nil, err
	}
	if err := AutoMigrate(gdb); err != nil {
		return nil, err
	}
	return gdb, nil
}
