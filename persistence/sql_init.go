package persistence

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	// drivers selected by the db URL scheme
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

var tables = map[string][]string{
	"postgres": {`CREATE TABLE IF NOT EXISTS blob_metadata (
	workspace_id uuid NOT NULL,
	file_id text NOT NULL,
	file_type text NOT NULL,
	file_size bigint NOT NULL,
	PRIMARY KEY (workspace_id, file_id));`},

	"mysql": {`CREATE TABLE IF NOT EXISTS blob_metadata (
	workspace_id varchar(36) NOT NULL,
	file_id varchar(255) NOT NULL,
	file_type varchar(255) NOT NULL,
	file_size bigint NOT NULL,
	PRIMARY KEY (workspace_id, file_id));`},

	"sqlite3": {`CREATE TABLE IF NOT EXISTS blob_metadata (
	workspace_id varchar(36) NOT NULL,
	file_id varchar(255) NOT NULL,
	file_type varchar(255) NOT NULL,
	file_size bigint NOT NULL,
	PRIMARY KEY (workspace_id, file_id));`},
}

// CreateDBConnection sets up a DB connection and ensures required tables exist
func CreateDBConnection(url *url.URL) (*sqlx.DB, error) {
	driver := url.Scheme
	switch driver {
	case "postgres", "mysql", "sqlite3":
	default:
		return nil, fmt.Errorf("Invalid db driver %s", driver)
	}

	if driver == "sqlite3" {
		dir := filepath.Dir(url.Path)
		err := os.MkdirAll(dir, 0755)
		if err != nil {
			return nil, err
		}
	}

	uri := url.String()
	// lib/pq consumes the URL form directly, the other drivers want a bare DSN
	if driver != "postgres" {
		uri = strings.TrimPrefix(uri, url.Scheme+"://")
	}

	sqldb, err := sql.Open(driver, uri)
	if err != nil {
		logrus.WithFields(logrus.Fields{"url": uri}).WithError(err).Error("couldn't open db")
		return nil, err
	}

	sqlxDb := sqlx.NewDb(sqldb, driver)
	err = sqlxDb.Ping()
	if err != nil {
		logrus.WithFields(logrus.Fields{"url": uri}).WithError(err).Error("couldn't ping db")
		return nil, err
	}

	sqlxDb.SetMaxIdleConns(256)
	switch driver {
	case "sqlite3":
		sqlxDb.SetMaxOpenConns(1)
	}

	for _, v := range tables[driver] {
		_, err = sqlxDb.Exec(v)
		if err != nil {
			return nil, fmt.Errorf("Failed to create database table %s: %v", v, err)
		}
	}

	return sqlxDb, nil
}
