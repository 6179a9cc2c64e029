package database

import (
	"database/sql"
	"fmt"

	"github.com/guildbank/backend/internal/config"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// InitDB opens and verifies the Postgres pool.
func InitDB(cfg config.DBConfig, log *logrus.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test connection
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	log.WithFields(logrus.Fields{
		"host": cfg.Host,
		"name": cfg.Name,
	}).Info("Database connection established")
	return db, nil
}
