// Package sqlitedb stores download history in SQLite through gorm. The schema is owned by the embedded migrations, not
// by gorm's AutoMigrate.
package sqlitedb

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"moul.io/zapgorm2"

	"github.com/000Volk000/TubeTap/internal/history"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

type download struct {
	ID         string    `gorm:"column:id;primaryKey"`
	URL        string    `gorm:"column:url"`
	Kind       string    `gorm:"column:kind"`
	Quality    string    `gorm:"column:quality"`
	Path       string    `gorm:"column:path"`
	Success    bool      `gorm:"column:success"`
	Error      string    `gorm:"column:error"`
	StartedAt  time.Time `gorm:"column:started_at"`
	FinishedAt time.Time `gorm:"column:finished_at"`
}

func (download) TableName() string {
	return "downloads"
}

func fromRecord(r *history.Record) download {
	return download{
		ID:         r.ID,
		URL:        r.URL,
		Kind:       r.Kind,
		Quality:    r.Quality,
		Path:       r.Path,
		Success:    r.Success,
		Error:      r.Error,
		StartedAt:  r.StartedAt.UTC(),
		FinishedAt: r.FinishedAt.UTC(),
	}
}

func (d download) toRecord() history.Record {
	return history.Record{
		ID:         d.ID,
		URL:        d.URL,
		Kind:       d.Kind,
		Quality:    d.Quality,
		Path:       d.Path,
		Success:    d.Success,
		Error:      d.Error,
		StartedAt:  d.StartedAt.UTC(),
		FinishedAt: d.FinishedAt.UTC(),
	}
}

type Database struct {
	db  *gorm.DB
	sql *sql.DB
	log *zap.SugaredLogger
}

// New opens the SQLite database at path and brings its schema up to date. gorm's own logging goes through logger.
func New(path string, logger *zap.Logger) (*Database, error) {
	if logger == nil {
		logger = zap.L()
	}
	gormLogger := zapgorm2.New(logger.Named("gorm"))
	gormLogger.IgnoreRecordNotFoundError = true
	gormLogger.SlowThreshold = 500 * time.Millisecond

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer
	sqlDB.SetMaxOpenConns(1)

	d := &Database{db: db, sql: sqlDB, log: logger.Sugar().Named("sqlitedb")}
	if err := d.Migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return d, nil
}

func (d *Database) Migrate() error {
	source, err := iofs.New(embedMigrations, "migrations")
	if err != nil {
		return err
	}
	driver, err := sqlite3.WithInstance(d.sql, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to prepare migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to prepare migrations: %w", err)
	}
	err = m.Up()
	switch {
	case err == nil:
		d.log.Info("database migration complete")
	case errors.Is(err, migrate.ErrNoChange):
		d.log.Debug("no database migration required")
	default:
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

func (d *Database) List() ([]history.Record, error) {
	var rows []download
	if err := d.db.Order("started_at").Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	records := make([]history.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toRecord())
	}
	return records, nil
}

func (d *Database) Write(record *history.Record) error {
	row := fromRecord(record)
	return d.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

func (d *Database) Delete(id string) error {
	res := d.db.Delete(&download{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return history.ErrNotFound
	}
	return nil
}

func (d *Database) Close() error {
	return d.sql.Close()
}
