// Package sqlstore mirrors a bigcty.Store into a SQL database through gorm,
// for consumers that want to query prefixes with SQL.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/andreiashu/bigcty"
)

// batchSize bounds the rows per INSERT statement.
const batchSize = 500

// versionKey is the cty_meta name holding the store version.
const versionKey = "version"

// Prefix is one row of the cty_prefixes table.
type Prefix struct {
	Prefix        string  `gorm:"primaryKey;size:32"`
	Entity        string  `gorm:"size:255;not null"`
	CQZone        int     `gorm:"not null"`
	ITUZone       int     `gorm:"not null"`
	Continent     string  `gorm:"size:2;not null"`
	Latitude      float64 `gorm:"not null"`
	Longitude     float64 `gorm:"not null"`
	UTCOffset     float64 `gorm:"not null"`
	PrefixLength  int     `gorm:"not null"`
	PrimaryPrefix string  `gorm:"size:32;not null;index"`
	ExactMatch    bool    `gorm:"not null"`
}

func (Prefix) TableName() string { return "cty_prefixes" }

// Meta is a name/value row of the cty_meta table.
type Meta struct {
	Name  string `gorm:"primaryKey;size:64"`
	Value string `gorm:"size:255;not null"`
}

func (Meta) TableName() string { return "cty_meta" }

// Open connects to the database for the given dialect ("sqlite", "postgres"
// or "mysql") and migrates the schema.
func Open(dialect, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(dialect) {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	case "sqlite", "":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("sqlstore: unsupported dialect %q", dialect)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", dialect, err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates the cty_prefixes and cty_meta tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Prefix{}, &Meta{}); err != nil {
		return fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return nil
}

// Export replaces the table contents with the given store in one transaction.
// If anything fails the previous contents are kept.
func Export(ctx context.Context, db *gorm.DB, s *bigcty.Store) error {
	rows := make([]Prefix, 0, s.Len())
	for prefix, rec := range s.All() {
		rows = append(rows, toRow(prefix, rec))
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Prefix{}).Error; err != nil {
			return fmt.Errorf("clearing prefixes: %w", err)
		}
		if len(rows) > 0 {
			if err := tx.CreateInBatches(rows, batchSize).Error; err != nil {
				return fmt.Errorf("inserting prefixes: %w", err)
			}
		}
		meta := Meta{Name: versionKey, Value: s.Version()}
		if err := tx.Save(&meta).Error; err != nil {
			return fmt.Errorf("saving version: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sqlstore: export: %w", err)
	}
	return nil
}

// Import reads the tables back into a Store.
func Import(ctx context.Context, db *gorm.DB) (*bigcty.Store, error) {
	var rows []Prefix
	if err := db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlstore: import prefixes: %w", err)
	}

	doc := &bigcty.Document{Entries: make(map[string]bigcty.Record, len(rows))}
	var meta Meta
	err := db.WithContext(ctx).Where(&Meta{Name: versionKey}).First(&meta).Error
	switch {
	case err == nil:
		doc.Version = meta.Value
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return nil, fmt.Errorf("sqlstore: import version: %w", err)
	}

	for _, r := range rows {
		doc.Entries[r.Prefix] = r.record()
	}
	return bigcty.NewStore(doc), nil
}

func toRow(prefix string, r bigcty.Record) Prefix {
	return Prefix{
		Prefix:        prefix,
		Entity:        r.Entity,
		CQZone:        r.CQZone,
		ITUZone:       r.ITUZone,
		Continent:     r.Continent,
		Latitude:      r.Latitude,
		Longitude:     r.Longitude,
		UTCOffset:     r.UTCOffset,
		PrefixLength:  r.PrefixLength,
		PrimaryPrefix: r.PrimaryPrefix,
		ExactMatch:    r.ExactMatch,
	}
}

func (p Prefix) record() bigcty.Record {
	return bigcty.Record{
		Entity:        p.Entity,
		CQZone:        p.CQZone,
		ITUZone:       p.ITUZone,
		Continent:     p.Continent,
		Latitude:      p.Latitude,
		Longitude:     p.Longitude,
		UTCOffset:     p.UTCOffset,
		PrefixLength:  p.PrefixLength,
		PrimaryPrefix: p.PrimaryPrefix,
		ExactMatch:    p.ExactMatch,
	}
}
