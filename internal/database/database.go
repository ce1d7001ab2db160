package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sort"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/notesync/internal/entities"
)

// Record is a single row of a collection, keyed by column name.
// The migration code never looks inside it.
type Record = map[string]any

var (
	ErrUnknownTable    = errors.New("unknown table")
	ErrTableNotInScope = errors.New("table is not part of the transaction")
)

// collectionModels maps every collection name the store exposes to its model.
var collectionModels = map[string]any{
	entities.CollectionPages:                    &entities.Page{},
	entities.CollectionVisits:                   &entities.Visit{},
	entities.CollectionBookmarks:                &entities.Bookmark{},
	entities.CollectionAnnotations:              &entities.Annotation{},
	entities.CollectionAnnotationPrivacyLevels:  &entities.AnnotationPrivacy{},
	entities.CollectionSharedAnnotationMetadata: &entities.SharedAnnotationMetadata{},
	entities.CollectionCustomLists:              &entities.CustomList{},
	entities.CollectionPageListEntries:          &entities.PageListEntry{},
	entities.CollectionSharedListMetadata:       &entities.SharedListMetadata{},
	entities.CollectionTags:                     &entities.Tag{},
	entities.CollectionSettings:                 &entities.Setting{},
	entities.CollectionTemplates:                &entities.Template{},
	entities.CollectionFavIcons:                 &entities.FavIcon{},
}

// Reader reads opaque records from named collections.
type Reader interface {
	FindAll(ctx context.Context, table string) ([]Record, error)
	FindPage(ctx context.Context, table string, offset, limit int) ([]Record, error)
}

type Database struct {
	DB *gorm.DB
	Reader
}

// DSN builds the sqlite connection string. Transactions are started with
// BEGIN IMMEDIATE so a read/write transaction holds the write lock from its
// first statement.
func DSN(dbPath string) string {
	return dbPath + "?_journal=WAL&_busy_timeout=5000&_txlock=immediate"
}

func NewDatabase(dbPath string) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(DSN(dbPath)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	models := make([]any, 0, len(collectionModels)+2)
	for _, name := range CollectionNames() {
		models = append(models, collectionModels[name])
	}
	models = append(models, &entities.SyncProgress{}, &entities.AuditEvent{})

	if err := db.AutoMigrate(models...); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Printf("Database initialized successfully at %s", dbPath)

	return &Database{DB: db, Reader: &tableReader{db: db}}, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SQLDB returns the connection pool shared with the task queue.
func (d *Database) SQLDB() (*sql.DB, error) {
	return d.DB.DB()
}

// Transaction runs fn inside a single read/write transaction. The Reader
// passed to fn only serves the listed tables, and ctx carries the
// underlying *sql.Tx (see TxFromContext) so other writers on the same
// database can join it. Any error returned by fn rolls everything back.
func (d *Database) Transaction(ctx context.Context, tables []string, fn func(ctx context.Context, r Reader) error) error {
	scope := make(map[string]struct{}, len(tables))
	for _, table := range tables {
		if _, ok := collectionModels[table]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownTable, table)
		}
		scope[table] = struct{}{}
	}

	return d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sqlTx, ok := tx.Statement.ConnPool.(*sql.Tx)
		if !ok {
			return fmt.Errorf("unexpected transaction connection %T", tx.Statement.ConnPool)
		}
		return fn(ContextWithTx(ctx, sqlTx), &tableReader{db: tx, scope: scope})
	})
}

// CollectionNames returns every known collection name in sorted order.
func CollectionNames() []string {
	names := make([]string, 0, len(collectionModels))
	for name := range collectionModels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsCollection reports whether name is a known collection.
func IsCollection(name string) bool {
	_, ok := collectionModels[name]
	return ok
}

// Count returns the number of rows in a collection.
func (d *Database) Count(ctx context.Context, table string) (int64, error) {
	if !IsCollection(table) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	var n int64
	err := d.DB.WithContext(ctx).Table(table).Count(&n).Error
	return n, err
}

type tableReader struct {
	db    *gorm.DB
	scope map[string]struct{} // nil means every collection
}

func (r *tableReader) check(table string) error {
	if !IsCollection(table) {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	if r.scope != nil {
		if _, ok := r.scope[table]; !ok {
			return fmt.Errorf("%w: %s", ErrTableNotInScope, table)
		}
	}
	return nil
}

func (r *tableReader) FindAll(ctx context.Context, table string) ([]Record, error) {
	if err := r.check(table); err != nil {
		return nil, err
	}
	records := make([]Record, 0)
	err := r.db.WithContext(ctx).Table(table).Order("rowid").Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// FindPage reads up to limit records starting at offset, in insertion order.
func (r *tableReader) FindPage(ctx context.Context, table string, offset, limit int) ([]Record, error) {
	if err := r.check(table); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("invalid page limit %d", limit)
	}
	records := make([]Record, 0, limit)
	err := r.db.WithContext(ctx).Table(table).Order("rowid").Offset(offset).Limit(limit).Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
