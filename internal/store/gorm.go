package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// listPageSize bounds how many light records are held per listing query.
var listPageSize = 500

// indexedFields maps the indexed Record fields to their column names.
var indexedFields = []struct {
	field  string
	column string
}{
	{"BaseURL", "base_url"},
	{"CreatedAt", "created_at"},
	{"HealthCheckPassed", "health_check_passed"},
	{"ReadinessCheckPassed", "readiness_check_passed"},
	{"InstanceVersion", "instance_version"},
}

// Options configures [Open].
type Options struct {
	// CreateIfMissing allows a missing SQLite database file to be created.
	// Only migrations should set it; everything else expects a migrated file.
	CreateIfMissing bool

	// Logger receives database errors. Defaults to slog.Default().
	Logger *slog.Logger
}

// GormStore is a [Store] backed by a SQL database through gorm.
//
// DSNs starting with postgres:// or postgresql:// select PostgreSQL. Anything
// else is treated as a SQLite database path, optionally prefixed with
// sqlite://.
type GormStore struct {
	db      *gorm.DB
	dialect string
	logger  *slog.Logger
}

// Open connects to the database identified by dsn.
//
// The connection pool is limited to a single connection.
func Open(ctx context.Context, dsn string, opts Options) (*GormStore, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dialector, dialect, err := newDialector(dsn, opts.CreateIfMissing)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.New(slogWriter{logger: logger}, gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Error,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access %s connection pool: %w", dialect, err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", dialect, err)
	}

	logger.Debug("database opened", "dialect", dialect)

	return &GormStore{db: db, dialect: dialect, logger: logger}, nil
}

// newDialector picks the gorm dialector for dsn.
func newDialector(dsn string, create bool) (gorm.Dialector, string, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, "", errors.New("database location is required")
	}

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return postgres.Open(dsn), "postgres", nil
	}

	path := strings.TrimPrefix(dsn, "sqlite://")
	file, _, hasQuery := strings.Cut(path, "?")
	if file == "" {
		return nil, "", errors.New("sqlite database path is required")
	}

	if !create && file != ":memory:" {
		if _, err := os.Stat(file); errors.Is(err, fs.ErrNotExist) {
			return nil, "", fmt.Errorf("%w: %s", ErrDatabaseNotFound, file)
		}
	}

	// timestamps are written in a sortable text format so range filters
	// compare correctly
	sep := "?"
	if hasQuery {
		sep = "&"
	}
	return sqlite.Open(path + sep + "_pragma=busy_timeout(5000)&_time_format=sqlite"), "sqlite", nil
}

// Dialect returns "sqlite" or "postgres".
func (s *GormStore) Dialect() string {
	return s.dialect
}

// Migrate creates or updates the poll_entry table and its indexes.
func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&Record{}); err != nil {
		return fmt.Errorf("failed to migrate poll_entry: %w", err)
	}
	return nil
}

// PendingMigrations lists the schema changes [GormStore.Migrate] would apply.
// An empty result means the schema is current.
func (s *GormStore) PendingMigrations(ctx context.Context) ([]string, error) {
	m := s.db.WithContext(ctx).Migrator()
	table := Record{}.TableName()

	if !m.HasTable(&Record{}) {
		return []string{"create table " + table}, nil
	}

	var pending []string
	for _, col := range append(append([]string{}, lightColumns...), responseColumns...) {
		if !m.HasColumn(&Record{}, col) {
			pending = append(pending, fmt.Sprintf("add column %s.%s", table, col))
		}
	}
	for _, idx := range indexedFields {
		if !m.HasIndex(&Record{}, idx.field) {
			pending = append(pending, fmt.Sprintf("create index on %s.%s", table, idx.column))
		}
	}
	return pending, nil
}

// CheckSchema returns an error wrapping [ErrSchemaOutdated] if migrations are
// pending.
func (s *GormStore) CheckSchema(ctx context.Context) error {
	pending, err := s.PendingMigrations(ctx)
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		return fmt.Errorf("%w (%s); run the migrate command", ErrSchemaOutdated, strings.Join(pending, "; "))
	}
	return nil
}

// Insert commits r. See [Recorder.Insert].
func (s *GormStore) Insert(ctx context.Context, r *Record) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	} else {
		r.CreatedAt = r.CreatedAt.UTC()
	}

	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("failed to insert poll record: %w", err)
	}
	return nil
}

// List implements [Reader.List].
//
// Records are read in pages using the (created_at, id) ordering as a cursor,
// so fn may issue its own queries against the store between records.
func (s *GormStore) List(ctx context.Context, filter Filter, fn func(Record) error) error {
	var (
		cursor  *Record
		records []Record
	)

	for {
		q := s.db.WithContext(ctx).Model(&Record{}).Select(lightColumns)
		q = applyFilter(q, filter)
		if cursor != nil {
			q = q.Where("(created_at > ? OR (created_at = ? AND id > ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
		}

		records = records[:0]
		if err := q.Order("created_at ASC").Order("id ASC").Limit(listPageSize).Find(&records).Error; err != nil {
			return fmt.Errorf("failed to list poll records: %w", err)
		}

		for _, r := range records {
			if err := fn(r); err != nil {
				return err
			}
		}

		if len(records) < listPageSize {
			return nil
		}
		last := records[len(records)-1]
		cursor = &last
	}
}

// Responses implements [Reader.Responses].
func (s *GormStore) Responses(ctx context.Context, ids []int64) (map[int64]Responses, error) {
	result := make(map[int64]Responses, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var records []Record
	err := s.db.WithContext(ctx).
		Model(&Record{}).
		Select(append([]string{"id"}, responseColumns...)).
		Where("id IN ?", ids).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load poll responses: %w", err)
	}

	for _, r := range records {
		result[r.ID] = r.Responses
	}
	return result, nil
}

// Recent implements [Reader.Recent].
func (s *GormStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return []Record{}, nil
	}

	var records []Record
	err := s.db.WithContext(ctx).
		Model(&Record{}).
		Select(lightColumns).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load recent poll records: %w", err)
	}
	return records, nil
}

// Close closes the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// applyFilter adds the conjunctive filter predicates to q.
func applyFilter(q *gorm.DB, filter Filter) *gorm.DB {
	if base := NormalizeBaseURL(filter.BaseURL); base != "" {
		q = q.Where("base_url = ?", base)
	}
	if !filter.From.IsZero() {
		q = q.Where("created_at >= ?", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		q = q.Where("created_at < ?", filter.To.UTC())
	}
	return q
}

// slogWriter adapts slog to gorm's logger.Writer.
type slogWriter struct {
	logger *slog.Logger
}

func (w slogWriter) Printf(format string, args ...interface{}) {
	w.logger.Error("database error", "detail", fmt.Sprintf(format, args...))
}
