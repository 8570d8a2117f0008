package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrDatabaseNotFound is returned when a SQLite database file does not exist
// and the caller did not ask for it to be created.
var ErrDatabaseNotFound = errors.New("database does not exist")

// ErrSchemaOutdated is returned when the schema is missing tables, columns or
// indexes. Run the migrations to fix it.
var ErrSchemaOutdated = errors.New("database schema is not up to date")

// Responses holds the raw response bodies captured during a poll cycle.
//
// These are the heavy, deferred fields of a [Record]. They are written once
// at insert time and only read back through [Reader.Responses].
type Responses struct {
	HealthCheckResponse    string `gorm:"not null;default:''" json:"health_check_response"`
	ReadinessCheckResponse string `gorm:"not null;default:''" json:"readiness_check_response"`
	MetadataResponse       string `gorm:"not null;default:''" json:"metadata_response"`
}

// Record is one poll attempt against a GitLab instance.
//
// Exactly one Record is written per poll cycle whatever its outcome. Records
// returned by [Reader.List] and [Reader.Recent] carry an empty Responses;
// fetch the bodies explicitly with [Reader.Responses].
type Record struct {
	ID                   int64     `gorm:"primaryKey" json:"id"`
	BaseURL              string    `gorm:"not null;index" json:"base_url"`
	CreatedAt            time.Time `gorm:"not null;index" json:"created_at"`
	HealthCheckPassed    bool      `gorm:"not null;default:false;index" json:"health_check_passed"`
	ReadinessCheckPassed bool      `gorm:"not null;default:false;index" json:"readiness_check_passed"`
	InstanceVersion      string    `gorm:"not null;default:'';index" json:"instance_version"`
	Responses            `gorm:"embedded" json:"-"`
	ErrorMessage         string `gorm:"not null;default:''" json:"error_message"`
}

// TableName pins the table name used by every dialect.
func (Record) TableName() string {
	return "poll_entry"
}

// lightColumns is the projection used by listing queries.
var lightColumns = []string{
	"id",
	"base_url",
	"created_at",
	"health_check_passed",
	"readiness_check_passed",
	"instance_version",
	"error_message",
}

// responseColumns are the deferred columns.
var responseColumns = []string{
	"health_check_response",
	"readiness_check_response",
	"metadata_response",
}

// Filter selects records for listing. Zero-valued fields are not applied;
// all applied fields must hold.
type Filter struct {
	// BaseURL matches records polled against this base URL, compared after
	// [NormalizeBaseURL].
	BaseURL string

	// From keeps records created at or after this instant.
	From time.Time

	// To keeps records created strictly before this instant.
	To time.Time
}

// IsZero reports whether no filter field is set.
func (f Filter) IsZero() bool {
	return NormalizeBaseURL(f.BaseURL) == "" && f.From.IsZero() && f.To.IsZero()
}

// NormalizeBaseURL drops surrounding whitespace and trailing slashes, the
// form in which base URLs are recorded.
func NormalizeBaseURL(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), "/")
}

// Match reports whether r satisfies the filter.
func (f Filter) Match(r Record) bool {
	if base := NormalizeBaseURL(f.BaseURL); base != "" && r.BaseURL != base {
		return false
	}
	if !f.From.IsZero() && r.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !r.CreatedAt.Before(f.To) {
		return false
	}
	return true
}

// Recorder persists poll records.
type Recorder interface {
	// Insert commits a new record. ID is assigned, and CreatedAt is set to the
	// current UTC time when zero.
	Insert(ctx context.Context, r *Record) error
}

// Reader reads poll records back.
type Reader interface {
	// List calls fn for every record matching filter, ordered by CreatedAt
	// ascending then ID. Responses are not loaded. Iteration stops at the
	// first error returned by fn.
	List(ctx context.Context, filter Filter, fn func(Record) error) error

	// Responses loads the deferred response bodies for the given record IDs.
	// Unknown IDs are absent from the result.
	Responses(ctx context.Context, ids []int64) (map[int64]Responses, error)

	// Recent returns up to limit records, newest first. Responses are not loaded.
	Recent(ctx context.Context, limit int) ([]Record, error)
}

// Store combines [Recorder] and [Reader].
type Store interface {
	Recorder
	Reader

	// Close releases the underlying resources.
	Close() error
}
