// Package export writes recorded poll history to CSV.
//
// Records are streamed from a [store.Reader] in creation order. Response
// bodies are only read when requested, in batches by record ID.
package export

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/jpalmerr/labwatch/internal/store"
)

// ErrOutputExists is returned when the export path is already taken.
var ErrOutputExists = errors.New("file already exists")

// TimeLayout is the format of the created_at column.
const TimeLayout = "2006-01-02 15:04:05"

// batchSize is how many records are buffered before their rows are written.
const batchSize = 500

// Columns are always exported, in this order.
var Columns = []string{
	"base_url",
	"instance_version",
	"health_check_passed",
	"readiness_check_passed",
	"created_at",
}

// ResponseColumns are appended when response bodies are included.
var ResponseColumns = []string{
	"health_check_response",
	"readiness_check_response",
	"metadata_response",
}

// Options configures [Run].
type Options struct {
	// Path is the output file. It must not exist.
	Path string

	// Filter selects the exported records.
	Filter store.Filter

	// IncludeResponses adds the three response body columns.
	IncludeResponses bool
}

// Run exports the records matching opts.Filter to opts.Path and returns the
// number of data rows written.
//
// If opts.Path exists, Run fails with [ErrOutputExists] without reading from
// r. On any later error the partially written file is left in place.
func Run(ctx context.Context, r store.Reader, opts Options) (int, error) {
	if err := CheckOutput(opts.Path); err != nil {
		return 0, err
	}

	// O_EXCL closes the gap between the check above and creation
	f, err := os.OpenFile(opts.Path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return 0, fmt.Errorf("%w: %s", ErrOutputExists, opts.Path)
		}
		return 0, fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	buf := bufio.NewWriter(f)
	n, err := Write(ctx, buf, r, opts.Filter, opts.IncludeResponses)
	if err != nil {
		return n, err
	}
	if err := buf.Flush(); err != nil {
		return n, fmt.Errorf("failed to write output file: %w", err)
	}
	if err := f.Close(); err != nil {
		return n, fmt.Errorf("failed to close output file: %w", err)
	}
	return n, nil
}

// CheckOutput returns an error wrapping [ErrOutputExists] if path is taken,
// including by a dangling symlink.
func CheckOutput(path string) error {
	if path == "" {
		return errors.New("output path is required")
	}
	if _, err := os.Lstat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrOutputExists, path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to check output path: %w", err)
	}
	return nil
}

// Write streams the CSV export to w and returns the number of data rows.
func Write(ctx context.Context, w io.StringWriter, r store.Reader, filter store.Filter, includeResponses bool) (int, error) {
	cw := newQuoteAllWriter(w)

	header := append([]string{}, Columns...)
	if includeResponses {
		header = append(header, ResponseColumns...)
	}
	if err := cw.Write(header); err != nil {
		return 0, err
	}

	var (
		rows  int
		batch = make([]store.Record, 0, batchSize)
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}

		var bodies map[int64]store.Responses
		if includeResponses {
			ids := make([]int64, len(batch))
			for i, rec := range batch {
				ids[i] = rec.ID
			}
			var err error
			bodies, err = r.Responses(ctx, ids)
			if err != nil {
				return err
			}
		}

		for _, rec := range batch {
			if err := cw.Write(row(rec, bodies, includeResponses)); err != nil {
				return err
			}
			rows++
		}
		batch = batch[:0]
		return nil
	}

	err := r.List(ctx, filter, func(rec store.Record) error {
		batch = append(batch, rec)
		if len(batch) >= batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return rows, err
	}
	if err := flush(); err != nil {
		return rows, err
	}
	return rows, nil
}

func row(rec store.Record, bodies map[int64]store.Responses, includeResponses bool) []string {
	fields := []string{
		rec.BaseURL,
		rec.InstanceVersion,
		yesNo(rec.HealthCheckPassed),
		yesNo(rec.ReadinessCheckPassed),
		rec.CreatedAt.UTC().Format(TimeLayout),
	}
	if includeResponses {
		b := bodies[rec.ID]
		fields = append(fields, b.HealthCheckResponse, b.ReadinessCheckResponse, b.MetadataResponse)
	}
	return fields
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

// ParseTimestamp parses a filter bound given as "2006-01-02" or
// "2006-01-02 15:04:05". The value is interpreted as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{TimeLayout, time.DateOnly} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q: expected YYYY-MM-DD or YYYY-MM-DD HH:MM:SS", s)
}

// DescribeFilter returns the lines announcing which filters an export applies.
func DescribeFilter(f store.Filter) []string {
	if f.IsZero() {
		return []string{"No filters specified. Entire database will be exported..."}
	}

	bound := func(t time.Time) string {
		if t.IsZero() {
			return "<none>"
		}
		return t.UTC().Format(time.RFC3339)
	}
	instance := f.BaseURL
	if instance == "" {
		instance = "<none>"
	}

	return []string{
		"Applying filters to exported queryset...",
		"  instance url:   " + instance,
		"  from timestamp: " + bound(f.From),
		"  to timestamp:   " + bound(f.To),
	}
}
