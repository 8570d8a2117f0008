package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T) *GormStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "polls.db")
	s, err := Open(context.Background(), path, Options{CreateIfMissing: true, Logger: testLogger()})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return s
}

func TestOpen_MissingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.db")

	_, err := Open(context.Background(), path, Options{Logger: testLogger()})
	if !errors.Is(err, ErrDatabaseNotFound) {
		t.Errorf("Open() error = %v, want ErrDatabaseNotFound", err)
	}
}

func TestOpen_EmptyDSN(t *testing.T) {
	_, err := Open(context.Background(), "  ", Options{Logger: testLogger()})
	if err == nil {
		t.Error("Open() with empty dsn should fail")
	}
}

func TestOpen_Dialect(t *testing.T) {
	s := openTestStore(t)
	if s.Dialect() != "sqlite" {
		t.Errorf("Dialect() = %q, want sqlite", s.Dialect())
	}
}

func TestPendingMigrations(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "polls.db")

	s, err := Open(ctx, path, Options{CreateIfMissing: true, Logger: testLogger()})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	pending, err := s.PendingMigrations(ctx)
	if err != nil {
		t.Fatalf("PendingMigrations() error = %v", err)
	}
	if len(pending) != 1 || pending[0] != "create table poll_entry" {
		t.Errorf("PendingMigrations() = %v, want [create table poll_entry]", pending)
	}
	if err := s.CheckSchema(ctx); !errors.Is(err, ErrSchemaOutdated) {
		t.Errorf("CheckSchema() error = %v, want ErrSchemaOutdated", err)
	}

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	pending, err = s.PendingMigrations(ctx)
	if err != nil {
		t.Fatalf("PendingMigrations() error = %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("PendingMigrations() after Migrate = %v, want none", pending)
	}
	if err := s.CheckSchema(ctx); err != nil {
		t.Errorf("CheckSchema() after Migrate error = %v", err)
	}

	// migrating twice is a no-op
	if err := s.Migrate(ctx); err != nil {
		t.Errorf("second Migrate() error = %v", err)
	}
}

func TestGormStore_ReopenExisting(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "polls.db")

	s, err := Open(ctx, path, Options{CreateIfMissing: true, Logger: testLogger()})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := s.Insert(ctx, &Record{BaseURL: "https://gitlab.example.com"}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	s.Close()

	reopened, err := Open(ctx, path, Options{Logger: testLogger()})
	if err != nil {
		t.Fatalf("Open() existing error = %v", err)
	}
	defer reopened.Close()

	recent, err := reopened.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(recent) != 1 {
		t.Errorf("Recent() returned %d records, want 1", len(recent))
	}
}

func TestGormStore_Insert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := &Record{
		BaseURL:              "https://gitlab.example.com",
		HealthCheckPassed:    true,
		ReadinessCheckPassed: true,
		InstanceVersion:      "16.6.1-ee",
	}
	before := time.Now().UTC().Add(-time.Second)
	if err := s.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	if rec.ID == 0 {
		t.Error("Insert() did not assign an ID")
	}
	if rec.CreatedAt.Before(before) {
		t.Errorf("CreatedAt = %v, want after %v", rec.CreatedAt, before)
	}

	recent, err := s.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("Recent() returned %d records, want 1", len(recent))
	}
	got := recent[0]
	if got.ID != rec.ID || got.BaseURL != rec.BaseURL || got.InstanceVersion != "16.6.1-ee" {
		t.Errorf("Recent()[0] = %+v, want %+v", got, rec)
	}
	if !got.HealthCheckPassed || !got.ReadinessCheckPassed {
		t.Errorf("Recent()[0] flags = %v/%v, want true/true", got.HealthCheckPassed, got.ReadinessCheckPassed)
	}
	if got.ErrorMessage != "" {
		t.Errorf("ErrorMessage = %q, want empty", got.ErrorMessage)
	}
}

func TestGormStore_InsertNormalisesToUTC(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	zone := time.FixedZone("UTC+2", 2*60*60)
	local := time.Date(2024, 1, 15, 12, 0, 0, 0, zone)
	if err := s.Insert(ctx, &Record{BaseURL: "https://gitlab.example.com", CreatedAt: local}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	var got []Record
	err := s.List(ctx, Filter{From: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)}, func(r Record) error {
		got = append(got, r)
		return nil
	})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("List() returned %d records, want 1", len(got))
	}
	if !got[0].CreatedAt.Equal(local) {
		t.Errorf("CreatedAt = %v, want %v", got[0].CreatedAt, local)
	}
}

func TestGormStore_ListOrderAndFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	insert := func(url string, offset time.Duration) int64 {
		t.Helper()
		r := &Record{BaseURL: url, CreatedAt: base.Add(offset)}
		if err := s.Insert(ctx, r); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
		return r.ID
	}
	id1 := insert("https://a.example.com", 2*time.Hour)
	id2 := insert("https://b.example.com", 0)
	id3 := insert("https://a.example.com", time.Hour)
	id4 := insert("https://a.example.com", 3*time.Hour)

	tests := []struct {
		name   string
		filter Filter
		want   []int64
	}{
		{name: "no filter", filter: Filter{}, want: []int64{id2, id3, id1, id4}},
		{name: "base url", filter: Filter{BaseURL: "https://a.example.com"}, want: []int64{id3, id1, id4}},
		{name: "base url trailing slash", filter: Filter{BaseURL: " https://a.example.com// "}, want: []int64{id3, id1, id4}},
		{name: "from inclusive", filter: Filter{From: base.Add(time.Hour)}, want: []int64{id3, id1, id4}},
		{name: "to exclusive", filter: Filter{To: base.Add(2 * time.Hour)}, want: []int64{id2, id3}},
		{name: "combined", filter: Filter{BaseURL: "https://a.example.com", From: base, To: base.Add(3 * time.Hour)}, want: []int64{id3, id1}},
		{name: "empty range", filter: Filter{From: base.Add(5 * time.Hour)}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []int64
			err := s.List(ctx, tt.filter, func(r Record) error {
				got = append(got, r.ID)
				return nil
			})
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("List() ids = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("List() ids = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestGormStore_ResponsesAreDeferred(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := &Record{
		BaseURL:           "https://gitlab.example.com",
		HealthCheckPassed: true,
		Responses: Responses{
			HealthCheckResponse:    "GitLab OK",
			ReadinessCheckResponse: `{"status":"ok","master_check":[{"status":"ok"}]}`,
			MetadataResponse:       `{"version":"16.6.1-ee","revision":"abc"}`,
		},
	}
	if err := s.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	other := &Record{BaseURL: "https://gitlab.example.com", ErrorMessage: "boom"}
	if err := s.Insert(ctx, other); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	err := s.List(ctx, Filter{}, func(r Record) error {
		if r.Responses != (Responses{}) {
			t.Errorf("List() loaded responses for %d: %+v", r.ID, r.Responses)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	got, err := s.Responses(ctx, []int64{rec.ID, other.ID, 12345})
	if err != nil {
		t.Fatalf("Responses() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Responses() returned %d entries, want 2", len(got))
	}
	if got[rec.ID] != rec.Responses {
		t.Errorf("Responses()[%d] = %+v, want %+v", rec.ID, got[rec.ID], rec.Responses)
	}
	if got[other.ID] != (Responses{}) {
		t.Errorf("Responses()[%d] = %+v, want empty", other.ID, got[other.ID])
	}

	empty, err := s.Responses(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("Responses(nil) = %v, %v, want empty map", empty, err)
	}
}

func TestGormStore_ListPaging(t *testing.T) {
	old := listPageSize
	listPageSize = 3
	t.Cleanup(func() { listPageSize = old })

	s := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	// identical timestamps force the id tiebreak across page boundaries
	var want []int64
	for i := 0; i < 8; i++ {
		r := &Record{BaseURL: "https://gitlab.example.com", CreatedAt: at}
		if err := s.Insert(ctx, r); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
		want = append(want, r.ID)
	}

	var got []int64
	err := s.List(ctx, Filter{}, func(r Record) error {
		// the callback may query the store mid-iteration
		if _, err := s.Responses(ctx, []int64{r.ID}); err != nil {
			return err
		}
		got = append(got, r.ID)
		return nil
	})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("List() ids = %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("List() ids = %v, want %v", got, want)
		}
	}
}

func TestGormStore_ListCallbackError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := s.Insert(ctx, &Record{BaseURL: "https://gitlab.example.com"}); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	stop := errors.New("stop")
	calls := 0
	err := s.List(ctx, Filter{}, func(Record) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Errorf("List() error = %v, want %v", err, stop)
	}
	if calls != 1 {
		t.Errorf("callback called %d times, want 1", calls)
	}
}

func TestGormStore_Recent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	var inserted []int64
	for i := 0; i < 4; i++ {
		r := &Record{BaseURL: "https://gitlab.example.com", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := s.Insert(ctx, r); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
		inserted = append(inserted, r.ID)
	}

	recent, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(recent) != 2 || recent[0].ID != inserted[3] || recent[1].ID != inserted[2] {
		t.Errorf("Recent(2) ids = %v, want [%d %d]", ids(recent), inserted[3], inserted[2])
	}

	none, err := s.Recent(ctx, 0)
	if err != nil || len(none) != 0 {
		t.Errorf("Recent(0) = %v, %v, want empty", none, err)
	}
}
