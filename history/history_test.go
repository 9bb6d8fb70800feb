package history_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/sagarc03/bigstash"
	"github.com/sagarc03/bigstash/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite" // SQLite driver
)

// setupStore opens an in-memory journal with a stepping clock.
func setupStore(t *testing.T) *history.Store {
	t.Helper()

	s, err := history.Open(context.Background(), history.Config{DSN: ":memory:"})
	require.NoError(t, err, "failed to open")
	t.Cleanup(func() { _ = s.Close() })

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	history.SetClock(s, func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})

	return s
}

func entry(id, status string) history.Entry {
	return history.Entry{
		ID:         id,
		UploadURL:  "http://api.test/api/v1/uploads/" + id + "/",
		ArchiveURL: "http://api.test/api/v1/archives/42/",
		ArchiveKey: "42-ABCDE",
		Title:      "x",
		SizeBytes:  1500,
		FileCount:  3,
		Status:     status,
	}
}

func TestStore_RecordAndGet(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	recorded, err := s.Record(ctx, entry("7", bigstash.StatusPending))
	require.NoError(t, err)

	got, err := s.Get(ctx, "7")
	require.NoError(t, err)

	assert.Equal(t, recorded, got)
	assert.Equal(t, "x", got.Title)
	assert.Equal(t, int64(1500), got.SizeBytes)
	assert.Equal(t, 3, got.FileCount)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 1, 0, time.UTC), got.CreatedAt)
}

func TestStore_RecordReplacesKeepingCreated(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	first, err := s.Record(ctx, entry("7", bigstash.StatusPending))
	require.NoError(t, err)

	second, err := s.Record(ctx, entry("7", bigstash.StatusUploaded))
	require.NoError(t, err)

	assert.Equal(t, bigstash.StatusUploaded, second.Status)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))
}

func TestStore_RecordRequiresID(t *testing.T) {
	s := setupStore(t)

	_, err := s.Record(context.Background(), history.Entry{Title: "x"})
	assert.Error(t, err)
}

func TestStore_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	_, err := s.Record(ctx, entry("7", bigstash.StatusUploaded))
	require.NoError(t, err)

	require.NoError(t, s.UpdateStatus(ctx, "7", bigstash.StatusCompleted))

	got, err := s.Get(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, bigstash.StatusCompleted, got.Status)

	err = s.UpdateStatus(ctx, "missing", bigstash.StatusCompleted)
	assert.ErrorIs(t, err, history.ErrNotFound)
}

func TestStore_Find(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	_, err := s.Record(ctx, entry("7", bigstash.StatusUploaded))
	require.NoError(t, err)

	tests := []struct {
		name    string
		ref     string
		wantErr error
	}{
		{name: "by id", ref: "7"},
		{name: "by url", ref: "http://api.test/api/v1/uploads/7/"},
		{name: "by url without slash", ref: "http://api.test/api/v1/uploads/7"},
		{name: "unknown", ref: "8", wantErr: history.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Find(ctx, tt.ref)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "7", got.ID)
		})
	}
}

func TestStore_List(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	for _, id := range []string{"1", "2", "3"} {
		_, err := s.Record(ctx, entry(id, bigstash.StatusUploaded))
		require.NoError(t, err)
	}
	require.NoError(t, s.UpdateStatus(ctx, "1", bigstash.StatusCompleted))

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"1", "3", "2"}, []string{all[0].ID, all[1].ID, all[2].ID})

	limited, err := s.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestNewEntry(t *testing.T) {
	up := &bigstash.Upload{
		URL:    "http://api.test/api/v1/uploads/7/",
		Status: bigstash.StatusUploaded,
		Archive: &bigstash.Archive{
			URL: "http://api.test/api/v1/archives/42/",
			Key: "42-ABCDE",
		},
		S3: &bigstash.BucketToken{TokenSecretKey: "secret"},
	}

	e := history.NewEntry(up, "x", 1500, 3)

	assert.Equal(t, "7", e.ID)
	assert.Equal(t, "42-ABCDE", e.ArchiveKey)
	assert.Equal(t, "http://api.test/api/v1/archives/42/", e.ArchiveURL)
	assert.Equal(t, bigstash.StatusUploaded, e.Status)
}

func TestConnect_InvalidTable(t *testing.T) {
	_, err := history.Connect(context.Background(), history.Config{DSN: ":memory:", Table: "Bad-Name"})
	assert.ErrorIs(t, err, history.ErrInvalidTableName)
}

func TestStore_Validate(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "history.db")

	t.Run("missing table", func(t *testing.T) {
		s, err := history.Connect(ctx, history.Config{DSN: dsn})
		require.NoError(t, err)
		defer func() { _ = s.Close() }()

		err = s.Validate(ctx)
		assert.ErrorContains(t, err, "does not exist")
	})

	t.Run("wrong schema", func(t *testing.T) {
		db, err := sql.Open("sqlite", dsn)
		require.NoError(t, err)
		_, err = db.ExecContext(ctx, `CREATE TABLE bgst_uploads (id TEXT NOT NULL PRIMARY KEY, status INTEGER)`)
		require.NoError(t, err)
		require.NoError(t, db.Close())

		s, err := history.Connect(ctx, history.Config{DSN: dsn})
		require.NoError(t, err)
		defer func() { _ = s.Close() }()

		err = s.Validate(ctx)
		require.Error(t, err)
		assert.ErrorContains(t, err, "missing columns")
		assert.ErrorContains(t, err, "status: expected text, got integer")
	})

	t.Run("file database persists", func(t *testing.T) {
		other := filepath.Join(t.TempDir(), "history.db")

		s, err := history.Open(ctx, history.Config{DSN: other})
		require.NoError(t, err)
		_, err = s.Record(ctx, entry("9", bigstash.StatusUploaded))
		require.NoError(t, err)
		require.NoError(t, s.Close())

		reopened, err := history.Open(ctx, history.Config{DSN: other})
		require.NoError(t, err)
		defer func() { _ = reopened.Close() }()

		got, err := reopened.Get(ctx, "9")
		require.NoError(t, err)
		assert.Equal(t, "x", got.Title)
	})
}

func TestConfig_ResolveType(t *testing.T) {
	tests := []struct {
		name string
		cfg  history.Config
		want string
	}{
		{"file path", history.Config{DSN: "/home/me/.config/bigstash/history.db"}, history.TypeSQLite},
		{"memory", history.Config{DSN: ":memory:"}, history.TypeSQLite},
		{"postgres url", history.Config{DSN: "postgres://u:p@db:5432/bgst"}, history.TypePostgres},
		{"postgresql url", history.Config{DSN: "postgresql://db/bgst"}, history.TypePostgres},
		{"explicit", history.Config{Type: history.TypePostgres, DSN: "host=db dbname=bgst"}, history.TypePostgres},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.ResolveType())
		})
	}
}

func TestConnect_UnsupportedType(t *testing.T) {
	_, err := history.Connect(context.Background(), history.Config{Type: "mysql", DSN: "x"})
	assert.ErrorIs(t, err, history.ErrUnsupportedType)
}
