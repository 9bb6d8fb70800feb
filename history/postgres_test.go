package history_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgcontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/sagarc03/bigstash"
	"github.com/sagarc03/bigstash/history"
)

var (
	pgDSN     string
	pgErr     error
	pgOnce    sync.Once
	pgCleanup func()
	tableSeq  int
	tableMu   sync.Mutex
)

// TestMain terminates the shared container after all tests ran.
func TestMain(m *testing.M) {
	code := m.Run()
	if pgCleanup != nil {
		pgCleanup()
	}
	os.Exit(code)
}

// getSharedPostgres starts one PostgreSQL container for the package. Tests
// are skipped when no container runtime is available.
func getSharedPostgres(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres test in short mode")
	}

	pgOnce.Do(func() {
		ctx := context.Background()

		pgContainer, err := pgcontainer.Run(ctx,
			"postgres:18-alpine",
			pgcontainer.WithDatabase("testdb"),
			pgcontainer.WithUsername("testuser"),
			pgcontainer.WithPassword("testpass"),
			pgcontainer.BasicWaitStrategies(),
		)
		if err != nil {
			pgErr = err
			return
		}

		pgCleanup = func() {
			_ = testcontainers.TerminateContainer(pgContainer)
		}

		pgDSN, pgErr = pgContainer.ConnectionString(ctx, "sslmode=disable")
	})

	if pgErr != nil {
		t.Skipf("postgres container unavailable: %v", pgErr)
	}
	return pgDSN
}

// openPostgres opens a journal in its own table of the shared database.
func openPostgres(t *testing.T) *history.Store {
	t.Helper()

	dsn := getSharedPostgres(t)

	tableMu.Lock()
	tableSeq++
	table := fmt.Sprintf("bgst_uploads_%d", tableSeq)
	tableMu.Unlock()

	s, err := history.Open(context.Background(), history.Config{DSN: dsn, Table: table})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	history.SetClock(s, func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})

	return s
}

func TestPostgres_RecordAndFind(t *testing.T) {
	ctx := context.Background()
	s := openPostgres(t)

	recorded, err := s.Record(ctx, entry("7", bigstash.StatusPending))
	require.NoError(t, err)
	assert.Equal(t, int64(1500), recorded.SizeBytes)

	second, err := s.Record(ctx, entry("7", bigstash.StatusUploaded))
	require.NoError(t, err)
	assert.Equal(t, recorded.CreatedAt, second.CreatedAt)

	byURL, err := s.Find(ctx, "http://api.test/api/v1/uploads/7")
	require.NoError(t, err)
	assert.Equal(t, "7", byURL.ID)
	assert.Equal(t, bigstash.StatusUploaded, byURL.Status)

	_, err = s.Get(ctx, "8")
	assert.ErrorIs(t, err, history.ErrNotFound)
}

func TestPostgres_UpdateStatusAndList(t *testing.T) {
	ctx := context.Background()
	s := openPostgres(t)

	for _, id := range []string{"1", "2", "3"} {
		_, err := s.Record(ctx, entry(id, bigstash.StatusPending))
		require.NoError(t, err)
	}

	require.NoError(t, s.UpdateStatus(ctx, "1", bigstash.StatusCompleted))
	assert.ErrorIs(t, s.UpdateStatus(ctx, "99", bigstash.StatusCompleted), history.ErrNotFound)

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "1", all[0].ID)
	assert.Equal(t, bigstash.StatusCompleted, all[0].Status)

	limited, err := s.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestPostgres_Validate(t *testing.T) {
	ctx := context.Background()
	s := openPostgres(t)

	require.NoError(t, s.Validate(ctx))

	other, err := history.Connect(ctx, history.Config{DSN: getSharedPostgres(t), Table: "bgst_missing"})
	require.NoError(t, err)
	defer func() { _ = other.Close() }()

	assert.ErrorContains(t, other.Validate(ctx), "does not exist")
}
