package database

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/coderoom/internal/cache"
	"github.com/jason-s-yu/coderoom/internal/models"
	"github.com/jason-s-yu/coderoom/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	testDSN    string
	skipReason string
)

// TestMain points the tests at PG_HOST when set and otherwise starts a
// throwaway PostgreSQL container. Without either the tests skip.
func TestMain(m *testing.M) {
	ctx := context.Background()
	var container *postgres.PostgresContainer

	if os.Getenv("PG_HOST") != "" {
		testDSN = Options{
			User:     os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			Host:     os.Getenv("PG_HOST"),
			Port:     os.Getenv("PG_PORT"),
			Database: os.Getenv("PG_DATABASE"),
		}.DSN()
	} else {
		var err error
		container, testDSN, err = startContainer(ctx)
		if err != nil {
			skipReason = "no PostgreSQL available: " + err.Error()
		}
	}

	code := m.Run()
	if container != nil {
		_ = container.Terminate(ctx)
	}
	os.Exit(code)
}

// startContainer runs a throwaway PostgreSQL.
func startContainer(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	var (
		c   *postgres.PostgresContainer
		dsn string
	)
	err := noPanic(func() error {
		var err error
		c, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("coderoom"),
			postgres.WithUsername("coderoom"),
			postgres.WithPassword("coderoom"),
			testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			return err
		}
		dsn, err = c.ConnectionString(ctx, "sslmode=disable")
		return err
	})
	return c, dsn, err
}

// noPanic runs fn and turns a panic into an error. testcontainers panics when
// it cannot find a Docker host at all.
func noPanic(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("docker unavailable: %v", r)
		}
	}()
	return fn()
}

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if skipReason != "" {
		t.Skip(skipReason)
	}
	ctx := context.Background()
	pool, err := ConnectDSN(ctx, testDSN)
	require.NoError(t, err)
	require.NoError(t, Migrate(ctx, pool))
	t.Cleanup(pool.Close)
	return pool
}

func newRoom(t *testing.T, s *RoomStore) (*models.Room, *models.Membership) {
	t.Helper()
	owner := uuid.New()
	r := models.NewRoom("pg-"+uuid.NewString()[:8], 4, models.VisibilityPublic, 1, models.ModeStudy)
	require.NoError(t, r.IncrementOccupancy())
	m := models.NewMembership(r.ID, owner, r.Capacity)
	require.NoError(t, s.CreateRoom(context.Background(), r, m))
	t.Cleanup(func() { _ = s.DeleteRoom(context.Background(), r.ID) })
	return r, m
}

func TestNoPanicReportsMissingDocker(t *testing.T) {
	err := noPanic(func() error { panic("rootless Docker not found") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rootless Docker not found")

	assert.NoError(t, noPanic(func() error { return nil }))
}

func TestDSN(t *testing.T) {
	o := Options{User: "u", Password: "p", Host: "db", Port: "5432", Database: "coderoom"}
	assert.Equal(t, "postgres://u:p@db:5432/coderoom", o.DSN())
}

func TestRoomStoreRoundTrip(t *testing.T) {
	s := NewRoomStore(testPool(t))
	ctx := context.Background()
	r, m := newRoom(t, s)

	got, err := s.GetRoom(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.Title, got.Title)
	assert.Equal(t, 1, got.Occupancy)
	assert.True(t, got.Accepting)

	byTitle, err := s.FindRoomByTitle(ctx, r.Title)
	require.NoError(t, err)
	assert.Equal(t, r.ID, byTitle.ID)

	gm, err := s.GetMembership(ctx, r.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(m, gm); diff != "" {
		t.Errorf("membership mismatch (-want +got):\n%s", diff)
	}

	err = s.CreateRoom(ctx, models.NewRoom(r.Title, 2, models.VisibilityPublic, 0, models.ModeStudy), m)
	assert.ErrorIs(t, err, store.ErrDuplicateTitle)
}

func TestRoomStoreMutate(t *testing.T) {
	s := NewRoomStore(testPool(t))
	ctx := context.Background()
	r, _ := newRoom(t, s)
	joiner := uuid.New()

	nr, nm, err := s.Mutate(ctx, r.ID, func(r *models.Room, m *models.Membership) error {
		i, err := m.FindEmptySlot()
		if err != nil {
			return err
		}
		if err := m.SetSlot(i, models.MemberSlot(joiner)); err != nil {
			return err
		}
		return r.IncrementOccupancy()
	})
	require.NoError(t, err)
	assert.Equal(t, 2, nr.Occupancy)
	assert.Equal(t, models.MemberSlot(joiner), nm.Slots[1])

	// a failing mutation leaves the rows untouched
	_, _, err = s.Mutate(ctx, r.ID, func(r *models.Room, m *models.Membership) error {
		_ = r.IncrementOccupancy()
		return models.ErrNoEmptySlot
	})
	assert.ErrorIs(t, err, models.ErrNoEmptySlot)
	got, err := s.GetRoom(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Occupancy)
}

func TestRoomStoreDelete(t *testing.T) {
	s := NewRoomStore(testPool(t))
	ctx := context.Background()
	r, _ := newRoom(t, s)

	require.NoError(t, s.DeleteRoom(ctx, r.ID))
	_, err := s.GetRoom(ctx, r.ID)
	assert.ErrorIs(t, err, store.ErrRoomNotFound)
	_, err = s.GetMembership(ctx, r.ID)
	assert.ErrorIs(t, err, store.ErrRoomNotFound)
	assert.ErrorIs(t, s.DeleteRoom(ctx, r.ID), store.ErrRoomNotFound)
}

func TestUserDirectory(t *testing.T) {
	pool := testPool(t)
	d := NewUserDirectory(pool)
	ctx := context.Background()
	u := models.User{ID: uuid.New(), Nickname: "ada", Level: 3}
	require.NoError(t, d.UpsertUser(ctx, u))
	require.NoError(t, d.SetOnline(ctx, u.ID, true))

	got, err := d.LookupMany(ctx, []uuid.UUID{u.ID, uuid.New()})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ada", got[u.ID].Nickname)
	assert.True(t, got[u.ID].Online)
}

func TestInsertRoomEvents(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	roomID := uuid.New()
	recs := []cache.RoomEventRecord{
		{RoomID: roomID, EventType: "start", Payload: json.RawMessage(`{"type":"start"}`), Timestamp: time.Now().UnixMilli()},
		{RoomID: roomID, EventType: "timeout", Payload: json.RawMessage(`{"type":"timeout"}`), Timestamp: time.Now().UnixMilli()},
	}
	err := pgx.BeginTxFunc(ctx, pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return InsertRoomEventsTx(ctx, tx, recs)
	})
	require.NoError(t, err)

	n, err := CountRoomEvents(ctx, pool, roomID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
