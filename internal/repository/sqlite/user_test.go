package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/invite-chat/internal/apperror"
)

// newTestDB returns a fresh in-memory database with migrations applied.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// newFileTestDB is used where concurrency matters and a real file is closer
// to production than an in-memory database.
func newFileTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatalf("failed to create file test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCreateUser_FirstUserBecomesAdmin(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first, err := db.CreateUser(ctx, "alice", true)
	require.NoError(t, err)
	assert.True(t, first.IsAdmin, "first user should be admin")
	assert.True(t, first.IsApproved)
	assert.NotEmpty(t, first.ID)

	second, err := db.CreateUser(ctx, "bob", true)
	require.NoError(t, err)
	assert.False(t, second.IsAdmin, "second user must not be admin")
}

func TestCreateUser_SimpleVariantNeverAdmin(t *testing.T) {
	db := newTestDB(t)

	u, err := db.CreateUser(context.Background(), "alice", false)
	require.NoError(t, err)
	assert.False(t, u.IsAdmin)
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.CreateUser(ctx, "alice", true)
	require.NoError(t, err)

	_, err = db.CreateUser(ctx, "alice", true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrConflict), "got %v", err)

	n, err := db.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCreateUser_EmptyUsernameAccepted(t *testing.T) {
	db := newTestDB(t)

	u, err := db.CreateUser(context.Background(), "", true)
	require.NoError(t, err)
	assert.Equal(t, "", u.Username)
}

func TestFindUserByUsername(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	created, err := db.CreateUser(ctx, "alice", true)
	require.NoError(t, err)

	found, err := db.FindUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, "alice", found.Username)
	assert.True(t, found.IsAdmin)
	assert.True(t, found.IsApproved)
	assert.False(t, found.CreatedAt.IsZero())
}

func TestFindUserByUsername_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.FindUserByUsername(context.Background(), "nobody")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "got %v", err)
}

func TestCountUsers(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	n, err := db.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	for _, name := range []string{"a", "b", "c"} {
		_, err := db.CreateUser(ctx, name, true)
		require.NoError(t, err)
	}

	n, err = db.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestCreateUser_ConcurrentFirstLoginsYieldOneAdmin(t *testing.T) {
	db := newFileTestDB(t)
	ctx := context.Background()

	const workers = 16
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		admins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := db.CreateUser(ctx, string(rune('a'+i)), true)
			if err != nil {
				t.Errorf("CreateUser(%d): %v", i, err)
				return
			}
			if u.IsAdmin {
				mu.Lock()
				admins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, admins)
}

func TestNew_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.db")

	db, err := New(path)
	require.NoError(t, err)
	_, err = db.CreateUser(context.Background(), "alice", true)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Migrations must be idempotent across restarts.
	db, err = New(path)
	require.NoError(t, err)
	defer db.Close()

	u, err := db.FindUserByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, u.IsAdmin)
}
