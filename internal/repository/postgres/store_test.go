package postgres

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/threadline/internal/db"
	"github.com/lalith-99/threadline/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// These are integration tests against a real Postgres. They are skipped
// unless TEST_POSTGRES_DSN points at a database the tests may migrate.

var (
	poolOnce sync.Once
	testDB   *db.DB
	poolErr  error
)

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("set TEST_POSTGRES_DSN to run postgres integration tests")
	}

	poolOnce.Do(func() {
		ctx := context.Background()
		testDB, poolErr = db.New(ctx, dsn, zap.NewNop())
		if poolErr != nil {
			return
		}
		poolErr = testDB.Migrate(ctx)
	})
	require.NoError(t, poolErr)
	return testDB.Pool()
}

type fixture struct {
	ctx      context.Context
	users    *UserStore
	threads  *ThreadStore
	messages *MessageStore
	projects *ProjectStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	pool := testPool(t)
	users := NewUserStore(pool)
	return &fixture{
		ctx:      context.Background(),
		users:    users,
		threads:  NewThreadStore(pool, users),
		messages: NewMessageStore(pool),
		projects: NewProjectStore(pool),
	}
}

// newUser creates a throwaway user; deleting it cascades to everything the
// test created under it.
func (f *fixture) newUser(t *testing.T) *models.User {
	t.Helper()
	u, err := f.users.Create(f.ctx, "Test User", uuid.NewString()+"@example.com", "hash")
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = f.users.pool.Exec(context.Background(), `DELETE FROM users WHERE id = $1`, u.ID)
	})
	return u
}

func (f *fixture) newThread(t *testing.T, userID uuid.UUID, projectID *uuid.UUID) *models.ChatThread {
	t.Helper()
	th, err := f.threads.Create(f.ctx, models.NewThread{
		ID:        uuid.New(),
		Title:     "thread",
		UserID:    userID,
		ProjectID: projectID,
	})
	require.NoError(t, err)
	return th
}

func (f *fixture) newMessage(t *testing.T, threadID uuid.UUID, role models.Role, at time.Time) *models.ChatMessage {
	t.Helper()
	m, err := f.messages.Create(f.ctx, textMessage(threadID, role, "hi", at))
	require.NoError(t, err)
	return m
}

func textMessage(threadID uuid.UUID, role models.Role, text string, at time.Time) models.ChatMessage {
	part, _ := json.Marshal(map[string]string{"type": "text", "text": text})
	return models.ChatMessage{
		ID:        uuid.New(),
		ThreadID:  threadID,
		Role:      role,
		Parts:     []json.RawMessage{part},
		CreatedAt: at,
	}
}

func ids(msgs []models.ChatMessage) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

// base is truncated to microseconds, Postgres timestamp precision.
func base() time.Time {
	return time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)
}

func assertSameMessage(t *testing.T, want, got models.ChatMessage) {
	t.Helper()
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.ThreadID, got.ThreadID)
	assert.Equal(t, want.Role, got.Role)
	assert.Equal(t, want.Model, got.Model)
	require.Len(t, got.Parts, len(want.Parts))
	for i := range want.Parts {
		assert.JSONEq(t, string(want.Parts[i]), string(got.Parts[i]))
	}
}
