package directory

import (
	"context"
	"os"
	"testing"

	"CoopLedgerSaas/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Runs against a disposable database named by TEST_DATABASE_URL.
func newTestDirectory(t *testing.T) (*Directory, map[string]int64) {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	require.NoError(t, store.Migrate(dsn, zap.NewNop()))
	ctx := context.Background()
	db, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	// integration tests of several packages share the database
	conn, err := db.Conn(ctx)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, `SELECT pg_advisory_lock(7301)`)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock(7301)`)
		conn.Close()
	})

	_, err = db.ExecContext(ctx, `TRUNCATE members RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	ids := map[string]int64{}
	for _, m := range []struct{ first, last, status string }{
		{"Jane", "Doe", "active"},
		{"John", "Roe", "suspended"},
		{"Sam", "", "probation"},
	} {
		var id int64
		require.NoError(t, db.QueryRowContext(ctx,
			`INSERT INTO members (first_name, last_name, membership_status) VALUES ($1, $2, $3) RETURNING id`,
			m.first, m.last, m.status).Scan(&id))
		ids[m.first] = id
	}
	return New(db), ids
}

func TestActiveMembersFiltersByStatus(t *testing.T) {
	d, ids := newTestDirectory(t)

	members, err := d.ActiveMembers(context.Background(), []string{"active", "probation"})
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, ids["Jane"], members[0].ID)
	assert.Equal(t, "Jane Doe", members[0].FullName())
	assert.Equal(t, "Sam", members[1].FullName())
}

func TestMembersByIDs(t *testing.T) {
	d, ids := newTestDirectory(t)

	got, err := d.MembersByIDs(context.Background(), []int64{ids["John"], 999})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "suspended", got[ids["John"]].MembershipStatus)

	empty, err := d.MembersByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
