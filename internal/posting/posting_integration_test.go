package posting

import (
	"context"
	"os"
	"testing"

	"CoopLedgerSaas/internal/errs"
	"CoopLedgerSaas/internal/ledger"
	"CoopLedgerSaas/internal/lock"
	"CoopLedgerSaas/internal/model"
	"CoopLedgerSaas/internal/store"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Runs against a disposable database named by TEST_DATABASE_URL.
func newPostingDB(t *testing.T) (*store.Store, *pgxpool.Pool) {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	require.NoError(t, store.Migrate(dsn, zap.NewNop()))
	ctx := context.Background()
	pool, err := store.Connect(ctx, dsn, 4)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	// integration tests of several packages share the database
	conn, err := pool.Acquire(ctx)
	require.NoError(t, err)
	_, err = conn.Exec(ctx, `SELECT pg_advisory_lock(7301)`)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock(7301)`)
		conn.Release()
	})

	_, err = pool.Exec(ctx, `TRUNCATE contributions, loans, members, statement_processing_logs,
		extracted_transactions, bank_statements RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return store.New(pool), pool
}

// seedMatched stores one statement whose rows are matched to the given
// members, in order, and returns the statement and row ids.
func seedMatched(t *testing.T, s *store.Store, members []int64, amounts []int64) (int64, []int64) {
	t.Helper()
	ctx := context.Background()
	created, err := s.InsertStatements(ctx, []model.BankStatement{
		{Filename: "april.csv", StoragePath: "bankstatements/april.csv", FileType: model.FileTypeSpreadsheet, Checksum: "april", UploadedBy: "op"},
	})
	require.NoError(t, err)
	stmt := created[0].ID
	ok, err := s.BeginProcessing(ctx, stmt)
	require.NoError(t, err)
	require.True(t, ok)

	txns := make([]model.NormalizedTransaction, len(amounts))
	for i, a := range amounts {
		txns[i] = model.NormalizedTransaction{
			AccountHolderName: "Depositor",
			Amount:            decimal.NewFromInt(a),
			TransactionType:   model.Credit,
			ConfidenceScore:   0.9,
			Source:            model.SourceSpreadsheet,
		}
	}
	_, err = s.CompleteStatement(ctx, stmt, txns)
	require.NoError(t, err)

	rows, err := s.TransactionsByStatus(ctx, model.TxnExtracted)
	require.NoError(t, err)
	require.Len(t, rows, len(members))
	ids := make([]int64, len(rows))
	for i, r := range rows {
		member := members[i]
		ok, err := s.ApplyMatch(ctx, r.ID, &member, 0.95, model.TxnMatched)
		require.NoError(t, err)
		require.True(t, ok)
		ids[i] = r.ID
	}
	return stmt, ids
}

func TestPostingAgainstPostgres(t *testing.T) {
	s, pool := newPostingDB(t)
	ctx := context.Background()

	var member int64
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO members (first_name, last_name) VALUES ('Jane', 'Doe') RETURNING id`).Scan(&member))
	// the second row points at a member the ledger does not know
	stmt, ids := seedMatched(t, s, []int64{member, member + 1000}, []int64{5000, 700})

	e := NewEngine(s, ledger.New(), lock.NewLocal(), zap.NewNop())
	sum, err := e.Run(ctx, Request{PeriodID: 3, StatementIDs: []int64{stmt}, OperatorID: "op-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.ProcessedCount)
	assert.Equal(t, 1, sum.UnmatchedCount)
	assert.Equal(t, 2, sum.TotalCount)
	require.Len(t, sum.Failures, 1)
	assert.Equal(t, ids[1], sum.Failures[0].TransactionID)

	var (
		gotMember, gotPeriod, source int64
		amount                       decimal.Decimal
		contributions                int
	)
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM contributions`).Scan(&contributions))
	assert.Equal(t, 1, contributions, "the rejected row leaves nothing behind")
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT member_id, period_id, amount, source_txn_id FROM contributions`).Scan(&gotMember, &gotPeriod, &amount, &source))
	assert.Equal(t, member, gotMember)
	assert.Equal(t, int64(3), gotPeriod)
	assert.True(t, amount.Equal(decimal.NewFromInt(5000)))
	assert.Equal(t, ids[0], source)

	good, err := s.GetTransaction(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, model.TxnProcessed, good.Status)
	require.NotNil(t, good.LedgerReference)
	assert.Contains(t, *good.LedgerReference, "contribution:")
	bad, err := s.GetTransaction(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, model.TxnMatched, bad.Status)
	assert.Nil(t, bad.LedgerReference)

	var logs int
	var logStatus string
	var logStatement *int64
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM statement_processing_logs`).Scan(&logs))
	assert.Equal(t, 1, logs)
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT status, bank_statement_id FROM statement_processing_logs WHERE id = $1`, sum.LogID).Scan(&logStatus, &logStatement))
	assert.Equal(t, string(model.LogPartial), logStatus)
	require.NotNil(t, logStatement)
	assert.Equal(t, stmt, *logStatement)

	again, err := e.Run(ctx, Request{PeriodID: 3, OperatorID: "op-1"})
	require.NoError(t, err)
	assert.Equal(t, 0, again.ProcessedCount)
	assert.Equal(t, 1, again.TotalCount, "only the rejected row is still matched")
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM contributions`).Scan(&contributions))
	assert.Equal(t, 1, contributions, "processed rows are never posted twice")
}

func TestPostingUnknownStatementAgainstPostgres(t *testing.T) {
	s, pool := newPostingDB(t)
	ctx := context.Background()

	e := NewEngine(s, ledger.New(), lock.NewLocal(), zap.NewNop())
	_, err := e.Run(ctx, Request{PeriodID: 3, StatementIDs: []int64{424242}, OperatorID: "op-1"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindNotFound))

	var logs int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM statement_processing_logs`).Scan(&logs))
	assert.Zero(t, logs)
}
