package store

import (
	"context"
	"fmt"
	"time"

	"CoopLedgerSaas/internal/errs"
	"CoopLedgerSaas/internal/model"

	"github.com/jackc/pgx/v5"
)

// PostingTx is the unit of work of one posting run. Ledger writes and status
// flips for a single row go through Savepoint so that one failing row rolls
// back only its own changes.
type PostingTx interface {
	// MissingStatements returns the ids in statementIDs with no bank statement.
	MissingStatements(ctx context.Context, statementIDs []int64) ([]int64, error)
	// LockMatched snapshots matched rows with a member, restricted to
	// statementIDs when non-empty. Rows locked by a concurrent run are skipped.
	LockMatched(ctx context.Context, statementIDs []int64) ([]model.ExtractedTransaction, error)
	Savepoint(ctx context.Context, fn func(q DBTX) error) error
	MarkProcessed(ctx context.Context, q DBTX, id int64, ledgerRef string, at time.Time) error
	InsertProcessingLog(ctx context.Context, l model.ProcessingLog) (model.ProcessingLog, error)
}

// RunPosting executes fn in a single database transaction. fn's error rolls
// back everything, including the processing log.
func (s *Store) RunPosting(ctx context.Context, fn func(ctx context.Context, tx PostingTx) error) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &postingTx{tx: tx})
	})
}

type postingTx struct {
	tx pgx.Tx
}

func (p *postingTx) MissingStatements(ctx context.Context, statementIDs []int64) ([]int64, error) {
	if len(statementIDs) == 0 {
		return nil, nil
	}
	rows, err := p.tx.Query(ctx, `
		SELECT u.id FROM unnest($1::bigint[]) AS u(id)
		WHERE NOT EXISTS (SELECT 1 FROM bank_statements b WHERE b.id = u.id)
		ORDER BY u.id`, statementIDs)
	if err != nil {
		return nil, errs.FromDB(err, "")
	}
	missing, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, errs.FromDB(err, "")
	}
	return missing, nil
}

func (p *postingTx) LockMatched(ctx context.Context, statementIDs []int64) ([]model.ExtractedTransaction, error) {
	q := `SELECT ` + txnColumns + ` FROM extracted_transactions t
		WHERE t.status = 'matched' AND t.matched_member_id IS NOT NULL`
	args := []any{}
	if len(statementIDs) > 0 {
		q += ` AND t.bank_statement_id = ANY($1)`
		args = append(args, statementIDs)
	}
	q += ` ORDER BY t.id FOR UPDATE SKIP LOCKED`
	rows, err := p.tx.Query(ctx, q, args...)
	if err != nil {
		return nil, errs.FromDB(err, "")
	}
	out, err := collectTxns(rows)
	if err != nil {
		return nil, errs.FromDB(err, "")
	}
	return out, nil
}

func (p *postingTx) Savepoint(ctx context.Context, fn func(q DBTX) error) error {
	sp, err := p.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("open savepoint: %w", err)
	}
	if err := fn(sp); err != nil {
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (savepoint rollback: %v)", err, rbErr)
		}
		return err
	}
	return sp.Commit(ctx)
}

func (p *postingTx) MarkProcessed(ctx context.Context, q DBTX, id int64, ledgerRef string, at time.Time) error {
	tag, err := q.Exec(ctx, `
		UPDATE extracted_transactions
		SET status = 'processed', ledger_reference = $2, processed_at = $3, updated_at = now()
		WHERE id = $1 AND status = 'matched'`, id, ledgerRef, at)
	if err != nil {
		return errs.FromDB(err, "")
	}
	if tag.RowsAffected() != 1 {
		return errs.Posting(fmt.Sprintf("transaction %d is no longer matched", id), nil)
	}
	return nil
}

func (p *postingTx) InsertProcessingLog(ctx context.Context, l model.ProcessingLog) (model.ProcessingLog, error) {
	ids := l.StatementIDs
	if ids == nil {
		ids = []int64{}
	}
	err := p.tx.QueryRow(ctx, `
		INSERT INTO statement_processing_logs
			(bank_statement_id, statement_ids, period_id, operator_id, total_count, matched_count, unmatched_count, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		l.BankStatementID, ids, l.PeriodID, l.OperatorID, l.TotalCount, l.MatchedCount, l.UnmatchedCount, l.Status,
	).Scan(&l.ID, &l.CreatedAt)
	if err != nil {
		return l, errs.FromDB(err, "")
	}
	l.StatementIDs = ids
	return l, nil
}
