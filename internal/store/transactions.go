package store

import (
	"context"
	"errors"
	"fmt"

	"CoopLedgerSaas/internal/errs"
	"CoopLedgerSaas/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const txnColumns = `t.id, t.bank_statement_id, t.account_holder_name, t.transaction_date, t.amount,
	t.transaction_type, t.description, t.account_number, t.confidence_score, t.match_score,
	t.matched_member_id, t.status, t.source, t.ledger_reference, t.processed_at, t.created_at, t.updated_at`

func scanTxnInto(row pgx.Row, t *model.ExtractedTransaction, extra ...any) error {
	dest := []any{&t.ID, &t.BankStatementID, &t.AccountHolderName, &t.TransactionDate, &t.Amount,
		&t.TransactionType, &t.Description, &t.AccountNumber, &t.ConfidenceScore, &t.MatchScore,
		&t.MatchedMemberID, &t.Status, &t.Source, &t.LedgerReference, &t.ProcessedAt, &t.CreatedAt, &t.UpdatedAt}
	return row.Scan(append(dest, extra...)...)
}

func collectTxns(rows pgx.Rows) ([]model.ExtractedTransaction, error) {
	defer rows.Close()
	var out []model.ExtractedTransaction
	for rows.Next() {
		var t model.ExtractedTransaction
		if err := scanTxnInto(rows, &t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TransactionsByStatus returns every row in status ordered by id.
func (s *Store) TransactionsByStatus(ctx context.Context, status model.TransactionStatus) ([]model.ExtractedTransaction, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+txnColumns+` FROM extracted_transactions t WHERE t.status = $1 ORDER BY t.id`, status)
	if err != nil {
		return nil, errs.FromDB(err, "")
	}
	out, err := collectTxns(rows)
	if err != nil {
		return nil, errs.FromDB(err, "")
	}
	return out, nil
}

// ApplyMatch records the outcome of automatic matching. It only touches rows
// still in extracted and reports whether the row was updated.
func (s *Store) ApplyMatch(ctx context.Context, id int64, memberID *int64, score float64, status model.TransactionStatus) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE extracted_transactions
		SET matched_member_id = $2, match_score = $3, status = $4, updated_at = now()
		WHERE id = $1 AND status = 'extracted'`, id, memberID, score, status)
	if err != nil {
		return false, errs.FromDB(err, "")
	}
	return tag.RowsAffected() == 1, nil
}

// TxnFilter narrows ListTransactions. A zero Limit returns every row.
type TxnFilter struct {
	Status *model.TransactionStatus
	Limit  int
	Offset int
}

// ListTransactions returns rows with their statement filename, oldest first,
// plus the total matching count.
func (s *Store) ListTransactions(ctx context.Context, f TxnFilter) ([]model.TransactionView, int, error) {
	where := ""
	args := []any{}
	if f.Status != nil {
		args = append(args, *f.Status)
		where = fmt.Sprintf(" WHERE t.status = $%d", len(args))
	}
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM extracted_transactions t`+where, args...).Scan(&total); err != nil {
		return nil, 0, errs.FromDB(err, "")
	}
	q := `SELECT ` + txnColumns + `, b.filename
		FROM extracted_transactions t
		JOIN bank_statements b ON b.id = t.bank_statement_id` + where + ` ORDER BY t.id`
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		q += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, errs.FromDB(err, "")
	}
	defer rows.Close()
	var out []model.TransactionView
	for rows.Next() {
		var v model.TransactionView
		if err := scanTxnInto(rows, &v.ExtractedTransaction, &v.Filename); err != nil {
			return nil, 0, errs.FromDB(err, "")
		}
		out = append(out, v)
	}
	return out, total, rows.Err()
}

func (s *Store) GetTransaction(ctx context.Context, id int64) (model.ExtractedTransaction, error) {
	var t model.ExtractedTransaction
	err := scanTxnInto(s.pool.QueryRow(ctx, `SELECT `+txnColumns+` FROM extracted_transactions t WHERE t.id = $1`, id), &t)
	if err != nil {
		return t, errs.FromDB(err, fmt.Sprintf("transaction %d not found", id))
	}
	return t, nil
}

// UpdateTransaction writes the editable fields of t. The write only applies if
// the row is still in expected, so a concurrent posting run cannot be
// overwritten; ok is false in that case.
func (s *Store) UpdateTransaction(ctx context.Context, t model.ExtractedTransaction, expected model.TransactionStatus) (model.ExtractedTransaction, bool, error) {
	var out model.ExtractedTransaction
	err := scanTxnInto(s.pool.QueryRow(ctx, `
		UPDATE extracted_transactions t
		SET account_holder_name = $3, transaction_date = $4, amount = $5, transaction_type = $6,
			description = $7, account_number = $8, matched_member_id = $9, status = $10,
			match_score = $11, updated_at = now()
		WHERE t.id = $1 AND t.status = $2
		RETURNING `+txnColumns,
		t.ID, expected, t.AccountHolderName, t.TransactionDate, t.Amount, t.TransactionType,
		t.Description, t.AccountNumber, t.MatchedMemberID, t.Status, t.MatchScore), &out)
	if errors.Is(err, pgx.ErrNoRows) {
		return out, false, nil
	}
	if err != nil {
		return out, false, errs.FromDB(err, "")
	}
	return out, true, nil
}

// DeleteTransaction removes a row that has not been posted. ok is false when
// no unposted row with id exists.
func (s *Store) DeleteTransaction(ctx context.Context, id int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM extracted_transactions WHERE id = $1 AND status <> 'processed'`, id)
	if err != nil {
		return false, errs.FromDB(err, "")
	}
	return tag.RowsAffected() == 1, nil
}

// InsertTransaction adds a single extracted row to an existing statement and
// bumps the statement's transaction count.
func (s *Store) InsertTransaction(ctx context.Context, statementID int64, n model.NormalizedTransaction) (model.ExtractedTransaction, error) {
	var out model.ExtractedTransaction
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		err := scanTxnInto(tx.QueryRow(ctx, `
			INSERT INTO extracted_transactions AS t
				(bank_statement_id, account_holder_name, transaction_date, amount, transaction_type,
				 description, account_number, confidence_score, source, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'extracted')
			RETURNING `+txnColumns,
			statementID, n.AccountHolderName, n.TransactionDate, n.Amount, n.TransactionType,
			n.Description, n.AccountNumber, n.ConfidenceScore, n.Source), &out)
		if err != nil {
			return errs.FromDB(err, "")
		}
		_, err = tx.Exec(ctx, `
			UPDATE bank_statements SET transactions_count = transactions_count + 1, updated_at = now()
			WHERE id = $1`, statementID)
		return errs.FromDB(err, "")
	})
	return out, err
}

// Stats aggregates counts per status and credit/debit totals.
func (s *Store) Stats(ctx context.Context) (model.Stats, error) {
	st := model.Stats{
		Statements:   map[model.StatementStatus]int{},
		Transactions: map[model.TransactionStatus]int{},
		TotalCredit:  decimal.Zero,
		TotalDebit:   decimal.Zero,
	}
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM bank_statements GROUP BY status`)
	if err != nil {
		return st, errs.FromDB(err, "")
	}
	for rows.Next() {
		var status model.StatementStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return st, errs.FromDB(err, "")
		}
		st.Statements[status] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return st, errs.FromDB(err, "")
	}

	rows, err = s.pool.Query(ctx, `
		SELECT status, COUNT(*),
			COALESCE(SUM(amount) FILTER (WHERE transaction_type = 'credit'), 0),
			COALESCE(SUM(amount) FILTER (WHERE transaction_type = 'debit'), 0)
		FROM extracted_transactions GROUP BY status`)
	if err != nil {
		return st, errs.FromDB(err, "")
	}
	defer rows.Close()
	for rows.Next() {
		var status model.TransactionStatus
		var n int
		var credit, debit decimal.Decimal
		if err := rows.Scan(&status, &n, &credit, &debit); err != nil {
			return st, errs.FromDB(err, "")
		}
		st.Transactions[status] = n
		st.TotalCredit = st.TotalCredit.Add(credit)
		st.TotalDebit = st.TotalDebit.Add(debit)
	}
	return st, errs.FromDB(rows.Err(), "")
}
