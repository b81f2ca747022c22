package store

import (
	"context"
	"fmt"

	"CoopLedgerSaas/internal/errs"
	"CoopLedgerSaas/internal/model"

	"github.com/jackc/pgx/v5"
)

const statementColumns = `id, filename, storage_path, file_type, content_type, size_bytes, checksum_sha256,
	uploaded_by, status, error_message, transactions_count, created_at, updated_at`

func scanStatement(row pgx.Row) (model.BankStatement, error) {
	var s model.BankStatement
	err := row.Scan(&s.ID, &s.Filename, &s.StoragePath, &s.FileType, &s.ContentType, &s.SizeBytes,
		&s.Checksum, &s.UploadedBy, &s.Status, &s.ErrorMessage, &s.TransactionsCount, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

// InsertStatements stores all statements in one transaction. Either every row
// is created or none is.
func (s *Store) InsertStatements(ctx context.Context, stmts []model.BankStatement) ([]model.BankStatement, error) {
	out := make([]model.BankStatement, 0, len(stmts))
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		for _, st := range stmts {
			row := tx.QueryRow(ctx, `
				INSERT INTO bank_statements
					(filename, storage_path, file_type, content_type, size_bytes, checksum_sha256, uploaded_by, status)
				VALUES ($1, $2, $3, $4, $5, $6, $7, 'uploaded')
				RETURNING `+statementColumns,
				st.Filename, st.StoragePath, st.FileType, st.ContentType, st.SizeBytes, st.Checksum, st.UploadedBy)
			created, err := scanStatement(row)
			if err != nil {
				return errs.FromDB(err, "")
			}
			out = append(out, created)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExistingChecksums returns the subset of checksums already recorded.
func (s *Store) ExistingChecksums(ctx context.Context, checksums []string) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT checksum_sha256 FROM bank_statements WHERE checksum_sha256 = ANY($1)`, checksums)
	if err != nil {
		return nil, errs.FromDB(err, "")
	}
	defer rows.Close()
	seen := make(map[string]bool)
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, errs.FromDB(err, "")
		}
		seen[c] = true
	}
	return seen, rows.Err()
}

func (s *Store) GetStatement(ctx context.Context, id int64) (model.BankStatement, error) {
	st, err := scanStatement(s.pool.QueryRow(ctx, `SELECT `+statementColumns+` FROM bank_statements WHERE id = $1`, id))
	if err != nil {
		return model.BankStatement{}, errs.FromDB(err, fmt.Sprintf("bank statement %d not found", id))
	}
	return st, nil
}

// ListStatements returns statements newest first with the total count.
func (s *Store) ListStatements(ctx context.Context, limit, offset int) ([]model.BankStatement, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bank_statements`).Scan(&total); err != nil {
		return nil, 0, errs.FromDB(err, "")
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+statementColumns+` FROM bank_statements ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, errs.FromDB(err, "")
	}
	defer rows.Close()
	var out []model.BankStatement
	for rows.Next() {
		st, err := scanStatement(rows)
		if err != nil {
			return nil, 0, errs.FromDB(err, "")
		}
		out = append(out, st)
	}
	return out, total, rows.Err()
}

// StatementIDsByStatus returns up to limit statement ids in status, oldest first.
func (s *Store) StatementIDsByStatus(ctx context.Context, status model.StatementStatus, limit int) ([]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM bank_statements WHERE status = $1 ORDER BY created_at, id LIMIT $2`, status, limit)
	if err != nil {
		return nil, errs.FromDB(err, "")
	}
	defer rows.Close()
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, errs.FromDB(err, "")
	}
	return ids, nil
}

// BeginProcessing moves a statement from uploaded to processing. It reports
// false when the statement was not in uploaded.
func (s *Store) BeginProcessing(ctx context.Context, id int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE bank_statements SET status = 'processing', updated_at = now()
		WHERE id = $1 AND status = 'uploaded'`, id)
	if err != nil {
		return false, errs.FromDB(err, "")
	}
	return tag.RowsAffected() == 1, nil
}

// CompleteStatement inserts the extracted rows and marks the statement
// completed in one transaction.
func (s *Store) CompleteStatement(ctx context.Context, id int64, txns []model.NormalizedTransaction) (int, error) {
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if len(txns) > 0 {
			batch := &pgx.Batch{}
			for _, t := range txns {
				batch.Queue(`
					INSERT INTO extracted_transactions
						(bank_statement_id, account_holder_name, transaction_date, amount, transaction_type,
						 description, account_number, confidence_score, source, status)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'extracted')`,
					id, t.AccountHolderName, t.TransactionDate, t.Amount, t.TransactionType,
					t.Description, t.AccountNumber, t.ConfidenceScore, t.Source)
			}
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return errs.FromDB(err, "")
			}
		}
		tag, err := tx.Exec(ctx, `
			UPDATE bank_statements
			SET status = 'completed', transactions_count = $2, error_message = NULL, updated_at = now()
			WHERE id = $1 AND status = 'processing'`, id, len(txns))
		if err != nil {
			return errs.FromDB(err, "")
		}
		if tag.RowsAffected() != 1 {
			return errs.Validation("bank statement %d is no longer processing", id)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(txns), nil
}

// FailStatement marks a processing statement failed with the given cause.
func (s *Store) FailStatement(ctx context.Context, id int64, cause string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE bank_statements SET status = 'failed', error_message = $2, updated_at = now()
		WHERE id = $1 AND status = 'processing'`, id, cause)
	return errs.FromDB(err, "")
}
