// Package ledger writes posted transactions into the contributions and loans
// tables owned by the accounting subsystem.
package ledger

import (
	"context"
	"fmt"
	"time"

	"CoopLedgerSaas/internal/errs"
	"CoopLedgerSaas/internal/model"
	"CoopLedgerSaas/internal/store"

	"github.com/shopspring/decimal"
)

// Entry is one ledger posting derived from an extracted transaction.
type Entry struct {
	TransactionID int64
	MemberID      int64
	PeriodID      int64
	Amount        decimal.Decimal
	Date          time.Time
	Description   string
	CreatedBy     string
}

type Ledger struct{}

func New() *Ledger { return &Ledger{} }

// Post routes credits to contributions and debits to loan applications and
// returns the ledger reference of the new entry.
func (l *Ledger) Post(ctx context.Context, q store.DBTX, kind model.TransactionType, e Entry) (string, error) {
	switch kind {
	case model.Credit:
		return l.PostContribution(ctx, q, e)
	case model.Debit:
		return l.PostLoan(ctx, q, e)
	}
	return "", errs.Posting(fmt.Sprintf("transaction %d has unknown type %q", e.TransactionID, kind), nil)
}

func (l *Ledger) PostContribution(ctx context.Context, q store.DBTX, e Entry) (string, error) {
	if err := e.validate(); err != nil {
		return "", err
	}
	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO contributions (member_id, period_id, amount, contribution_date, reference, source_txn_id, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		e.MemberID, e.PeriodID, e.Amount, e.Date, e.reference("BST"), e.TransactionID, e.CreatedBy,
	).Scan(&id)
	if err != nil {
		return "", errs.Posting("contribution rejected by ledger", errs.FromDB(err, ""))
	}
	return fmt.Sprintf("contribution:%d", id), nil
}

// PostLoan records a loan application in pending state.
func (l *Ledger) PostLoan(ctx context.Context, q store.DBTX, e Entry) (string, error) {
	if err := e.validate(); err != nil {
		return "", err
	}
	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO loans (member_id, period_id, principal, application_date, status, reference, source_txn_id, created_by)
		VALUES ($1, $2, $3, $4, 'pending', $5, $6, $7)
		RETURNING id`,
		e.MemberID, e.PeriodID, e.Amount, e.Date, e.reference("BSL"), e.TransactionID, e.CreatedBy,
	).Scan(&id)
	if err != nil {
		return "", errs.Posting("loan application rejected by ledger", errs.FromDB(err, ""))
	}
	return fmt.Sprintf("loan:%d", id), nil
}

func (e Entry) validate() error {
	switch {
	case !e.Amount.IsPositive():
		return errs.Posting(fmt.Sprintf("transaction %d: amount must be greater than zero", e.TransactionID), nil)
	case e.MemberID <= 0:
		return errs.Posting(fmt.Sprintf("transaction %d: no member assigned", e.TransactionID), nil)
	case e.PeriodID <= 0:
		return errs.Posting(fmt.Sprintf("transaction %d: invalid period", e.TransactionID), nil)
	}
	return nil
}

func (e Entry) reference(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, e.TransactionID)
}
