// Package review is the operator surface over extracted transactions:
// listing, manual correction, manual entry and export of unmatched rows.
package review

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"CoopLedgerSaas/internal/errs"
	"CoopLedgerSaas/internal/logger"
	"CoopLedgerSaas/internal/model"
	"CoopLedgerSaas/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Store interface {
	ListStatements(ctx context.Context, limit, offset int) ([]model.BankStatement, int, error)
	GetStatement(ctx context.Context, id int64) (model.BankStatement, error)
	ListTransactions(ctx context.Context, f store.TxnFilter) ([]model.TransactionView, int, error)
	TransactionsByStatus(ctx context.Context, status model.TransactionStatus) ([]model.ExtractedTransaction, error)
	GetTransaction(ctx context.Context, id int64) (model.ExtractedTransaction, error)
	UpdateTransaction(ctx context.Context, t model.ExtractedTransaction, expected model.TransactionStatus) (model.ExtractedTransaction, bool, error)
	DeleteTransaction(ctx context.Context, id int64) (bool, error)
	InsertTransaction(ctx context.Context, statementID int64, n model.NormalizedTransaction) (model.ExtractedTransaction, error)
	Stats(ctx context.Context) (model.Stats, error)
}

type Members interface {
	MembersByIDs(ctx context.Context, ids []int64) (map[int64]model.Member, error)
}

type Service struct {
	store   Store
	members Members
}

func New(s Store, members Members) *Service {
	return &Service{store: s, members: members}
}

// MemberRef distinguishes an absent matchedMemberId from an explicit null.
type MemberRef struct {
	Set bool
	ID  *int64
}

func (m *MemberRef) UnmarshalJSON(b []byte) error {
	m.Set = true
	if string(b) == "null" {
		m.ID = nil
		return nil
	}
	var id int64
	if err := json.Unmarshal(b, &id); err != nil {
		return errs.Validation("matchedMemberId must be an integer or null")
	}
	m.ID = &id
	return nil
}

// Edit carries the operator's changes. Nil fields are left as they are; an
// empty transactionDate clears the date.
type Edit struct {
	AccountHolderName *string                `json:"accountHolderName"`
	TransactionDate   *string                `json:"transactionDate"`
	Amount            *decimal.Decimal       `json:"amount"`
	TransactionType   *model.TransactionType `json:"transactionType"`
	Description       *string                `json:"description"`
	AccountNumber     *string                `json:"accountNumber"`
	MatchedMemberID   MemberRef              `json:"matchedMemberId"`
}

type ManualEntry struct {
	AccountHolderName string                `json:"accountHolderName"`
	TransactionDate   string                `json:"transactionDate"`
	Amount            decimal.Decimal       `json:"amount"`
	TransactionType   model.TransactionType `json:"transactionType"`
	Description       string                `json:"description"`
	AccountNumber     string                `json:"accountNumber"`
}

func (s *Service) Statements(ctx context.Context, limit, offset int) ([]model.BankStatement, int, error) {
	return s.store.ListStatements(ctx, limit, offset)
}

// Transactions lists rows with their statement filename and matched member
// name.
func (s *Service) Transactions(ctx context.Context, f store.TxnFilter) ([]model.TransactionView, int, error) {
	if f.Status != nil && !f.Status.Valid() {
		return nil, 0, errs.Validation("unknown transaction status %q", *f.Status)
	}
	rows, total, err := s.store.ListTransactions(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	if err := s.attachMembers(ctx, rows); err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (s *Service) Unmatched(ctx context.Context) ([]model.ExtractedTransaction, error) {
	return s.store.TransactionsByStatus(ctx, model.TxnUnmatched)
}

func (s *Service) Stats(ctx context.Context) (model.Stats, error) {
	return s.store.Stats(ctx)
}

// Update applies an operator edit. Assigning a member forces the row to
// matched; clearing the member of a matched row makes it unmatched. Posted rows
// are immutable.
func (s *Service) Update(ctx context.Context, id int64, e Edit, operator string) (model.TransactionView, error) {
	cur, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return model.TransactionView{}, err
	}
	if cur.Status == model.TxnProcessed {
		return model.TransactionView{}, errs.Validation("transaction %d has been posted and cannot be edited", id)
	}

	next := cur
	if err := applyEdit(&next, e); err != nil {
		return model.TransactionView{}, err
	}
	var member *model.Member
	if e.MatchedMemberID.Set {
		if ref := e.MatchedMemberID.ID; ref != nil {
			m, err := s.member(ctx, *ref)
			if err != nil {
				return model.TransactionView{}, err
			}
			member = &m
			next.MatchedMemberID, next.Status, next.MatchScore = &m.ID, model.TxnMatched, nil
		} else {
			next.MatchedMemberID, next.MatchScore = nil, nil
			if cur.Status == model.TxnMatched {
				next.Status = model.TxnUnmatched
			}
		}
	}
	if next.Status != cur.Status && !cur.Status.CanTransition(next.Status, true) {
		return model.TransactionView{}, errs.Validation("cannot move transaction from %s to %s", cur.Status, next.Status)
	}

	saved, ok, err := s.store.UpdateTransaction(ctx, next, cur.Status)
	if err != nil {
		return model.TransactionView{}, err
	}
	if !ok {
		return model.TransactionView{}, errs.Validation("transaction %d changed while editing; reload and try again", id)
	}
	logger.Audit("transaction edited",
		zap.Int64("transaction_id", id),
		zap.String("operator_id", operator),
		zap.String("from_status", string(cur.Status)),
		zap.String("to_status", string(saved.Status)),
	)

	view := model.TransactionView{ExtractedTransaction: saved}
	if st, err := s.store.GetStatement(ctx, saved.BankStatementID); err == nil {
		view.Filename = st.Filename
	}
	if member != nil {
		name := member.FullName()
		view.MatchedMemberName = &name
	} else if saved.MatchedMemberID != nil {
		rows := []model.TransactionView{view}
		if err := s.attachMembers(ctx, rows); err == nil {
			view = rows[0]
		}
	}
	return view, nil
}

// Delete removes an unposted row.
func (s *Service) Delete(ctx context.Context, id int64, operator string) error {
	cur, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return err
	}
	if cur.Status == model.TxnProcessed {
		return errs.Validation("transaction %d has been posted and cannot be deleted", id)
	}
	ok, err := s.store.DeleteTransaction(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Validation("transaction %d changed while deleting; reload and try again", id)
	}
	logger.Audit("transaction deleted", zap.Int64("transaction_id", id), zap.String("operator_id", operator))
	return nil
}

// AddManual records an operator-entered row on a statement whose extraction
// has finished, typically a scanned image the vision service could not read.
func (s *Service) AddManual(ctx context.Context, statementID int64, in ManualEntry, operator string) (model.ExtractedTransaction, error) {
	st, err := s.store.GetStatement(ctx, statementID)
	if err != nil {
		return model.ExtractedTransaction{}, err
	}
	if !st.Status.Terminal() {
		return model.ExtractedTransaction{}, errs.Validation("statement %d is still %s; add rows after extraction finishes", statementID, st.Status)
	}
	name := strings.TrimSpace(in.AccountHolderName)
	if name == "" {
		return model.ExtractedTransaction{}, errs.Validation("accountHolderName is required")
	}
	if !in.Amount.IsPositive() {
		return model.ExtractedTransaction{}, errs.Validation("amount must be greater than zero")
	}
	if !in.TransactionType.Valid() {
		return model.ExtractedTransaction{}, errs.Validation("transactionType must be credit or debit")
	}
	date, err := parseEditDate(in.TransactionDate)
	if err != nil {
		return model.ExtractedTransaction{}, err
	}
	row, err := s.store.InsertTransaction(ctx, statementID, model.NormalizedTransaction{
		AccountHolderName: name,
		TransactionDate:   date,
		Amount:            in.Amount,
		TransactionType:   in.TransactionType,
		Description:       strings.TrimSpace(in.Description),
		AccountNumber:     strings.TrimSpace(in.AccountNumber),
		ConfidenceScore:   model.ManualConfidence,
		Source:            model.SourceManual,
	})
	if err != nil {
		return model.ExtractedTransaction{}, err
	}
	logger.Audit("manual transaction added",
		zap.Int64("statement_id", statementID), zap.Int64("transaction_id", row.ID), zap.String("operator_id", operator))
	return row, nil
}

func (s *Service) member(ctx context.Context, id int64) (model.Member, error) {
	if s.members == nil {
		return model.Member{}, errs.Operation("member directory unavailable", nil)
	}
	found, err := s.members.MembersByIDs(ctx, []int64{id})
	if err != nil {
		return model.Member{}, errs.Operation("member lookup failed", err)
	}
	m, ok := found[id]
	if !ok {
		return model.Member{}, errs.NotFound("member %d not found", id)
	}
	return m, nil
}

func (s *Service) attachMembers(ctx context.Context, rows []model.TransactionView) error {
	if s.members == nil {
		return nil
	}
	seen := map[int64]bool{}
	var ids []int64
	for _, r := range rows {
		if id := r.MatchedMemberID; id != nil && !seen[*id] {
			seen[*id] = true
			ids = append(ids, *id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	found, err := s.members.MembersByIDs(ctx, ids)
	if err != nil {
		return errs.Operation("member lookup failed", err)
	}
	for i := range rows {
		if id := rows[i].MatchedMemberID; id != nil {
			if m, ok := found[*id]; ok {
				name := m.FullName()
				rows[i].MatchedMemberName = &name
			}
		}
	}
	return nil
}

func applyEdit(t *model.ExtractedTransaction, e Edit) error {
	if e.AccountHolderName != nil {
		name := strings.TrimSpace(*e.AccountHolderName)
		if name == "" {
			return errs.Validation("accountHolderName cannot be empty")
		}
		t.AccountHolderName = name
	}
	if e.TransactionDate != nil {
		d, err := parseEditDate(*e.TransactionDate)
		if err != nil {
			return err
		}
		t.TransactionDate = d
	}
	if e.Amount != nil {
		if !e.Amount.IsPositive() {
			return errs.Validation("amount must be greater than zero")
		}
		t.Amount = *e.Amount
	}
	if e.TransactionType != nil {
		if !e.TransactionType.Valid() {
			return errs.Validation("transactionType must be credit or debit")
		}
		t.TransactionType = *e.TransactionType
	}
	if e.Description != nil {
		t.Description = strings.TrimSpace(*e.Description)
	}
	if e.AccountNumber != nil {
		t.AccountNumber = strings.TrimSpace(*e.AccountNumber)
	}
	return nil
}

func parseEditDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &d, nil
		}
	}
	return nil, errs.Validation("transactionDate must be YYYY-MM-DD")
}
