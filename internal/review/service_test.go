package review

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"CoopLedgerSaas/internal/errs"
	"CoopLedgerSaas/internal/model"
	"CoopLedgerSaas/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	statements map[int64]model.BankStatement
	rows       map[int64]model.ExtractedTransaction
	nextID     int64
	staleIDs   map[int64]bool
}

func newMemStore() *memStore {
	return &memStore{
		statements: map[int64]model.BankStatement{
			1: {ID: 1, Filename: "march.csv", Status: model.StatementCompleted},
			2: {ID: 2, Filename: "april.pdf", Status: model.StatementProcessing},
			3: {ID: 3, Filename: "scan.png", Status: model.StatementFailed},
		},
		rows:     map[int64]model.ExtractedTransaction{},
		nextID:   100,
		staleIDs: map[int64]bool{},
	}
}

func (m *memStore) add(t model.ExtractedTransaction) {
	if t.BankStatementID == 0 {
		t.BankStatementID = 1
	}
	m.rows[t.ID] = t
}

func (m *memStore) ListStatements(context.Context, int, int) ([]model.BankStatement, int, error) {
	return nil, len(m.statements), nil
}

func (m *memStore) GetStatement(_ context.Context, id int64) (model.BankStatement, error) {
	st, ok := m.statements[id]
	if !ok {
		return st, errs.NotFound("bank statement %d not found", id)
	}
	return st, nil
}

func (m *memStore) ListTransactions(_ context.Context, f store.TxnFilter) ([]model.TransactionView, int, error) {
	var out []model.TransactionView
	for id := int64(1); id <= 200; id++ {
		r, ok := m.rows[id]
		if !ok || (f.Status != nil && r.Status != *f.Status) {
			continue
		}
		out = append(out, model.TransactionView{ExtractedTransaction: r, Filename: m.statements[r.BankStatementID].Filename})
	}
	return out, len(out), nil
}

func (m *memStore) TransactionsByStatus(_ context.Context, status model.TransactionStatus) ([]model.ExtractedTransaction, error) {
	var out []model.ExtractedTransaction
	for id := int64(1); id <= 200; id++ {
		if r, ok := m.rows[id]; ok && r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) GetTransaction(_ context.Context, id int64) (model.ExtractedTransaction, error) {
	r, ok := m.rows[id]
	if !ok {
		return r, errs.NotFound("transaction %d not found", id)
	}
	return r, nil
}

func (m *memStore) UpdateTransaction(_ context.Context, t model.ExtractedTransaction, expected model.TransactionStatus) (model.ExtractedTransaction, bool, error) {
	if m.staleIDs[t.ID] || m.rows[t.ID].Status != expected {
		return model.ExtractedTransaction{}, false, nil
	}
	m.rows[t.ID] = t
	return t, true, nil
}

func (m *memStore) DeleteTransaction(_ context.Context, id int64) (bool, error) {
	if m.staleIDs[id] {
		return false, nil
	}
	delete(m.rows, id)
	return true, nil
}

func (m *memStore) InsertTransaction(_ context.Context, statementID int64, n model.NormalizedTransaction) (model.ExtractedTransaction, error) {
	m.nextID++
	t := model.ExtractedTransaction{
		ID: m.nextID, BankStatementID: statementID, AccountHolderName: n.AccountHolderName,
		TransactionDate: n.TransactionDate, Amount: n.Amount, TransactionType: n.TransactionType,
		Description: n.Description, AccountNumber: n.AccountNumber, ConfidenceScore: n.ConfidenceScore,
		Source: n.Source, Status: model.TxnExtracted,
	}
	m.rows[t.ID] = t
	return t, nil
}

func (m *memStore) Stats(context.Context) (model.Stats, error) { return model.Stats{}, nil }

type directory map[int64]model.Member

func (d directory) MembersByIDs(_ context.Context, ids []int64) (map[int64]model.Member, error) {
	out := map[int64]model.Member{}
	for _, id := range ids {
		if m, ok := d[id]; ok {
			out[id] = m
		}
	}
	return out, nil
}

var members = directory{
	7: {ID: 7, FirstName: "Jane", LastName: "Doe"},
	8: {ID: 8, FirstName: "John", LastName: "Roe"},
}

func ptr[T any](v T) *T { return &v }

func decodeEdit(t *testing.T, body string) Edit {
	t.Helper()
	var e Edit
	require.NoError(t, json.Unmarshal([]byte(body), &e))
	return e
}

func TestForcedAssignmentMatchesUnmatchedRow(t *testing.T) {
	s := newMemStore()
	s.add(model.ExtractedTransaction{ID: 1, AccountHolderName: "J. Doe", Status: model.TxnUnmatched, Amount: decimal.NewFromInt(10)})
	svc := New(s, members)

	view, err := svc.Update(context.Background(), 1, decodeEdit(t, `{"matchedMemberId": 7}`), "op")
	require.NoError(t, err)
	assert.Equal(t, model.TxnMatched, view.Status)
	assert.Equal(t, int64(7), *view.MatchedMemberID)
	assert.Equal(t, "Jane Doe", *view.MatchedMemberName)
	assert.Equal(t, "march.csv", view.Filename)
}

func TestClearingMemberUnmatchesRow(t *testing.T) {
	s := newMemStore()
	s.add(model.ExtractedTransaction{ID: 1, Status: model.TxnMatched, MatchedMemberID: ptr(int64(8)), MatchScore: ptr(0.8)})
	svc := New(s, members)

	view, err := svc.Update(context.Background(), 1, decodeEdit(t, `{"matchedMemberId": null}`), "op")
	require.NoError(t, err)
	assert.Equal(t, model.TxnUnmatched, view.Status)
	assert.Nil(t, view.MatchedMemberID)
	assert.Nil(t, s.rows[1].MatchScore)
}

func TestEditFieldsKeepsMember(t *testing.T) {
	s := newMemStore()
	s.add(model.ExtractedTransaction{ID: 1, AccountHolderName: "Jane", Status: model.TxnMatched, MatchedMemberID: ptr(int64(7)), Amount: decimal.NewFromInt(10)})
	svc := New(s, members)

	view, err := svc.Update(context.Background(), 1,
		decodeEdit(t, `{"accountHolderName":" Jane Doe ","amount":"25.50","transactionDate":"2024-03-02","transactionType":"debit"}`), "op")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", view.AccountHolderName)
	assert.Equal(t, "25.5", view.Amount.String())
	assert.Equal(t, model.Debit, view.TransactionType)
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), *view.TransactionDate)
	assert.Equal(t, model.TxnMatched, view.Status)
	assert.Equal(t, "Jane Doe", *view.MatchedMemberName)
}

func TestEditRejections(t *testing.T) {
	s := newMemStore()
	s.add(model.ExtractedTransaction{ID: 1, Status: model.TxnProcessed, MatchedMemberID: ptr(int64(7))})
	s.add(model.ExtractedTransaction{ID: 2, Status: model.TxnUnmatched})
	s.add(model.ExtractedTransaction{ID: 3, Status: model.TxnUnmatched})
	s.staleIDs[3] = true
	svc := New(s, members)
	ctx := context.Background()

	_, err := svc.Update(ctx, 1, decodeEdit(t, `{"description":"x"}`), "op")
	assert.True(t, errs.Is(err, errs.KindValidation))

	_, err = svc.Update(ctx, 2, decodeEdit(t, `{"matchedMemberId": 999}`), "op")
	assert.True(t, errs.Is(err, errs.KindNotFound))

	_, err = svc.Update(ctx, 2, decodeEdit(t, `{"amount": 0}`), "op")
	assert.True(t, errs.Is(err, errs.KindValidation))

	_, err = svc.Update(ctx, 2, decodeEdit(t, `{"transactionType": "transfer"}`), "op")
	assert.True(t, errs.Is(err, errs.KindValidation))

	_, err = svc.Update(ctx, 2, decodeEdit(t, `{"transactionDate": "31/31/2024"}`), "op")
	assert.True(t, errs.Is(err, errs.KindValidation))

	_, err = svc.Update(ctx, 3, decodeEdit(t, `{"matchedMemberId": 7}`), "op")
	assert.True(t, errs.Is(err, errs.KindValidation))

	_, err = svc.Update(ctx, 404, Edit{}, "op")
	assert.True(t, errs.Is(err, errs.KindNotFound))

	assert.Error(t, json.Unmarshal([]byte(`{"matchedMemberId":"seven"}`), &Edit{}))
}

func TestDeleteRules(t *testing.T) {
	s := newMemStore()
	s.add(model.ExtractedTransaction{ID: 1, Status: model.TxnUnmatched})
	s.add(model.ExtractedTransaction{ID: 2, Status: model.TxnProcessed, MatchedMemberID: ptr(int64(7))})
	svc := New(s, members)
	ctx := context.Background()

	require.NoError(t, svc.Delete(ctx, 1, "op"))
	assert.NotContains(t, s.rows, int64(1))

	assert.True(t, errs.Is(svc.Delete(ctx, 2, "op"), errs.KindValidation))
	assert.Contains(t, s.rows, int64(2))
	assert.True(t, errs.Is(svc.Delete(ctx, 1, "op"), errs.KindNotFound))
}

func TestAddManualRow(t *testing.T) {
	s := newMemStore()
	svc := New(s, members)
	ctx := context.Background()
	entry := ManualEntry{AccountHolderName: "Jane Doe", TransactionDate: "2024-03-01", Amount: decimal.NewFromInt(40), TransactionType: model.Credit}

	row, err := svc.AddManual(ctx, 3, entry, "op")
	require.NoError(t, err)
	assert.Equal(t, model.SourceManual, row.Source)
	assert.Equal(t, 1.0, row.ConfidenceScore)
	assert.Equal(t, model.TxnExtracted, row.Status)
	assert.Equal(t, int64(3), row.BankStatementID)

	_, err = svc.AddManual(ctx, 2, entry, "op")
	assert.True(t, errs.Is(err, errs.KindValidation), "statement still processing")

	_, err = svc.AddManual(ctx, 9, entry, "op")
	assert.True(t, errs.Is(err, errs.KindNotFound))

	bad := entry
	bad.Amount = decimal.Zero
	_, err = svc.AddManual(ctx, 1, bad, "op")
	assert.True(t, errs.Is(err, errs.KindValidation))

	bad = entry
	bad.AccountHolderName = "  "
	_, err = svc.AddManual(ctx, 1, bad, "op")
	assert.True(t, errs.Is(err, errs.KindValidation))
}

func TestTransactionsAttachMemberNames(t *testing.T) {
	s := newMemStore()
	s.add(model.ExtractedTransaction{ID: 1, Status: model.TxnMatched, MatchedMemberID: ptr(int64(7))})
	s.add(model.ExtractedTransaction{ID: 2, Status: model.TxnUnmatched})
	s.add(model.ExtractedTransaction{ID: 3, Status: model.TxnMatched, MatchedMemberID: ptr(int64(55))})
	svc := New(s, members)

	rows, total, err := svc.Transactions(context.Background(), store.TxnFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, "Jane Doe", *rows[0].MatchedMemberName)
	assert.Equal(t, "march.csv", rows[0].Filename)
	assert.Nil(t, rows[1].MatchedMemberName)
	assert.Nil(t, rows[2].MatchedMemberName)

	bogus := model.TransactionStatus("pending")
	_, _, err = svc.Transactions(context.Background(), store.TxnFilter{Status: &bogus})
	assert.True(t, errs.Is(err, errs.KindValidation))
}

func TestExportLinesEqualUnmatchedRows(t *testing.T) {
	s := newMemStore()
	date := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	s.add(model.ExtractedTransaction{ID: 1, AccountHolderName: `Doe, "JD" Jane`, TransactionDate: &date,
		Amount: decimal.RequireFromString("1200.5"), TransactionType: model.Credit, Description: "line one\nline two", AccountNumber: "ACC-1", Status: model.TxnUnmatched})
	s.add(model.ExtractedTransaction{ID: 2, AccountHolderName: "Matched", Status: model.TxnMatched, MatchedMemberID: ptr(int64(7))})
	s.add(model.ExtractedTransaction{ID: 3, AccountHolderName: "Nobody", Amount: decimal.NewFromInt(5), TransactionType: model.Debit, Status: model.TxnUnmatched})
	svc := New(s, members)

	rows, err := svc.Unmatched(context.Background())
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rows))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Account Holder Name,Transaction Date,Amount,Transaction Type,Description,Account Number", lines[0])
	assert.Equal(t, `"Doe, ""JD"" Jane","2024-03-05","1200.50","credit","line one line two","ACC-1"`, lines[1])
	assert.Equal(t, `"Nobody","","5.00","debit","",""`, lines[2])
}
