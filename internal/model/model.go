package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// FileType is the upload category a statement was accepted under. It keys the
// extraction strategy table.
type FileType string

const (
	FileTypeSpreadsheet FileType = "spreadsheet"
	FileTypeDocument    FileType = "document"
	FileTypeImage       FileType = "image"
)

func (f FileType) Valid() bool {
	switch f {
	case FileTypeSpreadsheet, FileTypeDocument, FileTypeImage:
		return true
	}
	return false
}

type StatementStatus string

const (
	StatementUploaded   StatementStatus = "uploaded"
	StatementProcessing StatementStatus = "processing"
	StatementCompleted  StatementStatus = "completed"
	StatementFailed     StatementStatus = "failed"
)

// CanTransition reports whether a statement may move from s to next.
// Statements only move forward; completed and failed are terminal.
func (s StatementStatus) CanTransition(next StatementStatus) bool {
	switch s {
	case StatementUploaded:
		return next == StatementProcessing
	case StatementProcessing:
		return next == StatementCompleted || next == StatementFailed
	}
	return false
}

func (s StatementStatus) Terminal() bool {
	return s == StatementCompleted || s == StatementFailed
}

type TransactionStatus string

const (
	TxnExtracted TransactionStatus = "extracted"
	TxnMatched   TransactionStatus = "matched"
	TxnUnmatched TransactionStatus = "unmatched"
	TxnProcessed TransactionStatus = "processed"
)

func (s TransactionStatus) Valid() bool {
	switch s {
	case TxnExtracted, TxnMatched, TxnUnmatched, TxnProcessed:
		return true
	}
	return false
}

// CanTransition reports whether a transaction may move from s to next.
// unmatched->matched is only reachable through a manual edit, which callers
// signal with manual=true. A matched row may also be moved back to unmatched
// manually when an operator clears a wrong match.
func (s TransactionStatus) CanTransition(next TransactionStatus, manual bool) bool {
	switch s {
	case TxnExtracted:
		return next == TxnMatched || next == TxnUnmatched
	case TxnUnmatched:
		return manual && next == TxnMatched
	case TxnMatched:
		if next == TxnProcessed {
			return !manual
		}
		return manual && (next == TxnUnmatched || next == TxnMatched)
	}
	return false
}

type TransactionType string

const (
	Credit TransactionType = "credit"
	Debit  TransactionType = "debit"
)

func (t TransactionType) Valid() bool {
	return t == Credit || t == Debit
}

// Source records which path produced a transaction row.
type Source string

const (
	SourceSpreadsheet Source = "spreadsheet"
	SourceDocument    Source = "document"
	SourceImage       Source = "image"
	SourceManual      Source = "manual"
)

// Confidence scores assigned per extraction strategy.
const (
	SpreadsheetConfidence = 0.9
	DocumentConfidence    = 0.8
	ImageConfidence       = 0.7
	ManualConfidence      = 1.0
)

type BankStatement struct {
	ID                int64           `json:"id"`
	Filename          string          `json:"filename"`
	StoragePath       string          `json:"storagePath"`
	FileType          FileType        `json:"fileType"`
	ContentType       string          `json:"contentType"`
	SizeBytes         int64           `json:"sizeBytes"`
	Checksum          string          `json:"checksum"`
	UploadedBy        string          `json:"uploadedBy"`
	Status            StatementStatus `json:"status"`
	ErrorMessage      *string         `json:"errorMessage,omitempty"`
	TransactionsCount int             `json:"transactionsCount"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// NormalizedTransaction is the uniform output of every extraction strategy.
type NormalizedTransaction struct {
	AccountHolderName string          `json:"accountHolderName"`
	TransactionDate   *time.Time      `json:"transactionDate"`
	Amount            decimal.Decimal `json:"amount"`
	TransactionType   TransactionType `json:"transactionType"`
	Description       string          `json:"description"`
	AccountNumber     string          `json:"accountNumber"`
	ConfidenceScore   float64         `json:"confidenceScore"`
	Source            Source          `json:"-"`
}

type ExtractedTransaction struct {
	ID                int64             `json:"id"`
	BankStatementID   int64             `json:"bankStatementId"`
	AccountHolderName string            `json:"accountHolderName"`
	TransactionDate   *time.Time        `json:"transactionDate"`
	Amount            decimal.Decimal   `json:"amount"`
	TransactionType   TransactionType   `json:"transactionType"`
	Description       string            `json:"description"`
	AccountNumber     string            `json:"accountNumber"`
	ConfidenceScore   float64           `json:"confidenceScore"`
	MatchScore        *float64          `json:"matchScore,omitempty"`
	MatchedMemberID   *int64            `json:"matchedMemberId"`
	Status            TransactionStatus `json:"status"`
	Source            Source            `json:"source"`
	LedgerReference   *string           `json:"ledgerReference,omitempty"`
	ProcessedAt       *time.Time        `json:"processedAt,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

// Postable reports whether the row satisfies the preconditions for posting.
func (t ExtractedTransaction) Postable() bool {
	return t.Status == TxnMatched && t.MatchedMemberID != nil && t.Amount.IsPositive()
}

type ProcessingLogStatus string

const (
	LogCompleted ProcessingLogStatus = "completed"
	LogPartial   ProcessingLogStatus = "partial"
	LogFailed    ProcessingLogStatus = "failed"
)

type ProcessingLog struct {
	ID              int64               `json:"id"`
	BankStatementID *int64              `json:"bankStatementId"`
	StatementIDs    []int64             `json:"statementIds"`
	PeriodID        int64               `json:"periodId"`
	OperatorID      string              `json:"operatorId"`
	TotalCount      int                 `json:"totalCount"`
	MatchedCount    int                 `json:"matchedCount"`
	UnmatchedCount  int                 `json:"unmatchedCount"`
	Status          ProcessingLogStatus `json:"status"`
	CreatedAt       time.Time           `json:"createdAt"`
}

// Member is a roster entry supplied by the member directory.
type Member struct {
	ID               int64  `json:"id"`
	FirstName        string `json:"firstName"`
	LastName         string `json:"lastName"`
	MembershipStatus string `json:"membershipStatus"`
}

func (m Member) FullName() string {
	switch {
	case m.FirstName == "":
		return m.LastName
	case m.LastName == "":
		return m.FirstName
	}
	return m.FirstName + " " + m.LastName
}

// TransactionView is a transaction joined with its statement filename and
// matched member identity for the review surface.
type TransactionView struct {
	ExtractedTransaction
	Filename          string  `json:"filename"`
	MatchedMemberName *string `json:"matchedMemberName,omitempty"`
}

// Stats aggregates pipeline counts for the review dashboard.
type Stats struct {
	Statements   map[StatementStatus]int   `json:"statements"`
	Transactions map[TransactionStatus]int `json:"transactions"`
	TotalCredit  decimal.Decimal           `json:"totalCredit"`
	TotalDebit   decimal.Decimal           `json:"totalDebit"`
}
