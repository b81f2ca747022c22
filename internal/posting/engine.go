package posting

import (
	"context"
	"time"

	"CoopLedgerSaas/internal/errs"
	"CoopLedgerSaas/internal/ledger"
	"CoopLedgerSaas/internal/lock"
	"CoopLedgerSaas/internal/logger"
	"CoopLedgerSaas/internal/model"
	"CoopLedgerSaas/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("CoopLedgerSaas/internal/posting")

const lockName = "bank-statements:posting"

type Store interface {
	RunPosting(ctx context.Context, fn func(ctx context.Context, tx store.PostingTx) error) error
}

type Ledger interface {
	Post(ctx context.Context, q store.DBTX, kind model.TransactionType, e ledger.Entry) (string, error)
}

type Request struct {
	PeriodID     int64
	StatementIDs []int64
	OperatorID   string
}

type Failure struct {
	TransactionID int64  `json:"transactionId"`
	Error         string `json:"error"`
}

type Summary struct {
	ProcessedCount int       `json:"processedCount"`
	UnmatchedCount int       `json:"unmatchedCount"`
	TotalCount     int       `json:"totalCount"`
	Failures       []Failure `json:"failures"`
	LogID          int64     `json:"processingLogId"`
}

type Engine struct {
	store  Store
	ledger Ledger
	locker lock.Locker
	now    func() time.Time
	log    *zap.Logger
}

// NewEngine builds a posting engine. A nil locker means runs are serialized
// only by row locks in the database.
func NewEngine(s Store, l Ledger, locker lock.Locker, log *zap.Logger) *Engine {
	return &Engine{store: s, ledger: l, locker: locker, now: time.Now, log: log}
}

// Run posts every matched row in one database transaction. When StatementIDs
// is non-empty only rows of those statements are posted, and an unknown id is
// a not-found error; an empty list posts every matched row. Each row is
// written inside its own savepoint so a rejected row is rolled back alone and
// reported in Failures. Exactly one processing log row is written per
// successful call.
func (e *Engine) Run(ctx context.Context, req Request) (Summary, error) {
	if req.PeriodID <= 0 {
		return Summary{}, errs.Validation("periodId must be a positive integer")
	}
	if req.OperatorID == "" {
		return Summary{}, errs.Validation("operator identity is required")
	}
	ctx, span := tracer.Start(ctx, "posting.run")
	defer span.End()
	span.SetAttributes(attribute.Int64("period_id", req.PeriodID), attribute.Int("statements", len(req.StatementIDs)))

	if e.locker != nil {
		release, err := e.locker.TryAcquire(ctx, lockName)
		if err != nil {
			return Summary{}, err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				e.log.Warn("release posting lock", zap.Error(err))
			}
		}()
	}

	var sum Summary
	err := e.store.RunPosting(ctx, func(ctx context.Context, tx store.PostingTx) error {
		sum = Summary{Failures: []Failure{}}
		missing, err := tx.MissingStatements(ctx, req.StatementIDs)
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			return errs.NotFound("bank statements not found: %v", missing)
		}
		rows, err := tx.LockMatched(ctx, req.StatementIDs)
		if err != nil {
			return err
		}
		sum.TotalCount = len(rows)
		postedAt := e.now().UTC()

		for _, row := range rows {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := tx.Savepoint(ctx, func(q store.DBTX) error {
				ref, err := e.ledger.Post(ctx, q, row.TransactionType, entryFor(row, req, postedAt))
				if err != nil {
					return err
				}
				return tx.MarkProcessed(ctx, q, row.ID, ref, postedAt)
			})
			if err != nil {
				e.log.Warn("posting row failed", zap.Int64("transaction_id", row.ID), zap.Error(err))
				sum.Failures = append(sum.Failures, Failure{TransactionID: row.ID, Error: errs.UserMessage(err)})
				continue
			}
			sum.ProcessedCount++
		}
		sum.UnmatchedCount = sum.TotalCount - sum.ProcessedCount

		entry, err := tx.InsertProcessingLog(ctx, processingLog(req, sum))
		if err != nil {
			return err
		}
		sum.LogID = entry.ID
		return nil
	})
	if err != nil {
		if errs.KindOf(err) == errs.KindOperation {
			return Summary{}, errs.Operation("posting run failed", err)
		}
		return Summary{}, err
	}

	span.SetAttributes(attribute.Int("processed", sum.ProcessedCount), attribute.Int("total", sum.TotalCount))
	logger.Audit("bank statement posting",
		zap.Int64("period_id", req.PeriodID),
		zap.Int64s("statement_ids", req.StatementIDs),
		zap.String("operator_id", req.OperatorID),
		zap.Int("processed", sum.ProcessedCount),
		zap.Int("unmatched", sum.UnmatchedCount),
		zap.Int("total", sum.TotalCount),
		zap.Int64("processing_log_id", sum.LogID),
	)
	return sum, nil
}

// entryFor builds the ledger entry for row. Rows without a statement date are
// booked on the posting date.
func entryFor(row model.ExtractedTransaction, req Request, postedAt time.Time) ledger.Entry {
	date := postedAt
	if row.TransactionDate != nil {
		date = *row.TransactionDate
	}
	var member int64
	if row.MatchedMemberID != nil {
		member = *row.MatchedMemberID
	}
	return ledger.Entry{
		TransactionID: row.ID,
		MemberID:      member,
		PeriodID:      req.PeriodID,
		Amount:        row.Amount,
		Date:          date,
		Description:   row.Description,
		CreatedBy:     req.OperatorID,
	}
}

func processingLog(req Request, sum Summary) model.ProcessingLog {
	l := model.ProcessingLog{
		StatementIDs:   req.StatementIDs,
		PeriodID:       req.PeriodID,
		OperatorID:     req.OperatorID,
		TotalCount:     sum.TotalCount,
		MatchedCount:   sum.ProcessedCount,
		UnmatchedCount: sum.UnmatchedCount,
		Status:         model.LogCompleted,
	}
	if len(req.StatementIDs) == 1 {
		id := req.StatementIDs[0]
		l.BankStatementID = &id
	}
	switch {
	case sum.TotalCount > 0 && sum.ProcessedCount == 0:
		l.Status = model.LogFailed
	case sum.ProcessedCount < sum.TotalCount:
		l.Status = model.LogPartial
	}
	return l
}
