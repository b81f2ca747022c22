package matching

import (
	"context"
	"math"
	"sort"

	"CoopLedgerSaas/internal/errs"
	"CoopLedgerSaas/internal/model"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("CoopLedgerSaas/internal/matching")

type Store interface {
	TransactionsByStatus(ctx context.Context, status model.TransactionStatus) ([]model.ExtractedTransaction, error)
	ApplyMatch(ctx context.Context, id int64, memberID *int64, score float64, status model.TransactionStatus) (bool, error)
}

type Directory interface {
	ActiveMembers(ctx context.Context, statuses []string) ([]model.Member, error)
}

// Result reports the outcome for one extracted row.
type Result struct {
	TransactionID     int64                   `json:"transactionId"`
	AccountHolderName string                  `json:"accountHolderName"`
	MatchedMemberID   *int64                  `json:"matchedMemberId,omitempty"`
	MatchedMemberName *string                 `json:"matchedMemberName,omitempty"`
	ConfidenceScore   *float64                `json:"confidenceScore,omitempty"`
	Status            model.TransactionStatus `json:"status"`
	Error             string                  `json:"error,omitempty"`
}

// Engine assigns extracted rows to roster members by name similarity.
type Engine struct {
	store          Store
	directory      Directory
	activeStatuses []string
	log            *zap.Logger
}

func NewEngine(store Store, directory Directory, activeStatuses []string, log *zap.Logger) *Engine {
	return &Engine{store: store, directory: directory, activeStatuses: activeStatuses, log: log}
}

// ValidateThreshold rejects thresholds outside [0,1].
func ValidateThreshold(threshold float64) error {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return errs.Validation("confidenceThreshold must be between 0 and 1")
	}
	return nil
}

// Run scores every row still in extracted against the active roster. Rows
// scoring at least threshold become matched, the rest unmatched. Rows changed
// by someone else since the snapshot are reported and left alone.
func (e *Engine) Run(ctx context.Context, threshold float64) ([]Result, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "matching.run")
	defer span.End()

	members, err := e.directory.ActiveMembers(ctx, e.activeStatuses)
	if err != nil {
		return nil, errs.Operation("load member roster", err)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })

	rows, err := e.store.TransactionsByStatus(ctx, model.TxnExtracted)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("rows", len(rows)), attribute.Int("members", len(members)))

	results := make([]Result, 0, len(rows))
	matched := 0
	for _, row := range rows {
		res := Result{TransactionID: row.ID, AccountHolderName: row.AccountHolderName}
		best, score := bestMatch(row.AccountHolderName, members)

		status := model.TxnUnmatched
		var memberID *int64
		if best != nil && score >= threshold {
			status = model.TxnMatched
			id := best.ID
			memberID = &id
		}
		ok, err := e.store.ApplyMatch(ctx, row.ID, memberID, score, status)
		switch {
		case err != nil:
			res.Status = row.Status
			res.Error = errs.UserMessage(err)
			e.log.Warn("match write failed", zap.Int64("transaction_id", row.ID), zap.Error(err))
		case !ok:
			res.Status = row.Status
			res.Error = "transaction is no longer awaiting matching"
		default:
			res.Status = status
			if memberID != nil {
				name := best.FullName()
				s := score
				res.MatchedMemberID, res.MatchedMemberName, res.ConfidenceScore = memberID, &name, &s
				matched++
			}
		}
		results = append(results, res)
	}
	e.log.Info("matching run finished",
		zap.Int("rows", len(rows)), zap.Int("matched", matched), zap.Float64("threshold", threshold))
	return results, nil
}

// bestMatch returns the highest scoring member. members must be sorted by id;
// on equal scores the lowest id wins.
func bestMatch(raw string, members []model.Member) (*model.Member, float64) {
	norm := normalizeName(raw)
	if norm == "" {
		return nil, 0
	}
	var best *model.Member
	bestScore := 0.0
	for i := range members {
		s := memberScore(norm, members[i])
		if best == nil || s > bestScore {
			best, bestScore = &members[i], s
		}
	}
	return best, bestScore
}
