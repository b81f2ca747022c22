package extraction

import (
	"context"
	"errors"
	"sync"
	"time"

	"CoopLedgerSaas/internal/checksum"
	"CoopLedgerSaas/internal/errs"
	"CoopLedgerSaas/internal/model"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("CoopLedgerSaas/internal/extraction")

// File is a stored statement handed to an extractor.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Extractor turns one statement file into normalized candidates.
type Extractor interface {
	Extract(ctx context.Context, f File) ([]model.NormalizedTransaction, error)
}

// AI is the combined text and vision service used by the document and image
// strategies.
type AI interface {
	TextGenerator
	VisionGenerator
}

type Store interface {
	GetStatement(ctx context.Context, id int64) (model.BankStatement, error)
	BeginProcessing(ctx context.Context, id int64) (bool, error)
	CompleteStatement(ctx context.Context, id int64, txns []model.NormalizedTransaction) (int, error)
	FailStatement(ctx context.Context, id int64, cause string) error
}

type Blobs interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Result is the per-statement outcome of an extraction run.
type Result struct {
	StatementID       int64                 `json:"statementId"`
	Filename          string                `json:"filename,omitempty"`
	TransactionsCount *int                  `json:"transactionsCount,omitempty"`
	Status            model.StatementStatus `json:"status,omitempty"`
	Error             string                `json:"error,omitempty"`
	Err               error                 `json:"-"`
}

func (r Result) OK() bool { return r.Err == nil }

// Engine runs the extraction strategy for each statement's file type.
type Engine struct {
	store       Store
	blobs       Blobs
	strategies  map[model.FileType]Extractor
	parallelism int
	log         *zap.Logger
}

// NewEngine wires the default strategy table. A nil ai leaves document and
// image statements failing with an external service error.
func NewEngine(store Store, blobs Blobs, ai AI, parallelism int, log *zap.Logger) *Engine {
	if ai == nil {
		ai = unavailableAI{}
	}
	if parallelism <= 0 {
		parallelism = 1
	}
	return &Engine{
		store: store,
		blobs: blobs,
		strategies: map[model.FileType]Extractor{
			model.FileTypeSpreadsheet: Spreadsheet{},
			model.FileTypeDocument:    Document{AI: ai},
			model.FileTypeImage:       Image{AI: ai},
		},
		parallelism: parallelism,
		log:         log,
	}
}

// Register replaces the strategy for a file type.
func (e *Engine) Register(ft model.FileType, x Extractor) {
	e.strategies[ft] = x
}

// Run extracts every statement in ids with bounded parallelism. onResult, when
// non-nil, is called once per statement as soon as it finishes; calls are
// serialized. The returned results follow the order of ids.
func (e *Engine) Run(ctx context.Context, ids []int64, onResult func(Result)) []Result {
	ctx, span := tracer.Start(ctx, "extraction.run")
	defer span.End()
	span.SetAttributes(attribute.Int("statements", len(ids)))

	results := make([]Result, len(ids))
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(e.parallelism)
	for i, id := range ids {
		g.Go(func() error {
			res := e.extractOne(ctx, id)
			mu.Lock()
			results[i] = res
			if onResult != nil {
				onResult(res)
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *Engine) extractOne(ctx context.Context, id int64) Result {
	ctx, span := tracer.Start(ctx, "extraction.statement")
	defer span.End()
	span.SetAttributes(attribute.Int64("statement_id", id))
	log := e.log.With(zap.Int64("statement_id", id))

	st, err := e.store.GetStatement(ctx, id)
	if err != nil {
		return failed(Result{StatementID: id}, err)
	}
	res := Result{StatementID: id, Filename: st.Filename, Status: st.Status}

	started, err := e.store.BeginProcessing(ctx, id)
	if err != nil {
		return failed(res, err)
	}
	if !started {
		return failed(res, errs.Validation("statement is not awaiting extraction"))
	}
	res.Status = model.StatementProcessing

	begin := time.Now()
	txns, err := e.extract(ctx, st)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn("extraction failed", zap.String("file_type", string(st.FileType)), zap.Error(err))
		// the statement must not stay in processing when the caller went away
		if ferr := e.store.FailStatement(context.WithoutCancel(ctx), id, failureCause(err)); ferr != nil {
			log.Error("could not mark statement failed", zap.Error(ferr))
		}
		res.Status = model.StatementFailed
		return failed(res, err)
	}

	n, err := e.store.CompleteStatement(ctx, id, txns)
	if err != nil {
		log.Error("could not store extracted rows", zap.Error(err))
		if ferr := e.store.FailStatement(context.WithoutCancel(ctx), id, failureCause(err)); ferr != nil {
			log.Error("could not mark statement failed", zap.Error(ferr))
		}
		res.Status = model.StatementFailed
		return failed(res, err)
	}
	log.Info("statement extracted",
		zap.String("file_type", string(st.FileType)), zap.Int("transactions", n), zap.Duration("elapsed", time.Since(begin)))
	res.Status = model.StatementCompleted
	res.TransactionsCount = &n
	return res
}

func (e *Engine) extract(ctx context.Context, st model.BankStatement) ([]model.NormalizedTransaction, error) {
	x, ok := e.strategies[st.FileType]
	if !ok {
		return nil, errs.Validation("no extractor for file type %q", st.FileType)
	}
	data, err := e.blobs.Get(ctx, st.StoragePath)
	if err != nil {
		return nil, errs.Operation("could not read stored file", err)
	}
	if st.Checksum != "" {
		if ok, _ := checksum.NewMatcher(st.Checksum).Match(data); !ok {
			return nil, errs.Validation("stored file does not match its upload checksum")
		}
	}
	txns, err := x.Extract(ctx, File{Name: st.Filename, ContentType: st.ContentType, Data: data})
	if err != nil {
		return nil, err
	}
	for i := range txns {
		if txns[i].Source == "" {
			txns[i].Source = model.Source(st.FileType)
		}
	}
	return txns, nil
}

func failed(r Result, err error) Result {
	r.Err = err
	r.Error = errs.UserMessage(err)
	return r
}

// failureCause is the text recorded on a failed statement.
func failureCause(err error) string {
	var e *errs.Error
	if errors.As(err, &e) && e.Kind != errs.KindOperation {
		return err.Error()
	}
	return "extraction failed: internal error"
}

type unavailableAI struct{}

func (unavailableAI) GenerateText(context.Context, string) (string, error) {
	return "", errs.External("AI extraction service is not configured", nil)
}

func (unavailableAI) GenerateFromImage(context.Context, string, string, []byte) (string, error) {
	return "", errs.External("AI extraction service is not configured", nil)
}
