package bankstatement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"CoopLedgerSaas/api"
	"CoopLedgerSaas/api/constants"
	"CoopLedgerSaas/api/utils"
	"CoopLedgerSaas/internal/config"
	"CoopLedgerSaas/internal/errs"
	"CoopLedgerSaas/internal/extraction"
	"CoopLedgerSaas/internal/ingestion"
	"CoopLedgerSaas/internal/matching"
	"CoopLedgerSaas/internal/model"
	"CoopLedgerSaas/internal/posting"
	"CoopLedgerSaas/internal/review"
	"CoopLedgerSaas/internal/store"

	"github.com/gorilla/mux"
)

type Uploader interface {
	Upload(ctx context.Context, uploader string, files []ingestion.Upload) ([]model.BankStatement, error)
	Policy() config.UploadConfig
}

type Extractor interface {
	Run(ctx context.Context, ids []int64, onResult func(extraction.Result)) []extraction.Result
}

type Matcher interface {
	Run(ctx context.Context, threshold float64) ([]matching.Result, error)
}

type Poster interface {
	Run(ctx context.Context, req posting.Request) (posting.Summary, error)
}

type Reviewer interface {
	Statements(ctx context.Context, limit, offset int) ([]model.BankStatement, int, error)
	Transactions(ctx context.Context, f store.TxnFilter) ([]model.TransactionView, int, error)
	Unmatched(ctx context.Context) ([]model.ExtractedTransaction, error)
	Stats(ctx context.Context) (model.Stats, error)
	Update(ctx context.Context, id int64, e review.Edit, operator string) (model.TransactionView, error)
	Delete(ctx context.Context, id int64, operator string) error
	AddManual(ctx context.Context, statementID int64, in review.ManualEntry, operator string) (model.ExtractedTransaction, error)
}

type uploadedStatement struct {
	ID       int64                 `json:"id"`
	Filename string                `json:"filename"`
	FileType model.FileType        `json:"fileType"`
	Status   model.StatementStatus `json:"status"`
}

// UploadHandler handles POST /bank-statements/upload. Files arrive as the
// repeated multipart field "files".
func UploadHandler(u Uploader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		op, _ := api.OperatorFromCtx(r.Context())
		policy := u.Policy()
		r.Body = http.MaxBytesReader(w, r.Body, int64(policy.MaxFiles)*policy.MaxFileSize+constants.MultipartMemLimit)

		files, err := readUploads(r, policy)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				api.RespondWithError(w, err, constants.ErrUploadTooLarge, http.StatusRequestEntityTooLarge)
				return
			}
			api.RespondWithErr(w, err)
			return
		}

		created, err := u.Upload(r.Context(), op.Label(), files)
		if err != nil {
			api.RespondWithErr(w, err)
			return
		}
		out := make([]uploadedStatement, len(created))
		for i, st := range created {
			out[i] = uploadedStatement{ID: st.ID, Filename: st.Filename, FileType: st.FileType, Status: st.Status}
		}
		api.RespondWithJSON(w, http.StatusCreated, out)
	})
}

// readUploads streams the multipart body. Each part is read up to one byte
// past the size limit so the gateway can reject it, and reading stops once
// more files than allowed have been seen.
func readUploads(r *http.Request, policy config.UploadConfig) ([]ingestion.Upload, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, errs.Validation("%s: expected %s", constants.ErrInvalidRequestBody, constants.ContentTypeMultipart)
	}
	var files []ingestion.Upload
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, wrapReadErr(err)
		}
		if part.FormName() != constants.UploadFormField || part.FileName() == "" {
			_ = part.Close()
			continue
		}
		data, err := io.ReadAll(io.LimitReader(part, policy.MaxFileSize+1))
		_ = part.Close()
		if err != nil {
			return nil, wrapReadErr(err)
		}
		files = append(files, ingestion.Upload{
			Filename:    part.FileName(),
			ContentType: part.Header.Get(constants.ContentTypeText),
			Data:        data,
		})
		if len(files) > policy.MaxFiles {
			break
		}
	}
	return files, nil
}

func wrapReadErr(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	return errs.Validation("%s: %v", constants.ErrFailedToReadUpload, err)
}

type statementIDsRequest struct {
	BankStatementIDs []int64 `json:"bankStatementIds"`
}

// ExtractHandler handles POST /bank-statements/extract. With ?stream=true each
// result is written as one NDJSON line as soon as its statement finishes.
func ExtractHandler(x Extractor) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req statementIDsRequest
		if err := api.DecodeJSON(r, &req); err != nil {
			api.RespondWithErr(w, err)
			return
		}
		if len(req.BankStatementIDs) == 0 {
			api.RespondWithError(w, nil, constants.ErrMissingStatementIDs, http.StatusBadRequest)
			return
		}

		stream, _ := strconv.ParseBool(r.URL.Query().Get("stream"))
		if !stream {
			api.RespondWithJSON(w, http.StatusOK, x.Run(r.Context(), req.BankStatementIDs, nil))
			return
		}

		w.Header().Set(constants.ContentTypeText, constants.ContentTypeNDJSON)
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		enc := json.NewEncoder(w)
		x.Run(r.Context(), req.BankStatementIDs, func(res extraction.Result) {
			if err := enc.Encode(res); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		})
	})
}

type matchRequest struct {
	ConfidenceThreshold *float64 `json:"confidenceThreshold"`
}

// MatchHandler handles POST /bank-statements/match-names. A missing threshold
// uses the configured default.
func MatchHandler(m Matcher, defaultThreshold float64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req matchRequest
		if err := api.DecodeJSON(r, &req); err != nil {
			api.RespondWithErr(w, err)
			return
		}
		threshold := defaultThreshold
		if req.ConfidenceThreshold != nil {
			threshold = *req.ConfidenceThreshold
		}
		results, err := m.Run(r.Context(), threshold)
		if err != nil {
			api.RespondWithErr(w, err)
			return
		}
		api.RespondWithJSON(w, http.StatusOK, results)
	})
}

type processRequest struct {
	PeriodID         int64   `json:"periodId"`
	BankStatementIDs []int64 `json:"bankStatementIds"`
}

// ProcessHandler handles POST /bank-statements/process. An empty
// bankStatementIds posts every matched row; a non-empty list narrows the run
// to rows of those statements and answers 404 when any of them is unknown.
func ProcessHandler(p Poster) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		op, _ := api.OperatorFromCtx(r.Context())
		var req processRequest
		if err := api.DecodeJSON(r, &req); err != nil {
			api.RespondWithErr(w, err)
			return
		}
		summary, err := p.Run(r.Context(), posting.Request{
			PeriodID:     req.PeriodID,
			StatementIDs: req.BankStatementIDs,
			OperatorID:   op.ID,
		})
		if err != nil {
			api.RespondWithErr(w, err)
			return
		}
		api.RespondWithJSON(w, http.StatusOK, summary)
	})
}

// TransactionsHandler handles GET /bank-statements/transactions.
func TransactionsHandler(rv Reviewer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := utils.ExtractPagination(r)
		if err != nil {
			api.RespondWithError(w, err, constants.ErrInvalidPagination, http.StatusBadRequest)
			return
		}
		f := store.TxnFilter{Limit: p.Limit, Offset: p.Offset}
		if s := strings.TrimSpace(r.URL.Query().Get("status")); s != "" {
			status := model.TransactionStatus(strings.ToLower(s))
			f.Status = &status
		}
		rows, total, err := rv.Transactions(r.Context(), f)
		if err != nil {
			api.RespondWithErr(w, err)
			return
		}
		if rows == nil {
			rows = []model.TransactionView{}
		}
		p.SetPaginationStats(total)
		api.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"transactions": rows, "pagination": p})
	})
}

// UnmatchedHandler handles GET /bank-statements/unmatched, returning CSV when
// ?format=csv.
func UnmatchedHandler(rv Reviewer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rows, err := rv.Unmatched(r.Context())
		if err != nil {
			api.RespondWithErr(w, err)
			return
		}
		if strings.EqualFold(r.URL.Query().Get("format"), "csv") {
			writeCSV(w, rows, false)
			return
		}
		if rows == nil {
			rows = []model.ExtractedTransaction{}
		}
		api.RespondWithJSON(w, http.StatusOK, rows)
	})
}

// ExportUnmatchedHandler handles GET /bank-statements/unmatched/export.
func ExportUnmatchedHandler(rv Reviewer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rows, err := rv.Unmatched(r.Context())
		if err != nil {
			api.RespondWithErr(w, err)
			return
		}
		writeCSV(w, rows, true)
	})
}

func writeCSV(w http.ResponseWriter, rows []model.ExtractedTransaction, attachment bool) {
	w.Header().Set(constants.ContentTypeText, constants.ContentTypeCSV)
	if attachment {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", constants.UnmatchedCSVName))
	}
	w.WriteHeader(http.StatusOK)
	_ = review.WriteCSV(w, rows)
}

// UpdateTransactionHandler handles PUT /bank-statements/transactions/{id}.
func UpdateTransactionHandler(rv Reviewer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, constants.ErrInvalidID)
		if !ok {
			return
		}
		var edit review.Edit
		if err := api.DecodeJSON(r, &edit); err != nil {
			api.RespondWithErr(w, err)
			return
		}
		row, err := rv.Update(r.Context(), id, edit, api.RequestedByFromCtx(r.Context()))
		if err != nil {
			api.RespondWithErr(w, err)
			return
		}
		api.RespondWithJSON(w, http.StatusOK, row)
	})
}

// DeleteTransactionHandler handles DELETE /bank-statements/transactions/{id}.
func DeleteTransactionHandler(rv Reviewer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, constants.ErrInvalidID)
		if !ok {
			return
		}
		if err := rv.Delete(r.Context(), id, api.RequestedByFromCtx(r.Context())); err != nil {
			api.RespondWithErr(w, err)
			return
		}
		api.RespondWithResult(w)
	})
}

// StatsHandler handles GET /bank-statements/stats.
func StatsHandler(rv Reviewer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats, err := rv.Stats(r.Context())
		if err != nil {
			api.RespondWithErr(w, err)
			return
		}
		api.RespondWithJSON(w, http.StatusOK, stats)
	})
}

// StatementsHandler handles GET /bank-statements.
func StatementsHandler(rv Reviewer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := utils.ExtractPagination(r)
		if err != nil {
			api.RespondWithError(w, err, constants.ErrInvalidPagination, http.StatusBadRequest)
			return
		}
		rows, total, err := rv.Statements(r.Context(), p.Limit, p.Offset)
		if err != nil {
			api.RespondWithErr(w, err)
			return
		}
		if rows == nil {
			rows = []model.BankStatement{}
		}
		p.SetPaginationStats(total)
		api.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"statements": rows, "pagination": p})
	})
}

// ManualEntryHandler handles POST /bank-statements/{id}/transactions.
func ManualEntryHandler(rv Reviewer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, constants.ErrInvalidStatementID)
		if !ok {
			return
		}
		var in review.ManualEntry
		if err := api.DecodeJSON(r, &in); err != nil {
			api.RespondWithErr(w, err)
			return
		}
		row, err := rv.AddManual(r.Context(), id, in, api.RequestedByFromCtx(r.Context()))
		if err != nil {
			api.RespondWithErr(w, err)
			return
		}
		api.RespondWithJSON(w, http.StatusCreated, row)
	})
}

func pathID(w http.ResponseWriter, r *http.Request, msg string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		api.RespondWithError(w, nil, msg, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
