package bankstatement

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Deps are the pipeline stages the bank-statement routes drive.
type Deps struct {
	Uploads   Uploader
	Extractor Extractor
	Matcher   Matcher
	Poster    Poster
	Review    Reviewer
	Threshold float64
}

// Routes mounts the bank-statement API on r.
func Routes(d Deps) func(*mux.Router) {
	return func(r *mux.Router) {
		r.Handle("/bank-statements", StatementsHandler(d.Review)).Methods(http.MethodGet)
		r.Handle("/bank-statements/upload", UploadHandler(d.Uploads)).Methods(http.MethodPost)
		r.Handle("/bank-statements/extract", ExtractHandler(d.Extractor)).Methods(http.MethodPost)
		r.Handle("/bank-statements/match-names", MatchHandler(d.Matcher, d.Threshold)).Methods(http.MethodPost)
		r.Handle("/bank-statements/process", ProcessHandler(d.Poster)).Methods(http.MethodPost)
		r.Handle("/bank-statements/stats", StatsHandler(d.Review)).Methods(http.MethodGet)
		r.Handle("/bank-statements/transactions", TransactionsHandler(d.Review)).Methods(http.MethodGet)
		r.Handle("/bank-statements/transactions/{id:[0-9]+}", UpdateTransactionHandler(d.Review)).Methods(http.MethodPut)
		r.Handle("/bank-statements/transactions/{id:[0-9]+}", DeleteTransactionHandler(d.Review)).Methods(http.MethodDelete)
		r.Handle("/bank-statements/unmatched", UnmatchedHandler(d.Review)).Methods(http.MethodGet)
		r.Handle("/bank-statements/unmatched/export", ExportUnmatchedHandler(d.Review)).Methods(http.MethodGet)
		r.Handle("/bank-statements/{id:[0-9]+}/transactions", ManualEntryHandler(d.Review)).Methods(http.MethodPost)
	}
}
