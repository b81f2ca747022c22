package api

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"CoopLedgerSaas/internal/errs"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticHealth struct {
	checks map[string]string
	ok     bool
}

func (s staticHealth) Health() (map[string]string, bool) { return s.checks, s.ok }

func TestOperatorMiddlewareStoresOperator(t *testing.T) {
	var got Operator
	router := NewRouter(nil, func(r *mux.Router) {
		r.HandleFunc("/whoami", func(w http.ResponseWriter, r *http.Request) {
			got, _ = OperatorFromCtx(r.Context())
			RespondWithResult(w)
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-User-Id", " u-9 ")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, Operator{ID: "u-9"}, got)
	assert.Equal(t, "u-9", got.Label())
}

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthHandler(staticHealth{checks: map[string]string{"postgres": "ok", "redis": "connection refused"}}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"degraded","checks":{"postgres":"ok","redis":"connection refused"}}`, rec.Body.String())

	rec = httptest.NewRecorder()
	HealthHandler(staticHealth{checks: map[string]string{"postgres": "ok"}, ok: true}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRespondWithErrMapsKinds(t *testing.T) {
	cases := []struct {
		err  error
		code int
		msg  string
	}{
		{errs.Validation("bad input"), http.StatusBadRequest, "bad input"},
		{errs.NotFound("statement 3 not found"), http.StatusNotFound, "statement 3 not found"},
		{errs.External("AI extraction failed", errors.New("503")), http.StatusBadGateway, "AI extraction failed"},
		{errs.Posting("loan rejected by ledger", nil), http.StatusUnprocessableEntity, "loan rejected by ledger"},
		{errs.Operation("list statements", errors.New("dial tcp: refused")), http.StatusInternalServerError, "Internal server error"},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		RespondWithErr(rec, c.err)
		assert.Equal(t, c.code, rec.Code)
		assert.JSONEq(t, `{"success":false,"message":"`+c.msg+`"}`, rec.Body.String())
	}
}

func TestGatewayServiceStartStop(t *testing.T) {
	router := NewRouter(staticHealth{ok: true}, nil)
	svc := NewGatewayService(map[string]interface{}{"port": "0", "read_timeout": "5s", "write_timeout": 30}, router)
	svc.server.Addr = "127.0.0.1:0"

	require.NoError(t, svc.Start())
	assert.Equal(t, "gateway", svc.Name())
	assert.Equal(t, 5*time.Second, svc.server.ReadTimeout)
	assert.Equal(t, 30*time.Second, svc.server.WriteTimeout)

	resp, err := http.Get("http://" + svc.Addr() + "/healthz")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, svc.Stop())
	_, err = http.Get("http://" + svc.Addr() + "/healthz")
	assert.Error(t, err)
}
