package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("statement 7: %w", NotFound("bank statement %d not found", 7))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.True(t, Is(err, KindNotFound))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(err))
	assert.Equal(t, "bank statement 7 not found", UserMessage(err))
}

func TestHTTPStatusPerKind(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(Validation("bad")))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(External("ai down", errors.New("timeout"))))
	assert.Equal(t, http.StatusUnprocessableEntity, HTTPStatus(Posting("ledger", errors.New("x"))))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("plain")))
}

func TestOperationErrorHidesCause(t *testing.T) {
	err := Operation("insert statement", errors.New("connection refused on 10.0.0.4"))
	assert.Equal(t, "Internal server error", UserMessage(err))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestFromDB(t *testing.T) {
	assert.Nil(t, FromDB(nil, "missing"))

	nf := FromDB(pgx.ErrNoRows, "transaction not found")
	assert.Equal(t, KindNotFound, KindOf(nf))
	assert.Equal(t, "transaction not found", UserMessage(nf))

	dup := FromDB(&pgconn.PgError{Code: "23505"}, "")
	assert.Equal(t, KindValidation, KindOf(dup))
	assert.Contains(t, UserMessage(dup), "already exists")

	fk := FromDB(&pgconn.PgError{Code: "23503"}, "")
	assert.Equal(t, KindValidation, KindOf(fk))

	other := FromDB(&pgconn.PgError{Code: "40001"}, "")
	assert.Equal(t, KindOperation, KindOf(other))
	assert.Equal(t, "Database error while processing the request. Please try again.", UserMessage(other))
}
