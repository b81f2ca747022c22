package errs

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Kind classifies a failure for per-item reporting and HTTP mapping.
type Kind int

const (
	KindOperation Kind = iota
	KindValidation
	KindNotFound
	KindExternalService
	KindPosting
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindExternalService:
		return "external_service"
	case KindPosting:
		return "posting"
	}
	return "operation"
}

// Error carries a Kind, a message safe to show operators and an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	if e.Msg == "" {
		return e.Err.Error()
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func External(msg string, err error) error {
	return &Error{Kind: KindExternalService, Msg: msg, Err: err}
}

func Posting(msg string, err error) error {
	return &Error{Kind: KindPosting, Msg: msg, Err: err}
}

func Operation(msg string, err error) error {
	return &Error{Kind: KindOperation, Msg: msg, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain. Unclassified
// errors are operation errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindOperation
}

func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// HTTPStatus maps an error to the response code the API reports for it.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindExternalService:
		return http.StatusBadGateway
	case KindPosting:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// UserMessage returns the text reported to operators. Operation errors never
// expose their cause.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindOperation {
			if msg := pgUserFriendlyMessage(e.Err); msg != "" {
				return msg
			}
			return "Internal server error"
		}
		if e.Msg != "" {
			return e.Msg
		}
		return e.Error()
	}
	if msg := pgUserFriendlyMessage(err); msg != "" {
		return msg
	}
	return "Internal server error"
}

// FromDB classifies a database error. pgx.ErrNoRows becomes a NotFound with the
// given message, constraint violations become validation errors and anything
// else is an operation error.
func FromDB(err error, notFoundMsg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &Error{Kind: KindNotFound, Msg: notFoundMsg, Err: err}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "23503", "23514":
			return &Error{Kind: KindValidation, Msg: pgUserFriendlyMessage(pgErr), Err: err}
		}
	}
	return &Error{Kind: KindOperation, Msg: "database error", Err: err}
}

func pgUserFriendlyMessage(err error) string {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return ""
	}
	switch pgErr.Code {
	case "23505":
		return "A record with the same unique value already exists."
	case "23503":
		return "Some referenced data was not found (please refresh and try again)."
	case "23514":
		return "Some fields have invalid values. Please check and try again."
	}
	return "Database error while processing the request. Please try again."
}
