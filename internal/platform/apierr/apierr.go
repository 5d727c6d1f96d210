package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrConflict        = errors.New("conflict")
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func NotFound(code, format string, args ...any) *Error {
	return New(http.StatusNotFound, code, fmt.Errorf("%w: "+format, append([]any{ErrNotFound}, args...)...))
}

func Invalid(code, format string, args ...any) *Error {
	return New(http.StatusBadRequest, code, fmt.Errorf("%w: "+format, append([]any{ErrInvalidArgument}, args...)...))
}

func Conflict(code, format string, args ...any) *Error {
	return New(http.StatusConflict, code, fmt.Errorf("%w: "+format, append([]any{ErrConflict}, args...)...))
}

// Status resolves the HTTP status for err, falling back to 500.
func Status(err error) (int, string) {
	var ae *Error
	if errors.As(err, &ae) && ae.Status != 0 {
		return ae.Status, ae.Code
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, "conflict"
	}
	return http.StatusInternalServerError, "internal_error"
}

// FromDB maps storage errors onto API errors. Unknown errors pass through.
func FromDB(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NotFound(what+"_not_found", "%s", what)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return Conflict(what+"_exists", "%s already exists", what)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return Conflict(what+"_exists", "%s already exists", what)
	}
	return err
}

// Message is the user-facing text of err, without the sentinel prefix.
func Message(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	var ae *Error
	if errors.As(err, &ae) && ae.Err != nil {
		msg = ae.Err.Error()
	}
	for _, s := range []error{ErrNotFound, ErrInvalidArgument, ErrConflict} {
		msg = strings.TrimPrefix(msg, s.Error()+": ")
	}
	return msg
}
