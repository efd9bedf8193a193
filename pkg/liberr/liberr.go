// Package liberr defines the error kinds surfaced by the library core and
// how the request boundary presents them.
package liberr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrUnavailable         = errors.New("book unavailable")
	ErrAlreadyReturned     = errors.New("borrowing already returned")
	ErrHasActiveBorrowings = errors.New("has active borrowings")
	ErrCannotModifySelf    = errors.New("cannot modify own account")
	ErrNotFound            = errors.New("not found")
	ErrValidationFailed    = errors.New("validation failed")
	ErrUnauthenticated     = errors.New("unauthenticated")
)

type Kind string

const (
	KindUnavailable         Kind = "UNAVAILABLE"
	KindAlreadyReturned     Kind = "ALREADY_RETURNED"
	KindHasActiveBorrowings Kind = "HAS_ACTIVE_BORROWINGS"
	KindCannotModifySelf    Kind = "CANNOT_MODIFY_SELF"
	KindNotFound            Kind = "NOT_FOUND"
	KindValidationFailed    Kind = "VALIDATION_FAILED"
	KindUnauthenticated     Kind = "UNAUTHENTICATED"
	KindInternal            Kind = "INTERNAL"
)

var kinds = []struct {
	err     error
	kind    Kind
	status  int
	message string
}{
	{ErrUnavailable, KindUnavailable, http.StatusConflict, "Buku tidak tersedia untuk dipinjam."},
	{ErrAlreadyReturned, KindAlreadyReturned, http.StatusConflict, "Buku sudah dikembalikan."},
	{ErrHasActiveBorrowings, KindHasActiveBorrowings, http.StatusConflict, "Masih ada peminjaman aktif."},
	{ErrCannotModifySelf, KindCannotModifySelf, http.StatusForbidden, "Tidak dapat mengubah akun sendiri."},
	{ErrNotFound, KindNotFound, http.StatusNotFound, "Data tidak ditemukan."},
	{ErrValidationFailed, KindValidationFailed, http.StatusUnprocessableEntity, "Data yang dikirim tidak valid."},
	{ErrUnauthenticated, KindUnauthenticated, http.StatusUnauthorized, "Email atau kata sandi salah."},
}

// KindOf classifies err. Unknown errors are KindInternal.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// Status maps err to the HTTP status the boundary responds with.
func Status(err error) int {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.status
		}
	}
	return http.StatusInternalServerError
}

// Message returns the user-facing text for err. A *Error carrying its own
// message wins over the generic text of its kind.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.message
		}
	}
	return "Terjadi kesalahan pada server."
}

type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Error is a kind plus a specific message and, for validation failures,
// the offending fields.
type Error struct {
	Kind   error
	Msg    string
	Fields []FieldError
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%v: %s", e.Kind, e.Msg)
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Rule)
	}
	return fmt.Sprintf("%v: %s (%s)", e.Kind, e.Msg, strings.Join(parts, ", "))
}

func (e *Error) Unwrap() error { return e.Kind }

// New wraps kind with a specific user-facing message.
func New(kind error, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Validation reports a single invalid field.
func Validation(field, rule, msg string) error {
	return &Error{
		Kind:   ErrValidationFailed,
		Msg:    msg,
		Fields: []FieldError{{Field: field, Rule: rule, Message: msg}},
	}
}

// Fields returns the field errors carried by err, if any.
func Fields(err error) []FieldError {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}
