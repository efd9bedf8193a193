package liberr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassification(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		kind    Kind
		status  int
		message string
	}{
		{"bare sentinel", ErrUnavailable, KindUnavailable, http.StatusConflict, "Buku tidak tersedia untuk dipinjam."},
		{"wrapped sentinel", fmt.Errorf("borrow: %w", ErrAlreadyReturned), KindAlreadyReturned, http.StatusConflict, "Buku sudah dikembalikan."},
		{"specific message", New(ErrNotFound, "Buku tidak ditemukan."), KindNotFound, http.StatusNotFound, "Buku tidak ditemukan."},
		{"self modification", New(ErrCannotModifySelf, "Tidak dapat menonaktifkan akun sendiri."), KindCannotModifySelf, http.StatusForbidden, "Tidak dapat menonaktifkan akun sendiri."},
		{"validation", Validation("dueDate", "gtfield", "Tanggal jatuh tempo harus setelah tanggal peminjaman."), KindValidationFailed, http.StatusUnprocessableEntity, "Tanggal jatuh tempo harus setelah tanggal peminjaman."},
		{"unknown", errors.New("connection reset"), KindInternal, http.StatusInternalServerError, "Terjadi kesalahan pada server."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, KindOf(tt.err))
			assert.Equal(t, tt.status, Status(tt.err))
			assert.Equal(t, tt.message, Message(tt.err))
		})
	}
}

func TestFields(t *testing.T) {
	err := fmt.Errorf("create: %w", Validation("isbn", "unique", "ISBN sudah terdaftar untuk buku lain."))

	fields := Fields(err)
	assert.Equal(t, []FieldError{{Field: "isbn", Rule: "unique", Message: "ISBN sudah terdaftar untuk buku lain."}}, fields)
	assert.ErrorIs(t, err, ErrValidationFailed)
	assert.Contains(t, err.Error(), "isbn unique")

	assert.Nil(t, Fields(ErrNotFound))
}
