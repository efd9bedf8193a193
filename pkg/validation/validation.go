// Package validation checks core inputs against their `validate` tags and
// reports failures as liberr field errors with Indonesian messages.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/appdotbuilder/perpustakaan-online/pkg/liberr"
	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	validate *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return toJSONFieldName(fld.Name)
			}
			return name
		})
	})
	return validate
}

// Struct validates v. The returned error wraps liberr.ErrValidationFailed
// and carries one FieldError per failed rule.
func Struct(v any) error {
	err := instance().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate: %w", err)
	}
	return FromValidator(verrs)
}

func FromValidator(verrs validator.ValidationErrors) error {
	fields := make([]liberr.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, liberr.FieldError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Message: buildMessage(fe),
		})
	}
	return &liberr.Error{
		Kind:   liberr.ErrValidationFailed,
		Msg:    fields[0].Message,
		Fields: fields,
	}
}

func toJSONFieldName(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

var fieldLabels = map[string]string{
	"title":        "Judul",
	"author":       "Penulis",
	"isbn":         "ISBN",
	"year":         "Tahun terbit",
	"publisher":    "Penerbit",
	"genre":        "Genre",
	"totalCopies":  "Jumlah eksemplar",
	"description":  "Deskripsi",
	"coverImage":   "Sampul",
	"bookId":       "Buku",
	"borrowerId":   "Peminjam",
	"borrowedDate": "Tanggal peminjaman",
	"dueDate":      "Tanggal jatuh tempo",
	"notes":        "Catatan",
	"fineAmount":   "Denda",
	"name":         "Nama",
	"email":        "Email",
	"password":     "Kata sandi",
	"role":         "Peran",
}

func label(field string) string {
	if l, ok := fieldLabels[field]; ok {
		return l
	}
	return field
}

func buildMessage(fe validator.FieldError) string {
	field := label(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " wajib diisi."
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s maksimal %s karakter.", field, fe.Param())
		}
		return fmt.Sprintf("%s tidak boleh lebih dari %s.", field, fe.Param())
	case "min", "gte":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s minimal %s karakter.", field, fe.Param())
		}
		return fmt.Sprintf("%s tidak boleh kurang dari %s.", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s tidak boleh lebih dari %s.", field, fe.Param())
	case "gtfield":
		if fe.Field() == "dueDate" {
			return "Tanggal jatuh tempo harus setelah tanggal peminjaman."
		}
		return fmt.Sprintf("%s harus lebih besar dari %s.", field, label(toJSONFieldName(fe.Param())))
	case "email":
		return "Format email tidak valid."
	case "oneof":
		return field + " tidak valid."
	}
	return fmt.Sprintf("%s tidak valid (%s).", field, fe.Tag())
}
