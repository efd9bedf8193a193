// Package availability keeps a book's available copy count in step with
// its open loans and computes overdue fines.
//
// The counter only moves through conditional UPDATEs so concurrent loans
// can never drive available_copies below zero or above total_copies.
package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/appdotbuilder/perpustakaan-online/pkg/liberr"
	"github.com/appdotbuilder/perpustakaan-online/pkg/models"
	"gorm.io/gorm"
)

// DefaultFinePerDay is the fine, in rupiah, for each day a loan is late.
const DefaultFinePerDay int64 = 1000

// BorrowCopy takes one copy of the book out of circulation. It must run
// inside the transaction that records the loan.
func BorrowCopy(ctx context.Context, tx *gorm.DB, bookID uint) error {
	res := tx.WithContext(ctx).
		Model(&models.Book{}).
		Where("id = ? AND available_copies > 0", bookID).
		UpdateColumn("available_copies", gorm.Expr("available_copies - 1"))
	if res.Error != nil {
		return fmt.Errorf("decrement available copies: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if err := bookExists(ctx, tx, bookID); err != nil {
		return err
	}
	return liberr.ErrUnavailable
}

// ReturnCopy puts one copy back. A book already at total_copies is left
// as is.
func ReturnCopy(ctx context.Context, tx *gorm.DB, bookID uint) error {
	res := tx.WithContext(ctx).
		Model(&models.Book{}).
		Where("id = ? AND available_copies < total_copies", bookID).
		UpdateColumn("available_copies", gorm.Expr("available_copies + 1"))
	if res.Error != nil {
		return fmt.Errorf("increment available copies: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	return bookExists(ctx, tx, bookID)
}

func bookExists(ctx context.Context, tx *gorm.DB, bookID uint) error {
	var book models.Book
	err := tx.WithContext(ctx).Select("id").First(&book, bookID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return liberr.New(liberr.ErrNotFound, "Buku tidak ditemukan.")
	}
	if err != nil {
		return fmt.Errorf("find book %d: %w", bookID, err)
	}
	return nil
}

// Day truncates t to its calendar date, read in t's own location, and
// returns that date as UTC midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysOverdue is the number of whole days asOf lies past due, never negative.
func DaysOverdue(due, asOf time.Time) int {
	days := int(Day(asOf).Sub(Day(due)).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// IsOverdue reports whether b is still open after its due date.
func IsOverdue(b models.Borrowing, asOf time.Time) bool {
	return b.Status.IsOpen() && Day(b.DueDate).Before(Day(asOf))
}

// CalculateFine is DaysOverdue times finePerDay, or 0 when b is not overdue.
func CalculateFine(b models.Borrowing, asOf time.Time, finePerDay int64) int64 {
	if !IsOverdue(b, asOf) {
		return 0
	}
	return int64(DaysOverdue(b.DueDate, asOf)) * finePerDay
}
