package testdb

import (
	"fmt"
	"testing"
	"time"

	"github.com/appdotbuilder/perpustakaan-online/pkg/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Book inserts a book with the given copy counts.
func Book(t testing.TB, db *gorm.DB, title string, total, available int) models.Book {
	t.Helper()
	book := models.Book{
		Title:           title,
		Author:          "Penulis " + title,
		ISBN:            uuid.NewString()[:13],
		Year:            2005,
		Publisher:       "Gramedia",
		Genre:           "Fiksi",
		TotalCopies:     total,
		AvailableCopies: available,
	}
	if err := db.Create(&book).Error; err != nil {
		t.Fatalf("create book: %v", err)
	}
	return book
}

// User inserts an active user with the given role.
func User(t testing.TB, db *gorm.DB, name string, role models.Role) models.User {
	t.Helper()
	user := models.User{
		Name:         name,
		Email:        fmt.Sprintf("%s-%s@perpustakaan.test", name, uuid.NewString()[:8]),
		PasswordHash: "x",
		Role:         role,
		IsActive:     true,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

// Borrowing inserts a loan row directly, bypassing the copy counter.
func Borrowing(t testing.TB, db *gorm.DB, bookID, borrowerID, librarianID uint, status models.BorrowingStatus, borrowed, due time.Time) models.Borrowing {
	t.Helper()
	b := models.Borrowing{
		BookID:       bookID,
		BorrowerID:   borrowerID,
		LibrarianID:  librarianID,
		BorrowedDate: borrowed,
		DueDate:      due,
		Status:       status,
	}
	if status == models.StatusReturned {
		returned := due
		b.ReturnedDate = &returned
	}
	if err := db.Omit(clause.Associations).Create(&b).Error; err != nil {
		t.Fatalf("create borrowing: %v", err)
	}
	return b
}

// Reload fetches the current state of a book.
func Reload(t testing.TB, db *gorm.DB, id uint) models.Book {
	t.Helper()
	var book models.Book
	if err := db.First(&book, id).Error; err != nil {
		t.Fatalf("reload book %d: %v", id, err)
	}
	return book
}
