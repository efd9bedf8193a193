package models

import (
	"time"
)

type Role string

const (
	RoleAdministrator Role = "administrator"
	RoleLibrarian     Role = "librarian"
	RoleMember        Role = "member"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdministrator, RoleLibrarian, RoleMember:
		return true
	}
	return false
}

type BorrowingStatus string

const (
	StatusActive   BorrowingStatus = "active"
	StatusReturned BorrowingStatus = "returned"
	// StatusOverdue is only ever read: seeded or legacy rows may carry it,
	// the service derives overdue from active + due_date instead of writing it.
	StatusOverdue BorrowingStatus = "overdue"
)

// OpenStatuses are the statuses that still hold a copy of the book.
var OpenStatuses = []BorrowingStatus{StatusActive, StatusOverdue}

// IsOpen reports whether the loan still holds a copy.
func (s BorrowingStatus) IsOpen() bool {
	return s == StatusActive || s == StatusOverdue
}

type User struct {
	ID           uint   `gorm:"primaryKey"`
	Name         string `gorm:"size:255;not null"`
	Email        string `gorm:"size:255;not null;uniqueIndex"`
	PasswordHash string `gorm:"size:255;not null"`
	Role         Role   `gorm:"size:20;not null;index;default:'member'"`
	IsActive     bool   `gorm:"not null;default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Book struct {
	ID              uint   `gorm:"primaryKey"`
	Title           string `gorm:"size:255;not null;index"`
	Author          string `gorm:"size:255;not null;index"`
	ISBN            string `gorm:"column:isbn;size:20;not null;uniqueIndex"`
	Year            int    `gorm:"not null;index"`
	Publisher       string `gorm:"size:255;not null"`
	Genre           string `gorm:"size:100;not null;index"`
	TotalCopies     int    `gorm:"not null;check:total_copies >= 0"`
	AvailableCopies int    `gorm:"not null;check:available_copies >= 0"`
	Description     string `gorm:"type:text"`
	CoverImage      string `gorm:"size:255"`
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Borrowings []Borrowing `gorm:"foreignKey:BookID;constraint:OnDelete:CASCADE"`
}

// IsAvailable reports whether at least one copy can be lent.
func (b Book) IsAvailable() bool {
	return b.AvailableCopies > 0
}

// Lent is the number of copies currently out.
func (b Book) Lent() int {
	return b.TotalCopies - b.AvailableCopies
}

type Borrowing struct {
	ID           uint            `gorm:"primaryKey"`
	BookID       uint            `gorm:"not null;index"`
	BorrowerID   uint            `gorm:"not null;index"`
	LibrarianID  uint            `gorm:"not null;index"`
	BorrowedDate time.Time       `gorm:"type:date;not null;index"`
	DueDate      time.Time       `gorm:"type:date;not null;index"`
	ReturnedDate *time.Time      `gorm:"type:date"`
	Status       BorrowingStatus `gorm:"size:20;not null;index;default:'active'"`
	FineAmount   int64           `gorm:"not null;default:0;check:fine_amount >= 0"`
	Notes        string          `gorm:"type:text"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Book      Book `gorm:"foreignKey:BookID"`
	Borrower  User `gorm:"foreignKey:BorrowerID;constraint:OnDelete:CASCADE"`
	Librarian User `gorm:"foreignKey:LibrarianID;constraint:OnDelete:CASCADE"`
}

// All lists every model in migration order.
func All() []interface{} {
	return []interface{}{&User{}, &Book{}, &Borrowing{}}
}
