// Package borrowing records loans and returns. Every mutation that touches
// a book's copy count runs in one transaction with the loan row it belongs to.
package borrowing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/appdotbuilder/perpustakaan-online/pkg/auth"
	"github.com/appdotbuilder/perpustakaan-online/pkg/availability"
	"github.com/appdotbuilder/perpustakaan-online/pkg/catalog"
	"github.com/appdotbuilder/perpustakaan-online/pkg/liberr"
	"github.com/appdotbuilder/perpustakaan-online/pkg/models"
	"github.com/appdotbuilder/perpustakaan-online/pkg/validation"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultLoanDays = 14
	DefaultPageSize = 15
)

type CreateInput struct {
	BookID       uint      `json:"bookId" validate:"required"`
	BorrowerID   uint      `json:"borrowerId" validate:"required"`
	BorrowedDate time.Time `json:"borrowedDate" validate:"required"`
	DueDate      time.Time `json:"dueDate" validate:"required,gtfield=BorrowedDate"`
	Notes        string    `json:"notes" validate:"max=2000"`
}

// ReturnInput optionally overrides the computed fine and the loan's notes.
type ReturnInput struct {
	FineAmount *int64  `json:"fineAmount" validate:"omitempty,gte=0"`
	Notes      *string `json:"notes" validate:"omitempty,max=2000"`
}

type Filter struct {
	// Status is active, returned or overdue. Overdue also matches active
	// loans whose due date has passed.
	Status     models.BorrowingStatus
	BorrowerID uint
	BookID     uint
	DateFrom   *time.Time
	DateTo     *time.Time
	Page       int
	PageSize   int
}

// Assessment is the overdue state of a loan as of today.
type Assessment struct {
	IsOverdue     bool
	DaysOverdue   int
	EstimatedFine int64
}

type Service struct {
	db         *gorm.DB
	finePerDay int64
	loanDays   int
	now        func() time.Time
	logger     *slog.Logger
}

type Option func(*Service)

func WithFinePerDay(amount int64) Option {
	return func(s *Service) { s.finePerDay = amount }
}

func WithLoanDays(days int) Option {
	return func(s *Service) { s.loanDays = days }
}

// WithClock sets the source of "now". Its location decides which calendar
// day counts as today.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(db *gorm.DB, opts ...Option) *Service {
	s := &Service{
		db:         db,
		finePerDay: availability.DefaultFinePerDay,
		loanDays:   DefaultLoanDays,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Today() time.Time {
	return availability.Day(s.now())
}

func (s *Service) FinePerDay() int64 {
	return s.finePerDay
}

// Defaults fills an unset borrowed date with today and an unset due date
// with the standard loan period.
func (s *Service) Defaults(in CreateInput) CreateInput {
	if in.BorrowedDate.IsZero() {
		in.BorrowedDate = s.Today()
	}
	if in.DueDate.IsZero() {
		in.DueDate = availability.Day(in.BorrowedDate).AddDate(0, 0, s.loanDays)
	}
	return in
}

func (s *Service) Assess(b models.Borrowing) Assessment {
	today := s.Today()
	if !availability.IsOverdue(b, today) {
		return Assessment{}
	}
	return Assessment{
		IsOverdue:     true,
		DaysOverdue:   availability.DaysOverdue(b.DueDate, today),
		EstimatedFine: availability.CalculateFine(b, today, s.finePerDay),
	}
}

// Create lends one copy of a book to a borrower on behalf of actor.
func (s *Service) Create(ctx context.Context, actor auth.Actor, in CreateInput) (*models.Borrowing, error) {
	if !in.BorrowedDate.IsZero() {
		in.BorrowedDate = availability.Day(in.BorrowedDate)
	}
	if !in.DueDate.IsZero() {
		in.DueDate = availability.Day(in.DueDate)
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	var created models.Borrowing
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var book models.Book
		if err := tx.First(&book, in.BookID).Error; err != nil {
			return lookupErr(err, "Buku tidak ditemukan.", "book")
		}
		if !book.IsAvailable() {
			return liberr.New(liberr.ErrUnavailable, "Buku tidak tersedia untuk dipinjam.")
		}

		var borrower models.User
		if err := tx.First(&borrower, in.BorrowerID).Error; err != nil {
			return lookupErr(err, "Peminjam tidak ditemukan.", "borrower")
		}
		if !borrower.IsActive {
			return liberr.Validation("borrowerId", "active", "Peminjam tidak aktif.")
		}

		var librarian models.User
		if err := tx.First(&librarian, actor.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return liberr.Validation("librarianId", "exists", "Petugas tidak ditemukan.")
			}
			return fmt.Errorf("find librarian %d: %w", actor.UserID, err)
		}
		if !librarian.IsActive || (librarian.Role != models.RoleLibrarian && librarian.Role != models.RoleAdministrator) {
			return liberr.Validation("librarianId", "role", "Petugas tidak berwenang mencatat peminjaman.")
		}

		created = models.Borrowing{
			BookID:       book.ID,
			BorrowerID:   borrower.ID,
			LibrarianID:  librarian.ID,
			BorrowedDate: in.BorrowedDate,
			DueDate:      in.DueDate,
			Status:       models.StatusActive,
			Notes:        in.Notes,
		}
		if err := tx.Omit(clause.Associations).Create(&created).Error; err != nil {
			return fmt.Errorf("create borrowing: %w", err)
		}

		return availability.BorrowCopy(ctx, tx, book.ID)
	})
	if err != nil {
		s.logger.WarnContext(ctx, "borrowing rejected",
			"book_id", in.BookID, "borrower_id", in.BorrowerID, "actor_id", actor.UserID, "kind", liberr.KindOf(err))
		return nil, err
	}

	s.logger.InfoContext(ctx, "borrowing created",
		"borrowing_id", created.ID, "book_id", created.BookID, "borrower_id", created.BorrowerID,
		"actor_id", actor.UserID, "due_date", created.DueDate.Format(time.DateOnly))
	return s.Get(ctx, created.ID)
}

// Return closes an open loan, records the fine and puts the copy back.
func (s *Service) Return(ctx context.Context, actor auth.Actor, id uint, in ReturnInput) (*models.Borrowing, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	today := s.Today()

	var fine int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b models.Borrowing
		if err := tx.First(&b, id).Error; err != nil {
			return lookupErr(err, "Peminjaman tidak ditemukan.", "borrowing")
		}
		if !b.Status.IsOpen() {
			return liberr.New(liberr.ErrAlreadyReturned, "Buku sudah dikembalikan.")
		}

		fine = availability.CalculateFine(b, today, s.finePerDay)
		if in.FineAmount != nil {
			fine = *in.FineAmount
		}

		updates := map[string]interface{}{
			"status":        models.StatusReturned,
			"returned_date": today,
			"fine_amount":   fine,
		}
		if in.Notes != nil {
			updates["notes"] = *in.Notes
		}
		res := tx.Model(&models.Borrowing{}).
			Where("id = ? AND status <> ?", id, models.StatusReturned).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("close borrowing %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return liberr.New(liberr.ErrAlreadyReturned, "Buku sudah dikembalikan.")
		}

		return availability.ReturnCopy(ctx, tx, b.BookID)
	})
	if err != nil {
		s.logger.WarnContext(ctx, "return rejected", "borrowing_id", id, "actor_id", actor.UserID, "kind", liberr.KindOf(err))
		return nil, err
	}

	s.logger.InfoContext(ctx, "borrowing returned", "borrowing_id", id, "actor_id", actor.UserID, "fine", fine)
	return s.Get(ctx, id)
}

// Delete removes a closed loan record.
func (s *Service) Delete(ctx context.Context, actor auth.Actor, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND status NOT IN ?", id, models.OpenStatuses).Delete(&models.Borrowing{})
		if res.Error != nil {
			return fmt.Errorf("delete borrowing %d: %w", id, res.Error)
		}
		if res.RowsAffected == 1 {
			return nil
		}
		var count int64
		if err := tx.Model(&models.Borrowing{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return fmt.Errorf("find borrowing %d: %w", id, err)
		}
		if count == 0 {
			return liberr.New(liberr.ErrNotFound, "Peminjaman tidak ditemukan.")
		}
		return liberr.New(liberr.ErrHasActiveBorrowings, "Tidak dapat menghapus peminjaman yang masih aktif.")
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "borrowing deleted", "borrowing_id", id, "actor_id", actor.UserID)
	return nil
}

func (s *Service) Get(ctx context.Context, id uint) (*models.Borrowing, error) {
	var b models.Borrowing
	err := s.db.WithContext(ctx).
		Preload("Book").Preload("Borrower").Preload("Librarian").
		First(&b, id).Error
	if err != nil {
		return nil, lookupErr(err, "Peminjaman tidak ditemukan.", "borrowing")
	}
	return &b, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]models.Borrowing, int64, error) {
	page, size := catalog.Page(f.Page, f.PageSize, DefaultPageSize)

	q := s.db.WithContext(ctx).Model(&models.Borrowing{})
	switch f.Status {
	case "":
	case models.StatusOverdue:
		q = q.Scopes(OverdueScope(s.Today()))
	default:
		q = q.Where("status = ?", f.Status)
	}
	if f.BorrowerID != 0 {
		q = q.Where("borrower_id = ?", f.BorrowerID)
	}
	if f.BookID != 0 {
		q = q.Where("book_id = ?", f.BookID)
	}
	if f.DateFrom != nil {
		q = q.Where("borrowed_date >= ?", availability.Day(*f.DateFrom))
	}
	if f.DateTo != nil {
		q = q.Where("borrowed_date <= ?", availability.Day(*f.DateTo))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count borrowings: %w", err)
	}

	var items []models.Borrowing
	err := q.Preload("Book").Preload("Borrower").Preload("Librarian").
		Order("borrowed_date DESC").Order("id DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&items).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list borrowings: %w", err)
	}
	return items, total, nil
}

// OverdueScope matches loans that are stored as overdue or are still
// active past their due date.
func OverdueScope(today time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("(status = ? OR (status = ? AND due_date < ?))",
			models.StatusOverdue, models.StatusActive, availability.Day(today))
	}
}

// OpenScope matches loans that still hold a copy.
func OpenScope(db *gorm.DB) *gorm.DB {
	return db.Where("status IN ?", models.OpenStatuses)
}

func lookupErr(err error, msg, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return liberr.New(liberr.ErrNotFound, msg)
	}
	return fmt.Errorf("find %s: %w", what, err)
}
