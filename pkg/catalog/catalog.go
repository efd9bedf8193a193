package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/appdotbuilder/perpustakaan-online/pkg/database"
	"github.com/appdotbuilder/perpustakaan-online/pkg/liberr"
	"github.com/appdotbuilder/perpustakaan-online/pkg/models"
	"github.com/appdotbuilder/perpustakaan-online/pkg/validation"
	"gorm.io/gorm"
)

const (
	DefaultPageSize = 12
	MaxPageSize     = 100
	MinYear         = 1900
)

var errDuplicateISBN = liberr.Validation("isbn", "unique", "ISBN sudah terdaftar untuk buku lain.")

type BookInput struct {
	Title       string `json:"title" validate:"required,max=255"`
	Author      string `json:"author" validate:"required,max=255"`
	ISBN        string `json:"isbn" validate:"required,max=20"`
	Year        int    `json:"year" validate:"required"`
	Publisher   string `json:"publisher" validate:"required,max=255"`
	Genre       string `json:"genre" validate:"required,max=100"`
	TotalCopies int    `json:"totalCopies" validate:"gte=0"`
	Description string `json:"description" validate:"max=5000"`
	CoverImage  string `json:"coverImage" validate:"max=255"`
}

type Availability string

const (
	AvailabilityAny         Availability = ""
	AvailabilityAvailable   Availability = "available"
	AvailabilityUnavailable Availability = "unavailable"
)

type BookFilter struct {
	Search       string
	Availability Availability
	Genre        string
	Year         int
	Page         int
	PageSize     int
}

type Store struct {
	db     *gorm.DB
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewStore(db *gorm.DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) validate(in BookInput) error {
	if err := validation.Struct(in); err != nil {
		return err
	}
	if in.Year < MinYear {
		return liberr.Validation("year", "min", "Tahun terbit tidak boleh kurang dari 1900.")
	}
	if in.Year > s.now().Year() {
		return liberr.Validation("year", "max", fmt.Sprintf("Tahun terbit tidak boleh lebih dari %d.", s.now().Year()))
	}
	return nil
}

func (s *Store) isbnTaken(ctx context.Context, isbn string, exceptID uint) (bool, error) {
	var count int64
	q := s.db.WithContext(ctx).Model(&models.Book{}).Where("isbn = ?", isbn)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, fmt.Errorf("check isbn: %w", err)
	}
	return count > 0, nil
}

// Create adds a book with every copy available.
func (s *Store) Create(ctx context.Context, in BookInput) (*models.Book, error) {
	in = normalize(in)
	if err := s.validate(in); err != nil {
		return nil, err
	}
	taken, err := s.isbnTaken(ctx, in.ISBN, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, errDuplicateISBN
	}

	book := models.Book{
		Title:           in.Title,
		Author:          in.Author,
		ISBN:            in.ISBN,
		Year:            in.Year,
		Publisher:       in.Publisher,
		Genre:           in.Genre,
		TotalCopies:     in.TotalCopies,
		AvailableCopies: in.TotalCopies,
		Description:     in.Description,
		CoverImage:      in.CoverImage,
	}
	if err := s.db.WithContext(ctx).Create(&book).Error; err != nil {
		if database.IsDuplicateKey(err) {
			return nil, errDuplicateISBN
		}
		return nil, fmt.Errorf("create book: %w", err)
	}

	s.logger.InfoContext(ctx, "book created", "book_id", book.ID, "isbn", book.ISBN, "copies", book.TotalCopies)
	return &book, nil
}

// Update replaces the book's details. Copies already lent stay lent, so
// available becomes max(0, total - lent), evaluated against the row as it
// is at write time.
//
// When total drops below the copies currently lent, available is 0 but the
// open loans are kept. Their returns are capped at total by ReturnCopy, so
// afterwards available no longer equals total minus open loans.
func (s *Store) Update(ctx context.Context, id uint, in BookInput) (*models.Book, error) {
	in = normalize(in)
	if err := s.validate(in); err != nil {
		return nil, err
	}
	taken, err := s.isbnTaken(ctx, in.ISBN, id)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, errDuplicateISBN
	}

	available := gorm.Expr(
		"CASE WHEN ? - (total_copies - available_copies) > 0 THEN ? - (total_copies - available_copies) ELSE 0 END",
		in.TotalCopies, in.TotalCopies,
	)
	res := s.db.WithContext(ctx).Model(&models.Book{}).Where("id = ?", id).Updates(map[string]interface{}{
		"title":            in.Title,
		"author":           in.Author,
		"isbn":             in.ISBN,
		"year":             in.Year,
		"publisher":        in.Publisher,
		"genre":            in.Genre,
		"available_copies": available,
		"total_copies":     in.TotalCopies,
		"description":      in.Description,
		"cover_image":      in.CoverImage,
	})
	if res.Error != nil {
		if database.IsDuplicateKey(res.Error) {
			return nil, errDuplicateISBN
		}
		return nil, fmt.Errorf("update book %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, notFound()
	}

	s.logger.InfoContext(ctx, "book updated", "book_id", id, "copies", in.TotalCopies)
	return s.Get(ctx, id)
}

func (s *Store) Get(ctx context.Context, id uint) (*models.Book, error) {
	var book models.Book
	err := s.db.WithContext(ctx).First(&book, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound()
	}
	if err != nil {
		return nil, fmt.Errorf("get book %d: %w", id, err)
	}
	return &book, nil
}

// GetWithBorrowings loads the book with its loan history, newest first.
func (s *Store) GetWithBorrowings(ctx context.Context, id uint) (*models.Book, error) {
	var book models.Book
	err := s.db.WithContext(ctx).
		Preload("Borrowings", func(db *gorm.DB) *gorm.DB {
			return db.Order("borrowed_date DESC").Order("id DESC")
		}).
		Preload("Borrowings.Borrower").
		Preload("Borrowings.Librarian").
		First(&book, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound()
	}
	if err != nil {
		return nil, fmt.Errorf("get book %d: %w", id, err)
	}
	return &book, nil
}

func (s *Store) List(ctx context.Context, f BookFilter) ([]models.Book, int64, error) {
	page, size := Page(f.Page, f.PageSize, DefaultPageSize)

	q := s.db.WithContext(ctx).Model(&models.Book{})
	if term := strings.TrimSpace(f.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("LOWER(title) LIKE ? OR LOWER(author) LIKE ? OR LOWER(isbn) LIKE ? OR LOWER(genre) LIKE ?",
			like, like, like, like)
	}
	switch f.Availability {
	case AvailabilityAvailable:
		q = q.Where("available_copies > 0")
	case AvailabilityUnavailable:
		q = q.Where("available_copies = 0")
	}
	if genre := strings.TrimSpace(f.Genre); genre != "" {
		q = q.Where("LOWER(genre) LIKE ?", "%"+strings.ToLower(genre)+"%")
	}
	if f.Year != 0 {
		q = q.Where("year = ?", f.Year)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count books: %w", err)
	}

	var books []models.Book
	err := q.Order("created_at DESC").Order("id DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&books).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list books: %w", err)
	}
	return books, total, nil
}

func (s *Store) Genres(ctx context.Context) ([]string, error) {
	var genres []string
	err := s.db.WithContext(ctx).Model(&models.Book{}).
		Distinct("genre").Order("genre").Pluck("genre", &genres).Error
	if err != nil {
		return nil, fmt.Errorf("list genres: %w", err)
	}
	return genres, nil
}

// Delete removes the book and its closed loans. It refuses while any loan
// of the book is still open; the check is part of the DELETE itself.
func (s *Store) Delete(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).
			Where("NOT EXISTS (SELECT 1 FROM borrowings WHERE borrowings.book_id = books.id AND borrowings.status IN ?)", models.OpenStatuses).
			Delete(&models.Book{})
		if res.Error != nil {
			return fmt.Errorf("delete book %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.Book{}).Where("id = ?", id).Count(&count).Error; err != nil {
				return fmt.Errorf("find book %d: %w", id, err)
			}
			if count == 0 {
				return notFound()
			}
			return liberr.New(liberr.ErrHasActiveBorrowings, "Tidak dapat menghapus buku yang sedang dipinjam.")
		}
		if err := tx.Where("book_id = ?", id).Delete(&models.Borrowing{}).Error; err != nil {
			return fmt.Errorf("delete borrowings of book %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "book deleted", "book_id", id)
	return nil
}

// Page clamps pagination input to sane values.
func Page(page, size, def int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = def
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

func normalize(in BookInput) BookInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	in.ISBN = strings.TrimSpace(in.ISBN)
	in.Publisher = strings.TrimSpace(in.Publisher)
	in.Genre = strings.TrimSpace(in.Genre)
	in.CoverImage = strings.TrimSpace(in.CoverImage)
	return in
}

func notFound() error {
	return liberr.New(liberr.ErrNotFound, "Buku tidak ditemukan.")
}
