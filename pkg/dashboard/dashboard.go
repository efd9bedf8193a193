package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/appdotbuilder/perpustakaan-online/pkg/auth"
	"github.com/appdotbuilder/perpustakaan-online/pkg/borrowing"
	"github.com/appdotbuilder/perpustakaan-online/pkg/models"
	"gorm.io/gorm"
)

type Stats struct {
	TotalBooks        int64
	AvailableBooks    int64
	ActiveBorrowings  int64
	OverdueBorrowings int64
	TotalUsers        int64
	TotalLibrarians   int64
}

// Overview is what the landing page shows. Which sections are filled
// depends on the actor's role.
type Overview struct {
	Stats             Stats
	RecentBooks       []models.Book
	RecentUsers       []models.User
	RecentBorrowings  []models.Borrowing
	OverdueBorrowings []models.Borrowing
	MyBorrowings      []models.Borrowing
}

type count struct {
	dst   *int64
	query *gorm.DB
}

type Service struct {
	db    *gorm.DB
	today func() time.Time
}

// NewService takes today from the borrowing service so both agree on the
// calendar day.
func NewService(db *gorm.DB, loans *borrowing.Service) *Service {
	return &Service{db: db, today: loans.Today}
}

func (s *Service) Overview(ctx context.Context, actor auth.Actor) (*Overview, error) {
	db := s.db.WithContext(ctx)
	today := s.today()
	out := &Overview{}

	counts := []count{
		{&out.Stats.TotalBooks, db.Model(&models.Book{})},
		{&out.Stats.AvailableBooks, db.Model(&models.Book{}).Where("available_copies > 0")},
		{&out.Stats.ActiveBorrowings, db.Model(&models.Borrowing{}).Scopes(borrowing.OpenScope)},
		{&out.Stats.OverdueBorrowings, db.Model(&models.Borrowing{}).Scopes(borrowing.OverdueScope(today))},
	}
	if actor.IsAdministrator() {
		counts = append(counts,
			count{&out.Stats.TotalUsers, db.Model(&models.User{}).Where("role <> ?", models.RoleAdministrator)},
			count{&out.Stats.TotalLibrarians, db.Model(&models.User{}).Where("role = ?", models.RoleLibrarian)},
		)
	}
	for _, c := range counts {
		if err := c.query.Count(c.dst).Error; err != nil {
			return nil, fmt.Errorf("dashboard count: %w", err)
		}
	}

	withRelations := func() *gorm.DB {
		return db.Preload("Book").Preload("Borrower").Preload("Librarian")
	}

	if actor.IsAdministrator() {
		if err := db.Order("created_at DESC").Order("id DESC").Limit(5).Find(&out.RecentBooks).Error; err != nil {
			return nil, fmt.Errorf("recent books: %w", err)
		}
		if err := db.Order("created_at DESC").Order("id DESC").Limit(5).Find(&out.RecentUsers).Error; err != nil {
			return nil, fmt.Errorf("recent users: %w", err)
		}
	}

	if actor.CanManageBorrowings() {
		if err := withRelations().Order("created_at DESC").Order("id DESC").Limit(10).Find(&out.RecentBorrowings).Error; err != nil {
			return nil, fmt.Errorf("recent borrowings: %w", err)
		}
		if err := withRelations().Scopes(borrowing.OverdueScope(today)).Order("due_date").Order("id").Limit(5).Find(&out.OverdueBorrowings).Error; err != nil {
			return nil, fmt.Errorf("overdue borrowings: %w", err)
		}
	}

	if !actor.IsAdministrator() {
		err := withRelations().Scopes(borrowing.OpenScope).
			Where("borrower_id = ?", actor.UserID).
			Order("borrowed_date DESC").Order("id DESC").Limit(5).
			Find(&out.MyBorrowings).Error
		if err != nil {
			return nil, fmt.Errorf("my borrowings: %w", err)
		}
	}

	return out, nil
}
