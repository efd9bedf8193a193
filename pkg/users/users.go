package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/appdotbuilder/perpustakaan-online/pkg/auth"
	"github.com/appdotbuilder/perpustakaan-online/pkg/catalog"
	"github.com/appdotbuilder/perpustakaan-online/pkg/database"
	"github.com/appdotbuilder/perpustakaan-online/pkg/liberr"
	"github.com/appdotbuilder/perpustakaan-online/pkg/models"
	"github.com/appdotbuilder/perpustakaan-online/pkg/validation"
	"gorm.io/gorm"
)

const DefaultPageSize = 15

var errDuplicateEmail = liberr.Validation("email", "unique", "Email sudah digunakan.")

type CreateInput struct {
	Name     string      `json:"name" validate:"required,max=255"`
	Email    string      `json:"email" validate:"required,email,max=255"`
	Password string      `json:"password" validate:"required,min=8"`
	Role     models.Role `json:"role" validate:"required,oneof=administrator librarian member"`
}

type UpdateInput struct {
	Name  string      `json:"name" validate:"required,max=255"`
	Email string      `json:"email" validate:"required,email,max=255"`
	Role  models.Role `json:"role" validate:"required,oneof=administrator librarian member"`
}

type Filter struct {
	Search string
	Role   models.Role
	// Active filters by account status when set.
	Active   *bool
	Page     int
	PageSize int
}

// Summary is a user with their loan counts.
type Summary struct {
	models.User
	BorrowingsCount        int64
	ManagedBorrowingsCount int64
}

type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewStore(db *gorm.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

func (s *Store) Create(ctx context.Context, in CreateInput) (*models.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if taken, err := s.emailTaken(ctx, in.Email, 0); err != nil {
		return nil, err
	} else if taken {
		return nil, errDuplicateEmail
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := models.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         in.Role,
		IsActive:     true,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if database.IsDuplicateKey(err) {
			return nil, errDuplicateEmail
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.logger.InfoContext(ctx, "user created", "user_id", user.ID, "role", user.Role)
	return &user, nil
}

func (s *Store) Get(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound()
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return &user, nil
}

func (s *Store) List(ctx context.Context, f Filter) ([]Summary, int64, error) {
	page, size := catalog.Page(f.Page, f.PageSize, DefaultPageSize)

	q := s.db.WithContext(ctx).Model(&models.User{})
	if term := strings.TrimSpace(f.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ?", like, like)
	}
	if f.Role != "" {
		q = q.Where("role = ?", f.Role)
	}
	if f.Active != nil {
		q = q.Where("is_active = ?", *f.Active)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	var found []models.User
	if err := q.Order("created_at DESC").Order("id DESC").Offset((page - 1) * size).Limit(size).Find(&found).Error; err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	if len(found) == 0 {
		return []Summary{}, total, nil
	}

	ids := make([]uint, len(found))
	for i, u := range found {
		ids[i] = u.ID
	}
	borrowed, err := s.countBy(ctx, "borrower_id", ids)
	if err != nil {
		return nil, 0, err
	}
	managed, err := s.countBy(ctx, "librarian_id", ids)
	if err != nil {
		return nil, 0, err
	}

	out := make([]Summary, len(found))
	for i, u := range found {
		out[i] = Summary{User: u, BorrowingsCount: borrowed[u.ID], ManagedBorrowingsCount: managed[u.ID]}
	}
	return out, total, nil
}

func (s *Store) countBy(ctx context.Context, column string, ids []uint) (map[uint]int64, error) {
	var rows []struct {
		UserID uint
		Total  int64
	}
	err := s.db.WithContext(ctx).Model(&models.Borrowing{}).
		Select(column+" AS user_id, COUNT(*) AS total").
		Where(column+" IN ?", ids).
		Group(column).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count borrowings by %s: %w", column, err)
	}
	counts := make(map[uint]int64, len(rows))
	for _, r := range rows {
		counts[r.UserID] = r.Total
	}
	return counts, nil
}

// Update changes a user's profile. An actor may not change their own role.
func (s *Store) Update(ctx context.Context, actor auth.Actor, id uint, in UpdateInput) (*models.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.UserID == id && in.Role != user.Role {
		return nil, liberr.New(liberr.ErrCannotModifySelf, "Tidak dapat mengubah peran akun sendiri.")
	}
	if taken, err := s.emailTaken(ctx, in.Email, id); err != nil {
		return nil, err
	} else if taken {
		return nil, errDuplicateEmail
	}

	err = s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"name":  in.Name,
		"email": in.Email,
		"role":  in.Role,
	}).Error
	if err != nil {
		if database.IsDuplicateKey(err) {
			return nil, errDuplicateEmail
		}
		return nil, fmt.Errorf("update user %d: %w", id, err)
	}
	s.logger.InfoContext(ctx, "user updated", "user_id", id, "actor_id", actor.UserID)
	return s.Get(ctx, id)
}

// ToggleActive flips the account status. Deactivation is refused for the
// actor's own account and for users who still hold a book.
func (s *Store) ToggleActive(ctx context.Context, actor auth.Actor, id uint) (*models.User, error) {
	if actor.UserID == id {
		return nil, liberr.New(liberr.ErrCannotModifySelf, "Tidak dapat menonaktifkan akun sendiri.")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound()
			}
			return fmt.Errorf("get user %d: %w", id, err)
		}

		if !user.IsActive {
			return tx.Model(&models.User{}).Where("id = ?", id).Update("is_active", true).Error
		}

		res := tx.Model(&models.User{}).
			Where("id = ? AND is_active = ?", id, true).
			Where("NOT EXISTS (SELECT 1 FROM borrowings WHERE borrowings.borrower_id = users.id AND borrowings.status IN ?)", models.OpenStatuses).
			Update("is_active", false)
		if res.Error != nil {
			return fmt.Errorf("deactivate user %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return liberr.New(liberr.ErrHasActiveBorrowings, "Tidak dapat menonaktifkan pengguna yang memiliki peminjaman aktif.")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "user status changed", "user_id", id, "active", user.IsActive, "actor_id", actor.UserID)
	return user, nil
}

// Authenticate checks credentials and returns the active account they
// belong to.
func (s *Store) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, liberr.ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, liberr.ErrUnauthenticated
	}
	if !user.IsActive {
		return nil, liberr.New(liberr.ErrUnauthenticated, "Akun Anda tidak aktif.")
	}
	return &user, nil
}

func (s *Store) emailTaken(ctx context.Context, email string, exceptID uint) (bool, error) {
	var count int64
	q := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return count > 0, nil
}

func notFound() error {
	return liberr.New(liberr.ErrNotFound, "Pengguna tidak ditemukan.")
}
