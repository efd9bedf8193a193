// Package seed fills an empty database with demo accounts, the starter
// catalog and a handful of loans. Running it again changes nothing.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/appdotbuilder/perpustakaan-online/pkg/auth"
	"github.com/appdotbuilder/perpustakaan-online/pkg/borrowing"
	"github.com/appdotbuilder/perpustakaan-online/pkg/models"
	"gorm.io/gorm"
)

const DefaultPassword = "password"

var accounts = []models.User{
	{Name: "Administrator", Email: "admin@perpustakaan.com", Role: models.RoleAdministrator},
	{Name: "Siti Pustakawan", Email: "siti@perpustakaan.com", Role: models.RoleLibrarian},
	{Name: "Budi Pustakawan", Email: "budi@perpustakaan.com", Role: models.RoleLibrarian},
	{Name: "Andi Anggota", Email: "andi@perpustakaan.com", Role: models.RoleMember},
	{Name: "Rina Anggota", Email: "rina@perpustakaan.com", Role: models.RoleMember},
	{Name: "Dewi Anggota", Email: "dewi@perpustakaan.com", Role: models.RoleMember},
}

var books = []models.Book{
	{Title: "Laskar Pelangi", Author: "Andrea Hirata", ISBN: "978-979-22-3274-4", Year: 2005, Publisher: "Bentang Pustaka", Genre: "Fiksi", TotalCopies: 5,
		Description: "Kisah sepuluh anak Belitung yang berjuang untuk bersekolah."},
	{Title: "Bumi Manusia", Author: "Pramoedya Ananta Toer", ISBN: "978-979-416-013-7", Year: 1980, Publisher: "Hasta Mitra", Genre: "Sejarah", TotalCopies: 3,
		Description: "Roman pertama Tetralogi Buru tentang Minke di masa kolonial."},
	{Title: "Ayat-Ayat Cinta", Author: "Habiburrahman El Shirazy", ISBN: "978-979-076-225-8", Year: 2004, Publisher: "Republika", Genre: "Agama", TotalCopies: 4,
		Description: "Kisah Fahri, mahasiswa Indonesia di Kairo."},
	{Title: "Ronggeng Dukuh Paruk", Author: "Ahmad Tohari", ISBN: "978-979-22-1234-5", Year: 1982, Publisher: "Gramedia", Genre: "Fiksi", TotalCopies: 2,
		Description: "Kisah Srintil, ronggeng dari dukuh kecil di Banyumas."},
	{Title: "Negeri 5 Menara", Author: "Ahmad Fuadi", ISBN: "978-979-22-5678-9", Year: 2009, Publisher: "Gramedia", Genre: "Biografi", TotalCopies: 6,
		Description: "Perjalanan Alif menimba ilmu di pondok pesantren."},
}

// loanPlan describes a demo loan that went out daysAgo days before today.
type loanPlan struct {
	isbn      string
	borrower  string
	librarian string
	daysAgo   int
	loanDays  int
}

var loans = []loanPlan{
	{"978-979-22-3274-4", "andi@perpustakaan.com", "siti@perpustakaan.com", 3, 14},
	{"978-979-22-5678-9", "rina@perpustakaan.com", "budi@perpustakaan.com", 1, 14},
	{"978-979-416-013-7", "dewi@perpustakaan.com", "siti@perpustakaan.com", 6, 7},
	// Past due, so they show up as overdue.
	{"978-979-22-1234-5", "andi@perpustakaan.com", "budi@perpustakaan.com", 20, 14},
	{"978-979-076-225-8", "rina@perpustakaan.com", "siti@perpustakaan.com", 30, 14},
}

// Run seeds accounts and books that are missing, then records the demo
// loans through svc when no loan exists yet.
func Run(ctx context.Context, db *gorm.DB, svc *borrowing.Service) error {
	hash, err := auth.HashPassword(DefaultPassword)
	if err != nil {
		return fmt.Errorf("hash seed password: %w", err)
	}

	users := make(map[string]models.User, len(accounts))
	for _, a := range accounts {
		var existing models.User
		err := db.WithContext(ctx).Where("email = ?", a.Email).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			existing = a
			existing.PasswordHash = hash
			existing.IsActive = true
			if err := db.WithContext(ctx).Create(&existing).Error; err != nil {
				return fmt.Errorf("create user %s: %w", a.Email, err)
			}
			log.Printf("Created user: %s (%s)", existing.Email, existing.Role)
		} else if err != nil {
			return fmt.Errorf("find user %s: %w", a.Email, err)
		}
		users[a.Email] = existing
	}

	catalog := make(map[string]models.Book, len(books))
	for _, b := range books {
		var existing models.Book
		err := db.WithContext(ctx).Where("isbn = ?", b.ISBN).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			existing = b
			existing.AvailableCopies = b.TotalCopies
			if err := db.WithContext(ctx).Create(&existing).Error; err != nil {
				return fmt.Errorf("create book %s: %w", b.ISBN, err)
			}
			log.Printf("Created book: %s", existing.Title)
		} else if err != nil {
			return fmt.Errorf("find book %s: %w", b.ISBN, err)
		}
		catalog[b.ISBN] = existing
	}

	var count int64
	if err := db.WithContext(ctx).Model(&models.Borrowing{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count borrowings: %w", err)
	}
	if count > 0 {
		log.Println("Seed data already present")
		return nil
	}

	today := svc.Today()
	for _, l := range loans {
		librarian := users[l.librarian]
		borrowed := today.AddDate(0, 0, -l.daysAgo)
		_, err := svc.Create(ctx, auth.Actor{UserID: librarian.ID, Role: librarian.Role}, borrowing.CreateInput{
			BookID:       catalog[l.isbn].ID,
			BorrowerID:   users[l.borrower].ID,
			BorrowedDate: borrowed,
			DueDate:      borrowed.AddDate(0, 0, l.loanDays),
		})
		if err != nil {
			return fmt.Errorf("seed loan of %s: %w", l.isbn, err)
		}
	}

	log.Println("Library seed data created")
	return nil
}
