package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/appdotbuilder/perpustakaan-online/pkg/availability"
	"github.com/appdotbuilder/perpustakaan-online/pkg/liberr"
	"github.com/appdotbuilder/perpustakaan-online/pkg/models"
	"github.com/appdotbuilder/perpustakaan-online/pkg/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func fixedNow() time.Time {
	return time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
}

func newStore(t *testing.T) (*Store, *gorm.DB) {
	db := testdb.New(t)
	return NewStore(db, WithClock(fixedNow)), db
}

func laskarPelangi() BookInput {
	return BookInput{
		Title:       "Laskar Pelangi",
		Author:      "Andrea Hirata",
		ISBN:        "978-979-22-3274-4",
		Year:        2005,
		Publisher:   "Bentang Pustaka",
		Genre:       "Fiksi",
		TotalCopies: 5,
	}
}

func TestCreateSetsAvailableToTotal(t *testing.T) {
	store, _ := newStore(t)

	book, err := store.Create(context.Background(), laskarPelangi())

	require.NoError(t, err)
	assert.NotZero(t, book.ID)
	assert.Equal(t, 5, book.TotalCopies)
	assert.Equal(t, 5, book.AvailableCopies)
}

func TestCreateAllowsZeroCopies(t *testing.T) {
	store, db := newStore(t)
	in := laskarPelangi()
	in.TotalCopies = 0

	book, err := store.Create(context.Background(), in)

	require.NoError(t, err)
	reloaded := testdb.Reload(t, db, book.ID)
	assert.Equal(t, 0, reloaded.TotalCopies)
	assert.Equal(t, 0, reloaded.AvailableCopies)
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*BookInput)
		field  string
		msg    string
	}{
		{"missing title", func(in *BookInput) { in.Title = "  " }, "title", "Judul wajib diisi."},
		{"negative copies", func(in *BookInput) { in.TotalCopies = -1 }, "totalCopies", "Jumlah eksemplar tidak boleh kurang dari 0."},
		{"isbn too long", func(in *BookInput) { in.ISBN = "978-979-22-3274-4-0000" }, "isbn", "ISBN maksimal 20 karakter."},
		{"year too old", func(in *BookInput) { in.Year = 1850 }, "year", "Tahun terbit tidak boleh kurang dari 1900."},
		{"year in future", func(in *BookInput) { in.Year = 2030 }, "year", "Tahun terbit tidak boleh lebih dari 2024."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := newStore(t)
			in := laskarPelangi()
			tt.modify(&in)

			_, err := store.Create(context.Background(), in)

			require.ErrorIs(t, err, liberr.ErrValidationFailed)
			require.NotEmpty(t, liberr.Fields(err))
			assert.Equal(t, tt.field, liberr.Fields(err)[0].Field)
			assert.Equal(t, tt.msg, liberr.Message(err))
		})
	}
}

func TestCreateDuplicateISBN(t *testing.T) {
	store, _ := newStore(t)
	_, err := store.Create(context.Background(), laskarPelangi())
	require.NoError(t, err)

	_, err = store.Create(context.Background(), laskarPelangi())

	assert.ErrorIs(t, err, liberr.ErrValidationFailed)
	assert.Equal(t, "ISBN sudah terdaftar untuk buku lain.", liberr.Message(err))
}

func TestUpdateKeepsLentCopies(t *testing.T) {
	tests := []struct {
		name          string
		total         int
		available     int
		newTotal      int
		wantAvailable int
	}{
		{"grow", 5, 3, 8, 6},
		{"shrink above lent", 5, 3, 3, 1},
		{"shrink below lent", 5, 1, 2, 0},
		{"nothing lent", 4, 4, 2, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, db := newStore(t)
			book := testdb.Book(t, db, "Bumi Manusia", tt.total, tt.available)
			in := laskarPelangi()
			in.ISBN = book.ISBN
			in.TotalCopies = tt.newTotal

			updated, err := store.Update(context.Background(), book.ID, in)

			require.NoError(t, err)
			assert.Equal(t, tt.newTotal, updated.TotalCopies)
			assert.Equal(t, tt.wantAvailable, updated.AvailableCopies)
			assert.Equal(t, "Laskar Pelangi", updated.Title)
		})
	}
}

func TestReturnsAfterShrinkingBelowLentAreCapped(t *testing.T) {
	store, db := newStore(t)
	ctx := context.Background()
	book := testdb.Book(t, db, "Bumi Manusia", 3, 0)
	in := laskarPelangi()
	in.ISBN = book.ISBN
	in.TotalCopies = 1

	updated, err := store.Update(ctx, book.ID, in)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.AvailableCopies)

	for i := 0; i < 3; i++ {
		require.NoError(t, availability.ReturnCopy(ctx, db, book.ID))
	}

	got := testdb.Reload(t, db, book.ID)
	assert.Equal(t, 1, got.TotalCopies)
	assert.Equal(t, 1, got.AvailableCopies)
}

func TestUpdateISBNUniqueIgnoringSelf(t *testing.T) {
	store, db := newStore(t)
	first := testdb.Book(t, db, "Pertama", 1, 1)
	second := testdb.Book(t, db, "Kedua", 1, 1)

	in := laskarPelangi()
	in.ISBN = first.ISBN
	_, err := store.Update(context.Background(), first.ID, in)
	require.NoError(t, err)

	_, err = store.Update(context.Background(), second.ID, in)
	assert.ErrorIs(t, err, liberr.ErrValidationFailed)
}

func TestUpdateMissingBook(t *testing.T) {
	store, _ := newStore(t)

	_, err := store.Update(context.Background(), 404, laskarPelangi())

	assert.ErrorIs(t, err, liberr.ErrNotFound)
}

func TestGetMissingBook(t *testing.T) {
	store, _ := newStore(t)

	_, err := store.Get(context.Background(), 404)

	assert.ErrorIs(t, err, liberr.ErrNotFound)
	assert.Equal(t, "Buku tidak ditemukan.", liberr.Message(err))
}

func TestListFilters(t *testing.T) {
	store, db := newStore(t)
	ctx := context.Background()

	a := laskarPelangi()
	_, err := store.Create(ctx, a)
	require.NoError(t, err)

	b := laskarPelangi()
	b.Title, b.Author, b.ISBN, b.Year, b.Genre, b.TotalCopies = "Bumi Manusia", "Pramoedya Ananta Toer", "978-979-416-013-7", 1980, "Sejarah", 3
	created, err := store.Create(ctx, b)
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Book{}).Where("id = ?", created.ID).Update("available_copies", 0).Error)

	tests := []struct {
		name   string
		filter BookFilter
		want   []string
	}{
		{"all", BookFilter{}, []string{"Bumi Manusia", "Laskar Pelangi"}},
		{"search title case-insensitive", BookFilter{Search: "laskar"}, []string{"Laskar Pelangi"}},
		{"search author", BookFilter{Search: "PRAMOEDYA"}, []string{"Bumi Manusia"}},
		{"search isbn", BookFilter{Search: "3274"}, []string{"Laskar Pelangi"}},
		{"available", BookFilter{Availability: AvailabilityAvailable}, []string{"Laskar Pelangi"}},
		{"unavailable", BookFilter{Availability: AvailabilityUnavailable}, []string{"Bumi Manusia"}},
		{"genre", BookFilter{Genre: "sej"}, []string{"Bumi Manusia"}},
		{"year", BookFilter{Year: 2005}, []string{"Laskar Pelangi"}},
		{"no match", BookFilter{Search: "harry potter"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			books, total, err := store.List(ctx, tt.filter)
			require.NoError(t, err)

			var titles []string
			for _, book := range books {
				titles = append(titles, book.Title)
			}
			assert.ElementsMatch(t, tt.want, titles)
			assert.Equal(t, int64(len(tt.want)), total)
		})
	}
}

func TestListPagination(t *testing.T) {
	store, db := newStore(t)
	for i := 0; i < 5; i++ {
		testdb.Book(t, db, "Buku", 1, 1)
	}

	books, total, err := store.List(context.Background(), BookFilter{Page: 2, PageSize: 2})

	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, books, 2)
}

func TestGenres(t *testing.T) {
	store, db := newStore(t)
	for _, genre := range []string{"Sejarah", "Fiksi", "Agama", "Fiksi"} {
		book := testdb.Book(t, db, "Buku "+genre, 1, 1)
		require.NoError(t, db.Model(&book).Update("genre", genre).Error)
	}

	genres, err := store.Genres(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"Agama", "Fiksi", "Sejarah"}, genres)
}

func TestDeleteBlockedByOpenBorrowing(t *testing.T) {
	for _, status := range []models.BorrowingStatus{models.StatusActive, models.StatusOverdue} {
		t.Run(string(status), func(t *testing.T) {
			store, db := newStore(t)
			book := testdb.Book(t, db, "Ronggeng Dukuh Paruk", 2, 1)
			member := testdb.User(t, db, "anggota", models.RoleMember)
			librarian := testdb.User(t, db, "pustakawan", models.RoleLibrarian)
			testdb.Borrowing(t, db, book.ID, member.ID, librarian.ID, status, fixedNow(), fixedNow().AddDate(0, 0, 14))

			err := store.Delete(context.Background(), book.ID)

			assert.ErrorIs(t, err, liberr.ErrHasActiveBorrowings)
			assert.Equal(t, "Tidak dapat menghapus buku yang sedang dipinjam.", liberr.Message(err))
			_, err = store.Get(context.Background(), book.ID)
			assert.NoError(t, err)
		})
	}
}

func TestDeleteRemovesReturnedHistory(t *testing.T) {
	store, db := newStore(t)
	book := testdb.Book(t, db, "Ayat-Ayat Cinta", 4, 4)
	member := testdb.User(t, db, "anggota", models.RoleMember)
	librarian := testdb.User(t, db, "pustakawan", models.RoleLibrarian)
	testdb.Borrowing(t, db, book.ID, member.ID, librarian.ID, models.StatusReturned, fixedNow(), fixedNow().AddDate(0, 0, 14))

	require.NoError(t, store.Delete(context.Background(), book.ID))

	_, err := store.Get(context.Background(), book.ID)
	assert.ErrorIs(t, err, liberr.ErrNotFound)
	var remaining int64
	require.NoError(t, db.Model(&models.Borrowing{}).Where("book_id = ?", book.ID).Count(&remaining).Error)
	assert.Zero(t, remaining)
}

func TestDeleteMissingBook(t *testing.T) {
	store, _ := newStore(t)

	assert.ErrorIs(t, store.Delete(context.Background(), 404), liberr.ErrNotFound)
}

func TestGetWithBorrowings(t *testing.T) {
	store, db := newStore(t)
	book := testdb.Book(t, db, "Negeri 5 Menara", 6, 5)
	member := testdb.User(t, db, "anggota", models.RoleMember)
	librarian := testdb.User(t, db, "pustakawan", models.RoleLibrarian)
	testdb.Borrowing(t, db, book.ID, member.ID, librarian.ID, models.StatusActive, fixedNow(), fixedNow().AddDate(0, 0, 14))

	got, err := store.GetWithBorrowings(context.Background(), book.ID)

	require.NoError(t, err)
	require.Len(t, got.Borrowings, 1)
	assert.Equal(t, member.ID, got.Borrowings[0].Borrower.ID)
	assert.Equal(t, librarian.ID, got.Borrowings[0].Librarian.ID)
}
