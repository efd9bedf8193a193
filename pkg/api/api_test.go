package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/appdotbuilder/perpustakaan-online/pkg/borrowing"
	"github.com/appdotbuilder/perpustakaan-online/pkg/catalog"
	"github.com/appdotbuilder/perpustakaan-online/pkg/dashboard"
	"github.com/appdotbuilder/perpustakaan-online/pkg/models"
	"github.com/appdotbuilder/perpustakaan-online/pkg/testdb"
	"github.com/appdotbuilder/perpustakaan-online/pkg/users"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testEnv struct {
	db        *gorm.DB
	router    *gin.Engine
	admin     models.User
	librarian models.User
	member    models.User
}

func now() time.Time {
	return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
}

func setupRouter(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testdb.New(t)
	loans := borrowing.NewService(db, borrowing.WithClock(now))
	h := NewHandler(db, Services{
		Books:     catalog.NewStore(db, catalog.WithClock(now)),
		Loans:     loans,
		Users:     users.NewStore(db, nil),
		Dashboard: dashboard.NewService(db, loans),
	}, nil, "localhost:8060")

	r := gin.New()
	h.RegisterRoutes(r)

	return &testEnv{
		db:        db,
		router:    r,
		admin:     testdb.User(t, db, "admin", models.RoleAdministrator),
		librarian: testdb.User(t, db, "pustakawan", models.RoleLibrarian),
		member:    testdb.User(t, db, "anggota", models.RoleMember),
	}
}

func (e *testEnv) do(t *testing.T, as *models.User, method, path string, body any) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		req.Header.Set(HeaderUserID, fmt.Sprint(as.ID))
		req.Header.Set(HeaderUserRole, string(as.Role))
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var resp map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestHealth(t *testing.T) {
	e := setupRouter(t)

	w, resp := e.do(t, nil, http.MethodGet, "/manage/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "UP", resp["status"])
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
}

func TestRequiresActorHeaders(t *testing.T) {
	e := setupRouter(t)

	w, resp := e.do(t, nil, http.MethodGet, "/api/v1/books", nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHENTICATED", resp["code"])
}

func TestRoleEnforcement(t *testing.T) {
	e := setupRouter(t)
	book := testdb.Book(t, e.db, "Laskar Pelangi", 1, 1)

	tests := []struct {
		name   string
		as     *models.User
		method string
		path   string
		body   any
		want   int
	}{
		{"member cannot create book", &e.member, http.MethodPost, "/api/v1/books", gin.H{}, http.StatusForbidden},
		{"librarian cannot delete book", &e.librarian, http.MethodDelete, fmt.Sprintf("/api/v1/books/%d", book.ID), nil, http.StatusForbidden},
		{"member cannot lend", &e.member, http.MethodPost, "/api/v1/borrowings", gin.H{"bookId": book.ID}, http.StatusForbidden},
		{"member cannot list loans", &e.member, http.MethodGet, "/api/v1/borrowings", nil, http.StatusForbidden},
		{"librarian cannot manage users", &e.librarian, http.MethodGet, "/api/v1/users", nil, http.StatusForbidden},
		{"member can browse", &e.member, http.MethodGet, "/api/v1/books", nil, http.StatusOK},
		{"member sees own loans", &e.member, http.MethodGet, "/api/v1/borrowings/mine", nil, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := e.do(t, tt.as, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code)
		})
	}
	assert.Equal(t, 1, testdb.Reload(t, e.db, book.ID).AvailableCopies)
}

func TestBookLifecycle(t *testing.T) {
	e := setupRouter(t)

	w, resp := e.do(t, &e.admin, http.MethodPost, "/api/v1/books", gin.H{
		"title": "Bumi Manusia", "author": "Pramoedya Ananta Toer", "isbn": "978-979-416-013-7",
		"year": 1980, "publisher": "Hasta Mitra", "genre": "Sejarah", "totalCopies": 3,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, float64(3), data["availableCopies"])
	assert.Equal(t, true, data["isAvailable"])
	id := uint(data["id"].(float64))

	w, resp = e.do(t, &e.member, http.MethodGet, "/api/v1/books?search=pramoedya", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), resp["totalElements"])
	assert.Equal(t, float64(catalog.DefaultPageSize), resp["pageSize"])

	w, resp = e.do(t, &e.member, http.MethodGet, "/api/v1/books/genres", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{"Sejarah"}, resp["genres"])

	w, _ = e.do(t, &e.admin, http.MethodDelete, fmt.Sprintf("/api/v1/books/%d", id), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp = e.do(t, &e.member, http.MethodGet, fmt.Sprintf("/api/v1/books/%d", id), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", resp["code"])
}

func TestCreateBookValidationEchoesInput(t *testing.T) {
	e := setupRouter(t)

	w, resp := e.do(t, &e.admin, http.MethodPost, "/api/v1/books", gin.H{
		"title": "Buku Lama", "author": "Anonim", "isbn": "123", "year": 1850,
		"publisher": "Balai Pustaka", "genre": "Sejarah", "totalCopies": 1,
	})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "VALIDATION_FAILED", resp["code"])
	assert.Equal(t, "Tahun terbit tidak boleh kurang dari 1900.", resp["message"])
	input := resp["input"].(map[string]interface{})
	assert.Equal(t, "Buku Lama", input["title"])
	errs := resp["errors"].([]interface{})
	assert.Equal(t, "year", errs[0].(map[string]interface{})["field"])
}

func TestMalformedBody(t *testing.T) {
	e := setupRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/books", bytes.NewBufferString("{not json"))
	req.Header.Set(HeaderUserID, fmt.Sprint(e.admin.ID))
	req.Header.Set(HeaderUserRole, string(models.RoleAdministrator))
	w := httptest.NewRecorder()

	e.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBorrowAndReturnFlow(t *testing.T) {
	e := setupRouter(t)
	book := testdb.Book(t, e.db, "Laskar Pelangi", 1, 1)

	w, resp := e.do(t, &e.librarian, http.MethodPost, "/api/v1/borrowings", gin.H{
		"bookId": book.ID, "borrowerId": e.member.ID,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "Peminjaman berhasil dicatat.", resp["message"])
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "2024-03-01", data["borrowedDate"])
	assert.Equal(t, "2024-03-15", data["dueDate"])
	assert.Equal(t, "active", data["status"])
	assert.Equal(t, false, data["isOverdue"])
	id := uint(data["id"].(float64))

	w, resp = e.do(t, &e.librarian, http.MethodPost, "/api/v1/borrowings", gin.H{
		"bookId": book.ID, "borrowerId": e.member.ID,
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "UNAVAILABLE", resp["code"])
	assert.Equal(t, "Buku tidak tersedia untuk dipinjam.", resp["message"])

	w, resp = e.do(t, &e.member, http.MethodGet, "/api/v1/borrowings/mine", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), resp["totalElements"])

	w, resp = e.do(t, &e.librarian, http.MethodPost, fmt.Sprintf("/api/v1/borrowings/%d/return", id), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Buku berhasil dikembalikan.", resp["message"])
	data = resp["data"].(map[string]interface{})
	assert.Equal(t, "returned", data["status"])
	assert.Equal(t, "2024-03-01", data["returnedDate"])

	w, resp = e.do(t, &e.librarian, http.MethodPost, fmt.Sprintf("/api/v1/borrowings/%d/return", id), gin.H{})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_RETURNED", resp["code"])
	assert.Equal(t, 1, testdb.Reload(t, e.db, book.ID).AvailableCopies)

	w, _ = e.do(t, &e.librarian, http.MethodDelete, fmt.Sprintf("/api/v1/borrowings/%d", id), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = e.do(t, &e.admin, http.MethodDelete, fmt.Sprintf("/api/v1/borrowings/%d", id), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateBorrowingRejectsBadDueDate(t *testing.T) {
	e := setupRouter(t)
	book := testdb.Book(t, e.db, "Laskar Pelangi", 1, 1)

	w, resp := e.do(t, &e.librarian, http.MethodPost, "/api/v1/borrowings", gin.H{
		"bookId": book.ID, "borrowerId": e.member.ID, "borrowedDate": "2024-03-10", "dueDate": "2024-03-05",
	})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "Tanggal jatuh tempo harus setelah tanggal peminjaman.", resp["message"])
	input := resp["input"].(map[string]interface{})
	assert.Equal(t, "2024-03-05", input["dueDate"])
	assert.Equal(t, 1, testdb.Reload(t, e.db, book.ID).AvailableCopies)
}

func TestOverdueListingShowsEstimatedFine(t *testing.T) {
	e := setupRouter(t)
	book := testdb.Book(t, e.db, "Ronggeng Dukuh Paruk", 2, 1)
	due := time.Date(2024, 2, 25, 0, 0, 0, 0, time.UTC)
	testdb.Borrowing(t, e.db, book.ID, e.member.ID, e.librarian.ID, models.StatusActive, due.AddDate(0, 0, -14), due)

	w, resp := e.do(t, &e.librarian, http.MethodGet, "/api/v1/borrowings?status=overdue", nil)

	require.Equal(t, http.StatusOK, w.Code)
	items := resp["items"].([]interface{})
	require.Len(t, items, 1)
	item := items[0].(map[string]interface{})
	assert.Equal(t, true, item["isOverdue"])
	assert.Equal(t, float64(5), item["daysOverdue"])
	assert.Equal(t, float64(5000), item["estimatedFine"])
	assert.Equal(t, "Ronggeng Dukuh Paruk", item["book"].(map[string]interface{})["title"])
}

func TestUserManagement(t *testing.T) {
	e := setupRouter(t)

	w, resp := e.do(t, &e.admin, http.MethodPost, "/api/v1/users", gin.H{
		"name": "Rina", "email": "rina@perpustakaan.com", "password": "rahasia123", "role": "member",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := uint(resp["data"].(map[string]interface{})["id"].(float64))

	w, resp = e.do(t, &e.admin, http.MethodPost, "/api/v1/users", gin.H{
		"name": "Rina", "email": "rina@perpustakaan.com", "password": "rahasia123", "role": "member",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Empty(t, resp["input"].(map[string]interface{})["password"])

	w, resp = e.do(t, &e.admin, http.MethodPost, fmt.Sprintf("/api/v1/users/%d/toggle-active", e.admin.ID), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "CANNOT_MODIFY_SELF", resp["code"])

	w, resp = e.do(t, &e.admin, http.MethodPost, fmt.Sprintf("/api/v1/users/%d/toggle-active", id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, resp["data"].(map[string]interface{})["isActive"])

	w, resp = e.do(t, &e.admin, http.MethodGet, "/api/v1/users?status=inactive", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), resp["totalElements"])

	w, resp = e.do(t, nil, http.MethodPost, "/api/v1/auth/verify", gin.H{"email": "rina@perpustakaan.com", "password": "rahasia123"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Akun Anda tidak aktif.", resp["message"])
}

func TestVerifyCredentials(t *testing.T) {
	e := setupRouter(t)
	_, err := users.NewStore(e.db, nil).Create(context.Background(), users.CreateInput{
		Name: "Budi", Email: "budi@perpustakaan.com", Password: "rahasia123", Role: models.RoleLibrarian,
	})
	require.NoError(t, err)

	w, resp := e.do(t, nil, http.MethodPost, "/api/v1/auth/verify", gin.H{"email": "budi@perpustakaan.com", "password": "rahasia123"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "librarian", resp["role"])
	assert.Equal(t, "Budi", resp["name"])

	w, resp = e.do(t, nil, http.MethodPost, "/api/v1/auth/verify", gin.H{"email": "budi@perpustakaan.com", "password": "salah"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHENTICATED", resp["code"])
}

func TestDashboard(t *testing.T) {
	e := setupRouter(t)
	testdb.Book(t, e.db, "Laskar Pelangi", 2, 2)

	w, resp := e.do(t, &e.admin, http.MethodGet, "/api/v1/dashboard", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := resp["stats"].(map[string]interface{})
	assert.Equal(t, float64(1), stats["totalBooks"])
	assert.Equal(t, float64(2), stats["totalUsers"])
	assert.NotContains(t, resp, "myBorrowings")

	w, resp = e.do(t, &e.member, http.MethodGet, "/api/v1/dashboard", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, resp["stats"], "totalUsers")
	assert.Contains(t, resp, "myBorrowings")
	assert.NotContains(t, resp, "recentBorrowings")
}
