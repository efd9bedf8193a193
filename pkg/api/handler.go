// Package api exposes the library over HTTP with gin.
package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/appdotbuilder/perpustakaan-online/pkg/borrowing"
	"github.com/appdotbuilder/perpustakaan-online/pkg/catalog"
	"github.com/appdotbuilder/perpustakaan-online/pkg/dashboard"
	"github.com/appdotbuilder/perpustakaan-online/pkg/models"
	"github.com/appdotbuilder/perpustakaan-online/pkg/users"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Handler struct {
	db        *gorm.DB
	books     *catalog.Store
	loans     *borrowing.Service
	users     *users.Store
	dashboard *dashboard.Service
	logger    *slog.Logger
	hostname  string
}

type Services struct {
	Books     *catalog.Store
	Loans     *borrowing.Service
	Users     *users.Store
	Dashboard *dashboard.Service
}

func NewHandler(db *gorm.DB, svc Services, logger *slog.Logger, hostname string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		db:        db,
		books:     svc.Books,
		loans:     svc.Loans,
		users:     svc.Users,
		dashboard: svc.Dashboard,
		logger:    logger,
		hostname:  hostname,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	admin := RequireRole(models.RoleAdministrator)
	staff := RequireRole(models.RoleAdministrator, models.RoleLibrarian)

	r.Use(RequestID())
	r.GET("/manage/health", h.Health)

	v1 := r.Group("/api/v1")
	v1.POST("/auth/verify", h.VerifyCredentials)

	authed := v1.Group("", Authenticate())
	authed.GET("/dashboard", h.Dashboard)

	books := authed.Group("/books")
	{
		books.GET("", h.ListBooks)
		books.GET("/genres", h.ListGenres)
		books.GET("/:id", h.GetBook)
		books.POST("", admin, h.CreateBook)
		books.PUT("/:id", admin, h.UpdateBook)
		books.DELETE("/:id", admin, h.DeleteBook)
	}

	loans := authed.Group("/borrowings")
	{
		loans.GET("/mine", h.MyBorrowings)
		loans.GET("", staff, h.ListBorrowings)
		loans.GET("/:id", staff, h.GetBorrowing)
		loans.POST("", staff, h.CreateBorrowing)
		loans.POST("/:id/return", staff, h.ReturnBorrowing)
		loans.DELETE("/:id", admin, h.DeleteBorrowing)
	}

	accounts := authed.Group("/users", admin)
	{
		accounts.GET("", h.ListUsers)
		accounts.POST("", h.CreateUser)
		accounts.GET("/:id", h.GetUser)
		accounts.PUT("/:id", h.UpdateUser)
		accounts.POST("/:id/toggle-active", h.ToggleUserActive)
	}
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		writeError(c, http.StatusBadRequest, "INVALID_ID", "ID tidak valid.")
		return 0, false
	}
	return uint(id), true
}

func parseIntQuery(c *gin.Context, key string, def int) int {
	if s := c.Query(key); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			return v
		}
	}
	return def
}

func parseUintQuery(c *gin.Context, key string) uint {
	if s := c.Query(key); s != "" {
		if v, err := strconv.ParseUint(s, 10, 64); err == nil {
			return uint(v)
		}
	}
	return 0
}

func parseDateQuery(c *gin.Context, key string) (*time.Time, error) {
	s := c.Query(key)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Date is a calendar day encoded as YYYY-MM-DD.
type Date struct {
	time.Time
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(time.DateOnly) + `"`), nil
}

func formatDate(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

func pageResponse(page, size int, total int64, items any) gin.H {
	return gin.H{
		"page":          page,
		"pageSize":      size,
		"totalElements": total,
		"items":         items,
	}
}
