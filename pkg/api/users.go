package api

import (
	"net/http"

	"github.com/appdotbuilder/perpustakaan-online/pkg/catalog"
	"github.com/appdotbuilder/perpustakaan-online/pkg/models"
	"github.com/appdotbuilder/perpustakaan-online/pkg/users"
	"github.com/gin-gonic/gin"
)

type verifyRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func userResponse(u models.User) gin.H {
	return gin.H{
		"id":        u.ID,
		"name":      u.Name,
		"email":     u.Email,
		"role":      u.Role,
		"isActive":  u.IsActive,
		"createdAt": u.CreatedAt,
	}
}

// VerifyCredentials is called by the gateway during login.
func (h *Handler) VerifyCredentials(c *gin.Context) {
	var req verifyRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, userResponse(*user))
}

func (h *Handler) ListUsers(c *gin.Context) {
	filter := users.Filter{
		Search:   c.Query("search"),
		Role:     models.Role(c.Query("role")),
		Page:     parseIntQuery(c, "page", 1),
		PageSize: parseIntQuery(c, "pageSize", users.DefaultPageSize),
	}
	switch c.Query("status") {
	case "active":
		active := true
		filter.Active = &active
	case "inactive":
		active := false
		filter.Active = &active
	}

	found, total, err := h.users.List(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	items := make([]gin.H, len(found))
	for i, s := range found {
		item := userResponse(s.User)
		item["borrowingsCount"] = s.BorrowingsCount
		item["managedBorrowingsCount"] = s.ManagedBorrowingsCount
		items[i] = item
	}
	page, size := catalog.Page(filter.Page, filter.PageSize, users.DefaultPageSize)
	c.JSON(http.StatusOK, pageResponse(page, size, total, items))
}

func (h *Handler) GetUser(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	user, err := h.users.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, userResponse(*user))
}

func (h *Handler) CreateUser(c *gin.Context) {
	var in users.CreateInput
	if !bindJSON(c, &in) {
		return
	}
	user, err := h.users.Create(c.Request.Context(), in)
	if err != nil {
		echo := in
		echo.Password = ""
		h.respondError(c, err, echo)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Pengguna berhasil ditambahkan.",
		"data":    userResponse(*user),
	})
}

func (h *Handler) UpdateUser(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var in users.UpdateInput
	if !bindJSON(c, &in) {
		return
	}
	user, err := h.users.Update(c.Request.Context(), actorFrom(c), id, in)
	if err != nil {
		h.respondError(c, err, in)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Pengguna berhasil diperbarui.",
		"data":    userResponse(*user),
	})
}

func (h *Handler) ToggleUserActive(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	user, err := h.users.ToggleActive(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	msg := "Pengguna berhasil dinonaktifkan."
	if user.IsActive {
		msg = "Pengguna berhasil diaktifkan."
	}
	c.JSON(http.StatusOK, gin.H{
		"message": msg,
		"data":    userResponse(*user),
	})
}
