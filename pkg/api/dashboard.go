package api

import (
	"net/http"

	"github.com/appdotbuilder/perpustakaan-online/pkg/database"
	"github.com/appdotbuilder/perpustakaan-online/pkg/models"
	"github.com/gin-gonic/gin"
)

func (h *Handler) Dashboard(c *gin.Context) {
	actor := actorFrom(c)
	o, err := h.dashboard.Overview(c.Request.Context(), actor)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}

	stats := gin.H{
		"totalBooks":        o.Stats.TotalBooks,
		"availableBooks":    o.Stats.AvailableBooks,
		"activeBorrowings":  o.Stats.ActiveBorrowings,
		"overdueBorrowings": o.Stats.OverdueBorrowings,
	}
	resp := gin.H{"stats": stats}

	if actor.IsAdministrator() {
		stats["totalUsers"] = o.Stats.TotalUsers
		stats["totalLibrarians"] = o.Stats.TotalLibrarians
		books := make([]gin.H, len(o.RecentBooks))
		for i, b := range o.RecentBooks {
			books[i] = bookResponse(b)
		}
		accounts := make([]gin.H, len(o.RecentUsers))
		for i, u := range o.RecentUsers {
			accounts[i] = userResponse(u)
		}
		resp["recentBooks"] = books
		resp["recentUsers"] = accounts
	}
	if actor.CanManageBorrowings() {
		resp["recentBorrowings"] = h.borrowingList(o.RecentBorrowings)
		resp["overdueBorrowings"] = h.borrowingList(o.OverdueBorrowings)
	}
	if !actor.IsAdministrator() {
		resp["myBorrowings"] = h.borrowingList(o.MyBorrowings)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) borrowingList(items []models.Borrowing) []gin.H {
	out := make([]gin.H, len(items))
	for i, b := range items {
		out[i] = h.borrowingResponse(b)
	}
	return out
}

func (h *Handler) Health(c *gin.Context) {
	if err := database.Ping(c.Request.Context(), h.db); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "DOWN",
			"details": "Database ping failed",
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "UP",
		"details": "Host " + h.hostname + " is active",
	})
}
