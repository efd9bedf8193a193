package api

import (
	"net/http"

	"github.com/appdotbuilder/perpustakaan-online/pkg/borrowing"
	"github.com/appdotbuilder/perpustakaan-online/pkg/catalog"
	"github.com/appdotbuilder/perpustakaan-online/pkg/models"
	"github.com/gin-gonic/gin"
)

type createBorrowingRequest struct {
	BookID       uint   `json:"bookId"`
	BorrowerID   uint   `json:"borrowerId"`
	BorrowedDate Date   `json:"borrowedDate"`
	DueDate      Date   `json:"dueDate"`
	Notes        string `json:"notes"`
}

func (h *Handler) borrowingResponse(b models.Borrowing) gin.H {
	a := h.loans.Assess(b)
	resp := gin.H{
		"id":            b.ID,
		"bookId":        b.BookID,
		"borrowerId":    b.BorrowerID,
		"librarianId":   b.LibrarianID,
		"borrowedDate":  formatDate(b.BorrowedDate),
		"dueDate":       formatDate(b.DueDate),
		"returnedDate":  nil,
		"status":        b.Status,
		"fineAmount":    b.FineAmount,
		"notes":         b.Notes,
		"isOverdue":     a.IsOverdue,
		"daysOverdue":   a.DaysOverdue,
		"estimatedFine": a.EstimatedFine,
		"createdAt":     b.CreatedAt,
	}
	if b.ReturnedDate != nil {
		resp["returnedDate"] = formatDate(*b.ReturnedDate)
	}
	if b.Book.ID != 0 {
		resp["book"] = gin.H{"id": b.Book.ID, "title": b.Book.Title, "author": b.Book.Author, "isbn": b.Book.ISBN}
	}
	if b.Borrower.ID != 0 {
		resp["borrower"] = gin.H{"id": b.Borrower.ID, "name": b.Borrower.Name, "email": b.Borrower.Email}
	}
	if b.Librarian.ID != 0 {
		resp["librarian"] = gin.H{"id": b.Librarian.ID, "name": b.Librarian.Name}
	}
	return resp
}

func (h *Handler) listBorrowings(c *gin.Context, filter borrowing.Filter) {
	page, size := catalog.Page(filter.Page, filter.PageSize, borrowing.DefaultPageSize)
	items, total, err := h.loans.List(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, pageResponse(page, size, total, h.borrowingList(items)))
}

func (h *Handler) ListBorrowings(c *gin.Context) {
	from, err := parseDateQuery(c, "dateFrom")
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_QUERY", "Format tanggal awal harus YYYY-MM-DD.")
		return
	}
	to, err := parseDateQuery(c, "dateTo")
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_QUERY", "Format tanggal akhir harus YYYY-MM-DD.")
		return
	}

	h.listBorrowings(c, borrowing.Filter{
		Status:     models.BorrowingStatus(c.Query("status")),
		BorrowerID: parseUintQuery(c, "borrowerId"),
		BookID:     parseUintQuery(c, "bookId"),
		DateFrom:   from,
		DateTo:     to,
		Page:       parseIntQuery(c, "page", 1),
		PageSize:   parseIntQuery(c, "pageSize", borrowing.DefaultPageSize),
	})
}

// MyBorrowings lists the caller's own loans.
func (h *Handler) MyBorrowings(c *gin.Context) {
	h.listBorrowings(c, borrowing.Filter{
		Status:     models.BorrowingStatus(c.Query("status")),
		BorrowerID: actorFrom(c).UserID,
		Page:       parseIntQuery(c, "page", 1),
		PageSize:   parseIntQuery(c, "pageSize", borrowing.DefaultPageSize),
	})
}

func (h *Handler) GetBorrowing(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	b, err := h.loans.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, h.borrowingResponse(*b))
}

func (h *Handler) CreateBorrowing(c *gin.Context) {
	var req createBorrowingRequest
	if !bindJSON(c, &req) {
		return
	}
	in := h.loans.Defaults(borrowing.CreateInput{
		BookID:       req.BookID,
		BorrowerID:   req.BorrowerID,
		BorrowedDate: req.BorrowedDate.Time,
		DueDate:      req.DueDate.Time,
		Notes:        req.Notes,
	})

	b, err := h.loans.Create(c.Request.Context(), actorFrom(c), in)
	if err != nil {
		h.respondError(c, err, req)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Peminjaman berhasil dicatat.",
		"data":    h.borrowingResponse(*b),
	})
}

func (h *Handler) ReturnBorrowing(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var in borrowing.ReturnInput
	if c.Request.ContentLength != 0 && !bindJSON(c, &in) {
		return
	}

	b, err := h.loans.Return(c.Request.Context(), actorFrom(c), id, in)
	if err != nil {
		h.respondError(c, err, in)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Buku berhasil dikembalikan.",
		"data":    h.borrowingResponse(*b),
	})
}

func (h *Handler) DeleteBorrowing(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.loans.Delete(c.Request.Context(), actorFrom(c), id); err != nil {
		h.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Data peminjaman berhasil dihapus."})
}
