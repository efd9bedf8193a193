package api

import (
	"net/http"

	"github.com/appdotbuilder/perpustakaan-online/pkg/catalog"
	"github.com/appdotbuilder/perpustakaan-online/pkg/models"
	"github.com/gin-gonic/gin"
)

func bookResponse(b models.Book) gin.H {
	return gin.H{
		"id":              b.ID,
		"title":           b.Title,
		"author":          b.Author,
		"isbn":            b.ISBN,
		"year":            b.Year,
		"publisher":       b.Publisher,
		"genre":           b.Genre,
		"totalCopies":     b.TotalCopies,
		"availableCopies": b.AvailableCopies,
		"isAvailable":     b.IsAvailable(),
		"description":     b.Description,
		"coverImage":      b.CoverImage,
		"createdAt":       b.CreatedAt,
		"updatedAt":       b.UpdatedAt,
	}
}

func (h *Handler) ListBooks(c *gin.Context) {
	filter := catalog.BookFilter{
		Search:       c.Query("search"),
		Availability: catalog.Availability(c.Query("availability")),
		Genre:        c.Query("genre"),
		Year:         parseIntQuery(c, "year", 0),
		Page:         parseIntQuery(c, "page", 1),
		PageSize:     parseIntQuery(c, "pageSize", catalog.DefaultPageSize),
	}
	page, size := catalog.Page(filter.Page, filter.PageSize, catalog.DefaultPageSize)

	books, total, err := h.books.List(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}

	items := make([]gin.H, len(books))
	for i, b := range books {
		items[i] = bookResponse(b)
	}
	c.JSON(http.StatusOK, pageResponse(page, size, total, items))
}

func (h *Handler) ListGenres(c *gin.Context) {
	genres, err := h.books.Genres(c.Request.Context())
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"genres": genres})
}

// GetBook shows a book. Staff also see its loan history.
func (h *Handler) GetBook(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if !actorFrom(c).CanManageBorrowings() {
		book, err := h.books.Get(ctx, id)
		if err != nil {
			h.respondError(c, err, nil)
			return
		}
		c.JSON(http.StatusOK, bookResponse(*book))
		return
	}

	book, err := h.books.GetWithBorrowings(ctx, id)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	resp := bookResponse(*book)
	resp["borrowings"] = h.borrowingList(book.Borrowings)
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) CreateBook(c *gin.Context) {
	var in catalog.BookInput
	if !bindJSON(c, &in) {
		return
	}
	book, err := h.books.Create(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err, in)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Buku berhasil ditambahkan.",
		"data":    bookResponse(*book),
	})
}

func (h *Handler) UpdateBook(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var in catalog.BookInput
	if !bindJSON(c, &in) {
		return
	}
	book, err := h.books.Update(c.Request.Context(), id, in)
	if err != nil {
		h.respondError(c, err, in)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Buku berhasil diperbarui.",
		"data":    bookResponse(*book),
	})
}

func (h *Handler) DeleteBook(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.books.Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Buku berhasil dihapus."})
}
