package api

import (
	"errors"
	"net/http"

	"github.com/appdotbuilder/perpustakaan-online/pkg/liberr"
	"github.com/gin-gonic/gin"
)

type ErrorResponse struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Errors  []liberr.FieldError `json:"errors,omitempty"`
	// Input echoes the submitted form back on validation failures.
	Input any `json:"input,omitempty"`
}

func writeError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// respondError maps a core error to its HTTP form. input is only echoed
// for validation failures.
func (h *Handler) respondError(c *gin.Context, err error, input any) {
	kind := liberr.KindOf(err)
	status := liberr.Status(err)
	if kind == liberr.KindInternal {
		h.logger.ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method, "path", c.FullPath(), "request_id", c.GetString(requestIDKey), "error", err)
	}

	resp := ErrorResponse{
		Code:    string(kind),
		Message: liberr.Message(err),
	}
	if errors.Is(err, liberr.ErrValidationFailed) {
		resp.Errors = liberr.Fields(err)
		resp.Input = input
	}
	c.AbortWithStatusJSON(status, resp)
}

// bindJSON decodes the body into dst. Malformed JSON is answered with 400;
// rule checks are left to the core.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_BODY",
			Message: "Format data tidak valid.",
			Errors: []liberr.FieldError{{
				Field:   "",
				Rule:    "syntax",
				Message: err.Error(),
			}},
		})
		return false
	}
	return true
}
