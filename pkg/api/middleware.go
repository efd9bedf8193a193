package api

import (
	"net/http"
	"strconv"

	"github.com/appdotbuilder/perpustakaan-online/pkg/auth"
	"github.com/appdotbuilder/perpustakaan-online/pkg/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderRequestID = "X-Request-ID"
	// HeaderUserID and HeaderUserRole are set by the gateway after it has
	// verified the session token.
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"

	requestIDKey = "requestID"
	actorKey     = "actor"
)

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Writer.Header().Set(HeaderRequestID, id)
		c.Next()
	}
}

// RequestIDFrom returns the id assigned by RequestID.
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// Authenticate builds the actor from the gateway headers.
func Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.GetHeader(HeaderUserID), 10, 64)
		role := models.Role(c.GetHeader(HeaderUserRole))
		if err != nil || id == 0 || !role.Valid() {
			writeError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "Silakan masuk terlebih dahulu.")
			return
		}
		c.Set(actorKey, auth.Actor{UserID: uint(id), Role: role})
		c.Next()
	}
}

func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !actorFrom(c).HasRole(roles...) {
			writeError(c, http.StatusForbidden, "FORBIDDEN", "Anda tidak memiliki akses untuk tindakan ini.")
			return
		}
		c.Next()
	}
}

func actorFrom(c *gin.Context) auth.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(auth.Actor); ok {
			return actor
		}
	}
	return auth.Actor{}
}
