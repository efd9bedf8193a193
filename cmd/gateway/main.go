package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/appdotbuilder/perpustakaan-online/pkg/api"
	"github.com/appdotbuilder/perpustakaan-online/pkg/auth"
	"github.com/appdotbuilder/perpustakaan-online/pkg/circuitbreaker"
	"github.com/appdotbuilder/perpustakaan-online/pkg/config"
	"github.com/appdotbuilder/perpustakaan-online/pkg/models"
	"github.com/appdotbuilder/perpustakaan-online/pkg/queue"
	"github.com/gin-gonic/gin"
)

const claimsKey = "claims"

var errUpstreamStatus = errors.New("library service returned a server error")

type gateway struct {
	libraryServiceURL string
	httpClient        *http.Client
	breaker           *circuitbreaker.CircuitBreaker
	retries           *queue.Queue
	tokens            *auth.TokenIssuer
}

type upstreamResponse struct {
	status      int
	contentType string
	body        []byte
}

func main() {
	cfg := config.Load()
	gin.SetMode(cfg.GinMode)

	g := newGateway(cfg)
	go g.retryLoop(context.Background(), cfg.RetryInterval)

	r := gin.Default()
	g.registerRoutes(r)

	log.Printf("Gateway service starting on port %s, library at %s", cfg.GatewayPort, cfg.LibraryServiceURL)
	if err := r.Run(":" + cfg.GatewayPort); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func newGateway(cfg *config.Config) *gateway {
	return &gateway{
		libraryServiceURL: strings.TrimRight(cfg.LibraryServiceURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		breaker: circuitbreaker.New("library", cfg.BreakerMaxFailures, cfg.BreakerTimeout),
		retries: queue.New(cfg.RetryInterval),
		tokens:  auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL),
	}
}

func (g *gateway) registerRoutes(r *gin.Engine) {
	r.Use(api.RequestID())
	r.GET("/manage/health", g.healthCheck)

	v1 := r.Group("/api/v1")
	v1.POST("/auth/login", g.loginHandler)

	authed := v1.Group("", g.requireToken())
	authed.GET("/auth/me", g.meHandler)
	authed.GET("/dashboard", g.forward)

	books := authed.Group("/books")
	books.GET("", g.forward)
	books.GET("/genres", g.forward)
	books.GET("/:id", g.forward)
	books.POST("", g.forward)
	books.PUT("/:id", g.forward)
	books.DELETE("/:id", g.forward)

	loans := authed.Group("/borrowings")
	loans.GET("", g.forward)
	loans.GET("/mine", g.forward)
	loans.GET("/:id", g.forward)
	loans.POST("", g.forward)
	loans.POST("/:id/return", requireRole(models.RoleLibrarian, models.RoleAdministrator), g.returnHandler)
	loans.DELETE("/:id", g.forward)

	users := authed.Group("/users")
	users.GET("", g.forward)
	users.POST("", g.forward)
	users.GET("/:id", g.forward)
	users.PUT("/:id", g.forward)
	users.POST("/:id/toggle-active", g.forward)
}

func (g *gateway) loginHandler(c *gin.Context) {
	var request struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Code:    "VALIDATION_FAILED",
			Message: "Email dan kata sandi wajib diisi.",
		})
		return
	}

	body, _ := json.Marshal(request)
	headers := map[string]string{
		"Content-Type":      "application/json",
		api.HeaderRequestID: api.RequestIDFrom(c),
	}
	resp, err := g.call(c.Request.Context(), http.MethodPost, "/api/v1/auth/verify", "", headers, body)
	if err != nil {
		g.unavailable(c, err)
		return
	}
	if resp.status != http.StatusOK {
		c.Data(resp.status, resp.contentType, resp.body)
		return
	}

	var user struct {
		ID    uint        `json:"id"`
		Name  string      `json:"name"`
		Email string      `json:"email"`
		Role  models.Role `json:"role"`
	}
	if err := json.Unmarshal(resp.body, &user); err != nil {
		log.Printf("Failed to decode verify response: %v", err)
		c.JSON(http.StatusBadGateway, api.ErrorResponse{Code: "BAD_GATEWAY", Message: "Respons layanan perpustakaan tidak valid."})
		return
	}

	token, err := g.tokens.Generate(user.ID, user.Name, user.Role)
	if err != nil {
		log.Printf("Failed to sign token for user %d: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Code: "INTERNAL", Message: "Terjadi kesalahan pada server."})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Berhasil masuk.",
		"token":     token,
		"tokenType": "Bearer",
		"expiresIn": int(g.tokens.TTL().Seconds()),
		"user":      user,
	})
}

func (g *gateway) meHandler(c *gin.Context) {
	claims := c.MustGet(claimsKey).(*auth.Claims)
	c.JSON(http.StatusOK, gin.H{
		"id":        claims.UserID,
		"name":      claims.Name,
		"role":      claims.Role,
		"expiresAt": claims.ExpiresAt.Time,
	})
}

// requireToken replaces any client supplied identity with the one in the
// bearer token.
func (g *gateway) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, api.ErrorResponse{
				Code:    "UNAUTHENTICATED",
				Message: "Silakan masuk terlebih dahulu.",
			})
			return
		}

		claims, err := g.tokens.Parse(strings.TrimSpace(token))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, api.ErrorResponse{
				Code:    "UNAUTHENTICATED",
				Message: "Sesi tidak valid atau telah berakhir.",
			})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// requireRole rejects callers whose token carries none of roles. Routes
// that may park a request check it before queuing.
func requireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := c.MustGet(claimsKey).(*auth.Claims)
		if !claims.Actor().HasRole(roles...) {
			c.AbortWithStatusJSON(http.StatusForbidden, api.ErrorResponse{
				Code:    "FORBIDDEN",
				Message: "Anda tidak memiliki akses untuk tindakan ini.",
			})
			return
		}
		c.Next()
	}
}

func (g *gateway) forward(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Code: "INVALID_BODY", Message: "Format data tidak valid."})
		return
	}

	resp, err := g.call(c.Request.Context(), c.Request.Method, c.Request.URL.Path, c.Request.URL.RawQuery, g.actorHeaders(c), body)
	if err != nil {
		g.unavailable(c, err)
		return
	}
	c.Data(resp.status, resp.contentType, resp.body)
}

// returnHandler forwards a return. When the library service cannot be
// reached the request is parked and replayed by retryLoop.
func (g *gateway) returnHandler(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Code: "INVALID_BODY", Message: "Format data tidak valid."})
		return
	}
	headers := g.actorHeaders(c)

	resp, err := g.call(c.Request.Context(), http.MethodPost, c.Request.URL.Path, "", headers, body)
	if err == nil {
		c.Data(resp.status, resp.contentType, resp.body)
		return
	}

	jobID := g.retries.Enqueue(&queue.Job{
		Method:  http.MethodPost,
		Path:    c.Request.URL.Path,
		Headers: headers,
		Body:    body,
	})
	log.Printf("Library service unavailable (%v), return %s queued as job %s", err, c.Param("id"), jobID)
	c.JSON(http.StatusAccepted, gin.H{
		"message": "Layanan perpustakaan sedang tidak tersedia. Pengembalian akan diproses ulang secara otomatis.",
		"jobId":   jobID,
	})
}

func (g *gateway) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "UP",
		"details": gin.H{
			"library":        g.breaker.GetState().String(),
			"pendingReturns": g.retries.Size(),
		},
	})
}

func (g *gateway) actorHeaders(c *gin.Context) map[string]string {
	claims := c.MustGet(claimsKey).(*auth.Claims)
	headers := map[string]string{
		api.HeaderUserID:    strconv.FormatUint(uint64(claims.UserID), 10),
		api.HeaderUserRole:  string(claims.Role),
		api.HeaderRequestID: api.RequestIDFrom(c),
	}
	if ct := c.GetHeader("Content-Type"); ct != "" {
		headers["Content-Type"] = ct
	}
	return headers
}

func (g *gateway) unavailable(c *gin.Context, err error) {
	log.Printf("Library service call failed: %v", err)
	c.JSON(http.StatusServiceUnavailable, api.ErrorResponse{
		Code:    "SERVICE_UNAVAILABLE",
		Message: "Layanan perpustakaan tidak tersedia.",
	})
}

// call performs one request against the library service through the
// circuit breaker. A 5xx answer counts as a breaker failure but is still
// returned to the caller.
func (g *gateway) call(ctx context.Context, method, path, rawQuery string, headers map[string]string, body []byte) (*upstreamResponse, error) {
	url := g.libraryServiceURL + path
	if rawQuery != "" {
		url += "?" + rawQuery
	}

	var out *upstreamResponse
	err := g.breaker.Execute(func() error {
		request, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		for k, v := range headers {
			if v != "" {
				request.Header.Set(k, v)
			}
		}
		response, err := g.httpClient.Do(request)
		if err != nil {
			return err
		}
		defer response.Body.Close()
		data, err := io.ReadAll(response.Body)
		if err != nil {
			return err
		}

		contentType := response.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/json"
		}
		out = &upstreamResponse{status: response.StatusCode, contentType: contentType, body: data}
		if response.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %d", errUpstreamStatus, response.StatusCode)
		}
		return nil
	}, nil)

	if out != nil {
		return out, nil
	}
	return nil, err
}

func (g *gateway) replay(ctx context.Context) int {
	return g.retries.Process(func(job *queue.Job) error {
		resp, err := g.call(ctx, job.Method, job.Path, "", job.Headers, job.Body)
		if err != nil {
			return err
		}
		if resp.status >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %d", errUpstreamStatus, resp.status)
		}
		if resp.status >= http.StatusBadRequest {
			log.Printf("Replay of %s %s (job %s) rejected with %d, dropping it: %s", job.Method, job.Path, job.ID, resp.status, resp.body)
			return nil
		}
		log.Printf("Replayed %s %s (job %s): %d", job.Method, job.Path, job.ID, resp.status)
		return nil
	})
}

func (g *gateway) retryLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if g.retries.Size() > 0 {
				g.replay(ctx)
			}
		}
	}
}
