package server

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/audiolibrelab/micmagic/internal/auth"
)

const (
	// ContextOwnerID is the key for the caller's owner id in gin context.
	ContextOwnerID = "owner_id"
	// ContextEmail is the key for the caller's email in gin context.
	ContextEmail = "email"
)

// requestLogger logs one line per request.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()
		logger.Info("request",
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"method", c.Request.Method,
			"path", path,
			"client_ip", c.ClientIP(),
		)
	}
}

// requireToken validates the bearer token and stores the claims in context.
func requireToken(jwt *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			fail(c, http.StatusUnauthorized, "missing authorization header")
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			fail(c, http.StatusUnauthorized, "invalid authorization header")
			return
		}
		claims, err := jwt.Validate(parts[1])
		if err != nil {
			fail(c, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		c.Set(ContextOwnerID, claims.OwnerID)
		c.Set(ContextEmail, claims.Email)
		c.Next()
	}
}

// requireSessionOwner only lets through callers signed in as the owner of
// the local recording session.
func (s *Server) requireSessionOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, err := s.identity.CurrentOwnerID(c.Request.Context())
		if err != nil {
			fail(c, http.StatusUnauthorized, "nobody is signed in on this device")
			return
		}
		if c.GetString(ContextOwnerID) != owner {
			fail(c, http.StatusForbidden, "session belongs to another user")
			return
		}
		c.Next()
	}
}
