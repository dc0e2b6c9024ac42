package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/Spolkip/AtlasCoreSite/internal/apperror"
	"github.com/Spolkip/AtlasCoreSite/internal/models"
	"github.com/Spolkip/AtlasCoreSite/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const userKey = "auth.user"

// UserLoader resolves the account behind a token
type UserLoader interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Middleware authenticates requests with bearer tokens
type Middleware struct {
	tokens *TokenService
	users  UserLoader
	logger *zap.Logger
}

// NewMiddleware creates the auth middleware
func NewMiddleware(tokens *TokenService, users UserLoader) *Middleware {
	return &Middleware{tokens: tokens, users: users, logger: util.GetLogger()}
}

// Authenticate validates the bearer token and loads the current user.
// Roles are taken from the stored account, not from the token.
func (m *Middleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString := strings.TrimPrefix(header, "Bearer ")
		if header == "" || tokenString == header {
			abort(c, http.StatusUnauthorized, "Not authorized, no token")
			return
		}

		claims, err := m.tokens.Parse(tokenString)
		if err != nil {
			abort(c, http.StatusUnauthorized, "Not authorized, token failed")
			return
		}

		user, err := m.users.GetUserByID(c.Request.Context(), claims.UserID)
		if apperror.Is(err, apperror.KindNotFound) {
			abort(c, http.StatusUnauthorized, "Not authorized, user not found")
			return
		}
		if err != nil {
			m.logger.Error("Failed to load user for token",
				zap.String("user_id", claims.UserID.String()),
				zap.Error(err))
			abort(c, http.StatusInternalServerError, "Server error")
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

// RequireSuperAdmin rejects callers without the admin role. It must run after Authenticate.
func (m *Middleware) RequireSuperAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok || !user.IsSuperAdmin() {
			abort(c, http.StatusForbidden, "Not authorized as an admin")
			return
		}
		c.Next()
	}
}

// CurrentUser returns the user stored by Authenticate
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok && user != nil
}

// SetUser stores user as the authenticated caller
func SetUser(c *gin.Context, user *models.User) {
	c.Set(userKey, user)
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": message})
}
