package middleware

import (
	"errors"
	"fmt"
	"strings"

	userRepo "anoa.com/gamiledger/internal/modules/user/repository"
	"anoa.com/gamiledger/pkg/apperror"
	"anoa.com/gamiledger/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var errNoSecret = errors.New("jwt secret not configured")

// AuthMiddleware verifies HS256 bearer tokens issued by the auth service.
// The token subject is the user id.
type AuthMiddleware struct {
	users  userRepo.UserRepository
	secret []byte
}

// NewAuthMiddleware builds the middleware. An empty secret rejects every token.
func NewAuthMiddleware(users userRepo.UserRepository, secret string) *AuthMiddleware {
	return &AuthMiddleware{users: users, secret: []byte(secret)}
}

func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			abort(c, fmt.Errorf("authorization required: %w", apperror.ErrUnauthorized))
			return
		}

		subject, err := m.subject(raw)
		if err != nil {
			abort(c, fmt.Errorf("invalid token: %w", apperror.ErrUnauthorized))
			return
		}

		c.Set("user_id", subject.String())
		c.Next()
	}
}

// RequireAdmin must run after RequireAuth. It admits active admins only.
func (m *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := response.GetUserID(c)
		if err != nil {
			abort(c, err)
			return
		}

		user, err := m.users.FindByID(c.Request.Context(), userID)
		if err != nil {
			abort(c, fmt.Errorf("unknown user: %w", apperror.ErrUnauthorized))
			return
		}
		if !user.IsActive || !user.IsAdmin() {
			abort(c, fmt.Errorf("admin access required: %w", apperror.ErrForbidden))
			return
		}

		c.Set("user", user)
		c.Set("is_admin", true)
		c.Next()
	}
}

// subject verifies raw and returns the user id it was issued for.
func (m *AuthMiddleware) subject(raw string) (uuid.UUID, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if len(m.secret) == 0 {
			return nil, errNoSecret
		}
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(claims.Subject)
}

// bearerToken reads the Authorization header, falling back to the token query
// parameter that browsers use for websocket upgrades.
func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return c.Query("token")
}

func abort(c *gin.Context, err error) {
	response.ResponseError(c, err)
	c.Abort()
}
