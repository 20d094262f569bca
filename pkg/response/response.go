package response

import (
	"net/http"

	"anoa.com/gamiledger/pkg/apperror"
	"anoa.com/gamiledger/pkg/logger"
	"anoa.com/gamiledger/pkg/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

var log = logger.NewNop()

// SetLogger sets the logger used for internal errors.
func SetLogger(l *logger.Logger) {
	if l != nil {
		log = l
	}
}

// GetUserID retrieves the authenticated user ID from the context
func GetUserID(c *gin.Context) (uuid.UUID, error) {
	userIDStr, exists := c.Get("user_id")
	if !exists {
		return uuid.Nil, apperror.ErrUnauthorized
	}

	s, ok := userIDStr.(string)
	if !ok {
		return uuid.Nil, apperror.ErrUnauthorized
	}
	userID, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, apperror.ErrUnauthorized
	}

	return userID, nil
}

// IsAdmin reports whether the auth middleware marked the caller as admin.
func IsAdmin(c *gin.Context) bool {
	return c.GetBool("is_admin")
}

// ResponseError standardized error response
func ResponseError(c *gin.Context, err error) {
	code := apperror.MapErrorToStatus(err)

	// Log internal errors
	if code >= http.StatusInternalServerError {
		log.Error("request failed", "path", c.FullPath(), "status", code, "error", err)
	}

	c.JSON(code, gin.H{"error": err.Error()})
}

// BindError answers a failed ShouldBind* call.
func BindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"data": data})
}
