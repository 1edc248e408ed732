package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arvista/argate-backend/pkg/utils"
)

// Middleware аутентификация HTTP запросов
type Middleware struct {
	validator *Validator
	logger    *utils.Logger
}

// NewMiddleware создает middleware аутентификации
func NewMiddleware(validator *Validator, logger *utils.Logger) *Middleware {
	return &Middleware{
		validator: validator,
		logger:    logger,
	}
}

// Authenticate требует валидный токен
func (m *Middleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := m.extractToken(c)
		if token == "" {
			m.logger.WithField("ip", c.ClientIP()).Warn("Missing authentication token")
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Missing authentication token",
				"code":  "MISSING_TOKEN",
			})
			c.Abort()
			return
		}

		user, err := m.validator.ValidateToken(c.Request.Context(), token)
		if err != nil {
			m.logger.WithFields(map[string]interface{}{
				"ip":    c.ClientIP(),
				"error": err.Error(),
			}).Warn("Token validation failed")

			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
				"code":  "INVALID_TOKEN",
			})
			c.Abort()
			return
		}

		c.Set("user", user)
		c.Set("user_id", user.ID)

		c.Next()
	}
}

// RequireOperator требует роль, позволяющую менять политики целей.
// Используется после Authenticate
func (m *Middleware) RequireOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := UserFromContext(c)
		if user == nil || !user.IsOperator() {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Operator role required",
				"code":  "FORBIDDEN",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// OptionalAuthenticate аутентифицирует при наличии токена, но не требует его
func (m *Middleware) OptionalAuthenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := m.extractToken(c)
		if token == "" {
			c.Next()
			return
		}

		if user, err := m.validator.ValidateToken(c.Request.Context(), token); err == nil {
			c.Set("user", user)
			c.Set("user_id", user.ID)
		}

		c.Next()
	}
}

// extractToken извлекает токен из заголовка Authorization или query
// параметра token (для WebSocket подключений)
func (m *Middleware) extractToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("token")
}

// UserFromContext возвращает аутентифицированного пользователя запроса
func UserFromContext(c *gin.Context) *User {
	value, ok := c.Get("user")
	if !ok {
		return nil
	}
	user, ok := value.(*User)
	if !ok {
		return nil
	}
	return user
}
