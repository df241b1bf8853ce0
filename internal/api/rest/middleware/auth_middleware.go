package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/Dhoini/parking-payments/pkg/logger"
	"github.com/Dhoini/parking-payments/pkg/res"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// ContextClientIDKey ключ для хранения ID клиента в контексте gin
	ContextClientIDKey = "clientID"
	authHeaderPrefix   = "Bearer "

	// ScopeAdmin область доступа администратора
	ScopeAdmin = "admin"
)

type TokenValidator interface {
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims утверждения токена клиента; Subject содержит ID клиента,
// Scope перечисляет области доступа через пробел
type TokenClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

type JWTMiddleware struct {
	log       *logger.Logger
	validator TokenValidator
}

func NewJWTMiddleware(log *logger.Logger, validator TokenValidator) *JWTMiddleware {
	return &JWTMiddleware{
		log:       log.Named("auth"),
		validator: validator,
	}
}

// RequireAuth проверяет Bearer-токен и кладет ID клиента в контекст.
// Если заданы requiredScopes, токен должен содержать хотя бы одну из них.
func (m *JWTMiddleware) RequireAuth(requiredScopes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, authHeaderPrefix) {
			m.handleAuthError(c, "Missing authorization token")
			return
		}

		claims, err := m.validator.Validate(strings.TrimPrefix(authHeader, authHeaderPrefix))
		if err != nil {
			m.handleAuthError(c, fmt.Sprintf("Token validation failed: %v", err))
			return
		}

		if !hasRequiredScope(claims.Scope, requiredScopes) {
			m.handleAuthError(c, "Insufficient token permissions")
			return
		}

		clientID, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil || clientID <= 0 {
			m.handleAuthError(c, "Client ID (sub) missing in token")
			return
		}

		c.Set(ContextClientIDKey, clientID)
		m.log.Debug("Client %d authenticated", clientID)
		c.Next()
	}
}

// ClientID возвращает ID клиента, положенный RequireAuth
func ClientID(c *gin.Context) int64 {
	return c.GetInt64(ContextClientIDKey)
}

func hasRequiredScope(tokenScope string, requiredScopes []string) bool {
	if len(requiredScopes) == 0 {
		return true
	}
	granted := strings.Fields(tokenScope)
	for _, scope := range requiredScopes {
		if slices.Contains(granted, scope) {
			return true
		}
	}
	return false
}

func (m *JWTMiddleware) handleAuthError(c *gin.Context, message string) {
	m.log.Warn("HTTP authentication failed. Path: %s, Error: %s", c.Request.URL.Path, message)
	res.JsonResponse(c.Writer, res.ErrorResponse{
		Error:     message,
		ErrorCode: http.StatusUnauthorized,
	}, http.StatusUnauthorized)
	c.Abort()
}

// DefaultTokenValidator - реализация валидатора по умолчанию.
type DefaultTokenValidator struct {
	Secret []byte
}

func (v *DefaultTokenValidator) Validate(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.Secret, nil
	})

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, errors.New("malformed token")
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, errors.New("invalid token signature")
		case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, errors.New("token expired")
		default:
			return nil, fmt.Errorf("invalid token: %w", err)
		}
	}

	if claims, ok := token.Claims.(*TokenClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token claims")
}
