package middleware

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"bedtime-server/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// DevUserIDHeader доверяется только когда ключ Clerk не настроен (локальная разработка).
const DevUserIDHeader = "X-User-ID"

const userIDKey = "user_id"

var tokenVerificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "bedtime_token_verifications_total",
		Help: "Total number of session token verification attempts by status.",
	},
	[]string{"status"},
)

// ClerkVerifier проверяет сессионные JWT Clerk (RS256) по публичному ключу инстанса.
type ClerkVerifier struct {
	publicKey *rsa.PublicKey
	issuer    string
	logger    *zap.Logger
}

// NewClerkVerifier разбирает PEM ключ. issuer может быть пустым, тогда iss не проверяется.
func NewClerkVerifier(publicKeyPEM, issuer string, logger *zap.Logger) (*ClerkVerifier, error) {
	if strings.TrimSpace(publicKeyPEM) == "" {
		return nil, errors.New("clerk public key cannot be empty")
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(publicKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("failed to parse clerk public key: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClerkVerifier{
		publicKey: key,
		issuer:    issuer,
		logger:    logger.Named("ClerkVerifier"),
	}, nil
}

// VerifyToken проверяет подпись и срок действия токена и возвращает sub (ID пользователя Clerk).
func (v *ClerkVerifier) VerifyToken(_ context.Context, tokenString string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return v.publicKey, nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", models.ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenMalformed):
			return "", models.ErrTokenMalformed
		}
		return "", fmt.Errorf("%w: %v", models.ErrTokenInvalid, err)
	}
	if !token.Valid {
		return "", models.ErrTokenInvalid
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: sub missing", models.ErrTokenInvalid)
	}
	return claims.Subject, nil
}

// Authenticate определяет пользователя запроса. Запрос без токена проходит анонимно,
// невалидный токен - 401. verifier == nil: доверяем заголовку X-User-ID.
func Authenticate(verifier *ClerkVerifier, logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("Auth")
	if verifier == nil {
		log.Warn("Clerk public key is not configured, trusting " + DevUserIDHeader + " header")
	}

	return func(c *gin.Context) {
		if verifier == nil {
			if userID := strings.TrimSpace(c.GetHeader(DevUserIDHeader)); userID != "" {
				c.Set(userIDKey, userID)
			}
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			log.Warn("Invalid Authorization header format", zap.String("path", c.Request.URL.Path))
			tokenVerificationsTotal.WithLabelValues("failure").Inc()
			abortUnauthorized(c, models.ErrTokenMalformed)
			return
		}

		userID, err := verifier.VerifyToken(c.Request.Context(), parts[1])
		if err != nil {
			log.Warn("Session token verification failed", zap.Error(err), zap.String("tokenSnippet", tokenSnippet(parts[1])))
			tokenVerificationsTotal.WithLabelValues("failure").Inc()
			abortUnauthorized(c, err)
			return
		}

		tokenVerificationsTotal.WithLabelValues("success").Inc()
		c.Set(userIDKey, userID)
		log.Debug("Session token verified", zap.String("userID", userID))
		c.Next()
	}
}

// RequireUser отклоняет анонимные запросы. Ставится после Authenticate.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserID(c) == "" {
			abortUnauthorized(c, models.ErrUnauthorized)
			return
		}
		c.Next()
	}
}

// UserID возвращает ID пользователя, пусто для анонимного запроса.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

func abortUnauthorized(c *gin.Context, err error) {
	msg := "Token is invalid or malformed"
	switch {
	case errors.Is(err, models.ErrTokenExpired):
		msg = "Token has expired"
	case errors.Is(err, models.ErrUnauthorized):
		msg = "Authentication required"
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: msg})
}

func tokenSnippet(token string) string {
	if len(token) > 10 {
		return token[:10] + "..."
	}
	return token
}
