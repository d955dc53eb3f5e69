package middleware

import (
	"errors"
	"strings"
	"time"

	"CasinoApi/pkg/logger"
	"CasinoApi/pkg/store"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
)

const (
	TokenAccess = "TokenAccess"

	ContextUsernameKey = "auth_username"
)

var ErrNoAuthHeader = errors.New("missing or malformed Authorization header")

type accessClaims struct {
	Username  string `json:"user"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// TokenNew issues an access token for username expiring at the given time.
func TokenNew(key, username string, expiresAt time.Time) (string, error) {
	claims := accessClaims{
		Username:  username,
		TokenType: TokenAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(key))
	if err != nil {
		return "", logger.WrapError(err, "")
	}
	return signed, nil
}

// TokenCheck validates a token and returns the username and token type.
func TokenCheck(tokenString, key string) (string, string, error) {
	var claims accessClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(key), nil
	})
	if err != nil {
		return "", "", err
	}
	return claims.Username, claims.TokenType, nil
}

func GetTokenFromAuthorizationHeader(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return "", ErrNoAuthHeader
	}
	return strings.TrimPrefix(header, "Bearer "), nil
}

// GetUsernameFromGinContext returns the username set by AuthMiddleware.
func GetUsernameFromGinContext(c *gin.Context) (string, error) {
	v, ok := c.Get(ContextUsernameKey)
	if !ok {
		return "", errors.New("no authenticated user in context")
	}
	username, ok := v.(string)
	if !ok {
		return "", errors.New("invalid user value in context")
	}
	return username, nil
}

// AuthMiddleware validates the bearer token and checks the account exists.
func AuthMiddleware(jwtKey string, accounts *store.AccountStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := GetTokenFromAuthorizationHeader(c)
		if err != nil {
			logger.Error("%v", err)
			c.AbortWithStatus(400)
			return
		}

		username, tokenType, err := TokenCheck(token, jwtKey)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				c.AbortWithStatus(401)
				return
			}
			logger.Error("%v", err)
			c.AbortWithStatus(400)
			return
		}

		if tokenType != TokenAccess {
			c.AbortWithStatus(401)
			return
		}

		// call c.Next if user in the store
		// else response with 401
		if _, ok := accounts.Lookup(username); ok {
			c.Set(ContextUsernameKey, username)
			c.Next()
		} else {
			c.JSON(401, gin.H{"error": "User not authorized"})
			c.Abort()
		}
	}
}
