package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
)

// OwnerKey is the gin context key holding the authenticated owner id.
const OwnerKey = "owner_id"

// UserIDHeader carries the owner id when the session layer in front of the
// service has already authenticated the user.
const UserIDHeader = "X-User-Id"

// OwnerMiddleware resolves the dashboard user. With a non-empty secret it
// requires a Bearer HS256 session token; otherwise it trusts UserIDHeader.
func OwnerMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var ownerID string
		if secret != "" {
			token := bearerToken(c.GetHeader("Authorization"))
			if token != "" {
				if claims, err := VerifyToken(secret, token); err == nil {
					ownerID = ownerFromClaims(claims)
				}
			}
		} else {
			ownerID = strings.TrimSpace(c.GetHeader(UserIDHeader))
		}

		if ownerID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User ID is required"})
			return
		}

		c.Set(OwnerKey, ownerID)
		c.Next()
	}
}

// OwnerID returns the owner set by OwnerMiddleware.
func OwnerID(c *gin.Context) string {
	return c.GetString(OwnerKey)
}

// VerifyToken parses an HS256 token signed with secret and returns its claims.
func VerifyToken(secret, token string) (jwt.MapClaims, error) {
	parsedToken, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := parsedToken.Claims.(jwt.MapClaims); ok && parsedToken.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token claims")
}

// IssueToken signs a session token for ownerID valid for ttl.
func IssueToken(secret, ownerID string, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": ownerID,
		"exp": time.Now().Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}

func ownerFromClaims(claims jwt.MapClaims) string {
	for _, name := range []string{"sub", "user_id"} {
		if v, ok := claims[name].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// APIKeyFromRequest extracts the client API key from X-API-Key or from an
// Authorization header with the Bearer or ApiKey scheme.
func APIKeyFromRequest(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	scheme, value, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok {
		return ""
	}
	if strings.EqualFold(scheme, "Bearer") || strings.EqualFold(scheme, "ApiKey") {
		return strings.TrimSpace(value)
	}
	return ""
}

func bearerToken(header string) string {
	scheme, value, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(value)
}
