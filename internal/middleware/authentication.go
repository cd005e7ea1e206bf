package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"drivebox.dev/api/internal/tokens"
)

// UserIDKey is the gin context key holding the authenticated subject.
const UserIDKey = "user_id"

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("invalid or expired token")
)

type TokenVerifier interface {
	Verify(token string, kind tokens.Kind) (string, error)
}

// Protected returns middleware that requires a valid bearer access token. It is meant to be
// installed on a route group so every route registered on it is covered.
func Protected(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithError(http.StatusUnauthorized, ErrUnauthenticated)
			return
		}

		userID, err := verifier.Verify(token, tokens.Access)
		if err != nil {
			c.AbortWithError(http.StatusForbidden, ErrForbidden)
			return
		}
		// Populate request with the verified subject
		c.Set(UserIDKey, userID)

		c.Next()
	}
}

// UserID returns the subject stored by Protected.
func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
