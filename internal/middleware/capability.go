package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-library-api/pkg/response"
)

// PINHeader carries the librarian PIN on mutating requests.
const PINHeader = "X-Librarian-PIN"

// CapabilityChecker validates the librarian PIN presented by a caller.
type CapabilityChecker interface {
	Enabled() bool
	Check(ctx context.Context, pin string) error
}

// RequireCapability rejects requests whose PIN does not pass the checker. Safe methods pass
// through untouched, as does every request when the checker is nil or disabled.
func RequireCapability(checker CapabilityChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if checker == nil || !checker.Enabled() || isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}
		pin := strings.TrimSpace(c.GetHeader(PINHeader))
		if err := checker.Check(c.Request.Context(), pin); err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case "GET", "HEAD", "OPTIONS":
		return true
	}
	return false
}
