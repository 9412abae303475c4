package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/retina-api/internal/model"
	"github.com/jwalitptl/retina-api/internal/service/session"
	"github.com/jwalitptl/retina-api/pkg/httputil"
)

const (
	ContextIdentity = "identity"

	PathLogin     = "/login"
	PathDashboard = "/dashboard"
)

type AuthMiddleware struct {
	sessions session.Store
}

func NewAuthMiddleware(sessions session.Store) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions}
}

// Authenticate rejects requests while nobody is signed in and stores the
// current identity in the context otherwise.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := m.sessions.Current()
		if !ok {
			httputil.RespondWithRedirect(c, http.StatusUnauthorized, "authentication required", PathLogin)
			return
		}
		c.Set(ContextIdentity, identity)
		c.Next()
	}
}

// RequireDoctor must run after Authenticate.
func (m *AuthMiddleware) RequireDoctor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !Identity(c).IsDoctor() {
			httputil.RespondWithRedirect(c, http.StatusForbidden, "doctor access required", PathDashboard)
			return
		}
		c.Next()
	}
}

// Identity returns the identity Authenticate stored, or nil.
func Identity(c *gin.Context) *model.Identity {
	v, ok := c.Get(ContextIdentity)
	if !ok {
		return nil
	}
	identity, _ := v.(*model.Identity)
	return identity
}
