package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rolechat/internal/app"
	"rolechat/internal/model"
	"rolechat/internal/transport/http/response"
)

const ContextSessionKey = "session"

// RequireSession accepts a bearer token or the session cookie. Browser page
// loads without a session are sent to the login page.
func RequireSession(sessions *app.SessionService, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := tokenFromRequest(c, cookieName)
		session, err := sessions.Authenticate(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, app.ErrUnauthenticated) {
				response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "session lookup failed")
				c.Abort()
				return
			}
			if WantsHTML(c) && c.Request.Method == http.MethodGet {
				c.Redirect(http.StatusFound, "/login")
				c.Abort()
				return
			}
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, err.Error())
			c.Abort()
			return
		}

		c.Set(ContextSessionKey, session)
		c.Next()
	}
}

func SessionFromContext(c *gin.Context) (*model.Session, bool) {
	value, exists := c.Get(ContextSessionKey)
	if !exists {
		return nil, false
	}
	session, ok := value.(*model.Session)
	return session, ok && session != nil
}

func WantsHTML(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "text/html")
}

func tokenFromRequest(c *gin.Context, cookieName string) string {
	const prefix = "Bearer "
	if authHeader := strings.TrimSpace(c.GetHeader("Authorization")); strings.HasPrefix(authHeader, prefix) {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
	}
	if cookie, err := c.Cookie(cookieName); err == nil {
		return cookie
	}
	return ""
}
