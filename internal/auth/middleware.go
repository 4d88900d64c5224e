package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"smartscan/internal/apperr"
	"smartscan/internal/response"
)

const (
	// SessionName is the admin cookie name.
	SessionName = "smartscan_admin"

	claimsKey     = "claims"
	sessionUser   = "admin_user"
	sessionExpiry = "admin_exp"
)

// SessionStore builds the signed cookie store backing admin sessions.
func SessionStore(secret string, maxAge time.Duration, secure bool) sessions.Store {
	store := cookie.NewStore([]byte(secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	return store
}

// StartSession marks the cookie session as logged in until exp. It is a no-op without session middleware.
func StartSession(c *gin.Context, username string, exp time.Time) error {
	if _, ok := c.Get(sessions.DefaultKey); !ok {
		return nil
	}
	s := sessions.Default(c)
	s.Set(sessionUser, username)
	s.Set(sessionExpiry, exp.Unix())
	return s.Save()
}

// EndSession clears the admin cookie session. It is a no-op without session middleware.
func EndSession(c *gin.Context) error {
	if _, ok := c.Get(sessions.DefaultKey); !ok {
		return nil
	}
	s := sessions.Default(c)
	s.Clear()
	s.Options(sessions.Options{Path: "/", MaxAge: -1})
	return s.Save()
}

// AdminAuth admits requests carrying a valid admin bearer token or a live admin session.
func AdminAuth(signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authz := c.GetHeader("Authorization"); authz != "" {
			if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				response.Error(c, apperr.Wrap(nil, apperr.ErrUnauthorized, "missing bearer token"))
				return
			}
			claims, err := Parse(strings.TrimSpace(authz[len("bearer "):]), signingKey, issuer)
			if err != nil || claims.Role != RoleAdmin {
				response.Error(c, apperr.Wrap(err, apperr.ErrUnauthorized, "invalid token"))
				return
			}
			c.Set(claimsKey, claims)
			c.Next()
			return
		}

		if claims, ok := fromSession(c); ok {
			c.Set(claimsKey, claims)
			c.Next()
			return
		}
		response.Error(c, apperr.Wrap(nil, apperr.ErrUnauthorized, "admin login required"))
	}
}

func fromSession(c *gin.Context) (Claims, bool) {
	if _, ok := c.Get(sessions.DefaultKey); !ok {
		return Claims{}, false
	}
	s := sessions.Default(c)
	user, _ := s.Get(sessionUser).(string)
	if user == "" {
		return Claims{}, false
	}
	if exp, ok := s.Get(sessionExpiry).(int64); ok && time.Now().Unix() >= exp {
		return Claims{}, false
	}
	claims := Claims{Role: RoleAdmin}
	claims.Subject = user
	return claims, true
}

// ClaimsFrom returns the admin identity set by AdminAuth.
func ClaimsFrom(c *gin.Context) (Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return Claims{}, false
	}
	claims, ok := v.(Claims)
	return claims, ok
}
