package httpmiddleware

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"

	"smartscan/internal/apperr"
	"smartscan/internal/response"
)

// HostAllowList admits a request when the Host header's hostname or the client IP
// is listed. An empty list admits everything.
func HostAllowList(allowed []string) gin.HandlerFunc {
	set := make(map[string]struct{}, len(allowed))
	for _, h := range allowed {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			set[h] = struct{}{}
		}
	}
	return func(c *gin.Context) {
		if len(set) == 0 {
			c.Next()
			return
		}
		if _, ok := set[hostname(c.Request.Host)]; ok {
			c.Next()
			return
		}
		if _, ok := set[c.ClientIP()]; ok {
			c.Next()
			return
		}
		response.Error(c, apperr.Wrap(nil, apperr.ErrAccessDenied, "access denied for this host"))
	}
}

func hostname(hostport string) string {
	h := hostport
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		h = host
	}
	return strings.ToLower(strings.Trim(h, "[]"))
}
