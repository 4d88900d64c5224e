package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"smartscan/internal/apperr"
)

// Envelope is the common response contract.
type Envelope struct {
	Data  any           `json:"data,omitempty"`
	Error *apperr.Error `json:"error,omitempty"`
	Meta  gin.H         `json:"meta,omitempty"`
}

// JSON sends a success response.
func JSON(c *gin.Context, status int, data any, meta ...gin.H) {
	c.Header("Cache-Control", "no-store")
	env := Envelope{Data: data}
	if len(meta) > 0 {
		env.Meta = meta[0]
	}
	c.JSON(status, env)
}

// Error converts err to the common structure and aborts the chain.
func Error(c *gin.Context, err error) {
	appErr := apperr.FromError(err)
	_ = c.Error(err)
	c.Header("Cache-Control", "no-store")
	c.AbortWithStatusJSON(appErr.Status, Envelope{Error: appErr})
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
