package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/jwalitptl/clinic-records/pkg/errors"
	"github.com/jwalitptl/clinic-records/pkg/httputil"
)

// DefaultMaxBodySize fits any billing or appointment payload many times over.
const DefaultMaxBodySize = 64 << 10

// SizeLimit rejects bodies larger than max bytes.
func SizeLimit(max int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > max {
			httputil.RespondWithError(c, &apperrors.AppError{
				Code:    apperrors.ErrBadRequest,
				Message: fmt.Sprintf("request body exceeds %d bytes", max),
			})
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, max)
		}
		c.Next()
	}
}
