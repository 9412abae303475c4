package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/retina-api/pkg/httputil"
)

// ErrorHandler logs errors attached with c.Error. Handlers normally write
// their own response; one is only written here when nothing was sent.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		for _, e := range c.Errors {
			status, _ := httputil.Classify(e.Err)
			evt := log.Warn()
			if status >= 500 {
				evt = log.Error()
			}
			evt.Err(e.Err).
				Str("request_id", c.GetString(ContextRequestID)).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Int("status", status).
				Msg("Request error")
		}

		if c.Writer.Written() {
			return
		}
		status, message := httputil.Classify(c.Errors.Last().Err)
		c.JSON(status, httputil.NewErrorResponse(message))
	}
}
