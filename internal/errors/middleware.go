package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/carles-abarca/NEO6/internal/logger"
)

// ErrorHandler converts a ProxyError left on the Gin context into the
// §6 REST wire error shape and logs it at a severity derived from the
// HTTP status.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last()
		if pe, ok := err.Err.(*ProxyError); ok {
			log := logger.GetLogger()
			if pe.StatusCode >= 500 {
				log.Error().Str("code", pe.Code).Str("details", pe.Details).Msg(pe.Message)
			} else {
				log.Warn().Str("code", pe.Code).Str("field", pe.Field).Msg(pe.Message)
			}
			c.JSON(pe.StatusCode, pe.ToResponse())
			return
		}

		logger.GetLogger().Error().Err(err.Err).Msg("unhandled error")
		c.JSON(http.StatusInternalServerError, Internal("an unexpected error occurred").ToResponse())
	}
}

// Recovery recovers from handler panics and renders them as INTERNAL
// errors instead of crashing the listener's accept loop.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.GetLogger().Error().Interface("panic", r).Msg("recovered from panic")
				c.AbortWithStatusJSON(http.StatusInternalServerError, Internal("an unexpected error occurred").ToResponse())
			}
		}()
		c.Next()
	}
}

// HandleError renders err (a *ProxyError or plain error) as a JSON
// response without aborting the Gin chain.
func HandleError(c *gin.Context, err error) {
	if pe, ok := err.(*ProxyError); ok {
		c.Error(pe)
		c.JSON(pe.StatusCode, pe.ToResponse())
		return
	}
	ie := Internal(err.Error())
	c.Error(ie)
	c.JSON(ie.StatusCode, ie.ToResponse())
}

// AbortWithError aborts the Gin chain immediately with err's response.
func AbortWithError(c *gin.Context, err *ProxyError) {
	c.Error(err)
	c.AbortWithStatusJSON(err.StatusCode, err.ToResponse())
}
