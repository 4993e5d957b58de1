package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"crime_service/internal/core"
	"crime_service/internal/domain/repository"

	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Success  bool   `json:"success"`
	Error    string `json:"error"`
	Redirect string `json:"redirect,omitempty"`
}

// ErrorHandler renders the last error a handler attached with c.Error.
// In production, unexpected errors are reported as a bare 500 so that driver
// messages never reach clients.
func ErrorHandler(production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		status, resp := classify(err, production)
		if status >= http.StatusInternalServerError {
			slog.Error("request failed",
				"error", err,
				"path", c.Request.URL.Path,
				"request_id", c.GetString(requestIDKey),
			)
		}
		c.AbortWithStatusJSON(status, resp)
	}
}

func classify(err error, production bool) (int, errorResponse) {
	if ve, ok := core.IsValidation(err); ok {
		return ve.Status, errorResponse{Error: ve.Message, Redirect: ve.Redirect}
	}

	switch {
	case errors.Is(err, core.ErrBoundsUnavailable):
		return http.StatusServiceUnavailable, errorResponse{Error: err.Error()}
	case errors.Is(err, repository.ErrBoundaryNotFound):
		return http.StatusNotFound, errorResponse{Error: "Area boundary not found"}
	case errors.Is(err, context.Canceled):
		// 499: client closed request.
		return 499, errorResponse{Error: "Request cancelled"}
	}

	msg := "Internal Server Error"
	if !production {
		msg = err.Error()
	}
	return http.StatusInternalServerError, errorResponse{Error: msg}
}
