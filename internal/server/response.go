package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/plotsync/plotsync/internal/projectlock"
	"github.com/plotsync/plotsync/internal/storage"
	"github.com/plotsync/plotsync/internal/types"
)

// Response is the envelope every endpoint answers with.
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError carries a stable code next to the human message.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	CodeBadRequest   = "bad_request"
	CodeNotFound     = "not_found"
	CodeFormat       = "format_error"
	CodePrecondition = "precondition_failed"
	CodeStore        = "store_error"
	CodeTimeout      = "timeout"
	CodeInternal     = "internal_error"
)

func ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Success: true, Data: data, Timestamp: nowUTC()})
}

func fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, Response{
		Success:   false,
		Error:     &APIError{Code: code, Message: message},
		Timestamp: nowUTC(),
	})
}

func nowUTC() time.Time { return time.Now().UTC() }

func badRequest(c *gin.Context, message string) {
	fail(c, http.StatusBadRequest, CodeBadRequest, message)
}

// statusOf maps a domain error to an HTTP status and error code.
func statusOf(err error) (int, string) {
	var (
		formatErr  *types.FormatError
		notFound   *types.NotFoundError
		precondErr *types.PreconditionError
		storeErr   *types.StoreError
	)
	switch {
	case errors.As(err, &formatErr):
		return http.StatusUnprocessableEntity, CodeFormat
	case errors.As(err, &notFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.As(err, &precondErr), errors.Is(err, projectlock.ErrTimeout):
		return http.StatusConflict, CodePrecondition
	case errors.As(err, &storeErr):
		return http.StatusInternalServerError, CodeStore
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeTimeout
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// respondErr writes err with its mapped status. Server-side failures are
// logged; client errors are not.
func (s *Server) respondErr(c *gin.Context, err error) {
	status, code := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	}
	fail(c, status, code, err.Error())
}
