package handler

import (
	"errors"
	"net/http"

	"github.com/erp/salesforecast/internal/domain/forecast"
	"github.com/erp/salesforecast/internal/interfaces/http/dto"
	"github.com/erp/salesforecast/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID from the context
func getRequestID(c *gin.Context) string {
	if id := middleware.GetRequestID(c); id != "" {
		return id
	}
	return c.GetHeader(middleware.RequestIDHeader)
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// ErrorWithCode sends an error response, deriving status code from error code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	h.Error(c, dto.GetHTTPStatus(code), code, message)
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, code, message string) {
	h.Error(c, http.StatusBadRequest, code, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// ValidationError sends a 400 validation error response with details
func (h *BaseHandler) ValidationError(c *gin.Context, details []dto.ValidationDetail) {
	c.JSON(http.StatusBadRequest, dto.NewValidationErrorResponse(
		"Request validation failed",
		getRequestID(c),
		details,
	))
}

// HandleError converts forecast errors to HTTP responses. The failing batch
// element is reported in error.index. Any other error is answered as an
// internal error without exposing its text.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)

	var fe *forecast.Error
	if !errors.As(err, &fe) {
		h.InternalError(c, "An unexpected error occurred")
		return
	}

	code := dto.ErrorCodeForKind(fe.Kind)
	resp := dto.NewErrorResponseWithRequestID(code, errorMessage(fe), getRequestID(c))
	if fe.Index >= 0 {
		idx := fe.Index
		resp.Error.Index = &idx
	}
	c.JSON(dto.GetHTTPStatus(code), resp)
}

// errorMessage is the client facing text of fe. Causes of server side kinds
// stay in the logs.
func errorMessage(fe *forecast.Error) string {
	detail := fe.Detail
	if detail == "" {
		detail = string(fe.Kind)
	}
	switch fe.Kind {
	case forecast.KindSchemaMismatch, forecast.KindDataUnavailable, forecast.KindModelInvocation:
		return detail
	default:
		return fe.Error()
	}
}
