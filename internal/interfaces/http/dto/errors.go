package dto

import (
	"net/http"

	"github.com/erp/salesforecast/internal/domain/forecast"
)

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
	// ErrCodeUnavailable is used when a dependency of the service is down
	ErrCodeUnavailable = "ERR_UNAVAILABLE"
)

// Request error codes
const (
	// ErrCodeValidation is used when the request body fails field validation
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeInvalidJSON is used when JSON parsing fails
	ErrCodeInvalidJSON = "ERR_INVALID_JSON"
	// ErrCodeRequestTooLarge is used when the body exceeds the configured limit
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
	// ErrCodeNotFound is used for unknown routes
	ErrCodeNotFound = "ERR_NOT_FOUND"
)

// Forecast error codes, one per forecast.ErrorKind
const (
	ErrCodeInvalidDate     = "ERR_INVALID_DATE"
	ErrCodeInvalidInput    = "ERR_INVALID_INPUT"
	ErrCodeProductNotFound = "ERR_PRODUCT_NOT_FOUND"
	ErrCodeUnknownCategory = "ERR_UNKNOWN_CATEGORY"
	ErrCodeSchemaMismatch  = "ERR_SCHEMA_MISMATCH"
	ErrCodeDataUnavailable = "ERR_DATA_UNAVAILABLE"
	ErrCodeModelInvocation = "ERR_MODEL_INVOCATION"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	// General errors
	ErrCodeUnknown:     http.StatusInternalServerError,
	ErrCodeInternal:    http.StatusInternalServerError,
	ErrCodeUnavailable: http.StatusServiceUnavailable,

	// Request errors
	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
	ErrCodeNotFound:        http.StatusNotFound,

	// Forecast errors
	ErrCodeInvalidDate:     http.StatusBadRequest,
	ErrCodeInvalidInput:    http.StatusBadRequest,
	ErrCodeProductNotFound: http.StatusNotFound,
	ErrCodeUnknownCategory: http.StatusUnprocessableEntity,
	ErrCodeSchemaMismatch:  http.StatusInternalServerError,
	ErrCodeDataUnavailable: http.StatusServiceUnavailable,
	ErrCodeModelInvocation: http.StatusInternalServerError,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// KindErrorCode maps forecast error kinds to their API error codes
var KindErrorCode = map[forecast.ErrorKind]string{
	forecast.KindInvalidDate:     ErrCodeInvalidDate,
	forecast.KindInvalidInput:    ErrCodeInvalidInput,
	forecast.KindProductNotFound: ErrCodeProductNotFound,
	forecast.KindUnknownCategory: ErrCodeUnknownCategory,
	forecast.KindSchemaMismatch:  ErrCodeSchemaMismatch,
	forecast.KindDataUnavailable: ErrCodeDataUnavailable,
	forecast.KindModelInvocation: ErrCodeModelInvocation,
}

// ErrorCodeForKind returns the API error code of kind, or ErrCodeUnknown
func ErrorCodeForKind(kind forecast.ErrorKind) string {
	if code, ok := KindErrorCode[kind]; ok {
		return code
	}
	return ErrCodeUnknown
}
