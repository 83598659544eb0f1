package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"freelance/internal/mpesa"
	"freelance/internal/repository"
	"freelance/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	// Code is the M-Pesa error or response code of a provider rejection.
	Code string `json:"code,omitempty"`
	// Payment is the attempt recorded before the failure, if any.
	Payment *PaymentResponse `json:"payment,omitempty"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	c.JSON(code, newErrorResponse(err))
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

func newErrorResponse(err error) ErrorResponse {
	resp := ErrorResponse{Error: err.Error()}
	var providerErr *mpesa.ProviderError
	if errors.As(err, &providerErr) {
		resp.Code = providerErr.Code
	}
	return resp
}

// mapErrorToHTTPStatus maps service/repository/mpesa errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	var providerErr *mpesa.ProviderError

	switch {
	// Not found errors
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound

	// Validation errors - Bad Request
	case errors.Is(err, service.ErrInvalidJobID),
		errors.Is(err, service.ErrInvalidJobTitle),
		errors.Is(err, service.ErrInvalidClientID),
		errors.Is(err, service.ErrInvalidPhone),
		errors.Is(err, service.ErrInvalidPaymentAmount),
		errors.Is(err, service.ErrInvalidPaymentID),
		errors.Is(err, service.ErrInvalidCallback):
		return http.StatusBadRequest

	// Conflict errors
	case errors.Is(err, service.ErrAlreadyPaid),
		errors.Is(err, service.ErrPaymentInProgress),
		errors.Is(err, service.ErrJobNotPaid),
		errors.Is(err, service.ErrAlreadyDispatched),
		errors.Is(err, repository.ErrDuplicateCorrelationID):
		return http.StatusConflict

	// Upstream errors
	case errors.Is(err, mpesa.ErrTransport),
		errors.Is(err, mpesa.ErrAuth),
		errors.As(err, &providerErr):
		return http.StatusBadGateway

	// Service unavailable
	case errors.Is(err, mpesa.ErrConfigInvalid),
		errors.Is(err, service.ErrPaymentBusy):
		return http.StatusServiceUnavailable

	// Default to internal server error
	default:
		return http.StatusInternalServerError
	}
}
