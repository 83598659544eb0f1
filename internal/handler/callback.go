package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"freelance/internal/domain"
	"freelance/internal/mpesa"
	"freelance/internal/repository"
	"freelance/internal/service"
)

// CallbackHandler receives M-Pesa's asynchronous notifications.
type CallbackHandler struct {
	callbackService *service.CallbackService
}

// NewCallbackHandler creates a new CallbackHandler.
func NewCallbackHandler(callbackService *service.CallbackService) *CallbackHandler {
	return &CallbackHandler{callbackService: callbackService}
}

// CallbackAck is the acknowledgement body M-Pesa expects.
type CallbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

var accepted = CallbackAck{ResultCode: 0, ResultDesc: "Accepted"}

// JobPayment handles POST /callbacks/job-payment
func (h *CallbackHandler) JobPayment(c *gin.Context) {
	var envelope mpesa.STKCallbackEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		c.JSON(http.StatusBadRequest, CallbackAck{ResultCode: 1, ResultDesc: "invalid callback body"})
		return
	}

	_, err := h.callbackService.HandleSTKCallback(c.Request.Context(), envelope.Body.STKCallback)
	respondCallback(c, err)
}

// DispatchResult handles POST /callbacks/dispatch-payment-result
func (h *CallbackHandler) DispatchResult(c *gin.Context) {
	h.handleResult(c, h.callbackService.HandleDispatchResult)
}

// DispatchQueueTimeout handles POST /callbacks/dispatch-queue-timeout
func (h *CallbackHandler) DispatchQueueTimeout(c *gin.Context) {
	h.handleResult(c, h.callbackService.HandleDispatchTimeout)
}

func (h *CallbackHandler) handleResult(c *gin.Context, handle func(context.Context, mpesa.B2CResult) (*domain.PaymentAttempt, error)) {
	var envelope mpesa.ResultEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		c.JSON(http.StatusBadRequest, CallbackAck{ResultCode: 1, ResultDesc: "invalid callback body"})
		return
	}

	_, err := handle(c.Request.Context(), envelope.Result)
	respondCallback(c, err)
}

func respondCallback(c *gin.Context, err error) {
	if err == nil {
		c.JSON(http.StatusOK, accepted)
		return
	}

	code := mapErrorToHTTPStatus(err)
	desc := err.Error()
	if errors.Is(err, repository.ErrNotFound) {
		desc = "no payment matches this callback"
	} else if code == http.StatusInternalServerError {
		desc = "internal error"
	}
	c.JSON(code, CallbackAck{ResultCode: 1, ResultDesc: desc})
}
