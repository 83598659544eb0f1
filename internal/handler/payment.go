package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"freelance/internal/domain"
	"freelance/internal/service"
)

// PaymentHandler handles HTTP requests for payments.
type PaymentHandler struct {
	paymentService *service.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentService *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

// InitiatePaymentRequest is the HTTP request body for requesting a job payment.
type InitiatePaymentRequest struct {
	Phone string `json:"phone"`
}

// DispatchPaymentRequest is the HTTP request body for a payout or refund.
type DispatchPaymentRequest struct {
	Phone   string `json:"phone"`
	Remarks string `json:"remarks"`
	Refund  bool   `json:"refund"`
}

// PaymentResponse is the HTTP response for payment attempts.
type PaymentResponse struct {
	ID                       string     `json:"id"`
	JobID                    string     `json:"job_id"`
	Kind                     string     `json:"kind"`
	Phone                    string     `json:"phone"`
	Amount                   int64      `json:"amount"`
	Status                   string     `json:"status"`
	IsSuccessful             *bool      `json:"is_successful"`
	ResponseCode             *string    `json:"response_code"`
	ResponseDescription      *string    `json:"response_description"`
	MerchantRequestID        *string    `json:"merchant_request_id"`
	CheckoutRequestID        *string    `json:"checkout_request_id"`
	ConversationID           *string    `json:"conversation_id,omitempty"`
	OriginatorConversationID *string    `json:"originator_conversation_id,omitempty"`
	ResultCode               *int       `json:"result_code"`
	ResultDescription        *string    `json:"result_description"`
	ReceiptNumber            *string    `json:"receipt_number,omitempty"`
	FailureReason            *string    `json:"failure_reason,omitempty"`
	CreatedAt                time.Time  `json:"created_at"`
	UpdatedAt                time.Time  `json:"updated_at"`
	CompletedAt              *time.Time `json:"completed_at,omitempty"`
}

// InitiatePayment handles POST /v1/jobs/:id/payments
func (h *PaymentHandler) InitiatePayment(c *gin.Context) {
	var req InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if req.Phone == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "phone is required"})
		return
	}

	attempt, err := h.paymentService.InitiateJobPayment(c.Request.Context(), service.InitiatePaymentRequest{
		JobID: c.Param("id"),
		Phone: req.Phone,
	})
	if err != nil {
		respondPaymentError(c, attempt, err)
		return
	}

	respondJSON(c, http.StatusAccepted, toPaymentResponse(attempt))
}

// DispatchPayment handles POST /v1/jobs/:id/dispatches
func (h *PaymentHandler) DispatchPayment(c *gin.Context) {
	var req DispatchPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if req.Phone == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "phone is required"})
		return
	}

	attempt, err := h.paymentService.DispatchJobPayment(c.Request.Context(), service.DispatchRequest{
		JobID:    c.Param("id"),
		IsRefund: req.Refund,
		Phone:    req.Phone,
		Remarks:  req.Remarks,
	})
	if err != nil {
		respondPaymentError(c, attempt, err)
		return
	}

	respondJSON(c, http.StatusAccepted, toPaymentResponse(attempt))
}

// ListJobPayments handles GET /v1/jobs/:id/payments
func (h *PaymentHandler) ListJobPayments(c *gin.Context) {
	attempts, err := h.paymentService.ListJobPayments(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]PaymentResponse, 0, len(attempts))
	for _, a := range attempts {
		response = append(response, toPaymentResponse(a))
	}

	respondJSON(c, http.StatusOK, response)
}

// GetPayment handles GET /v1/payments/:id
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	attempt, err := h.paymentService.GetPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toPaymentResponse(attempt))
}

// respondPaymentError reports a failed initiation together with the attempt
// recorded for it.
func respondPaymentError(c *gin.Context, attempt *domain.PaymentAttempt, err error) {
	resp := newErrorResponse(err)
	if attempt != nil {
		payment := toPaymentResponse(attempt)
		resp.Payment = &payment
	}
	c.JSON(mapErrorToHTTPStatus(err), resp)
}

func toPaymentResponse(a *domain.PaymentAttempt) PaymentResponse {
	return PaymentResponse{
		ID:                       a.ID,
		JobID:                    a.JobID,
		Kind:                     string(a.Kind),
		Phone:                    a.Phone,
		Amount:                   a.Amount,
		Status:                   string(a.Status),
		IsSuccessful:             a.IsSuccessful(),
		ResponseCode:             a.ResponseCode,
		ResponseDescription:      a.ResponseDescription,
		MerchantRequestID:        a.MerchantRequestID,
		CheckoutRequestID:        a.CheckoutRequestID,
		ConversationID:           a.ConversationID,
		OriginatorConversationID: a.OriginatorConversationID,
		ResultCode:               a.ResultCode,
		ResultDescription:        a.ResultDescription,
		ReceiptNumber:            a.ReceiptNumber,
		FailureReason:            a.FailureReason,
		CreatedAt:                a.CreatedAt,
		UpdatedAt:                a.UpdatedAt,
		CompletedAt:              a.CompletedAt,
	}
}
