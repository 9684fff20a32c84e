package handlers

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/JBD-GER/maklernull-sub000/internal/api/middleware"
	"github.com/JBD-GER/maklernull-sub000/internal/models"
	"github.com/JBD-GER/maklernull-sub000/internal/payment"
	"github.com/JBD-GER/maklernull-sub000/internal/services"
)

const maxWebhookBody = 64 * 1024

// RestCheckoutHandler handles package checkout and the payment webhook.
type RestCheckoutHandler struct {
	checkoutService services.ICheckoutService
	webhookSecret   string
}

// NewRestCheckoutHandler creates a new RestCheckoutHandler.
func NewRestCheckoutHandler(checkoutService services.ICheckoutService, webhookSecret string) *RestCheckoutHandler {
	return &RestCheckoutHandler{checkoutService: checkoutService, webhookSecret: webhookSecret}
}

type checkoutRequest struct {
	PackageCode   string `json:"packageCode" binding:"required"`
	RuntimeMonths int    `json:"runtimeMonths" binding:"required"`
}

// StartCheckout handles POST /v1/listings/:id/checkout
func (h *RestCheckoutHandler) StartCheckout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "packageCode and runtimeMonths are required"})
		return
	}

	result, err := h.checkoutService.StartCheckout(c.Request.Context(), c.Param("id"), middleware.OwnerID(c), req.PackageCode, req.RuntimeMonths)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// PaymentWebhook handles POST /v1/payments/webhook. Unknown and repeated notifications
// are acknowledged with 200 so the processor stops redelivering them.
func (h *RestCheckoutHandler) PaymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	notification, err := payment.ParseNotification(h.webhookSecret, body, c.GetHeader(payment.SignatureHeader))
	if err != nil {
		if errors.Is(err, payment.ErrBadSignature) {
			log.Printf("WARN: rejected payment webhook from %s: %v", c.ClientIP(), err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.checkoutService.HandlePaymentOutcome(c.Request.Context(), notification.SessionRef, models.PaymentOutcome(notification.Outcome))
	if err != nil {
		log.Printf("ERROR: payment event %s for session ref %s failed: %v", notification.EventID, notification.SessionRef, err)
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
