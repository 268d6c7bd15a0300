package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/summitcamp/booking-backend/internal/models"
	"github.com/summitcamp/booking-backend/internal/services"
)

// PaymentHandler consumes the two gateway-facing callbacks: the browser
// redirect-return and the server-to-server notification. Neither is trusted
// directly; both only feed the reconciler.
type PaymentHandler struct {
	reconciler *services.ReconcileService
	logger     *logrus.Logger
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(reconciler *services.ReconcileService, logger *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{reconciler: reconciler, logger: logger}
}

// ============================================================================
// PAYMENT RETURN - GET /api/v1/payments/return
// ============================================================================

// PaymentReturn handles the browser redirect back from the payment page
// @Summary Payment redirect return
// @Description Browser lands here after the hosted payment page; the advisory status is never trusted, the gateway is re-queried
// @Tags Payments
// @Produce json
// @Param order_id query string true "Order ID"
// @Param transaction_status query string false "Advisory status from the redirect URL"
// @Success 200 {object} map[string]interface{} "Current booking status"
// @Failure 400 {object} map[string]interface{} "Missing order_id"
// @Failure 404 {object} map[string]interface{} "Unknown order"
// @Router /payments/return [get]
func (h *PaymentHandler) PaymentReturn(c *gin.Context) {
	orderID := c.Query("order_id")
	if orderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order_id is required"})
		return
	}

	signal := models.ReconcileSignal{
		OrderID:        orderID,
		Source:         models.SignalSourceRedirect,
		AdvisoryStatus: c.Query("transaction_status"),
	}

	status, err := h.reconciler.Reconcile(c.Request.Context(), signal)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrUnknownOrder):
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown order"})
		case errors.Is(err, models.ErrGatewayUnavailable), errors.Is(err, models.ErrContention):
			// Payment outcome not knowable right now; the booking stays
			// pending and the client should poll the status endpoint.
			c.JSON(http.StatusOK, gin.H{
				"order_id": orderID,
				"status":   status,
				"message":  "Payment is being verified, check the booking status shortly",
			})
		default:
			h.logger.WithError(err).WithField("order_id", orderID).Error("Failed to process payment return")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process payment return"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order_id": orderID,
		"status":   status,
	})
}

// ============================================================================
// PAYMENT NOTIFICATION - POST /api/v1/payments/notify
// ============================================================================

// PaymentNotify handles the gateway's server-to-server status notification
// @Summary Payment gateway notification
// @Description Called by the payment gateway on status changes; signature is validated and the gateway re-queried before any state change
// @Tags Payments
// @Accept json
// @Produce json
// @Param request body models.GatewayNotification true "Notification payload from gateway"
// @Success 200 {object} map[string]interface{} "Notification acknowledged"
// @Failure 400 {object} map[string]interface{} "Malformed payload"
// @Router /payments/notify [post]
func (h *PaymentHandler) PaymentNotify(c *gin.Context) {
	bodyBytes, err := c.GetRawData()
	if err != nil {
		h.logger.WithError(err).Error("Failed to read notification body")
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	var notification models.GatewayNotification
	if err := json.Unmarshal(bodyBytes, &notification); err != nil {
		h.logger.WithError(err).Warn("Malformed gateway notification")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification payload"})
		return
	}
	if notification.OrderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order_id is required"})
		return
	}

	h.logger.WithFields(logrus.Fields{
		"order_id":           notification.OrderID,
		"transaction_status": notification.TransactionStatus,
		"transaction_id":     notification.TransactionID,
	}).Info("Gateway notification received")

	signal := models.ReconcileSignal{
		OrderID:        notification.OrderID,
		Source:         models.SignalSourceNotification,
		AdvisoryStatus: notification.TransactionStatus,
		Notification:   &notification,
	}

	status, err := h.reconciler.Reconcile(c.Request.Context(), signal)
	if err != nil {
		// Discarded and transient signals are still acknowledged with 200
		// so the gateway stops retrying a payload we will never accept, or
		// retries one we could not verify yet.
		switch {
		case errors.Is(err, models.ErrUnknownOrder), errors.Is(err, models.ErrInvalidSignature), errors.Is(err, models.ErrAmountMismatch):
			c.JSON(http.StatusOK, gin.H{"message": "notification acknowledged", "accepted": false})
		default:
			h.logger.WithError(err).WithField("order_id", notification.OrderID).Warn("Notification processing deferred")
			c.JSON(http.StatusOK, gin.H{"message": "notification acknowledged", "accepted": false})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "notification processed",
		"status":  status,
	})
}
