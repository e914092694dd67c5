package ginserver

import (
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"carshare/internal/app/commands"
	"carshare/internal/app/dto"
	paymentsapp "carshare/internal/app/handlers/payments"
)

// SignatureHeader carries the processor's webhook signature.
const SignatureHeader = "Stripe-Signature"

type PaymentHandler struct {
	Commands commands.Bus
	Logger   *slog.Logger
}

func (h PaymentHandler) Checkout(c *gin.Context) {
	user, ok := requireAuth(c)
	if !ok {
		return
	}
	cmd := paymentsapp.CreateCheckoutCommand{ActorID: user.ID(), BookingID: c.Param("id")}
	result, err := commands.Dispatch[paymentsapp.CreateCheckoutCommand, *dto.Checkout](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type confirmPaymentRequest struct {
	SessionID string `json:"sessionId"`
}

func (h PaymentHandler) ConfirmPayment(c *gin.Context) {
	user, ok := requireAuth(c)
	if !ok {
		return
	}
	var req confirmPaymentRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		badRequest(c, err)
		return
	}
	cmd := paymentsapp.ConfirmPaymentCommand{ActorID: user.ID(), BookingID: c.Param("id"), SessionID: req.SessionID}
	result, err := commands.Dispatch[paymentsapp.ConfirmPaymentCommand, *dto.PaymentResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type confirmExtensionRequest struct {
	PaymentIntentID string `json:"paymentIntentId"`
}

func (h PaymentHandler) ConfirmExtension(c *gin.Context) {
	user, ok := requireAuth(c)
	if !ok {
		return
	}
	var req confirmExtensionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cmd := paymentsapp.ConfirmExtensionCommand{ActorID: user.ID(), BookingID: c.Param("id"), PaymentIntentID: req.PaymentIntentID}
	result, err := commands.Dispatch[paymentsapp.ConfirmExtensionCommand, *dto.PaymentResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h PaymentHandler) Reconcile(c *gin.Context) {
	user, ok := requireAuth(c)
	if !ok {
		return
	}
	cmd := paymentsapp.ReconcilePaymentCommand{ActorID: user.ID(), BookingID: c.Param("id")}
	result, err := commands.Dispatch[paymentsapp.ReconcilePaymentCommand, *dto.ReconcileResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Webhook hands the untouched body to the processor adapter, which checks the signature
// before decoding anything.
func (h PaymentHandler) Webhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		badRequest(c, err)
		return
	}
	cmd := paymentsapp.HandleWebhookCommand{Payload: payload, Signature: c.GetHeader(SignatureHeader)}
	result, err := commands.Dispatch[paymentsapp.HandleWebhookCommand, *dto.WebhookAck](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

var _ PaymentHTTP = PaymentHandler{}
