package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/onestopshop/shop-backend/internal/mpesa"
	"github.com/onestopshop/shop-backend/internal/payments"
	"github.com/onestopshop/shop-backend/internal/validation"
)

func registerMpesaRoutes(api *gin.RouterGroup, cfg Config, v *validatorv10.Validate, initiator *payments.Initiator, reconciler *payments.Reconciler, statusQuery *payments.StatusQuery) {
	api.POST("/mpesa/stkpush", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.STKPushRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		result, err := initiator.Initiate(ctx, req.AccountReference, req.PhoneNumber, req.Amount)
		if err != nil {
			writeInitiateError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":           true,
			"message":           "M-Pesa prompt has been sent to your phone. Enter your PIN to complete the payment.",
			"checkoutRequestID": result.CheckoutRequestID,
			"merchantRequestID": result.MerchantRequestID,
			"orderId":           result.OrderID,
		})
	})

	// The provider retries callbacks until it sees a 2xx, so this endpoint
	// always acknowledges success, whatever reconciliation did.
	api.POST("/mpesa/callback", func(c *gin.Context) {
		ack := gin.H{"ResultCode": 0, "ResultDesc": "Success"}

		var env mpesa.CallbackEnvelope
		if err := c.ShouldBindJSON(&env); err != nil {
			log.Printf("callback decode error: %v", err)
			c.JSON(http.StatusOK, ack)
			return
		}

		result, err := reconciler.Reconcile(c.Request.Context(), env)
		if err != nil {
			log.Printf("callback reconcile error: %v", err)
		} else if result.AlreadyProcessed {
			log.Printf("callback replay for order=%s ignored", result.OrderID)
		}

		c.JSON(http.StatusOK, ack)
	})

	api.GET("/mpesa/status/:checkoutRequestID", func(c *gin.Context) {
		snapshot, err := statusQuery.ByCheckoutID(c.Request.Context(), c.Param("checkoutRequestID"))
		if err != nil {
			if errors.Is(err, payments.ErrOrderNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Order not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error checking payment status"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "order": snapshot})
	})

	api.GET("/mpesa/test-auth", func(c *gin.Context) {
		if cfg.TokenSource == nil {
			c.JSON(http.StatusOK, gin.H{
				"success":     true,
				"message":     "M-Pesa running in simulated mode",
				"environment": cfg.Environment,
			})
			return
		}
		token, err := cfg.TokenSource.Token(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": "M-Pesa authentication failed",
				"error":   err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":     true,
			"message":     "M-Pesa authentication successful!",
			"hasToken":    token != "",
			"environment": cfg.Environment,
		})
	})
}

// writeInitiateError maps the initiator's error surface onto HTTP statuses.
func writeInitiateError(c *gin.Context, err error) {
	var rejected *mpesa.RejectedError
	var authErr *mpesa.AuthError
	switch {
	case errors.Is(err, payments.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Order not found"})
	case errors.Is(err, mpesa.ErrInvalidPhone):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
	case errors.As(err, &rejected):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": rejected.Description,
			"error":   gin.H{"code": rejected.Code, "description": rejected.Description},
		})
	case errors.As(err, &authErr):
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": "Failed to authenticate with M-Pesa"})
	case errors.Is(err, mpesa.ErrProviderUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "message": "M-Pesa request timed out. Please try again."})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Internal server error"})
	}
}
