package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/onestopshop/shop-backend/internal/idempotency"
	"github.com/onestopshop/shop-backend/internal/orders"
	"github.com/onestopshop/shop-backend/internal/validation"
)

// newOrderID produces a short customer-facing order reference, e.g.
// OSS-1b9d6bcd. Twelve characters, so it survives as an M-Pesa account
// reference untruncated.
func newOrderID() string {
	return "OSS-" + strings.SplitN(uuid.NewString(), "-", 2)[0]
}

func registerOrderRoutes(api *gin.RouterGroup, cfg Config, v *validatorv10.Validate) {
	api.POST("/orders", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.CreateOrderRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		now := time.Now().UTC()
		order := orders.Order{
			OrderID: newOrderID(),
			Customer: orders.Customer{
				FirstName: req.Customer.FirstName,
				LastName:  req.Customer.LastName,
				Email:     req.Customer.Email,
				Phone:     req.Customer.Phone,
				Address:   req.Customer.Address,
				City:      req.Customer.City,
			},
			Total:     req.Total,
			Status:    orders.StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		for _, it := range req.Products {
			order.Products = append(order.Products, orders.LineItem{
				ProductID: it.ProductID,
				Name:      it.Name,
				Price:     it.Price,
				Quantity:  it.Quantity,
			})
		}

		// With an Idempotency-Key header and a DynamoDB backend, order and
		// idempotency record are created in one transaction so a retried
		// request can never produce two orders.
		idempKey := c.GetHeader("Idempotency-Key")
		if idempKey != "" && cfg.DynamoOrders != nil && cfg.Idempotency != nil {
			createOrderIdempotent(c, cfg, idempKey, order)
			return
		}

		if err := cfg.Store.Create(ctx, order); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error creating order", "error": err.Error()})
			return
		}

		c.Header("Location", fmt.Sprintf("/api/orders/%s", order.OrderID))
		c.JSON(http.StatusCreated, gin.H{
			"success": true,
			"message": "Order created successfully",
			"order":   order,
		})
	})

	api.GET("/orders/:orderId", func(c *gin.Context) {
		order, err := cfg.Store.Get(c.Request.Context(), c.Param("orderId"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error retrieving order"})
			return
		}
		if order == nil {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Order not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "order": order})
	})

	api.GET("/orders", func(c *gin.Context) {
		all, err := cfg.Store.List(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error retrieving orders"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "orders": all, "count": len(all)})
	})
}

// createOrderIdempotent runs the transact-write creation path and resolves
// duplicate deliveries from the stored idempotency record.
func createOrderIdempotent(c *gin.Context, cfg Config, idempKey string, order orders.Order) {
	ctx := c.Request.Context()

	now := time.Now().UTC()
	idempItem := map[string]interface{}{
		"idempotency_key": idempKey,
		"status":          idempotency.StatusInProgress,
		"created_at":      now.Format(time.RFC3339),
		"updated_at":      now.Format(time.RFC3339),
		"order_id":        order.OrderID,
	}

	err := cfg.DynamoOrders.CreateWithIdempotencyTransaction(ctx, cfg.IdempotencyTable, idempItem, order, cfg.TTLWindow)
	if err != nil {
		// Transaction failed, most likely because the idempotency key exists.
		// Fetch the record and answer from it.
		rec, getErr := cfg.Idempotency.Get(ctx, idempKey)
		if getErr != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "idempotency_check_failed", "detail": getErr.Error()})
			return
		}
		if rec == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "transaction_failed_no_idempotency_record", "detail": err.Error()})
			return
		}
		switch rec.Status {
		case idempotency.StatusDone:
			if rec.ResponseBody != "" {
				var body interface{}
				if derr := json.Unmarshal([]byte(rec.ResponseBody), &body); derr == nil {
					c.Data(rec.ResponseStatus, "application/json", []byte(rec.ResponseBody))
					return
				}
				c.JSON(rec.ResponseStatus, gin.H{"response": rec.ResponseBody})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "orderId": rec.OrderID})
			return
		case idempotency.StatusInProgress:
			c.JSON(http.StatusAccepted, gin.H{"message": "request already in progress", "orderId": rec.OrderID})
			return
		case idempotency.StatusFailed:
			// let client retry
			c.JSON(http.StatusInternalServerError, gin.H{"error": "previous_attempt_failed", "orderId": rec.OrderID})
			return
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "unknown_idempotency_status"})
			return
		}
	}

	// Store the response so a replay returns the same body.
	responseBody, _ := json.Marshal(gin.H{"success": true, "message": "Order created successfully", "order": order})
	_ = cfg.Idempotency.MarkDone(ctx, idempKey, string(responseBody), http.StatusCreated)

	c.Header("Location", fmt.Sprintf("/api/orders/%s", order.OrderID))
	c.Data(http.StatusCreated, "application/json", responseBody)
}
