package orders

import "time"

// Order statuses. An order leaves "pending" at most once: either to "paid"
// (then onward through fulfillment) or to "failed".
const (
	StatusPending    = "pending"
	StatusPaid       = "paid"
	StatusFailed     = "failed"
	StatusProcessing = "processing"
	StatusShipped    = "shipped"
	StatusDelivered  = "delivered"
)

// Customer holds the contact details captured at checkout.
type Customer struct {
	FirstName string `json:"firstName" dynamodbav:"first_name"`
	LastName  string `json:"lastName,omitempty" dynamodbav:"last_name,omitempty"`
	Email     string `json:"email,omitempty" dynamodbav:"email,omitempty"`
	Phone     string `json:"phone" dynamodbav:"phone"`
	Address   string `json:"address,omitempty" dynamodbav:"address,omitempty"`
	City      string `json:"city,omitempty" dynamodbav:"city,omitempty"`
}

// LineItem is one product entry on an order.
type LineItem struct {
	ProductID int     `json:"id" dynamodbav:"product_id"`
	Name      string  `json:"name" dynamodbav:"name"`
	Price     float64 `json:"price" dynamodbav:"price"`
	Quantity  int     `json:"quantity" dynamodbav:"quantity"`
}

// PaymentDetails is populated only when a successful M-Pesa callback has been
// reconciled against the order.
type PaymentDetails struct {
	MpesaReceiptNumber string  `json:"mpesaReceiptNumber" dynamodbav:"mpesa_receipt_number"`
	Amount             float64 `json:"amount" dynamodbav:"amount"`
	TransactionDate    string  `json:"transactionDate" dynamodbav:"transaction_date"`
	PhoneNumber        string  `json:"phoneNumber" dynamodbav:"phone_number"`
}

// Order represents the item stored in the orders table.
type Order struct {
	OrderID           string          `json:"orderId" dynamodbav:"order_id"` // PK
	Customer          Customer        `json:"customer" dynamodbav:"customer"`
	Products          []LineItem      `json:"products" dynamodbav:"products"`
	Total             float64         `json:"total" dynamodbav:"total"`
	Status            string          `json:"status" dynamodbav:"status"`
	CheckoutRequestID string          `json:"checkoutRequestID,omitempty" dynamodbav:"checkout_request_id,omitempty"` // GSI key once assigned
	MerchantRequestID string          `json:"merchantRequestID,omitempty" dynamodbav:"merchant_request_id,omitempty"`
	PaymentDetails    *PaymentDetails `json:"paymentDetails,omitempty" dynamodbav:"payment_details,omitempty"`
	FailureReason     string          `json:"failureReason,omitempty" dynamodbav:"failure_reason,omitempty"`
	FailureCode       int             `json:"failureCode,omitempty" dynamodbav:"failure_code,omitempty"`
	PaidAt            *time.Time      `json:"paidAt,omitempty" dynamodbav:"paid_at,omitempty"`
	CreatedAt         time.Time       `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt         time.Time       `json:"updatedAt" dynamodbav:"updated_at"`
}

// Terminal reports whether the payment phase of the order has concluded.
// Post-payment fulfillment states count as terminal here: a late or replayed
// callback must never rewrite them.
func Terminal(status string) bool {
	return status != StatusPending
}
