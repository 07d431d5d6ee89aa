package validation

// CustomerInfo is the contact block on a new order.
type CustomerInfo struct {
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName"`
	Email     string `json:"email" validate:"omitempty,email"`
	Phone     string `json:"phone" validate:"required"`
	Address   string `json:"address"`
	City      string `json:"city"`
}

// OrderItem represents a single order line item.
type OrderItem struct {
	ProductID int     `json:"id" validate:"required"`
	Name      string  `json:"name" validate:"required"`
	Price     float64 `json:"price" validate:"required,gt=0"` // price per unit
	Quantity  int     `json:"quantity" validate:"required,min=1"`
}

// CreateOrderRequest is the payload for POST /api/orders
type CreateOrderRequest struct {
	Customer CustomerInfo `json:"customer" validate:"required"`
	Products []OrderItem  `json:"products" validate:"required,min=1,dive"` // at least one item
	Total    float64      `json:"total" validate:"required,gt=0"`          // total amount client claims
}

// STKPushRequest is the payload for POST /api/mpesa/stkpush.
type STKPushRequest struct {
	PhoneNumber      string  `json:"phoneNumber" validate:"required"`
	Amount           float64 `json:"amount" validate:"required,gte=1"` // at least 1 KSH
	AccountReference string  `json:"accountReference" validate:"required"`
}
