package main

// PaymentMessage is the payload sent from the callback reconciler -> SQS -> worker.
type PaymentMessage struct {
	OrderID            string `json:"order_id"`
	CheckoutRequestID  string `json:"checkout_request_id"`
	MpesaReceiptNumber string `json:"mpesa_receipt_number,omitempty"`
	CorrelationID      string `json:"correlation_id,omitempty"`
}
