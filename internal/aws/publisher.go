package aws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// PaymentEvent is the message sent to the fulfillment queue once a payment
// callback has been reconciled against an order.
type PaymentEvent struct {
	OrderID            string `json:"order_id"`
	CheckoutRequestID  string `json:"checkout_request_id"`
	MpesaReceiptNumber string `json:"mpesa_receipt_number,omitempty"`
	CorrelationID      string `json:"correlation_id,omitempty"`
}

// Publisher wraps an SQS client and a queue URL.
type Publisher struct {
	SQS      SQSAPI
	QueueURL string
}

// NewPublisher returns a Publisher bound to a queue URL.
func NewPublisher(sqsClient SQSAPI, queueURL string) *Publisher {
	return &Publisher{
		SQS:      sqsClient,
		QueueURL: queueURL,
	}
}

// PublishPaymentEvent marshals and sends a payment event to the fulfillment queue.
func (p *Publisher) PublishPaymentEvent(ctx context.Context, ev PaymentEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal payment event: %w", err)
	}
	attrs := map[string]string{
		"order_id":            ev.OrderID,
		"checkout_request_id": ev.CheckoutRequestID,
	}
	return p.send(ctx, string(body), attrs)
}

func (p *Publisher) send(ctx context.Context, messageBody string, attributes map[string]string) error {
	input := &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: &messageBody,
	}
	if len(attributes) > 0 {
		msgAttrs := map[string]sqstypes.MessageAttributeValue{}
		for k, v := range attributes {
			// using string type for all attrs
			msgAttrs[k] = sqstypes.MessageAttributeValue{
				DataType:    awsString("String"),
				StringValue: &v,
			}
		}
		input.MessageAttributes = msgAttrs
	}

	_, err := p.SQS.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// awsString helper
func awsString(s string) *string { return &s }
