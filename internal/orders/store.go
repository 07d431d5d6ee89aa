package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/onestopshop/shop-backend/internal/aws"
)

// ErrStatusMismatch indicates a conditional status transition failed because
// the order was not in the expected state.
var ErrStatusMismatch = errors.New("status mismatch/conditional failed")

// Store is the order persistence contract the payment flow depends on.
// Backing technology is interchangeable; DynamoStore is used in production,
// MemoryStore in the in-memory server mode and in tests.
type Store interface {
	Create(ctx context.Context, o Order) error
	Get(ctx context.Context, orderID string) (*Order, error)
	// GetByCheckoutID correlates an asynchronous provider callback to an order.
	// Returns (nil, nil) if no order carries the checkout id.
	GetByCheckoutID(ctx context.Context, checkoutID string) (*Order, error)
	List(ctx context.Context) ([]Order, error)
	// AttachCheckout records the provider-issued identifiers after a
	// synchronous STK push acceptance. The order stays pending.
	AttachCheckout(ctx context.Context, orderID, checkoutID, merchantID string) error
	// MarkPaid moves pending -> paid with payment details. ErrStatusMismatch
	// if the order already left pending.
	MarkPaid(ctx context.Context, orderID string, details PaymentDetails, paidAt time.Time) error
	// MarkFailed moves pending -> failed with the provider's reason.
	MarkFailed(ctx context.Context, orderID, reason string, resultCode int) error
	// UpdateStatus conditionally moves expected -> next (fulfillment states).
	UpdateStatus(ctx context.Context, orderID, expected, next string) error
}

// DynamoStore persists orders in a DynamoDB table with a GSI on
// checkout_request_id.
type DynamoStore struct {
	client    aws.DynamoDBAPI
	tableName string
	// index name for the checkout_request_id lookup
	checkoutIndex string
	nowFunc       func() time.Time
}

// NewDynamoStore creates an order store bound to a table.
func NewDynamoStore(client aws.DynamoDBAPI, tableName string) *DynamoStore {
	return &DynamoStore{
		client:        client,
		tableName:     tableName,
		checkoutIndex: "checkout_request_id-index",
		nowFunc:       time.Now,
	}
}

// Create writes a new order, refusing to overwrite an existing order id.
func (s *DynamoStore) Create(ctx context.Context, o Order) error {
	now := s.nowFunc()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	item, err := attributevalue.MarshalMap(o)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	input := &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_id)"),
	}
	if _, err := s.client.PutItem(ctx, input); err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return fmt.Errorf("order %s already exists: %w", o.OrderID, err)
		}
		return fmt.Errorf("put order: %w", err)
	}
	return nil
}

// CreateWithIdempotencyTransaction atomically creates:
//   - idempotency record in idempotencyTable (with ConditionExpression attribute_not_exists(idempotency_key))
//   - order record in orders table
//
// It marshals both items and issues a TransactWriteItems call.
// idempotencyItem must be a serializable struct with attribute idempotency_key present.
func (s *DynamoStore) CreateWithIdempotencyTransaction(ctx context.Context, idempotencyTable string, idempotencyItem interface{}, o Order, ttlWindow time.Duration) error {
	idempMap, err := attributevalue.MarshalMap(idempotencyItem)
	if err != nil {
		return fmt.Errorf("marshal idempotency item: %w", err)
	}
	// ensure idempotency TTL if needed: caller can include expires_at field; if not present, add it
	if _, ok := idempMap["expires_at"]; !ok && ttlWindow > 0 {
		expires := s.nowFunc().Add(ttlWindow).Unix()
		idempMap["expires_at"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expires)}
	}

	now := s.nowFunc()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	orderMap, err := attributevalue.MarshalMap(o)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}

	transactItems := []types.TransactWriteItem{
		{
			Put: &types.Put{
				TableName:           &idempotencyTable,
				Item:                idempMap,
				ConditionExpression: awsString("attribute_not_exists(idempotency_key)"),
			},
		},
		{
			Put: &types.Put{
				TableName:           &s.tableName,
				Item:                orderMap,
				ConditionExpression: awsString("attribute_not_exists(order_id)"),
			},
		},
	}

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: transactItems})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			return fmt.Errorf("transaction canceled (likely idempotency key exists): %w", err)
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *DynamoStore) Get(ctx context.Context, orderID string) (*Order, error) {
	key := map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: orderID},
	}
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       key,
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// GetByCheckoutID queries the checkout_request_id GSI. Returns (nil, nil) if
// no order carries the id.
func (s *DynamoStore) GetByCheckoutID(ctx context.Context, checkoutID string) (*Order, error) {
	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:              &s.tableName,
		IndexName:              &s.checkoutIndex,
		KeyConditionExpression: awsString("checkout_request_id = :cid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cid": &types.AttributeValueMemberS{Value: checkoutID},
		},
		Limit: awsInt32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("query checkout index: %w", err)
	}
	if len(out.Items) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Items[0], &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// List scans the full table. Fine for an admin listing at this scale.
func (s *DynamoStore) List(ctx context.Context) ([]Order, error) {
	out, err := s.client.Scan(ctx, &dyn.ScanInput{TableName: &s.tableName})
	if err != nil {
		return nil, fmt.Errorf("scan orders: %w", err)
	}
	result := make([]Order, 0, len(out.Items))
	for _, item := range out.Items {
		var o Order
		if err := attributevalue.UnmarshalMap(item, &o); err != nil {
			return nil, fmt.Errorf("unmarshal order: %w", err)
		}
		result = append(result, o)
	}
	return result, nil
}

// AttachCheckout sets the provider identifiers on a pending order.
func (s *DynamoStore) AttachCheckout(ctx context.Context, orderID, checkoutID, merchantID string) error {
	now := s.nowFunc()
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression:         awsString("SET checkout_request_id = :cid, merchant_request_id = :mid, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cid":      &types.AttributeValueMemberS{Value: checkoutID},
			":mid":      &types.AttributeValueMemberS{Value: merchantID},
			":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			":expected": &types.AttributeValueMemberS{Value: StatusPending},
		},
		ConditionExpression: awsString("#s = :expected"),
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("attach checkout: %w", err)
	}
	return nil
}

// MarkPaid moves pending -> paid and attaches the payment details. The
// conditional expression is what makes callback re-delivery a no-op at the
// storage layer.
func (s *DynamoStore) MarkPaid(ctx context.Context, orderID string, details PaymentDetails, paidAt time.Time) error {
	now := s.nowFunc()
	detailsAttr, err := attributevalue.MarshalMap(details)
	if err != nil {
		return fmt.Errorf("marshal payment details: %w", err)
	}
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression:         awsString("SET #s = :paid, payment_details = :pd, paid_at = :pa, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":paid":     &types.AttributeValueMemberS{Value: StatusPaid},
			":pd":       &types.AttributeValueMemberM{Value: detailsAttr},
			":pa":       &types.AttributeValueMemberS{Value: paidAt.Format(time.RFC3339)},
			":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			":expected": &types.AttributeValueMemberS{Value: StatusPending},
		},
		ConditionExpression: awsString("#s = :expected"),
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("mark paid: %w", err)
	}
	return nil
}

// MarkFailed moves pending -> failed with the provider's result description.
func (s *DynamoStore) MarkFailed(ctx context.Context, orderID, reason string, resultCode int) error {
	now := s.nowFunc()
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression:         awsString("SET #s = :failed, failure_reason = :fr, failure_code = :fc, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed":   &types.AttributeValueMemberS{Value: StatusFailed},
			":fr":       &types.AttributeValueMemberS{Value: reason},
			":fc":       &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", resultCode)},
			":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			":expected": &types.AttributeValueMemberS{Value: StatusPending},
		},
		ConditionExpression: awsString("#s = :expected"),
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// UpdateStatus conditionally updates the order status from expected -> next.
// Returns ErrStatusMismatch if the condition failed.
func (s *DynamoStore) UpdateStatus(ctx context.Context, orderID, expected, next string) error {
	now := s.nowFunc()
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression:         awsString("SET #s = :new, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new":      &types.AttributeValueMemberS{Value: next},
			":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			":expected": &types.AttributeValueMemberS{Value: expected},
		},
		ConditionExpression: awsString("#s = :expected"),
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

func awsString(s string) *string { return &s }
func awsInt32(n int32) *int32    { return &n }
