package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metrics publishes counters to a CloudWatch namespace.
type Metrics struct {
	client    CloudWatchAPI
	namespace string
	nowFunc   func() time.Time
}

// NewMetrics returns a Metrics publisher for the given namespace.
func NewMetrics(client CloudWatchAPI, namespace string) *Metrics {
	return &Metrics{
		client:    client,
		namespace: namespace,
		nowFunc:   time.Now,
	}
}

// Count emits a single count datum, e.g. Count(ctx, "OrdersFulfilled", 1, map[string]string{"Status": "shipped"}).
func (m *Metrics) Count(ctx context.Context, name string, value float64, dimensions map[string]string) error {
	now := m.nowFunc()
	datum := cwtypes.MetricDatum{
		MetricName: &name,
		Value:      &value,
		Unit:       cwtypes.StandardUnitCount,
		Timestamp:  &now,
	}
	for k, v := range dimensions {
		k, v := k, v
		datum.Dimensions = append(datum.Dimensions, cwtypes.Dimension{Name: &k, Value: &v})
	}
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  &m.namespace,
		MetricData: []cwtypes.MetricDatum{datum},
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		return fmt.Errorf("put metric data: %w", err)
	}
	return nil
}
