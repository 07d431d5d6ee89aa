package validation

import (
	"fmt"
	"math"

	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// register struct-level validation for CreateOrderRequest to ensure
	// the provided Total matches the sum of (price * quantity) of items.
	v.RegisterStructValidation(createOrderStructValidation, CreateOrderRequest{})

	return v
}

// createOrderStructValidation verifies the aggregated total of items equals Total (within cents)
func createOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateOrderRequest)

	var sum float64
	for _, it := range req.Products {
		sum += float64(it.Quantity) * it.Price
	}

	// compare in cents to avoid float rounding issues
	sumCents := int(math.Round(sum * 100))
	totalCents := int(math.Round(req.Total * 100))
	if sumCents != totalCents {
		sl.ReportError(req.Total, "total", "Total", "total_match_items", fmt.Sprintf("items sum %.2f != total %.2f", sum, req.Total))
	}
}
