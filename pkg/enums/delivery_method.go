package enums

import "fmt"

// DeliveryMethod maps to the delivery_method enum in Postgres.
type DeliveryMethod string

const (
	DeliveryMethodHandover      DeliveryMethod = "handover"
	DeliveryMethodDeliveryPoint DeliveryMethod = "delivery_point"
	DeliveryMethodCourier       DeliveryMethod = "courier"
)

var validDeliveryMethods = []DeliveryMethod{
	DeliveryMethodHandover,
	DeliveryMethodDeliveryPoint,
	DeliveryMethodCourier,
}

// IsValid reports whether the value matches the canonical delivery_method enum.
func (d DeliveryMethod) IsValid() bool {
	for _, candidate := range validDeliveryMethods {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDeliveryMethod converts the raw string to DeliveryMethod.
func ParseDeliveryMethod(value string) (DeliveryMethod, error) {
	for _, candidate := range validDeliveryMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid delivery method %q", value)
}
