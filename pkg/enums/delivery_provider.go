package enums

import "fmt"

// DeliveryProvider identifies a courier integration.
type DeliveryProvider string

const (
	DeliveryProviderShipbubble DeliveryProvider = "shipbubble"
	DeliveryProviderUberDirect DeliveryProvider = "uber_direct"
)

var validDeliveryProviders = []DeliveryProvider{
	DeliveryProviderShipbubble,
	DeliveryProviderUberDirect,
}

// String implements fmt.Stringer.
func (p DeliveryProvider) String() string {
	return string(p)
}

// IsValid reports whether the value is a known DeliveryProvider.
func (p DeliveryProvider) IsValid() bool {
	for _, candidate := range validDeliveryProviders {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseDeliveryProvider converts raw input into a DeliveryProvider.
func ParseDeliveryProvider(value string) (DeliveryProvider, error) {
	for _, candidate := range validDeliveryProviders {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid delivery provider %q", value)
}
