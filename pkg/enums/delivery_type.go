package enums

// DeliveryType is how an order reaches the customer.
type DeliveryType string

const (
	DeliveryTypeShipment DeliveryType = "shipment"
	DeliveryTypePickup   DeliveryType = "pickup"
)

var deliveryTypes = []DeliveryType{DeliveryTypeShipment, DeliveryTypePickup}

func (d DeliveryType) String() string { return string(d) }

func (d DeliveryType) IsValid() bool { return known(deliveryTypes, d) }

func ParseDeliveryType(value string) (DeliveryType, error) {
	return parse("delivery type", deliveryTypes, value)
}
