package domain

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

const (
	FulfillmentStatusPending    FulfillmentStatus = "pending"
	FulfillmentStatusProcessing FulfillmentStatus = "processing"
	FulfillmentStatusReady      FulfillmentStatus = "ready"
	FulfillmentStatusCompleted  FulfillmentStatus = "completed"
	FulfillmentStatusCancelled  FulfillmentStatus = "cancelled"
)

const (
	CommissionStatusPending CommissionStatus = "pending"
	CommissionStatusSettled CommissionStatus = "settled"
	CommissionStatusVoid    CommissionStatus = "void"
)

const (
	ReturnStatusPending ReturnStatus = "pending"
)

// ProductStatusActive is the only catalog status accepted at checkout.
const ProductStatusActive = "active"

// PaymentStatusPending is recorded when no payment provider reports otherwise.
const PaymentStatusPending = "pending"

// IsTerminal reports whether no further order transitions are possible.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// IsTerminal reports whether the fulfillment record is finished.
func (s FulfillmentStatus) IsTerminal() bool {
	return s == FulfillmentStatusCompleted || s == FulfillmentStatusCancelled
}
