package events

// Topic constants for domain events emitted by the storefront.
const (
	TopicOrderCreated           = "order.created"
	TopicOrderStatusChanged     = "order.status_changed"
	TopicOrderStockAdjustFailed = "order.stock_adjust_failed"
)

// OrderCreated is the payload of TopicOrderCreated.
type OrderCreated struct {
	OrderID       string `json:"orderId"`
	UserID        string `json:"userId"`
	Total         string `json:"total"`
	CouponCode    string `json:"couponCode,omitempty"`
	PaymentMethod string `json:"paymentMethod"`
	StockAdjusted bool   `json:"stockAdjusted"`
}

// OrderStatusChanged is the payload of TopicOrderStatusChanged.
type OrderStatusChanged struct {
	OrderID string `json:"orderId"`
	From    string `json:"from"`
	To      string `json:"to"`
}

// StockAdjustFailed is the payload of TopicOrderStockAdjustFailed.
type StockAdjustFailed struct {
	OrderID string         `json:"orderId"`
	Reason  string         `json:"reason"`
	Items   map[string]int `json:"items"`
}
