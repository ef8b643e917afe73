package domain

import "time"

// FillEvent is an order-state change pushed on the user channel.
type FillEvent struct {
	OrderID     string
	EventType   string // "order", "trade", "order_update"
	Status      string
	Market      string
	AssetID     string
	Side        string
	Price       string
	SizeMatched string
	ReceivedAt  time.Time
}
