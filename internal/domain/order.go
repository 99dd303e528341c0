package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderResult wraps the exchange response after order submission. Ordinary
// failures (rejects, transport errors) come back as Success=false with a
// message; the execution layer never panics or returns them as errors.
type OrderResult struct {
	Success bool
	OrderID string
	Status  string
	Message string
}

// OpenOrder is one resting order as reported by the exchange.
type OpenOrder struct {
	ID           string
	TokenID      string
	Side         OrderSide
	Price        float64
	OriginalSize float64
	SizeMatched  float64
	CreatedAt    time.Time
}
