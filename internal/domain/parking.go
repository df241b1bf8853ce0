package domain

import "github.com/shopspring/decimal"

// Parking carries the billing policy of a parking lot
type Parking struct {
	ID            int64
	Name          string
	VendorID      int64
	MaxClientDebt decimal.Decimal
}

// Vendor is the parking hardware operator pushing session data
type Vendor struct {
	ID     int64
	Name   string
	Secret string
}
