package domain

import "github.com/shopspring/decimal"

// TickFlags carries the status bits of a TickData sample.
type TickFlags int

const (
	TickInitialized TickFlags = 1 << iota
	TickRealtime
)

// Has reports whether a flag is set.
func (f TickFlags) Has(flag TickFlags) bool { return f&flag != 0 }

// InnerTick is the nested bid/ask/volume/exchange sample of a TickData.
type InnerTick struct {
	Bid            decimal.Decimal
	Ask            decimal.Decimal
	LastVolume     decimal.Decimal
	ExchangeMS     int64
	ReceivedMS     int64
	UpdateFlags    int
}

// Mid returns the mid-price (bid+ask)/2 used by the live-state evaluator.
func (t InnerTick) Mid() decimal.Decimal {
	return t.Bid.Add(t.Ask).Div(decimal.NewFromInt(2))
}

// TickData is one streamed price sample (spec.md §3). Price comparisons
// against a TickData must be rounded to PriceDigits before comparing, so
// that differences below one ulp at that precision are treated as equal.
type TickData struct {
	Symbol       string
	PriceDigits  int32
	VolumeDigits int32
	Provider     string
	Tick         InnerTick
	Status       TickFlags
}

// IsInitialized reports whether the sample carries a usable price.
func (t TickData) IsInitialized() bool {
	return t.Status.Has(TickInitialized)
}

// MidPrice returns the tick's mid-price rounded to the symbol's declared
// decimal precision, so equality comparisons at that precision are exact.
func (t TickData) MidPrice() decimal.Decimal {
	return t.Tick.Mid().Round(t.PriceDigits)
}
