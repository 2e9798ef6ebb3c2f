package models

import "time"

// Reading represents electricity consumption during the 30-minute interval
// beginning at StartAt. Produced by the API boundary and treated as immutable.
type Reading struct {
	StartAt             time.Time `json:"startAt"`
	Value               float64   `json:"value"` // kWh
	ConsumptionRateBand string    `json:"consumptionRateBand"`
	ConsumptionStep     int       `json:"consumptionStep"`
	CostEstimate        float64   `json:"costEstimate"`
}

// TotalValue sums the consumption of a series of readings.
func TotalValue(readings []Reading) float64 {
	var total float64
	for _, r := range readings {
		total += r.Value
	}
	return total
}
