package models

import "time"

// Mission is a catalog entry for a sustainability action. The catalog is
// read-only from the client and authored out-of-band.
type Mission struct {
	ID                 string  `json:"id"`
	Title              string  `json:"title"`
	Category           string  `json:"category"`
	CO2Kg              float64 `json:"co2_kg"`
	MaxPerDay          int     `json:"max_per_day"`
	Description        string  `json:"description,omitempty"`
	QuantityMode       int     `json:"quantity_mode,omitempty"`
	QuantityUnit       string  `json:"quantity_unit,omitempty"`
	QuantityMultiplier float64 `json:"quantity_multiplier,omitempty"`
	ImageKey           string  `json:"image_key,omitempty"`
}

// QuantityBased reports whether completions are logged with a quantity
// (e.g. kilometers biked) instead of a flat per-completion credit.
func (m Mission) QuantityBased() bool {
	return m.QuantityMode != 0
}

// CreditFor returns the CO2 credit in kg for one completion with the given
// quantity. Flat missions ignore the quantity.
func (m Mission) CreditFor(quantity float64) float64 {
	if !m.QuantityBased() {
		return m.CO2Kg
	}
	multiplier := m.QuantityMultiplier
	if multiplier == 0 {
		multiplier = m.CO2Kg
	}
	return quantity * multiplier
}

// UserAction is one logged mission completion. The table is append-only; all
// counters and totals are derived from it, never stored redundantly.
type UserAction struct {
	ID         string    `json:"id,omitempty"`
	UserID     string    `json:"user_id"`
	MissionID  string    `json:"mission_id"`
	CO2SavedKg float64   `json:"co2_saved_kg"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
}
