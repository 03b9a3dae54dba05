package entity

import "time"

// DriverCalculation is the aggregated result of one uploaded driver sheet.
// Amounts are decimal strings with two fractional digits.
type DriverCalculation struct {
	ID         string    `json:"id"`
	Total      string    `json:"total"`
	Cash       string    `json:"cash"`
	Vat        string    `json:"vat"`
	Transfer   string    `json:"transfer"`
	UploadedBy string    `json:"uploaded_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
