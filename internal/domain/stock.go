package domain

import "time"

// StockEntry is the ledger row for one product.
type StockEntry struct {
	ProductID int64     `json:"product_id"`
	Available int       `json:"available_quantity"`
	Active    bool      `json:"is_active"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReservedLine is one product quantity held by a reservation ticket.
type ReservedLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}
