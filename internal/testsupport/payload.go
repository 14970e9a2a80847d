package testsupport

import (
	"github.com/shopspring/decimal"

	"fieldsync/internal/queue"
)

// SamplePayload returns a valid order whose location was read at ts.
func SamplePayload(ts *int64) queue.Payload {
	return queue.Payload{
		Client: "Tienda La Esquina",
		Products: []queue.Product{
			{SKU: "SKU-001", Name: "Agua 600ml", Quantity: 12, Price: decimal.RequireFromString("0.75")},
			{SKU: "SKU-002", Name: "Galletas", Quantity: 3, Price: decimal.RequireFromString("1.20")},
		},
		Total:    decimal.RequireFromString("12.60"),
		Location: queue.Location{Lat: 14.6349, Lng: -90.5069, Timestamp: ts},
		Email:    "agent@example.com",
		Date:     "2026-10-17",
		Period:   "P10",
	}
}
