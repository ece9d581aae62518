package domain

import "time"

// OrderType indicates the time-in-force policy.
type OrderType string

const (
	OrderTypeGTC OrderType = "GTC" // Good-Till-Cancelled
	OrderTypeFOK OrderType = "FOK" // Fill-Or-Kill
	OrderTypeFAK OrderType = "FAK" // Fill-And-Kill
)

// OrderResult wraps the venue response after order submission.
type OrderResult struct {
	Success bool
	OrderID string
	Status  string
	Message string
}

// Fill is a single accepted buy recorded during a window.
type Fill struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	ConditionID string    `json:"condition_id"`
	Leg         Leg       `json:"leg"`
	TokenID     string    `json:"token_id"`
	Price       float64   `json:"price"`
	Size        float64   `json:"size"`
	OrderID     string    `json:"order_id,omitempty"`
	Paper       bool      `json:"paper"`
	FilledAt    time.Time `json:"filled_at"`
}
