package billing

import (
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("billing: not found")
	ErrConflict      = errors.New("billing: already exists")
	ErrInvalidInput  = errors.New("billing: invalid input")
	ErrInvoiceClosed = errors.New("billing: invoice is not payable")
)

// Invoice kinds and statuses.
const (
	KindSale     = "sale"
	KindPurchase = "purchase"

	StatusDraft = "draft"
	StatusSent  = "sent"
	StatusPaid  = "paid"
	StatusVoid  = "void"
)

// Customer is a billable party. Email is unique.
type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Invoice is a sales or purchase document. Total is in minor currency units.
type Invoice struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	Kind       string    `json:"kind"`
	Number     string    `json:"number"`
	Currency   string    `json:"currency"`
	Total      int64     `json:"total"`
	Status     string    `json:"status"`
	IssuedAt   time.Time `json:"issued_at"`
	DueAt      time.Time `json:"due_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Payment records money received (or paid out) against an invoice.
type Payment struct {
	ID        string    `json:"id"`
	InvoiceID string    `json:"invoice_id"`
	Amount    int64     `json:"amount"`
	Method    string    `json:"method"`
	PaidAt    time.Time `json:"paid_at"`
	CreatedAt time.Time `json:"created_at"`
}
