package billing

import "context"

// Store describes persistence for the billing surface. WithinTx is used by
// payment recording, which settles the invoice in the same transaction.
type Store interface {
	Customers() CustomerStore
	Invoices() InvoiceStore
	Payments() PaymentStore
	WithinTx(ctx context.Context, fn func(Store) error) error
}

// CustomerStore manages billable parties.
type CustomerStore interface {
	Create(ctx context.Context, c *Customer) error
	Find(ctx context.Context, id string) (*Customer, error)
	List(ctx context.Context) ([]*Customer, error)
	Update(ctx context.Context, c *Customer) error
	Delete(ctx context.Context, id string) error
}

// InvoiceStore manages invoices.
type InvoiceStore interface {
	Create(ctx context.Context, inv *Invoice) error
	Find(ctx context.Context, id string) (*Invoice, error)
	List(ctx context.Context, kind, status string) ([]*Invoice, error)
	SetStatus(ctx context.Context, id, status string) error
}

// PaymentStore manages invoice payments.
type PaymentStore interface {
	Create(ctx context.Context, p *Payment) error
	ListByInvoice(ctx context.Context, invoiceID string) ([]*Payment, error)
}
