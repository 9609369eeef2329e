package billing

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Service validates input and applies billing rules over a Store.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService constructs the billing service.
func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("billing store is required")
	}
	return &Service{store: store, now: time.Now}, nil
}

// CreateCustomer registers a new billable party.
func (s *Service) CreateCustomer(ctx context.Context, name, email, phone, address string) (*Customer, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(strings.ToLower(email))
	if name == "" {
		return nil, fmt.Errorf("%w: customer name is required", ErrInvalidInput)
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	customer := &Customer{
		Name:    name,
		Email:   email,
		Phone:   strings.TrimSpace(phone),
		Address: strings.TrimSpace(address),
	}
	if err := s.store.Customers().Create(ctx, customer); err != nil {
		return nil, err
	}
	return customer, nil
}

// GetCustomer returns a customer by id.
func (s *Service) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	return s.store.Customers().Find(ctx, id)
}

// ListCustomers returns all customers.
func (s *Service) ListCustomers(ctx context.Context) ([]*Customer, error) {
	return s.store.Customers().List(ctx)
}

// CreateInvoice opens a draft invoice against a customer.
func (s *Service) CreateInvoice(ctx context.Context, customerID, kind, number, currency string, total int64, dueAt time.Time) (*Invoice, error) {
	kind = strings.TrimSpace(strings.ToLower(kind))
	if kind != KindSale && kind != KindPurchase {
		return nil, fmt.Errorf("%w: kind must be %s or %s", ErrInvalidInput, KindSale, KindPurchase)
	}
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, fmt.Errorf("%w: invoice number is required", ErrInvalidInput)
	}
	currency = strings.TrimSpace(strings.ToUpper(currency))
	if len(currency) != 3 {
		return nil, fmt.Errorf("%w: currency must be a 3-letter code", ErrInvalidInput)
	}
	if total <= 0 {
		return nil, fmt.Errorf("%w: total must be positive", ErrInvalidInput)
	}
	if _, err := s.store.Customers().Find(ctx, customerID); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if dueAt.IsZero() {
		dueAt = now.Add(30 * 24 * time.Hour)
	}
	inv := &Invoice{
		CustomerID: customerID,
		Kind:       kind,
		Number:     number,
		Currency:   currency,
		Total:      total,
		Status:     StatusDraft,
		IssuedAt:   now,
		DueAt:      dueAt,
	}
	if err := s.store.Invoices().Create(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// GetInvoice returns an invoice by id.
func (s *Service) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	return s.store.Invoices().Find(ctx, id)
}

// ListInvoices returns invoices, optionally filtered by kind and status.
func (s *Service) ListInvoices(ctx context.Context, kind, status string) ([]*Invoice, error) {
	return s.store.Invoices().List(ctx, strings.TrimSpace(strings.ToLower(kind)), strings.TrimSpace(strings.ToLower(status)))
}

// SendInvoice moves a draft invoice to sent.
func (s *Service) SendInvoice(ctx context.Context, id string) (*Invoice, error) {
	inv, err := s.store.Invoices().Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status != StatusDraft {
		return nil, fmt.Errorf("%w: only draft invoices can be sent", ErrInvalidInput)
	}
	if err := s.store.Invoices().SetStatus(ctx, id, StatusSent); err != nil {
		return nil, err
	}
	inv.Status = StatusSent
	return inv, nil
}

// VoidInvoice cancels an unpaid invoice.
func (s *Service) VoidInvoice(ctx context.Context, id string) (*Invoice, error) {
	inv, err := s.store.Invoices().Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status == StatusPaid {
		return nil, fmt.Errorf("%w: paid invoices cannot be voided", ErrInvalidInput)
	}
	if err := s.store.Invoices().SetStatus(ctx, id, StatusVoid); err != nil {
		return nil, err
	}
	inv.Status = StatusVoid
	return inv, nil
}

// RecordPayment applies a payment to an invoice. When the payments cover the
// invoice total, the invoice flips to paid in the same transaction.
func (s *Service) RecordPayment(ctx context.Context, invoiceID, method string, amount int64, paidAt time.Time) (*Payment, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	method = strings.TrimSpace(strings.ToLower(method))
	if method == "" {
		method = "bank_transfer"
	}
	if paidAt.IsZero() {
		paidAt = s.now().UTC()
	}
	payment := &Payment{
		InvoiceID: invoiceID,
		Amount:    amount,
		Method:    method,
		PaidAt:    paidAt,
	}
	err := s.store.WithinTx(ctx, func(tx Store) error {
		inv, err := tx.Invoices().Find(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status == StatusPaid || inv.Status == StatusVoid {
			return ErrInvoiceClosed
		}
		if err := tx.Payments().Create(ctx, payment); err != nil {
			return err
		}
		existing, err := tx.Payments().ListByInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		var settled int64
		for _, p := range existing {
			settled += p.Amount
		}
		if settled >= inv.Total {
			return tx.Invoices().SetStatus(ctx, invoiceID, StatusPaid)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// ListPayments returns the payments applied to an invoice.
func (s *Service) ListPayments(ctx context.Context, invoiceID string) ([]*Payment, error) {
	if _, err := s.store.Invoices().Find(ctx, invoiceID); err != nil {
		return nil, err
	}
	return s.store.Payments().ListByInvoice(ctx, invoiceID)
}
