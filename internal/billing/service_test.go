package billing

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newBillingService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(NewMemStore())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func seedCustomer(t *testing.T, svc *Service) *Customer {
	t.Helper()
	c, err := svc.CreateCustomer(context.Background(), "Acme Ltd", "billing@acme.test", "+1-555-0100", "1 Main St")
	if err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}
	return c
}

func TestCreateCustomerValidation(t *testing.T) {
	svc := newBillingService(t)
	ctx := context.Background()

	if _, err := svc.CreateCustomer(ctx, "", "a@b.test", "", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty name, got %v", err)
	}
	if _, err := svc.CreateCustomer(ctx, "Acme", "no-at-sign", "", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for bad email, got %v", err)
	}

	c, err := svc.CreateCustomer(ctx, "  Acme  ", "Billing@Acme.Test", "", "")
	if err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}
	if c.Name != "Acme" || c.Email != "billing@acme.test" {
		t.Fatalf("input not normalized: %+v", c)
	}
	if c.ID == "" {
		t.Fatal("expected assigned id")
	}

	if _, err := svc.CreateCustomer(ctx, "Other", "billing@acme.test", "", ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate email, got %v", err)
	}
}

func TestCreateInvoiceValidation(t *testing.T) {
	svc := newBillingService(t)
	ctx := context.Background()
	cust := seedCustomer(t, svc)

	cases := []struct {
		name     string
		kind     string
		number   string
		currency string
		total    int64
		customer string
		wantErr  error
	}{
		{"unknown kind", "refund", "INV-1", "USD", 100, cust.ID, ErrInvalidInput},
		{"empty number", KindSale, "  ", "USD", 100, cust.ID, ErrInvalidInput},
		{"bad currency", KindSale, "INV-1", "DOLLARS", 100, cust.ID, ErrInvalidInput},
		{"zero total", KindSale, "INV-1", "USD", 0, cust.ID, ErrInvalidInput},
		{"ghost customer", KindSale, "INV-1", "USD", 100, "no-such-customer", ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.CreateInvoice(ctx, tc.customer, tc.kind, tc.number, tc.currency, tc.total, time.Time{}); !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}

	inv, err := svc.CreateInvoice(ctx, cust.ID, "Sale", "INV-1", "usd", 5000, time.Time{})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	if inv.Kind != KindSale || inv.Currency != "USD" || inv.Status != StatusDraft {
		t.Fatalf("unexpected invoice: %+v", inv)
	}
	// Zero dueAt defaults to issue date plus 30 days.
	if got := inv.DueAt.Sub(inv.IssuedAt); got != 30*24*time.Hour {
		t.Fatalf("unexpected default due date offset: %v", got)
	}

	if _, err := svc.CreateInvoice(ctx, cust.ID, KindSale, "INV-1", "USD", 100, time.Time{}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate number, got %v", err)
	}
}

func TestSendInvoiceRequiresDraft(t *testing.T) {
	svc := newBillingService(t)
	ctx := context.Background()
	cust := seedCustomer(t, svc)

	inv, err := svc.CreateInvoice(ctx, cust.ID, KindSale, "INV-1", "USD", 100, time.Time{})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	sent, err := svc.SendInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("SendInvoice: %v", err)
	}
	if sent.Status != StatusSent {
		t.Fatalf("expected sent, got %s", sent.Status)
	}
	if _, err := svc.SendInvoice(ctx, inv.ID); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for double send, got %v", err)
	}
	if _, err := svc.SendInvoice(ctx, "no-such-invoice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestVoidInvoiceRejectsPaid(t *testing.T) {
	svc := newBillingService(t)
	ctx := context.Background()
	cust := seedCustomer(t, svc)

	inv, err := svc.CreateInvoice(ctx, cust.ID, KindSale, "INV-1", "USD", 100, time.Time{})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	if _, err := svc.SendInvoice(ctx, inv.ID); err != nil {
		t.Fatalf("SendInvoice: %v", err)
	}
	if _, err := svc.RecordPayment(ctx, inv.ID, "card", 100, time.Time{}); err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}
	if _, err := svc.VoidInvoice(ctx, inv.ID); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput voiding a paid invoice, got %v", err)
	}

	other, err := svc.CreateInvoice(ctx, cust.ID, KindSale, "INV-2", "USD", 100, time.Time{})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	voided, err := svc.VoidInvoice(ctx, other.ID)
	if err != nil {
		t.Fatalf("VoidInvoice: %v", err)
	}
	if voided.Status != StatusVoid {
		t.Fatalf("expected void, got %s", voided.Status)
	}
}

func TestRecordPaymentSettlesAtFullSum(t *testing.T) {
	svc := newBillingService(t)
	ctx := context.Background()
	cust := seedCustomer(t, svc)

	inv, err := svc.CreateInvoice(ctx, cust.ID, KindSale, "INV-1", "USD", 1000, time.Time{})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	if _, err := svc.SendInvoice(ctx, inv.ID); err != nil {
		t.Fatalf("SendInvoice: %v", err)
	}

	if _, err := svc.RecordPayment(ctx, inv.ID, "card", 0, time.Time{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for zero amount, got %v", err)
	}

	p1, err := svc.RecordPayment(ctx, inv.ID, "", 400, time.Time{})
	if err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}
	if p1.Method != "bank_transfer" {
		t.Fatalf("expected default method, got %s", p1.Method)
	}
	partial, err := svc.GetInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	if partial.Status != StatusSent {
		t.Fatalf("invoice settled early: %s", partial.Status)
	}

	if _, err := svc.RecordPayment(ctx, inv.ID, "card", 600, time.Time{}); err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}
	settled, err := svc.GetInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	if settled.Status != StatusPaid {
		t.Fatalf("expected paid, got %s", settled.Status)
	}

	// Closed invoices take no further payments.
	if _, err := svc.RecordPayment(ctx, inv.ID, "card", 1, time.Time{}); !errors.Is(err, ErrInvoiceClosed) {
		t.Fatalf("expected ErrInvoiceClosed, got %v", err)
	}

	payments, err := svc.ListPayments(ctx, inv.ID)
	if err != nil {
		t.Fatalf("ListPayments: %v", err)
	}
	if len(payments) != 2 {
		t.Fatalf("expected 2 payments, got %d", len(payments))
	}
}

func TestListInvoicesFilters(t *testing.T) {
	svc := newBillingService(t)
	ctx := context.Background()
	cust := seedCustomer(t, svc)

	if _, err := svc.CreateInvoice(ctx, cust.ID, KindSale, "INV-1", "USD", 100, time.Time{}); err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	purchase, err := svc.CreateInvoice(ctx, cust.ID, KindPurchase, "PO-1", "USD", 200, time.Time{})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	if _, err := svc.SendInvoice(ctx, purchase.ID); err != nil {
		t.Fatalf("SendInvoice: %v", err)
	}

	all, err := svc.ListInvoices(ctx, "", "")
	if err != nil {
		t.Fatalf("ListInvoices: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 invoices, got %d", len(all))
	}
	sales, err := svc.ListInvoices(ctx, KindSale, "")
	if err != nil {
		t.Fatalf("ListInvoices: %v", err)
	}
	if len(sales) != 1 || sales[0].Kind != KindSale {
		t.Fatalf("unexpected kind filter result: %+v", sales)
	}
	sent, err := svc.ListInvoices(ctx, "", StatusSent)
	if err != nil {
		t.Fatalf("ListInvoices: %v", err)
	}
	if len(sent) != 1 || sent[0].ID != purchase.ID {
		t.Fatalf("unexpected status filter result: %+v", sent)
	}
}
