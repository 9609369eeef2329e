package billing

import (
	"context"
	"sort"
	"sync"
	"time"

	"tallybooks.org/internal/ids"
)

// MemStore is an in-memory Store used by tests and when no database DSN is
// configured.
type MemStore struct {
	mu        sync.Mutex
	customers map[string]*Customer
	invoices  map[string]*Invoice
	payments  map[string]*Payment
	now       func() time.Time
}

// NewMemStore constructs an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		customers: make(map[string]*Customer),
		invoices:  make(map[string]*Invoice),
		payments:  make(map[string]*Payment),
		now:       time.Now,
	}
}

func (m *MemStore) Customers() CustomerStore { return memCustomers{m} }
func (m *MemStore) Invoices() InvoiceStore   { return memInvoices{m} }
func (m *MemStore) Payments() PaymentStore   { return memPayments{m} }

// WithinTx restores a snapshot when fn fails.
func (m *MemStore) WithinTx(ctx context.Context, fn func(Store) error) error {
	m.mu.Lock()
	customers := snapshot(m.customers, func(c *Customer) *Customer { v := *c; return &v })
	invoices := snapshot(m.invoices, func(i *Invoice) *Invoice { v := *i; return &v })
	payments := snapshot(m.payments, func(p *Payment) *Payment { v := *p; return &v })
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.customers = customers
		m.invoices = invoices
		m.payments = payments
		m.mu.Unlock()
		return err
	}
	return nil
}

func snapshot[T any](src map[string]*T, clone func(*T) *T) map[string]*T {
	out := make(map[string]*T, len(src))
	for k, v := range src {
		out[k] = clone(v)
	}
	return out
}

type memCustomers struct{ m *MemStore }

func (s memCustomers) Create(ctx context.Context, c *Customer) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, existing := range s.m.customers {
		if existing.Email == c.Email {
			return ErrConflict
		}
	}
	if c.ID == "" {
		c.ID = ids.New()
	}
	now := s.m.now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	v := *c
	s.m.customers[c.ID] = &v
	return nil
}

func (s memCustomers) Find(ctx context.Context, id string) (*Customer, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	c, ok := s.m.customers[id]
	if !ok {
		return nil, ErrNotFound
	}
	v := *c
	return &v, nil
}

func (s memCustomers) List(ctx context.Context) ([]*Customer, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	out := make([]*Customer, 0, len(s.m.customers))
	for _, c := range s.m.customers {
		v := *c
		out = append(out, &v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s memCustomers) Update(ctx context.Context, c *Customer) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	existing, ok := s.m.customers[c.ID]
	if !ok {
		return ErrNotFound
	}
	v := *c
	v.CreatedAt = existing.CreatedAt
	v.UpdatedAt = s.m.now().UTC()
	s.m.customers[c.ID] = &v
	return nil
}

func (s memCustomers) Delete(ctx context.Context, id string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.customers[id]; !ok {
		return ErrNotFound
	}
	delete(s.m.customers, id)
	return nil
}

type memInvoices struct{ m *MemStore }

func (s memInvoices) Create(ctx context.Context, inv *Invoice) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, existing := range s.m.invoices {
		if existing.Number == inv.Number {
			return ErrConflict
		}
	}
	if inv.ID == "" {
		inv.ID = ids.New()
	}
	now := s.m.now().UTC()
	inv.CreatedAt = now
	inv.UpdatedAt = now
	v := *inv
	s.m.invoices[inv.ID] = &v
	return nil
}

func (s memInvoices) Find(ctx context.Context, id string) (*Invoice, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	inv, ok := s.m.invoices[id]
	if !ok {
		return nil, ErrNotFound
	}
	v := *inv
	return &v, nil
}

func (s memInvoices) List(ctx context.Context, kind, status string) ([]*Invoice, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []*Invoice
	for _, inv := range s.m.invoices {
		if kind != "" && inv.Kind != kind {
			continue
		}
		if status != "" && inv.Status != status {
			continue
		}
		v := *inv
		out = append(out, &v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (s memInvoices) SetStatus(ctx context.Context, id, status string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	inv, ok := s.m.invoices[id]
	if !ok {
		return ErrNotFound
	}
	inv.Status = status
	inv.UpdatedAt = s.m.now().UTC()
	return nil
}

type memPayments struct{ m *MemStore }

func (s memPayments) Create(ctx context.Context, p *Payment) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if p.ID == "" {
		p.ID = ids.New()
	}
	p.CreatedAt = s.m.now().UTC()
	v := *p
	s.m.payments[p.ID] = &v
	return nil
}

func (s memPayments) ListByInvoice(ctx context.Context, invoiceID string) ([]*Payment, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []*Payment
	for _, p := range s.m.payments {
		if p.InvoiceID == invoiceID {
			v := *p
			out = append(out, &v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
