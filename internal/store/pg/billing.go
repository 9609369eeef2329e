package pg

import (
	"context"
	"database/sql"
	"errors"

	"tallybooks.org/internal/billing"
	"tallybooks.org/internal/ids"
)

// BillingStore implements billing.Store on Postgres.
type BillingStore struct {
	db *sql.DB
	q  queryer
}

var _ billing.Store = (*BillingStore)(nil)

func (s *BillingStore) Customers() billing.CustomerStore { return billCustomers{s.q} }
func (s *BillingStore) Invoices() billing.InvoiceStore   { return billInvoices{s.q} }
func (s *BillingStore) Payments() billing.PaymentStore   { return billPayments{s.q} }

func (s *BillingStore) WithinTx(ctx context.Context, fn func(billing.Store) error) error {
	return runInTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(&BillingStore{db: s.db, q: tx})
	})
}

type billCustomers struct{ q queryer }

const customerColumns = `id, name, email, phone, address, created_at, updated_at`

func scanCustomer(row interface{ Scan(...any) error }) (*billing.Customer, error) {
	var (
		c       billing.Customer
		phone   sql.NullString
		address sql.NullString
	)
	err := row.Scan(&c.ID, &c.Name, &c.Email, &phone, &address, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, billing.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Phone = phone.String
	c.Address = address.String
	return &c, nil
}

func (s billCustomers) Create(ctx context.Context, c *billing.Customer) error {
	if c.ID == "" {
		c.ID = ids.New()
	}
	row := s.q.QueryRowContext(ctx, `
		insert into customers (id, name, email, phone, address)
		values ($1, $2, $3, $4, $5)
		returning created_at, updated_at
	`, c.ID, c.Name, c.Email, nullIfEmpty(c.Phone), nullIfEmpty(c.Address))
	if err := row.Scan(&c.CreatedAt, &c.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return billing.ErrConflict
		}
		return err
	}
	return nil
}

func (s billCustomers) Find(ctx context.Context, id string) (*billing.Customer, error) {
	return scanCustomer(s.q.QueryRowContext(ctx,
		`select `+customerColumns+` from customers where id = $1`, id))
}

func (s billCustomers) List(ctx context.Context) ([]*billing.Customer, error) {
	rows, err := s.q.QueryContext(ctx,
		`select `+customerColumns+` from customers order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []*billing.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s billCustomers) Update(ctx context.Context, c *billing.Customer) error {
	res, err := s.q.ExecContext(ctx, `
		update customers set name = $1, email = $2, phone = $3, address = $4, updated_at = now()
		where id = $5
	`, c.Name, c.Email, nullIfEmpty(c.Phone), nullIfEmpty(c.Address), c.ID)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return billing.ErrConflict
		}
		return err
	}
	return requireBillingAffected(res)
}

func (s billCustomers) Delete(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `delete from customers where id = $1`, id)
	if err != nil {
		return err
	}
	return requireBillingAffected(res)
}

type billInvoices struct{ q queryer }

const invoiceColumns = `id, customer_id, kind, number, currency, total, status, issued_at, due_at, created_at, updated_at`

func scanInvoice(row interface{ Scan(...any) error }) (*billing.Invoice, error) {
	var inv billing.Invoice
	err := row.Scan(&inv.ID, &inv.CustomerID, &inv.Kind, &inv.Number, &inv.Currency,
		&inv.Total, &inv.Status, &inv.IssuedAt, &inv.DueAt, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, billing.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s billInvoices) Create(ctx context.Context, inv *billing.Invoice) error {
	if inv.ID == "" {
		inv.ID = ids.New()
	}
	row := s.q.QueryRowContext(ctx, `
		insert into invoices (id, customer_id, kind, number, currency, total, status, issued_at, due_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		returning created_at, updated_at
	`, inv.ID, inv.CustomerID, inv.Kind, inv.Number, inv.Currency, inv.Total, inv.Status, inv.IssuedAt, inv.DueAt)
	if err := row.Scan(&inv.CreatedAt, &inv.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return billing.ErrConflict
			case pgErrForeignKeyViolation:
				return billing.ErrNotFound
			}
		}
		return err
	}
	return nil
}

func (s billInvoices) Find(ctx context.Context, id string) (*billing.Invoice, error) {
	return scanInvoice(s.q.QueryRowContext(ctx,
		`select `+invoiceColumns+` from invoices where id = $1`, id))
}

func (s billInvoices) List(ctx context.Context, kind, status string) ([]*billing.Invoice, error) {
	query := `select ` + invoiceColumns + ` from invoices where 1=1`
	var args []any
	if kind != "" {
		args = append(args, kind)
		query += ` and kind = $1`
	}
	if status != "" {
		args = append(args, status)
		if len(args) == 1 {
			query += ` and status = $1`
		} else {
			query += ` and status = $2`
		}
	}
	query += ` order by issued_at desc`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []*billing.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return invoices, nil
}

func (s billInvoices) SetStatus(ctx context.Context, id, status string) error {
	res, err := s.q.ExecContext(ctx,
		`update invoices set status = $1, updated_at = now() where id = $2`, status, id)
	if err != nil {
		return err
	}
	return requireBillingAffected(res)
}

type billPayments struct{ q queryer }

func (s billPayments) Create(ctx context.Context, p *billing.Payment) error {
	if p.ID == "" {
		p.ID = ids.New()
	}
	row := s.q.QueryRowContext(ctx, `
		insert into payments (id, invoice_id, amount, method, paid_at)
		values ($1, $2, $3, $4, $5)
		returning created_at
	`, p.ID, p.InvoiceID, p.Amount, p.Method, p.PaidAt)
	if err := row.Scan(&p.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return billing.ErrNotFound
		}
		return err
	}
	return nil
}

func (s billPayments) ListByInvoice(ctx context.Context, invoiceID string) ([]*billing.Payment, error) {
	rows, err := s.q.QueryContext(ctx, `
		select id, invoice_id, amount, method, paid_at, created_at
		from payments
		where invoice_id = $1
		order by paid_at
	`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*billing.Payment
	for rows.Next() {
		var p billing.Payment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Method, &p.PaidAt, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func requireBillingAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return billing.ErrNotFound
	}
	return nil
}
