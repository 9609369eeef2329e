package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"tallybooks.org/internal/auth"
	"tallybooks.org/internal/billing"
)

func newMockAuthStore(t *testing.T) (*AuthStore, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	return &AuthStore{db: db, q: db}, mock, func() { db.Close() }
}

func TestUsersCreateMapsUniqueViolation(t *testing.T) {
	store, mock, done := newMockAuthStore(t)
	defer done()

	mock.ExpectQuery("insert into users").
		WithArgs(sqlmock.AnyArg(), "Ada", "ada@example.com", sqlmock.AnyArg(), "customer", sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	err := store.Users().Create(context.Background(), &auth.User{
		Name:         "Ada",
		Email:        "ada@example.com",
		PasswordHash: "x",
		Role:         "customer",
	})
	if !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUsersFindScansSnapshot(t *testing.T) {
	store, mock, done := newMockAuthStore(t)
	defer done()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "name", "email", "password_hash", "role", "permissions",
		"token_version", "mfa_enabled", "mfa_secret", "mfa_backup_codes",
		"created_at", "updated_at",
	}).AddRow("u1", "Ada", "ada@example.com", "hash", "manager",
		[]byte(`["invoices.read","invoices.write"]`), int64(3), false, nil, []byte(`[]`), now, now)

	mock.ExpectQuery("select id, name, email, password_hash, role, permissions.*from users where id").
		WithArgs("u1").WillReturnRows(rows)

	u, err := store.Users().Find(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if u.TokenVersion != 3 {
		t.Fatalf("unexpected token version: %d", u.TokenVersion)
	}
	if len(u.Permissions) != 2 || u.Permissions[0] != auth.PermInvoicesRead {
		t.Fatalf("snapshot not decoded: %v", u.Permissions)
	}
}

func TestUsersBumpTokenVersion(t *testing.T) {
	store, mock, done := newMockAuthStore(t)
	defer done()

	mock.ExpectQuery("update users set token_version = token_version").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"token_version"}).AddRow(int64(4)))

	v, err := store.Users().BumpTokenVersion(context.Background(), "u1")
	if err != nil {
		t.Fatalf("BumpTokenVersion: %v", err)
	}
	if v != 4 {
		t.Fatalf("expected version 4, got %d", v)
	}

	mock.ExpectQuery("update users set token_version = token_version").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"token_version"}))

	if _, err := store.Users().BumpTokenVersion(context.Background(), "missing"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUsersSyncRolePermissionsReturnsAffected(t *testing.T) {
	store, mock, done := newMockAuthStore(t)
	defer done()

	mock.ExpectQuery("update users set permissions").
		WithArgs(sqlmock.AnyArg(), "manager").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("u1").AddRow("u2"))

	ids, err := store.Users().SyncRolePermissions(context.Background(), "manager", []auth.Permission{auth.PermInvoicesRead})
	if err != nil {
		t.Fatalf("SyncRolePermissions: %v", err)
	}
	if len(ids) != 2 || ids[0] != "u1" || ids[1] != "u2" {
		t.Fatalf("unexpected affected ids: %v", ids)
	}
}

func TestHierarchyAddEdgeErrorMapping(t *testing.T) {
	store, mock, done := newMockAuthStore(t)
	defer done()

	mock.ExpectQuery("insert into role_hierarchies").
		WithArgs(sqlmock.AnyArg(), "parent", "child").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})
	if _, err := store.Hierarchy().AddEdge(context.Background(), "parent", "child"); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate edge, got %v", err)
	}

	mock.ExpectQuery("insert into role_hierarchies").
		WithArgs(sqlmock.AnyArg(), "ghost", "child").
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})
	if _, err := store.Hierarchy().AddEdge(context.Background(), "ghost", "child"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on unknown role, got %v", err)
	}
}

func TestBlacklistRevokeAndCheck(t *testing.T) {
	store, mock, done := newMockAuthStore(t)
	defer done()

	exp := time.Now().Add(time.Hour)

	mock.ExpectExec("delete from token_blacklists where expires_at").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("insert into token_blacklists").
		WithArgs("jti-1", exp).
		WillReturnResult(sqlmock.NewResult(1, 1))
	if err := store.Blacklist().Revoke(context.Background(), "jti-1", exp); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	mock.ExpectExec("delete from token_blacklists where expires_at").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("insert into token_blacklists").
		WithArgs("jti-1", exp).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})
	if err := store.Blacklist().Revoke(context.Background(), "jti-1", exp); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict on double revoke, got %v", err)
	}

	mock.ExpectQuery("select 1 from token_blacklists").
		WithArgs("jti-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	revoked, err := store.Blacklist().IsRevoked(context.Background(), "jti-1")
	if err != nil || !revoked {
		t.Fatalf("expected revoked=true, got %v, %v", revoked, err)
	}

	mock.ExpectQuery("select 1 from token_blacklists").
		WithArgs("jti-2").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	revoked, err = store.Blacklist().IsRevoked(context.Background(), "jti-2")
	if err != nil || revoked {
		t.Fatalf("expected revoked=false, got %v, %v", revoked, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthWithinTxCommitsAndRollsBack(t *testing.T) {
	store, mock, done := newMockAuthStore(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("update users set role").
		WithArgs("manager", sqlmock.AnyArg(), "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.WithinTx(context.Background(), func(tx auth.Store) error {
		return tx.Users().SetRole(context.Background(), "u1", "manager", nil)
	})
	if err != nil {
		t.Fatalf("WithinTx commit: %v", err)
	}

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()
	err = store.WithinTx(context.Background(), func(auth.Store) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBillingRecordPaymentTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := &BillingStore{db: db, q: db}

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("insert into payments").
		WithArgs(sqlmock.AnyArg(), "inv1", int64(5000), "card", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))
	mock.ExpectExec("update invoices set status").
		WithArgs(billing.StatusPaid, "inv1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = store.WithinTx(context.Background(), func(tx billing.Store) error {
		p := &billing.Payment{InvoiceID: "inv1", Amount: 5000, Method: "card", PaidAt: now}
		if err := tx.Payments().Create(context.Background(), p); err != nil {
			return err
		}
		return tx.Invoices().SetStatus(context.Background(), "inv1", billing.StatusPaid)
	})
	if err != nil {
		t.Fatalf("WithinTx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBillingInvoiceCreateConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := &BillingStore{db: db, q: db}

	mock.ExpectQuery("insert into invoices").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	inv := &billing.Invoice{
		CustomerID: "c1", Kind: billing.KindSale, Number: "INV-001",
		Currency: "USD", Total: 100, Status: billing.StatusDraft,
		IssuedAt: time.Now(), DueAt: time.Now().AddDate(0, 0, 30),
	}
	if err := store.Invoices().Create(context.Background(), inv); !errors.Is(err, billing.ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate number, got %v", err)
	}
}
