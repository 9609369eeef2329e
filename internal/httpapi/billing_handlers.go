package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"tallybooks.org/internal/auth"
)

type createCustomerRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type createInvoiceRequest struct {
	CustomerID string `json:"customer_id"`
	Kind       string `json:"kind"`
	Number     string `json:"number"`
	Currency   string `json:"currency"`
	Total      int64  `json:"total"`
	DueAt      string `json:"due_at"`
}

type recordPaymentRequest struct {
	Amount int64  `json:"amount"`
	Method string `json:"method"`
	PaidAt string `json:"paid_at"`
}

func (a *API) handleCustomersCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.requirePermission(w, r, auth.PermCustomersRead) {
			return
		}
		customers, err := a.billing.ListCustomers(r.Context())
		if err != nil {
			handleBillingError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": customers})
	case http.MethodPost:
		if !a.requirePermission(w, r, auth.PermCustomersWrite) {
			return
		}
		var req createCustomerRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		customer, err := a.billing.CreateCustomer(r.Context(), req.Name, req.Email, req.Phone, req.Address)
		if err != nil {
			handleBillingError(w, r, err)
			return
		}
		a.audit(r.Context(), "billing.customer.create", "customer", customer.ID, map[string]string{
			"email": customer.Email,
		})
		w.Header().Set("Location", "/v1/customers/"+customer.ID)
		writeJSON(w, http.StatusCreated, customer)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleCustomerResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/customers/"), "/")
	if path == "" || strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requirePermission(w, r, auth.PermCustomersRead) {
		return
	}
	customer, err := a.billing.GetCustomer(r.Context(), path)
	if err != nil {
		handleBillingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

func (a *API) handleInvoicesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.requirePermission(w, r, auth.PermInvoicesRead) {
			return
		}
		kind := strings.TrimSpace(r.URL.Query().Get("kind"))
		status := strings.TrimSpace(r.URL.Query().Get("status"))
		invoices, err := a.billing.ListInvoices(r.Context(), kind, status)
		if err != nil {
			handleBillingError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": invoices})
	case http.MethodPost:
		if !a.requirePermission(w, r, auth.PermInvoicesWrite) {
			return
		}
		var req createInvoiceRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		var dueAt time.Time
		if s := strings.TrimSpace(req.DueAt); s != "" {
			parsed, err := time.Parse(time.RFC3339, s)
			if err != nil {
				writeError(w, r, http.StatusBadRequest, "due_at must be RFC3339")
				return
			}
			dueAt = parsed
		}
		invoice, err := a.billing.CreateInvoice(r.Context(), req.CustomerID, req.Kind, req.Number, req.Currency, req.Total, dueAt)
		if err != nil {
			handleBillingError(w, r, err)
			return
		}
		a.audit(r.Context(), "billing.invoice.create", "invoice", invoice.ID, map[string]string{
			"number": invoice.Number,
			"kind":   invoice.Kind,
			"total":  strconv.FormatInt(invoice.Total, 10),
		})
		w.Header().Set("Location", "/v1/invoices/"+invoice.ID)
		writeJSON(w, http.StatusCreated, invoice)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleInvoiceResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/invoices/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	invoiceID := parts[0]

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		if !a.requirePermission(w, r, auth.PermInvoicesRead) {
			return
		}
		invoice, err := a.billing.GetInvoice(r.Context(), invoiceID)
		if err != nil {
			handleBillingError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, invoice)
	case len(parts) == 2 && parts[1] == "send":
		a.sendInvoice(w, r, invoiceID)
	case len(parts) == 2 && parts[1] == "void":
		a.voidInvoice(w, r, invoiceID)
	case len(parts) == 2 && parts[1] == "payments":
		a.handleInvoicePayments(w, r, invoiceID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) sendInvoice(w http.ResponseWriter, r *http.Request, invoiceID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requirePermission(w, r, auth.PermInvoicesWrite) {
		return
	}
	invoice, err := a.billing.SendInvoice(r.Context(), invoiceID)
	if err != nil {
		handleBillingError(w, r, err)
		return
	}
	a.audit(r.Context(), "billing.invoice.send", "invoice", invoiceID, nil)
	writeJSON(w, http.StatusOK, invoice)
}

func (a *API) voidInvoice(w http.ResponseWriter, r *http.Request, invoiceID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requirePermission(w, r, auth.PermInvoicesWrite) {
		return
	}
	invoice, err := a.billing.VoidInvoice(r.Context(), invoiceID)
	if err != nil {
		handleBillingError(w, r, err)
		return
	}
	a.audit(r.Context(), "billing.invoice.void", "invoice", invoiceID, nil)
	writeJSON(w, http.StatusOK, invoice)
}

func (a *API) handleInvoicePayments(w http.ResponseWriter, r *http.Request, invoiceID string) {
	switch r.Method {
	case http.MethodGet:
		if !a.requirePermission(w, r, auth.PermPaymentsRead) {
			return
		}
		payments, err := a.billing.ListPayments(r.Context(), invoiceID)
		if err != nil {
			handleBillingError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": payments})
	case http.MethodPost:
		if !a.requirePermission(w, r, auth.PermPaymentsWrite) {
			return
		}
		var req recordPaymentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		paidAt := time.Now().UTC()
		if s := strings.TrimSpace(req.PaidAt); s != "" {
			parsed, err := time.Parse(time.RFC3339, s)
			if err != nil {
				writeError(w, r, http.StatusBadRequest, "paid_at must be RFC3339")
				return
			}
			paidAt = parsed
		}
		payment, err := a.billing.RecordPayment(r.Context(), invoiceID, req.Method, req.Amount, paidAt)
		if err != nil {
			handleBillingError(w, r, err)
			return
		}
		a.audit(r.Context(), "billing.payment.record", "payment", payment.ID, map[string]string{
			"invoice_id": invoiceID,
			"amount":     strconv.FormatInt(payment.Amount, 10),
		})
		writeJSON(w, http.StatusCreated, payment)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}
