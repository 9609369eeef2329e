package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                              "/",
		"/metrics":                      "/metrics",
		"/v1/roles/01ABC":               "/v1/roles/:id",
		"/v1/roles/01ABC/permissions":   "/v1/roles/:id/permissions",
		"/v1/users/01ABC/force-logout":  "/v1/users/:id/force-logout",
		"/v1/invoices/01ABC?expand=yes": "/v1/invoices/:id",
		"/v1/role-requests/01ABC":       "/v1/role-requests/:id",
		"/v1/auth/login":                "/v1/auth/login",
		"/v1/customers":                 "/v1/customers",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
