package dashboard_test

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/vendorpay/apitrc"
	"github.com/vendorpay/apitrc/dashboard"
	"github.com/vendorpay/apitrc/treasury"
)

type fakeProvider struct {
	mtx            sync.Mutex
	err            error
	counterparties []treasury.Counterparty
	orders         []treasury.PaymentOrder
	accounts       []*treasury.CreateExternalAccountRequest
	paymentOrders  []*treasury.CreatePaymentOrderRequest
	deleted        []string
}

var created = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func (p *fakeProvider) ListCounterparties(ctx context.Context) ([]treasury.Counterparty, error) {
	return p.counterparties, p.err
}

func (p *fakeProvider) CreateCounterparty(ctx context.Context, req *treasury.CreateCounterpartyRequest) (*treasury.Counterparty, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &treasury.Counterparty{ID: "cp_new", Name: req.Name, Email: req.Email, Metadata: req.Metadata, CreatedAt: created}, nil
}

func (p *fakeProvider) DeleteCounterparty(ctx context.Context, id string) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.deleted = append(p.deleted, id)
	return p.err
}

func (p *fakeProvider) ListExternalAccounts(ctx context.Context, counterpartyID string) ([]treasury.ExternalAccount, error) {
	return nil, p.err
}

func (p *fakeProvider) CreateExternalAccount(ctx context.Context, req *treasury.CreateExternalAccountRequest) (*treasury.ExternalAccount, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.accounts = append(p.accounts, req)
	if p.err != nil {
		return nil, p.err
	}
	return &treasury.ExternalAccount{ID: "ea_new", CounterpartyID: req.CounterpartyID, Name: req.Name}, nil
}

func (p *fakeProvider) DeleteExternalAccount(ctx context.Context, id string) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.deleted = append(p.deleted, id)
	return p.err
}

func (p *fakeProvider) ListInternalAccounts(ctx context.Context) ([]treasury.InternalAccount, error) {
	return []treasury.InternalAccount{{ID: "ia_1", Name: "Operating"}}, p.err
}

func (p *fakeProvider) ListPaymentOrders(ctx context.Context) ([]treasury.PaymentOrder, error) {
	return p.orders, p.err
}

func (p *fakeProvider) CreatePaymentOrder(ctx context.Context, req *treasury.CreatePaymentOrderRequest) (*treasury.PaymentOrder, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.paymentOrders = append(p.paymentOrders, req)
	if p.err != nil {
		return nil, p.err
	}
	return &treasury.PaymentOrder{ID: "po_new", Amount: req.Amount, Currency: req.Currency, Status: "pending", CreatedAt: created}, nil
}

func (p *fakeProvider) GetPaymentOrder(ctx context.Context, id string) (*treasury.PaymentOrder, error) {
	if p.err != nil {
		return nil, p.err
	}
	for _, po := range p.orders {
		if po.ID == id {
			return &po, nil
		}
	}
	return nil, &treasury.Error{StatusCode: 404}
}

func serve(t *testing.T, h http.Handler, method, target, body string) (int, map[string]any) {
	t.Helper()

	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	var res map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("%s %s: decode response: %v (%q)", method, target, err, w.Body.String())
	}

	return w.Code, res
}

func TestContractors(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		counterparties: []treasury.Counterparty{
			{
				ID:       "cp_1",
				Name:     "Acme",
				Email:    "ap@acme.test",
				Metadata: map[string]string{"phone": "555-0100"},
				Accounts: []treasury.ExternalAccount{{
					ID:             "ea_1",
					Name:           "Acme Checking",
					AccountDetails: []treasury.AccountDetail{{AccountNumber: "123456789"}},
					RoutingDetails: []treasury.RoutingDetail{{RoutingNumber: "021000021"}},
				}},
				CreatedAt: created,
			},
			{ID: "cp_2", Name: "No Bank", CreatedAt: created},
		},
	}
	handler := dashboard.NewHandler(dashboard.Config{Provider: provider})

	t.Run("list", func(t *testing.T) {
		code, res := serve(t, handler, "GET", "/api/contractors", "")
		if want, have := 200, code; want != have {
			t.Fatalf("code: want %d, have %d", want, have)
		}

		want := map[string]any{
			"success": true,
			"contractors": []any{
				map[string]any{
					"id": "cp_1", "name": "Acme", "email": "ap@acme.test", "phone": "555-0100",
					"bankAccountName": "Acme Checking", "bankRoutingNumber": "021000021", "bankAccountNumber": "123456789",
					"counterpartyId": "cp_1", "externalAccountId": "ea_1", "createdAt": "2024-05-06T07:08:09Z",
				},
				map[string]any{
					"id": "cp_2", "name": "No Bank", "email": "", "phone": "",
					"bankAccountName": "", "bankRoutingNumber": "", "bankAccountNumber": "",
					"counterpartyId": "cp_2", "externalAccountId": "", "createdAt": "2024-05-06T07:08:09Z",
				},
			},
		}
		if !cmp.Equal(want, res) {
			t.Error(cmp.Diff(want, res))
		}
	})

	t.Run("create", func(t *testing.T) {
		code, res := serve(t, handler, "POST", "/api/contractors", `{"name":"Globex","email":"pay@globex.test","bankAccountName":"Globex Ops","bankRoutingNumber":"011000015","bankAccountNumber":"987654321"}`)
		if want, have := 200, code; want != have {
			t.Fatalf("code: want %d, have %d (%v)", want, have, res)
		}

		contractor, _ := res["contractor"].(map[string]any)
		if want, have := "ea_new", contractor["externalAccountId"]; want != have {
			t.Errorf("externalAccountId: want %q, have %v", want, have)
		}

		provider.mtx.Lock()
		defer provider.mtx.Unlock()

		want := &treasury.CreateExternalAccountRequest{
			CounterpartyID: "cp_new",
			Name:           "Globex Ops",
			AccountType:    "checking",
			PartyType:      "business",
			AccountDetails: []treasury.AccountDetail{{AccountNumber: "987654321"}},
			RoutingDetails: []treasury.RoutingDetail{{RoutingNumber: "011000015", RoutingNumberType: "aba", PaymentType: "ach"}},
		}
		if have := provider.accounts[len(provider.accounts)-1]; !cmp.Equal(want, have) {
			t.Error(cmp.Diff(want, have))
		}
	})

	t.Run("create missing fields", func(t *testing.T) {
		code, res := serve(t, handler, "POST", "/api/contractors", `{"name":"Globex"}`)
		if want, have := 400, code; want != have {
			t.Errorf("code: want %d, have %d", want, have)
		}
		if want, have := (map[string]any{"success": false, "error": "Missing required fields"}), res; !cmp.Equal(want, have) {
			t.Error(cmp.Diff(want, have))
		}
	})

	t.Run("delete", func(t *testing.T) {
		code, res := serve(t, handler, "DELETE", "/api/contractors?id=cp_2", "")
		if want, have := 200, code; want != have {
			t.Errorf("code: want %d, have %d", want, have)
		}
		if want, have := "Contractor deleted successfully", res["message"]; want != have {
			t.Errorf("message: want %q, have %v", want, have)
		}
	})

	t.Run("delete without id", func(t *testing.T) {
		code, res := serve(t, handler, "DELETE", "/api/contractors", "")
		if want, have := 400, code; want != have {
			t.Errorf("code: want %d, have %d", want, have)
		}
		if want, have := "Contractor ID is required", res["error"]; want != have {
			t.Errorf("error: want %q, have %v", want, have)
		}
	})
}

func TestAccounts(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{}
	handler := dashboard.NewHandler(dashboard.Config{Provider: provider})

	for _, test := range []struct {
		method, target, body string
		code                 int
		key                  string
		want                 any
	}{
		{"GET", "/api/external-accounts", "", 400, "error", "Counterparty ID is required"},
		{"GET", "/api/external-accounts?counterpartyId=cp_1", "", 200, "externalAccounts", []any{}},
		{"POST", "/api/external-accounts", `{"counterpartyId":"cp_1"}`, 400, "error", "Missing required fields"},
		{"DELETE", "/api/external-accounts", "", 400, "error", "External account ID is required"},
		{"DELETE", "/api/external-accounts?id=ea_1", "", 200, "message", "External account deleted successfully"},
		{"GET", "/api/internal-accounts", "", 200, "internalAccounts", []any{map[string]any{"id": "ia_1", "name": "Operating", "created_at": "0001-01-01T00:00:00Z"}}},
	} {
		t.Run(test.method+" "+test.target, func(t *testing.T) {
			code, res := serve(t, handler, test.method, test.target, test.body)
			if want, have := test.code, code; want != have {
				t.Errorf("code: want %d, have %d", want, have)
			}
			if want, have := test.want, res[test.key]; !cmp.Equal(want, have) {
				t.Error(cmp.Diff(want, have))
			}
		})
	}

	t.Run("create defaults", func(t *testing.T) {
		code, _ := serve(t, handler, "POST", "/api/external-accounts", `{"counterpartyId":"cp_1","accountName":"Savings","accountNumber":"1","routingNumber":"2","accountType":"savings"}`)
		if want, have := 200, code; want != have {
			t.Fatalf("code: want %d, have %d", want, have)
		}

		provider.mtx.Lock()
		defer provider.mtx.Unlock()

		req := provider.accounts[len(provider.accounts)-1]
		if want, have := "savings", req.AccountType; want != have {
			t.Errorf("AccountType: want %q, have %q", want, have)
		}
		if want, have := "business", req.PartyType; want != have {
			t.Errorf("PartyType: want %q, have %q", want, have)
		}
	})
}

func TestPayments(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		orders: []treasury.PaymentOrder{
			{ID: "po_1", Amount: 2550, Currency: "USD", Status: "pending", Metadata: map[string]string{"contractor_id": "cp_1", "contractor_name": "Acme"}, CreatedAt: created},
			{ID: "po_2", Amount: 100, Currency: "USD", Status: "completed", Metadata: map[string]string{"contractor_id": "cp_2"}, CreatedAt: created},
		},
	}
	handler := dashboard.NewHandler(dashboard.Config{Provider: provider})

	t.Run("list filtered", func(t *testing.T) {
		code, res := serve(t, handler, "GET", "/api/payments?contractorId=cp_1", "")
		if want, have := 200, code; want != have {
			t.Fatalf("code: want %d, have %d", want, have)
		}
		payments, _ := res["payments"].([]any)
		if want, have := 1, len(payments); want != have {
			t.Fatalf("payments: want %d, have %d", want, have)
		}
		if want, have := "Acme", payments[0].(map[string]any)["contractorName"]; want != have {
			t.Errorf("contractorName: want %q, have %v", want, have)
		}
	})

	valid := `{"contractorId":"cp_1","contractorName":"Acme","amount":19.99,"currency":"usd","description":"May invoice","originatingAccountId":"ia_1","receivingAccountId":"ea_1"}`

	t.Run("create", func(t *testing.T) {
		code, res := serve(t, handler, "POST", "/api/payments", valid)
		if want, have := 200, code; want != have {
			t.Fatalf("code: want %d, have %d (%v)", want, have, res)
		}

		provider.mtx.Lock()
		req := provider.paymentOrders[len(provider.paymentOrders)-1]
		provider.mtx.Unlock()

		want := &treasury.CreatePaymentOrderRequest{
			Type:                 "ach",
			Direction:            "credit",
			Amount:               1999,
			Currency:             "USD",
			OriginatingAccountID: "ia_1",
			ReceivingAccountID:   "ea_1",
			Description:          "May invoice",
			Metadata:             map[string]string{"contractor_id": "cp_1", "contractor_name": "Acme"},
		}
		if !cmp.Equal(want, req) {
			t.Error(cmp.Diff(want, req))
		}

		payment, _ := res["payment"].(map[string]any)
		if want, have := float64(1999), payment["amount"]; want != have {
			t.Errorf("amount: want %v, have %v", want, have)
		}
		if want, have := "May invoice", payment["description"]; want != have {
			t.Errorf("description: want %q, have %v", want, have)
		}
	})

	for _, test := range []struct {
		name string
		body string
		want string
	}{
		{"missing fields", `{"contractorId":"cp_1"}`, "Missing required fields"},
		{"zero amount", `{"contractorId":"cp_1","contractorName":"Acme","amount":0,"currency":"USD","description":"x"}`, "Missing required fields"},
		{"negative amount", `{"contractorId":"cp_1","contractorName":"Acme","amount":-5,"currency":"USD","description":"x"}`, "Amount must be greater than 0"},
		{"missing accounts", `{"contractorId":"cp_1","contractorName":"Acme","amount":5,"currency":"USD","description":"x"}`, "Originating and receiving account IDs are required"},
	} {
		t.Run(test.name, func(t *testing.T) {
			code, res := serve(t, handler, "POST", "/api/payments", test.body)
			if want, have := 400, code; want != have {
				t.Errorf("code: want %d, have %d", want, have)
			}
			if want, have := test.want, res["error"]; want != have {
				t.Errorf("error: want %q, have %v", want, have)
			}
		})
	}

	t.Run("refresh", func(t *testing.T) {
		code, res := serve(t, handler, "PATCH", "/api/payments", `{"paymentId":"po_2"}`)
		if want, have := 200, code; want != have {
			t.Fatalf("code: want %d, have %d", want, have)
		}
		payment, _ := res["payment"].(map[string]any)
		if want, have := "completed", payment["status"]; want != have {
			t.Errorf("status: want %q, have %v", want, have)
		}
	})

	t.Run("refresh missing", func(t *testing.T) {
		code, res := serve(t, handler, "PATCH", "/api/payments", `{"paymentId":"po_missing"}`)
		if want, have := 500, code; want != have {
			t.Errorf("code: want %d, have %d", want, have)
		}
		if want, have := "Failed to update payment", res["error"]; want != have {
			t.Errorf("error: want %q, have %v", want, have)
		}
	})
}

func TestProviderFailure(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{err: errors.New("upstream unavailable")}
	handler := dashboard.NewHandler(dashboard.Config{Provider: provider})

	for target, want := range map[string]string{
		"/api/contractors":       "Failed to fetch contractors",
		"/api/internal-accounts": "Failed to fetch internal accounts",
		"/api/payments":          "Failed to fetch payments",
	} {
		code, res := serve(t, handler, "GET", target, "")
		if code != 500 {
			t.Errorf("%s: code: want 500, have %d", target, code)
		}
		if have := res["error"]; want != have {
			t.Errorf("%s: error: want %q, have %v", target, want, have)
		}
	}

	code, res := serve(t, handler, "POST", "/api/payments", `{"contractorId":"cp_1","contractorName":"Acme","amount":5,"currency":"USD","description":"x","originatingAccountId":"ia_1","receivingAccountId":"ea_1"}`)
	if code != 500 {
		t.Errorf("code: want 500, have %d", code)
	}
	if want, have := "Failed to create payment: upstream unavailable", res["error"]; want != have {
		t.Errorf("error: want %q, have %v", want, have)
	}
}

// TestTrackedCalls runs the dashboard against a fake provider API, via the
// real provider client, and checks the calls attached to the response.
func TestTrackedCalls(t *testing.T) {
	t.Parallel()

	api := http.NewServeMux()
	api.HandleFunc("POST /api/counterparties", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"cp_9","name":"Initech","email":"ap@initech.test","created_at":"2024-05-06T07:08:09Z"}`))
	})
	api.HandleFunc("POST /api/external_accounts", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"errors":{"code":"parameter_invalid","message":"Routing number is invalid","parameter":"routing_number"}}`))
	})

	server := httptest.NewServer(api)
	defer server.Close()

	addr := server.Listener.Addr().String()
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		},
	}
	defer transport.CloseIdleConnections()

	client, err := treasury.NewClient(treasury.Config{
		BaseURL:        "http://app.moderntreasury.test",
		OrganizationID: "org",
		APIKey:         "key",
		HTTPClient:     &http.Client{Transport: apitrc.NewTransport(transport)},
	})
	if err != nil {
		t.Fatal(err)
	}

	handler := dashboard.NewHandler(dashboard.Config{Provider: client})

	r := httptest.NewRequest("POST", "/api/contractors", strings.NewReader(`{"name":"Initech","email":"ap@initech.test","bankAccountName":"Ops","bankRoutingNumber":"000","bankAccountNumber":"111"}`))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if want, have := 500, w.Code; want != have {
		t.Errorf("code: want %d, have %d", want, have)
	}

	var calls []apitrc.Call
	if err := json.Unmarshal([]byte(w.Header().Get(apitrc.HeaderName)), &calls); err != nil {
		t.Fatalf("decode %s: %v", apitrc.HeaderName, err)
	}

	var have []string
	for _, c := range calls {
		have = append(have, c.Method+" "+c.URL+" "+http.StatusText(c.Status))
	}
	want := []string{
		"POST http://app.moderntreasury.test/api/counterparties OK",
		"POST http://app.moderntreasury.test/api/external_accounts Unprocessable Entity",
	}
	if !cmp.Equal(want, have) {
		t.Fatal(cmp.Diff(want, have))
	}

	if want, have := apitrc.Mask, calls[0].RequestHeaders["authorization"]; want != have {
		t.Errorf("authorization: want %q, have %q", want, have)
	}
	if body, _ := calls[1].ResponseBody.(map[string]any); body == nil {
		t.Errorf("error response body: want decoded JSON, have %v", calls[1].ResponseBody)
	}
}
