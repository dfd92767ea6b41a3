// Package dashboard serves the JSON API behind the vendor payment dashboard.
// Every route is backed by calls to the payment provider, and is wrapped by
// call tracking middleware, so responses carry the calls made to serve them.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strings"

	"github.com/vendorpay/apitrc"
	"github.com/vendorpay/apitrc/treasury"
)

// Provider is the subset of the payment provider API used by the dashboard.
// It's implemented by treasury.Client.
type Provider interface {
	ListCounterparties(ctx context.Context) ([]treasury.Counterparty, error)
	CreateCounterparty(ctx context.Context, req *treasury.CreateCounterpartyRequest) (*treasury.Counterparty, error)
	DeleteCounterparty(ctx context.Context, id string) error
	ListExternalAccounts(ctx context.Context, counterpartyID string) ([]treasury.ExternalAccount, error)
	CreateExternalAccount(ctx context.Context, req *treasury.CreateExternalAccountRequest) (*treasury.ExternalAccount, error)
	DeleteExternalAccount(ctx context.Context, id string) error
	ListInternalAccounts(ctx context.Context) ([]treasury.InternalAccount, error)
	ListPaymentOrders(ctx context.Context) ([]treasury.PaymentOrder, error)
	CreatePaymentOrder(ctx context.Context, req *treasury.CreatePaymentOrderRequest) (*treasury.PaymentOrder, error)
	GetPaymentOrder(ctx context.Context, id string) (*treasury.PaymentOrder, error)
}

var _ Provider = (*treasury.Client)(nil)

// Config for a handler.
type Config struct {
	// Provider serves every request. Required.
	Provider Provider

	// Middleware wraps every route. Optional, default apitrc.Track.
	Middleware func(http.Handler) http.Handler

	// ErrorLog receives provider errors, which aren't exposed to clients.
	// Optional, default discards.
	ErrorLog *log.Logger
}

type handler struct {
	provider Provider
	errorLog *log.Logger
}

const maxRequestBodySizeBytes = 1 * 1024 * 1024 // 1MB

// NewHandler returns a handler serving the dashboard API under /api/.
func NewHandler(cfg Config) http.Handler {
	if cfg.Middleware == nil {
		cfg.Middleware = apitrc.Track
	}

	if cfg.ErrorLog == nil {
		cfg.ErrorLog = log.New(io.Discard, "", 0)
	}

	h := &handler{
		provider: cfg.Provider,
		errorLog: cfg.ErrorLog,
	}

	mux := http.NewServeMux()
	for pattern, fn := range map[string]http.HandlerFunc{
		"GET /api/contractors":          h.listContractors,
		"POST /api/contractors":         h.createContractor,
		"DELETE /api/contractors":       h.deleteContractor,
		"GET /api/external-accounts":    h.listExternalAccounts,
		"POST /api/external-accounts":   h.createExternalAccount,
		"DELETE /api/external-accounts": h.deleteExternalAccount,
		"GET /api/internal-accounts":    h.listInternalAccounts,
		"GET /api/payments":             h.listPayments,
		"POST /api/payments":            h.createPayment,
		"PATCH /api/payments":           h.refreshPayment,
	} {
		mux.Handle(pattern, cfg.Middleware(fn))
	}

	return mux
}

//
//
//

func (h *handler) listContractors(w http.ResponseWriter, r *http.Request) {
	counterparties, err := h.provider.ListCounterparties(r.Context())
	if err != nil {
		h.fail(w, "fetching contractors", err, "Failed to fetch contractors")
		return
	}

	contractors := make([]Contractor, 0, len(counterparties))
	for _, cp := range counterparties {
		contractors = append(contractors, contractorFromCounterparty(cp))
	}

	respondSuccess(w, "contractors", contractors)
}

type createContractorRequest struct {
	Name              string `json:"name"`
	Email             string `json:"email"`
	Phone             string `json:"phone"`
	BankAccountName   string `json:"bankAccountName"`
	BankRoutingNumber string `json:"bankRoutingNumber"`
	BankAccountNumber string `json:"bankAccountNumber"`
}

func (h *handler) createContractor(w http.ResponseWriter, r *http.Request) {
	var req createContractorRequest
	if err := decodeRequest(w, r, &req); err != nil {
		h.fail(w, "creating contractor", err, "Failed to create contractor")
		return
	}

	if req.Name == "" || req.Email == "" || req.BankAccountName == "" || req.BankRoutingNumber == "" || req.BankAccountNumber == "" {
		respondFailure(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	ctx := r.Context()

	counterparty, err := h.provider.CreateCounterparty(ctx, &treasury.CreateCounterpartyRequest{
		Name:       req.Name,
		Email:      req.Email,
		Accounting: &treasury.Accounting{Type: "vendor"},
		Metadata:   map[string]string{"phone": req.Phone},
	})
	if err != nil {
		h.fail(w, "creating contractor", err, "Failed to create contractor")
		return
	}

	account, err := h.provider.CreateExternalAccount(ctx, bankAccountRequest(counterparty.ID, req.BankAccountName, "", "", req.BankAccountNumber, req.BankRoutingNumber))
	if err != nil {
		h.fail(w, "creating contractor", err, "Failed to create contractor")
		return
	}

	respondSuccess(w, "contractor", Contractor{
		ID:                counterparty.ID,
		Name:              counterparty.Name,
		Email:             counterparty.Email,
		Phone:             req.Phone,
		BankAccountName:   req.BankAccountName,
		BankRoutingNumber: req.BankRoutingNumber,
		BankAccountNumber: req.BankAccountNumber,
		CounterpartyID:    counterparty.ID,
		ExternalAccountID: account.ID,
		CreatedAt:         counterparty.CreatedAt,
	})
}

func (h *handler) deleteContractor(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		respondFailure(w, http.StatusBadRequest, "Contractor ID is required")
		return
	}

	if err := h.provider.DeleteCounterparty(r.Context(), id); err != nil {
		h.fail(w, "deleting contractor", err, "Failed to delete contractor")
		return
	}

	respondSuccess(w, "message", "Contractor deleted successfully")
}

//
//
//

func (h *handler) listExternalAccounts(w http.ResponseWriter, r *http.Request) {
	counterpartyID := r.URL.Query().Get("counterpartyId")
	if counterpartyID == "" {
		respondFailure(w, http.StatusBadRequest, "Counterparty ID is required")
		return
	}

	accounts, err := h.provider.ListExternalAccounts(r.Context(), counterpartyID)
	if err != nil {
		h.fail(w, "fetching external accounts", err, "Failed to fetch external accounts")
		return
	}

	respondSuccess(w, "externalAccounts", nonNil(accounts))
}

type createExternalAccountRequest struct {
	CounterpartyID string `json:"counterpartyId"`
	AccountName    string `json:"accountName"`
	AccountNumber  string `json:"accountNumber"`
	RoutingNumber  string `json:"routingNumber"`
	AccountType    string `json:"accountType"`
	PartyType      string `json:"partyType"`
}

func (h *handler) createExternalAccount(w http.ResponseWriter, r *http.Request) {
	var req createExternalAccountRequest
	if err := decodeRequest(w, r, &req); err != nil {
		h.fail(w, "creating external account", err, "Failed to create external account")
		return
	}

	if req.CounterpartyID == "" || req.AccountName == "" || req.AccountNumber == "" || req.RoutingNumber == "" {
		respondFailure(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	account, err := h.provider.CreateExternalAccount(r.Context(), bankAccountRequest(req.CounterpartyID, req.AccountName, req.AccountType, req.PartyType, req.AccountNumber, req.RoutingNumber))
	if err != nil {
		h.fail(w, "creating external account", err, "Failed to create external account")
		return
	}

	respondSuccess(w, "externalAccount", account)
}

func (h *handler) deleteExternalAccount(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		respondFailure(w, http.StatusBadRequest, "External account ID is required")
		return
	}

	if err := h.provider.DeleteExternalAccount(r.Context(), id); err != nil {
		h.fail(w, "deleting external account", err, "Failed to delete external account")
		return
	}

	respondSuccess(w, "message", "External account deleted successfully")
}

func (h *handler) listInternalAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.provider.ListInternalAccounts(r.Context())
	if err != nil {
		h.fail(w, "fetching internal accounts", err, "Failed to fetch internal accounts")
		return
	}

	respondSuccess(w, "internalAccounts", nonNil(accounts))
}

//
//
//

func (h *handler) listPayments(w http.ResponseWriter, r *http.Request) {
	orders, err := h.provider.ListPaymentOrders(r.Context())
	if err != nil {
		h.fail(w, "fetching payments", err, "Failed to fetch payments")
		return
	}

	contractorID := r.URL.Query().Get("contractorId")

	payments := make([]Payment, 0, len(orders))
	for _, po := range orders {
		p := paymentFromOrder(po)
		if contractorID != "" && p.ContractorID != contractorID {
			continue
		}
		payments = append(payments, p)
	}

	respondSuccess(w, "payments", payments)
}

type createPaymentRequest struct {
	ContractorID         string  `json:"contractorId"`
	ContractorName       string  `json:"contractorName"`
	Amount               float64 `json:"amount"`
	Currency             string  `json:"currency"`
	Description          string  `json:"description"`
	OriginatingAccountID string  `json:"originatingAccountId"`
	ReceivingAccountID   string  `json:"receivingAccountId"`
}

func (h *handler) createPayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := decodeRequest(w, r, &req); err != nil {
		h.fail(w, "creating payment", err, fmt.Sprintf("Failed to create payment: %v", err))
		return
	}

	if req.ContractorID == "" || req.ContractorName == "" || req.Amount == 0 || req.Currency == "" || req.Description == "" {
		respondFailure(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	if req.Amount <= 0 {
		respondFailure(w, http.StatusBadRequest, "Amount must be greater than 0")
		return
	}

	if req.OriginatingAccountID == "" || req.ReceivingAccountID == "" {
		respondFailure(w, http.StatusBadRequest, "Originating and receiving account IDs are required")
		return
	}

	cents := int64(math.Round(req.Amount * 100))

	order, err := h.provider.CreatePaymentOrder(r.Context(), &treasury.CreatePaymentOrderRequest{
		Type:                 "ach",
		Direction:            "credit",
		Amount:               cents,
		Currency:             strings.ToUpper(req.Currency),
		OriginatingAccountID: req.OriginatingAccountID,
		ReceivingAccountID:   req.ReceivingAccountID,
		Description:          req.Description,
		Metadata: map[string]string{
			"contractor_id":   req.ContractorID,
			"contractor_name": req.ContractorName,
		},
	})
	if err != nil {
		h.fail(w, "creating payment", err, fmt.Sprintf("Failed to create payment: %v", err))
		return
	}

	description := order.Description
	if description == "" {
		description = req.Description
	}

	respondSuccess(w, "payment", Payment{
		ID:                   order.ID,
		ContractorID:         req.ContractorID,
		ContractorName:       req.ContractorName,
		Amount:               cents,
		Currency:             order.Currency,
		Status:               order.Status,
		Description:          description,
		PaymentOrderID:       order.ID,
		CreatedAt:            order.CreatedAt,
		OriginatingAccountID: req.OriginatingAccountID,
		ReceivingAccountID:   req.ReceivingAccountID,
	})
}

func (h *handler) refreshPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PaymentID string `json:"paymentId"`
	}
	if err := decodeRequest(w, r, &req); err != nil {
		h.fail(w, "updating payment", err, "Failed to update payment")
		return
	}

	if req.PaymentID == "" {
		respondFailure(w, http.StatusBadRequest, "Payment ID is required")
		return
	}

	order, err := h.provider.GetPaymentOrder(r.Context(), req.PaymentID)
	if err != nil {
		h.fail(w, "updating payment", err, "Failed to update payment")
		return
	}

	respondSuccess(w, "payment", paymentFromOrder(*order))
}

//
//
//

func (h *handler) fail(w http.ResponseWriter, action string, err error, message string) {
	h.errorLog.Printf("error %s: %v", action, err)
	respondFailure(w, http.StatusInternalServerError, message)
}

func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxRequestBodySizeBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func respondSuccess(w http.ResponseWriter, key string, val any) {
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		key:       val,
	})
}

func respondFailure(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, map[string]any{
		"success": false,
		"error":   message,
	})
}

func respondJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
