// Package treasury is a client for the subset of the Modern Treasury API used
// by the vendor payment dashboard.
package treasury

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/vendorpay/apitrc"
)

// DefaultBaseURL serves both sandbox and production organizations. The
// environment is determined by the API key.
const DefaultBaseURL = "https://app.moderntreasury.com"

const (
	defaultPageSize = 100
	maxErrorBody    = 64 * 1024
)

// Config for a client.
type Config struct {
	// BaseURL of the API. Optional, default DefaultBaseURL.
	BaseURL string

	// OrganizationID and APIKey are the basic auth credentials. Required.
	OrganizationID string
	APIKey         string

	// HTTPClient makes requests, unless Fetch is set. Optional, default
	// http.DefaultClient.
	HTTPClient *http.Client

	// Fetch, if set, makes requests instead of HTTPClient.
	Fetch apitrc.FetchFunc
}

// Client for the Modern Treasury API. Every request is made with the context
// passed to the method, so calls are recorded to any scope it contains.
type Client struct {
	baseURL       string
	authorization string
	httpClient    *http.Client
	fetch         apitrc.FetchFunc
}

// NewClient returns a client for the API described by the config.
func NewClient(cfg Config) (*Client, error) {
	if cfg.OrganizationID == "" {
		return nil, fmt.Errorf("organization ID is required")
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}

	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}

	credentials := cfg.OrganizationID + ":" + cfg.APIKey

	return &Client{
		baseURL:       strings.TrimSuffix(cfg.BaseURL, "/"),
		authorization: "Basic " + base64.StdEncoding.EncodeToString([]byte(credentials)),
		httpClient:    cfg.HTTPClient,
		fetch:         cfg.Fetch,
	}, nil
}

// ListCounterparties returns the first page of counterparties.
func (c *Client) ListCounterparties(ctx context.Context) ([]Counterparty, error) {
	var res []Counterparty
	if err := c.do(ctx, "GET", "/api/counterparties", pageQuery(nil), nil, &res); err != nil {
		return nil, fmt.Errorf("list counterparties: %w", err)
	}
	return res, nil
}

// CreateCounterparty creates a counterparty.
func (c *Client) CreateCounterparty(ctx context.Context, req *CreateCounterpartyRequest) (*Counterparty, error) {
	var res Counterparty
	if err := c.do(ctx, "POST", "/api/counterparties", nil, req, &res); err != nil {
		return nil, fmt.Errorf("create counterparty: %w", err)
	}
	return &res, nil
}

// DeleteCounterparty deletes the counterparty with the given ID.
func (c *Client) DeleteCounterparty(ctx context.Context, id string) error {
	if err := c.do(ctx, "DELETE", "/api/counterparties/"+url.PathEscape(id), nil, nil, nil); err != nil {
		return fmt.Errorf("delete counterparty: %w", err)
	}
	return nil
}

// ListExternalAccounts returns the first page of external accounts belonging
// to the counterparty.
func (c *Client) ListExternalAccounts(ctx context.Context, counterpartyID string) ([]ExternalAccount, error) {
	query := pageQuery(url.Values{"counterparty_id": {counterpartyID}})

	var res []ExternalAccount
	if err := c.do(ctx, "GET", "/api/external_accounts", query, nil, &res); err != nil {
		return nil, fmt.Errorf("list external accounts: %w", err)
	}
	return res, nil
}

// CreateExternalAccount creates an external account for a counterparty.
func (c *Client) CreateExternalAccount(ctx context.Context, req *CreateExternalAccountRequest) (*ExternalAccount, error) {
	var res ExternalAccount
	if err := c.do(ctx, "POST", "/api/external_accounts", nil, req, &res); err != nil {
		return nil, fmt.Errorf("create external account: %w", err)
	}
	return &res, nil
}

// DeleteExternalAccount deletes the external account with the given ID.
func (c *Client) DeleteExternalAccount(ctx context.Context, id string) error {
	if err := c.do(ctx, "DELETE", "/api/external_accounts/"+url.PathEscape(id), nil, nil, nil); err != nil {
		return fmt.Errorf("delete external account: %w", err)
	}
	return nil
}

// ListInternalAccounts returns the first page of internal accounts which can
// originate ACH payments.
func (c *Client) ListInternalAccounts(ctx context.Context) ([]InternalAccount, error) {
	query := pageQuery(url.Values{"payment_type": {"ach"}})

	var res []InternalAccount
	if err := c.do(ctx, "GET", "/api/internal_accounts", query, nil, &res); err != nil {
		return nil, fmt.Errorf("list internal accounts: %w", err)
	}
	return res, nil
}

// ListPaymentOrders returns the first page of payment orders.
func (c *Client) ListPaymentOrders(ctx context.Context) ([]PaymentOrder, error) {
	var res []PaymentOrder
	if err := c.do(ctx, "GET", "/api/payment_orders", pageQuery(nil), nil, &res); err != nil {
		return nil, fmt.Errorf("list payment orders: %w", err)
	}
	return res, nil
}

// CreatePaymentOrder creates a payment order.
func (c *Client) CreatePaymentOrder(ctx context.Context, req *CreatePaymentOrderRequest) (*PaymentOrder, error) {
	var res PaymentOrder
	if err := c.do(ctx, "POST", "/api/payment_orders", nil, req, &res); err != nil {
		return nil, fmt.Errorf("create payment order: %w", err)
	}
	return &res, nil
}

// GetPaymentOrder returns the payment order with the given ID.
func (c *Client) GetPaymentOrder(ctx context.Context, id string) (*PaymentOrder, error) {
	var res PaymentOrder
	if err := c.do(ctx, "GET", "/api/payment_orders/"+url.PathEscape(id), nil, nil, &res); err != nil {
		return nil, fmt.Errorf("get payment order: %w", err)
	}
	return &res, nil
}

//
//
//

func pageQuery(query url.Values) url.Values {
	if query == nil {
		query = url.Values{}
	}
	query.Set("per_page", strconv.Itoa(defaultPageSize))
	return query
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	uri := c.baseURL + path
	if len(query) > 0 {
		uri += "?" + query.Encode()
	}

	var body []byte
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = data
	}

	resp, err := c.send(ctx, method, uri, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return newError(resp.StatusCode, data)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	// Drain the body, so the call is finished and the connection is reused.
	io.Copy(io.Discard, resp.Body)

	return nil
}

func (c *Client) send(ctx context.Context, method, uri string, body []byte) (*http.Response, error) {
	if c.fetch != nil {
		headers := map[string]string{
			"Authorization": c.authorization,
			"Accept":        "application/json",
		}
		init := &apitrc.FetchInit{Method: method, Headers: headers}
		if body != nil {
			headers["Content-Type"] = "application/json"
			init.Body = string(body)
		}
		resp, err := c.fetch(ctx, uri, init)
		if err != nil {
			return nil, fmt.Errorf("fetch: %w", err)
		}
		return resp, nil
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, uri, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", c.authorization)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}

	return resp, nil
}

// IsNotFound returns true if the error is an API error with status 404.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.StatusCode == http.StatusNotFound
}
