package treasury

import "time"

// Counterparty is an entity that receives payments, e.g. a contractor.
type Counterparty struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Email      string            `json:"email,omitempty"`
	Accounting *Accounting       `json:"accounting,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Accounts   []ExternalAccount `json:"accounts,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Accounting describes how a counterparty is treated by accounting software.
type Accounting struct {
	Type string `json:"type"`
}

// ExternalAccount is a bank account belonging to a counterparty.
type ExternalAccount struct {
	ID             string            `json:"id"`
	CounterpartyID string            `json:"counterparty_id,omitempty"`
	Name           string            `json:"name,omitempty"`
	AccountType    string            `json:"account_type,omitempty"`
	PartyType      string            `json:"party_type,omitempty"`
	AccountDetails []AccountDetail   `json:"account_details,omitempty"`
	RoutingDetails []RoutingDetail   `json:"routing_details,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// InternalAccount is a bank account belonging to the organization, which
// payments are sent from.
type InternalAccount struct {
	ID             string            `json:"id"`
	Name           string            `json:"name,omitempty"`
	AccountType    string            `json:"account_type,omitempty"`
	PartyName      string            `json:"party_name,omitempty"`
	Currency       string            `json:"currency,omitempty"`
	AccountDetails []AccountDetail   `json:"account_details,omitempty"`
	RoutingDetails []RoutingDetail   `json:"routing_details,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// AccountDetail carries an account number.
type AccountDetail struct {
	ID                string `json:"id,omitempty"`
	AccountNumber     string `json:"account_number"`
	AccountNumberType string `json:"account_number_type,omitempty"`
}

// RoutingDetail carries a routing number, and the payment type it applies to.
type RoutingDetail struct {
	ID                string `json:"id,omitempty"`
	RoutingNumber     string `json:"routing_number"`
	RoutingNumberType string `json:"routing_number_type,omitempty"`
	PaymentType       string `json:"payment_type,omitempty"`
}

// PaymentOrder is an instruction to move money between accounts. Amounts are
// in the smallest unit of the currency, e.g. cents.
type PaymentOrder struct {
	ID                   string            `json:"id"`
	Type                 string            `json:"type"`
	Direction            string            `json:"direction"`
	Amount               int64             `json:"amount"`
	Currency             string            `json:"currency"`
	Status               string            `json:"status"`
	Description          string            `json:"description,omitempty"`
	OriginatingAccountID string            `json:"originating_account_id,omitempty"`
	ReceivingAccountID   string            `json:"receiving_account_id,omitempty"`
	Metadata             map[string]string `json:"metadata,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
}

// CreateCounterpartyRequest is the body of a create counterparty request.
type CreateCounterpartyRequest struct {
	Name       string            `json:"name"`
	Email      string            `json:"email,omitempty"`
	Accounting *Accounting       `json:"accounting,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// CreateExternalAccountRequest is the body of a create external account
// request.
type CreateExternalAccountRequest struct {
	CounterpartyID string            `json:"counterparty_id"`
	Name           string            `json:"name"`
	AccountType    string            `json:"account_type,omitempty"`
	PartyType      string            `json:"party_type,omitempty"`
	AccountDetails []AccountDetail   `json:"account_details,omitempty"`
	RoutingDetails []RoutingDetail   `json:"routing_details,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// CreatePaymentOrderRequest is the body of a create payment order request.
type CreatePaymentOrderRequest struct {
	Type                 string            `json:"type"`
	Direction            string            `json:"direction"`
	Amount               int64             `json:"amount"`
	Currency             string            `json:"currency"`
	OriginatingAccountID string            `json:"originating_account_id"`
	ReceivingAccountID   string            `json:"receiving_account_id"`
	Description          string            `json:"description,omitempty"`
	Metadata             map[string]string `json:"metadata,omitempty"`
}
