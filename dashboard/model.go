package dashboard

import (
	"time"

	"github.com/vendorpay/apitrc/treasury"
)

// Contractor is a counterparty, as presented by the dashboard.
type Contractor struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Email             string    `json:"email"`
	Phone             string    `json:"phone"`
	BankAccountName   string    `json:"bankAccountName"`
	BankRoutingNumber string    `json:"bankRoutingNumber"`
	BankAccountNumber string    `json:"bankAccountNumber"`
	CounterpartyID    string    `json:"counterpartyId"`
	ExternalAccountID string    `json:"externalAccountId"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Payment is a payment order, as presented by the dashboard. Amount is in
// cents.
type Payment struct {
	ID                   string    `json:"id"`
	ContractorID         string    `json:"contractorId"`
	ContractorName       string    `json:"contractorName"`
	Amount               int64     `json:"amount"`
	Currency             string    `json:"currency"`
	Status               string    `json:"status"`
	Description          string    `json:"description"`
	PaymentOrderID       string    `json:"paymentOrderId"`
	CreatedAt            time.Time `json:"createdAt"`
	OriginatingAccountID string    `json:"originatingAccountId"`
	ReceivingAccountID   string    `json:"receivingAccountId"`
}

// contractorFromCounterparty uses the first external account, if any, for the
// bank details.
func contractorFromCounterparty(cp treasury.Counterparty) Contractor {
	c := Contractor{
		ID:             cp.ID,
		Name:           cp.Name,
		Email:          cp.Email,
		Phone:          cp.Metadata["phone"],
		CounterpartyID: cp.ID,
		CreatedAt:      cp.CreatedAt,
	}

	if len(cp.Accounts) > 0 {
		ea := cp.Accounts[0]
		c.BankAccountName = ea.Name
		c.ExternalAccountID = ea.ID
		if len(ea.RoutingDetails) > 0 {
			c.BankRoutingNumber = ea.RoutingDetails[0].RoutingNumber
		}
		if len(ea.AccountDetails) > 0 {
			c.BankAccountNumber = ea.AccountDetails[0].AccountNumber
		}
	}

	return c
}

func paymentFromOrder(po treasury.PaymentOrder) Payment {
	return Payment{
		ID:                   po.ID,
		ContractorID:         po.Metadata["contractor_id"],
		ContractorName:       po.Metadata["contractor_name"],
		Amount:               po.Amount,
		Currency:             po.Currency,
		Status:               po.Status,
		Description:          po.Description,
		PaymentOrderID:       po.ID,
		CreatedAt:            po.CreatedAt,
		OriginatingAccountID: po.OriginatingAccountID,
		ReceivingAccountID:   po.ReceivingAccountID,
	}
}

func bankAccountRequest(counterpartyID, name, accountType, partyType, accountNumber, routingNumber string) *treasury.CreateExternalAccountRequest {
	if accountType == "" {
		accountType = "checking"
	}
	if partyType == "" {
		partyType = "business"
	}
	return &treasury.CreateExternalAccountRequest{
		CounterpartyID: counterpartyID,
		Name:           name,
		AccountType:    accountType,
		PartyType:      partyType,
		AccountDetails: []treasury.AccountDetail{{AccountNumber: accountNumber}},
		RoutingDetails: []treasury.RoutingDetail{{RoutingNumber: routingNumber, RoutingNumberType: "aba", PaymentType: "ach"}},
	}
}
