package main

import (
	"testing"

	"github.com/vendorpay/apitrc"
)

func TestFormatCall(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		call *apitrc.Call
		want string
	}{
		{
			call: &apitrc.Call{Method: "GET", URL: "https://app.moderntreasury.com/api/counterparties?per_page=100", Status: 200, Ms: 12},
			want: "GET https://app.moderntreasury.com/api/counterparties?per_page=100 200 12ms",
		},
		{
			call: &apitrc.Call{Method: "POST", URL: "https://app.moderntreasury.com/api/payment_orders", Error: "connection refused", Ms: 1500},
			want: "POST https://app.moderntreasury.com/api/payment_orders error (connection refused) 1.5s",
		},
	} {
		if want, have := test.want, formatCall(test.call); want != have {
			t.Errorf("want %q, have %q", want, have)
		}
	}
}
