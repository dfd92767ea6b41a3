package main

import (
	"fmt"

	"github.com/vendorpay/apitrc"
	"github.com/vendorpay/apitrc/internal/apitrcutil"
)

func formatCall(c *apitrc.Call) string {
	result := fmt.Sprint(c.Status)
	if c.Errored() {
		result = fmt.Sprintf("error (%s)", c.Error)
	}
	return fmt.Sprintf("%s %s %s %s", c.Method, c.URL, result, apitrcutil.HumanizeMillis(c.Ms))
}
