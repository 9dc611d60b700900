package gateway

import "testing"

func TestVerifySignatureRoundTrip(t *testing.T) {
	sig := Sign("order_123", "pay_456", "whsec_test")
	if !VerifySignature("order_123", "pay_456", sig, "whsec_test") {
		t.Fatal("expected a self-signed callback to verify")
	}
}

func TestVerifySignatureRejectsTampering(t *testing.T) {
	sig := Sign("order_123", "pay_456", "whsec_test")

	cases := []struct {
		name      string
		orderID   string
		paymentID string
		signature string
		secret    string
	}{
		{"wrong order", "order_999", "pay_456", sig, "whsec_test"},
		{"wrong payment", "order_123", "pay_999", sig, "whsec_test"},
		{"wrong secret", "order_123", "pay_456", sig, "other"},
		{"garbage signature", "order_123", "pay_456", "deadbeef", "whsec_test"},
	}
	for _, c := range cases {
		if VerifySignature(c.orderID, c.paymentID, c.signature, c.secret) {
			t.Errorf("%s: expected verification to fail", c.name)
		}
	}
}

func TestVerifySignatureRejectsEmptyInputs(t *testing.T) {
	sig := Sign("order_123", "pay_456", "whsec_test")
	if VerifySignature("", "pay_456", sig, "whsec_test") {
		t.Error("expected empty order id to fail")
	}
	if VerifySignature("order_123", "", sig, "whsec_test") {
		t.Error("expected empty payment id to fail")
	}
	if VerifySignature("order_123", "pay_456", "", "whsec_test") {
		t.Error("expected empty signature to fail")
	}
	if VerifySignature("order_123", "pay_456", sig, "") {
		t.Error("expected empty secret to fail")
	}
}

func TestSignIsDeterministic(t *testing.T) {
	a := Sign("order_123", "pay_456", "whsec_test")
	b := Sign("order_123", "pay_456", "whsec_test")
	if a != b {
		t.Fatal("expected identical inputs to sign identically")
	}
	if a == Sign("order_124", "pay_456", "whsec_test") {
		t.Fatal("expected different inputs to sign differently")
	}
}
