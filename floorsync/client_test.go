package floorsync

import (
	"errors"
	"fmt"
	"testing"
)

func TestRetryable(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		expected bool
	}{
		{"rate limited", &deliveryError{StatusCode: 429}, true},
		{"server error", &deliveryError{StatusCode: 500}, true},
		{"bad gateway", &deliveryError{StatusCode: 502}, true},
		{"unavailable", &deliveryError{StatusCode: 503}, true},
		{"bad request", &deliveryError{StatusCode: 400}, false},
		{"unknown vin", &deliveryError{StatusCode: 404}, false},
		{"conflict", &deliveryError{StatusCode: 409}, false},
		{"wrapped server error", fmt.Errorf("post: %w", &deliveryError{StatusCode: 500}), true},
		{"wrapped rejection", fmt.Errorf("post: %w", &deliveryError{StatusCode: 422}), false},
		{"network error", errors.New("dial tcp: connection refused"), true},
	}
	for _, tc := range cases {
		if got := Retryable(tc.err); got != tc.expected {
			t.Fatalf("%s: Retryable expected %v, got %v", tc.name, tc.expected, got)
		}
	}
}

func TestDeliveryError_Message(t *testing.T) {
	err := &deliveryError{StatusCode: 404, Body: "vin not planned in any active batch"}
	expected := "backend error 404: vin not planned in any active batch"
	if err.Error() != expected {
		t.Fatalf("expected %q, got %q", expected, err.Error())
	}
}
