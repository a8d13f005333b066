package verify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "settlement-matching-service/pkg/errors"
)

func testPairs() []PairRequest {
	return []PairRequest{{
		PairID:             "inv-001:txn-100",
		SourceSummary:      "invoice inv-001: amount 1500 USD",
		TransactionSummary: "transaction txn-100: amount 1500 USD",
		CurrentScore:       0.62,
	}}
}

func TestHTTPVerifierReview(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Expected bearer auth, got %q", got)
		}

		var req reviewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		if len(req.Pairs) != 1 || req.Pairs[0].PairID != "inv-001:txn-100" {
			t.Errorf("Unexpected request pairs: %+v", req.Pairs)
		}

		json.NewEncoder(w).Encode([]Verdict{{
			PairID:        "inv-001:txn-100",
			IsMatch:       true,
			Confidence:    0.9,
			AdjustedScore: 0.88,
			Reasoning:     "clear settlement",
		}})
	}))
	defer server.Close()

	config := DefaultClientConfig(server.URL)
	config.APIKey = "test-key"
	verifier, err := NewHTTPVerifier(config)
	if err != nil {
		t.Fatalf("NewHTTPVerifier failed: %v", err)
	}

	verdicts, err := verifier.Review(context.Background(), testPairs())
	if err != nil {
		t.Fatalf("Review failed: %v", err)
	}
	if len(verdicts) != 1 || !verdicts[0].IsMatch || verdicts[0].AdjustedScore != 0.88 {
		t.Errorf("Unexpected verdicts: %+v", verdicts)
	}
}

func TestHTTPVerifierNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	verifier, err := NewHTTPVerifier(DefaultClientConfig(server.URL))
	if err != nil {
		t.Fatalf("NewHTTPVerifier failed: %v", err)
	}

	_, err = verifier.Review(context.Background(), testPairs())
	if err == nil {
		t.Fatal("Expected error on non-200 status")
	}
	matchErr, ok := apperrors.AsMatchError(err)
	if !ok || matchErr.Category != apperrors.CategoryVerification {
		t.Errorf("Expected verification-category error, got %v", err)
	}
}

func TestHTTPVerifierMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"not": "an array"}`))
	}))
	defer server.Close()

	verifier, err := NewHTTPVerifier(DefaultClientConfig(server.URL))
	if err != nil {
		t.Fatalf("NewHTTPVerifier failed: %v", err)
	}

	if _, err = verifier.Review(context.Background(), testPairs()); err == nil {
		t.Fatal("Expected error on malformed response body")
	}
}

func TestHTTPVerifierTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	config := DefaultClientConfig(server.URL)
	config.Timeout = 20 * time.Millisecond
	verifier, err := NewHTTPVerifier(config)
	if err != nil {
		t.Fatalf("NewHTTPVerifier failed: %v", err)
	}

	if _, err = verifier.Review(context.Background(), testPairs()); err == nil {
		t.Fatal("Expected timeout error")
	}
}

func TestClientConfigValidate(t *testing.T) {
	if err := DefaultClientConfig("http://localhost:9400/verify").Validate(); err != nil {
		t.Errorf("Valid config rejected: %v", err)
	}
	if err := (&ClientConfig{Timeout: time.Second}).Validate(); err == nil {
		t.Error("Empty endpoint must be rejected")
	}
	if err := (&ClientConfig{Endpoint: "http://localhost"}).Validate(); err == nil {
		t.Error("Zero timeout must be rejected")
	}
	if _, err := NewHTTPVerifier(nil); err == nil {
		t.Error("Nil config must be rejected")
	}
}
