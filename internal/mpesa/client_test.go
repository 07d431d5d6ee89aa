package mpesa

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// pushTestServer serves the token endpoint plus a scripted STK push handler.
func pushTestServer(t *testing.T, push http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"tok","expires_in":"3599"}`))
	})
	mux.HandleFunc(stkPushPath, push)
	return httptest.NewServer(mux)
}

func testClient(srv *httptest.Server) *Client {
	cfg := Config{
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		ShortCode:      "174379",
		Passkey:        "passkey",
		CallbackURL:    "https://shop.example.com/api/mpesa/callback",
		BaseURL:        srv.URL,
	}
	return NewClient(cfg)
}

func TestClient_InitiateSTKPush_Accepted(t *testing.T) {
	var gotReq STKPushRequest
	srv := pushTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer tok" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode push request: %v", err)
		}
		w.Write([]byte(`{"MerchantRequestID":"mr-1","CheckoutRequestID":"ws_CO_1","ResponseCode":"0","ResponseDescription":"Success. Request accepted for processing","CustomerMessage":"Success"}`))
	})
	defer srv.Close()

	c := testClient(srv)
	c.nowFunc = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }

	resp, err := c.InitiateSTKPush(context.Background(), "0712345678", 4500, "OSS-abc12345")
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if resp.CheckoutRequestID != "ws_CO_1" || resp.MerchantRequestID != "mr-1" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	if gotReq.PhoneNumber != "254712345678" || gotReq.PartyA != "254712345678" {
		t.Fatalf("phone not normalized on the wire: %+v", gotReq)
	}
	if gotReq.Amount != 4500 || gotReq.TransactionType != "CustomerPayBillOnline" {
		t.Fatalf("unexpected request body: %+v", gotReq)
	}
	if gotReq.Timestamp != "20240101120000" {
		t.Fatalf("timestamp = %q", gotReq.Timestamp)
	}
	if gotReq.AccountReference != "OSS-abc12345" {
		t.Fatalf("account reference = %q", gotReq.AccountReference)
	}
}

func TestClient_InitiateSTKPush_TruncatesLongReference(t *testing.T) {
	var gotReq STKPushRequest
	srv := pushTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Write([]byte(`{"CheckoutRequestID":"ws_CO_2","ResponseCode":"0"}`))
	})
	defer srv.Close()

	c := testClient(srv)
	if _, err := c.InitiateSTKPush(context.Background(), "0712345678", 100, "OSS-order-reference-overflow"); err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if len(gotReq.AccountReference) != accountRefMaxLen {
		t.Fatalf("account reference not truncated: %q", gotReq.AccountReference)
	}
}

func TestClient_InitiateSTKPush_InvalidPhone(t *testing.T) {
	srv := pushTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("provider must not be called for an invalid phone")
	})
	defer srv.Close()

	c := testClient(srv)
	_, err := c.InitiateSTKPush(context.Background(), "254712345", 100, "OSS-1")
	if !errors.Is(err, ErrInvalidPhone) {
		t.Fatalf("expected ErrInvalidPhone, got %v", err)
	}
}

func TestClient_InitiateSTKPush_SynchronousRejection(t *testing.T) {
	srv := pushTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ResponseCode":"1","ResponseDescription":"Merchant does not exist"}`))
	})
	defer srv.Close()

	c := testClient(srv)
	_, err := c.InitiateSTKPush(context.Background(), "0712345678", 100, "OSS-1")

	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected *RejectedError, got %v", err)
	}
	if rejected.Code != "1" || rejected.Description != "Merchant does not exist" {
		t.Fatalf("unexpected rejection: %+v", rejected)
	}
}

func TestClient_InitiateSTKPush_ErrorBody(t *testing.T) {
	srv := pushTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"requestId":"1","errorCode":"500.001.1001","errorMessage":"Invalid CallBackURL"}`))
	})
	defer srv.Close()

	c := testClient(srv)
	_, err := c.InitiateSTKPush(context.Background(), "0712345678", 100, "OSS-1")

	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected *RejectedError, got %v", err)
	}
	if rejected.Description != "Invalid CallBackURL" {
		t.Fatalf("unexpected rejection: %+v", rejected)
	}
}

func TestClient_InitiateSTKPush_ProviderDown(t *testing.T) {
	srv := pushTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	c := testClient(srv)
	srv.Close() // connection refused from here on

	_, err := c.InitiateSTKPush(context.Background(), "0712345678", 100, "OSS-1")
	// token fetch hits the dead server first
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError from token fetch, got %v", err)
	}
}

func TestClient_PushTransportFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"tok","expires_in":"3599"}`))
	})
	mux.HandleFunc(stkPushPath, func(w http.ResponseWriter, r *http.Request) {
		// abort the connection mid-response
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Fatal("hijacking unsupported")
		}
		conn, _, _ := hj.Hijack()
		conn.Close()
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := testClient(srv)
	_, err := c.InitiateSTKPush(context.Background(), "0712345678", 100, "OSS-1")
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestClient_QueryTransaction(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"tok","expires_in":"3599"}`))
	})
	var gotReq QueryRequest
	mux.HandleFunc(stkQueryPath, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode query request: %v", err)
		}
		w.Write([]byte(`{"ResponseCode":"0","MerchantRequestID":"mr-1","CheckoutRequestID":"ws_CO_1","ResultCode":"1032","ResultDesc":"Request cancelled by user"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := testClient(srv)
	resp, err := c.QueryTransaction(context.Background(), "ws_CO_1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if gotReq.CheckoutRequestID != "ws_CO_1" || gotReq.BusinessShortCode != "174379" {
		t.Fatalf("unexpected query request: %+v", gotReq)
	}
	if resp.ResultCode != "1032" || resp.ResultDesc != "Request cancelled by user" {
		t.Fatalf("unexpected query response: %+v", resp)
	}
}

func TestSimulator_DeterministicCheckoutIDs(t *testing.T) {
	s := NewSimulator()
	ctx := context.Background()

	r1, err := s.InitiateSTKPush(ctx, "0712345678", 100, "OSS-1")
	if err != nil {
		t.Fatalf("first push: %v", err)
	}
	r2, err := s.InitiateSTKPush(ctx, "0712345678", 100, "OSS-2")
	if err != nil {
		t.Fatalf("second push: %v", err)
	}
	if r1.CheckoutRequestID != "ws_CO_1" || r2.CheckoutRequestID != "ws_CO_2" {
		t.Fatalf("checkout ids not monotonic: %q, %q", r1.CheckoutRequestID, r2.CheckoutRequestID)
	}
	if r1.ResponseCode != "0" {
		t.Fatalf("simulator must accept: %+v", r1)
	}

	if _, err := s.InitiateSTKPush(ctx, "12345", 100, "OSS-3"); !errors.Is(err, ErrInvalidPhone) {
		t.Fatalf("expected ErrInvalidPhone, got %v", err)
	}
}
