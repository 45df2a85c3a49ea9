package twilio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreateCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2010-04-01/Accounts/AC123/Calls.json" {
			t.Errorf("path = %q", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "token" {
			t.Error("missing or wrong basic auth")
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostForm.Get("To"); got != "+15550001111" {
			t.Errorf("To = %q", got)
		}
		if got := r.PostForm.Get("From"); got != "+15559990000" {
			t.Errorf("From = %q", got)
		}
		if got := r.PostForm.Get("Url"); got != "https://bridge.example.com/twilio/outbound_call_handler" {
			t.Errorf("Url = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"CA789","status":"queued","to":"+15550001111","from":"+15559990000"}`))
	}))
	defer srv.Close()

	client := &RestClient{AccountSID: "AC123", AuthToken: "token", BaseURL: srv.URL}
	call, err := client.CreateCall(context.Background(), "+15550001111", "+15559990000", "https://bridge.example.com/twilio/outbound_call_handler")
	if err != nil {
		t.Fatalf("CreateCall: %v", err)
	}
	if call.SID != "CA789" || call.Status != "queued" {
		t.Fatalf("call = %+v", call)
	}
}

func TestCreateCallAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":20003,"message":"Authenticate"}`))
	}))
	defer srv.Close()

	client := &RestClient{AccountSID: "AC123", AuthToken: "bad", BaseURL: srv.URL}
	if _, err := client.CreateCall(context.Background(), "+15550001111", "+15559990000", "https://x"); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestCreateCallRequiresCredentials(t *testing.T) {
	client := &RestClient{}
	if _, err := client.CreateCall(context.Background(), "+1", "+2", "https://x"); err == nil {
		t.Fatal("expected error without credentials")
	}
}
