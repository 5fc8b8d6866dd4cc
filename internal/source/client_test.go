package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"itemwatch/internal/config"
)

func TestParsePrice(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"123,45 руб.", "123.45"},
		{"1 234,56 руб.", "1234.56"},
		{"$12.34", "12.34"},
		{"12,34€", "12.34"},
		{"1,234.56 USD", "1234.56"},
		{"7 руб.", "7"},
		{"0,50‎", "0.5"},
	}
	for _, tc := range cases {
		got, err := ParsePrice(tc.raw)
		if err != nil {
			t.Fatalf("ParsePrice(%q): %v", tc.raw, err)
		}
		if got.String() != tc.want {
			t.Fatalf("ParsePrice(%q)=%s want=%s", tc.raw, got.String(), tc.want)
		}
	}
}

func TestParsePrice_NoDigits(t *testing.T) {
	if _, err := ParsePrice("N/A"); err == nil {
		t.Fatalf("want error for price without digits")
	}
}

func TestClientFetchPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("market_hash_name"); got != "Fracture Case" {
			t.Errorf("market_hash_name=%q", got)
		}
		if got := r.URL.Query().Get("currency"); got != "5" {
			t.Errorf("currency=%q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"lowest_price":"123,45 руб.","volume":"1500"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.Client(), config.SourceConfig{
		BaseURL:  srv.URL,
		Country:  "RU",
		Currency: "5",
		Timeout:  5 * time.Second,
	})

	price, err := client.FetchPrice(context.Background(), "Fracture Case")
	if err != nil {
		t.Fatalf("FetchPrice: %v", err)
	}
	if price.String() != "123.45" {
		t.Fatalf("price=%s want=123.45", price.String())
	}
}

func TestClientFetchPrice_SourceFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":false}`))
	}))
	defer srv.Close()

	client := NewClient(srv.Client(), config.SourceConfig{BaseURL: srv.URL, Timeout: 5 * time.Second})
	if _, err := client.FetchPrice(context.Background(), "whatever"); err == nil {
		t.Fatalf("want error when source reports failure")
	}
}

func TestClientFetchPrice_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(srv.Client(), config.SourceConfig{BaseURL: srv.URL, Timeout: 5 * time.Second})
	if _, err := client.FetchPrice(context.Background(), "whatever"); err == nil {
		t.Fatalf("want error on non-200 status")
	}
}
