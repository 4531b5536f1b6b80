package drop

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPConfigClientCreateConfig(t *testing.T) {
	var gotReq createConfigRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/configs" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(ConfigHandle{UUID: gotReq.Params.UUID, Address: "CFG123"})
	}))
	defer srv.Close()

	client, err := NewHTTPConfigClient(srv.URL, "AuthX")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	handle, err := client.CreateConfig(context.Background(), CreateConfigParams{
		UUID:           "abc123",
		Symbol:         "TEST",
		ItemsAvailable: 10,
	})
	if err != nil {
		t.Fatalf("create config: %v", err)
	}
	if handle.Address != "CFG123" || handle.UUID != "abc123" {
		t.Fatalf("handle = %+v", handle)
	}
	if gotReq.Authority != "AuthX" {
		t.Fatalf("authority = %q", gotReq.Authority)
	}
	if gotReq.Params.ItemsAvailable != 10 {
		t.Fatalf("params = %+v", gotReq.Params)
	}
}

func TestHTTPConfigClientCreateConfigEmptyAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ConfigHandle{})
	}))
	defer srv.Close()

	client, err := NewHTTPConfigClient(srv.URL, "")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.CreateConfig(context.Background(), CreateConfigParams{}); err == nil {
		t.Fatal("expected error for empty address")
	}
}

func TestHTTPConfigClientCommitLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/configs/CFG123/lines" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req commitLinesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.StartIndex != 10 || len(req.Lines) != 2 || req.UUID != "abc123" {
			t.Errorf("request = %+v", req)
		}
		_ = json.NewEncoder(w).Encode(commitLinesResponse{Receipt: "sig-10"})
	}))
	defer srv.Close()

	client, err := NewHTTPConfigClient(srv.URL, "")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	receipt, err := client.CommitLines(context.Background(),
		ConfigHandle{UUID: "abc123", Address: "CFG123"}, 10,
		[]ConfigLine{{Name: "a", URI: "x"}, {Name: "b", URI: "y"}})
	if err != nil {
		t.Fatalf("commit lines: %v", err)
	}
	if receipt != "sig-10" {
		t.Fatalf("receipt = %q", receipt)
	}
}

func TestHTTPConfigClientGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client, err := NewHTTPConfigClient(srv.URL, "")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.CommitLines(context.Background(), ConfigHandle{Address: "CFG"}, 0,
		[]ConfigLine{{Name: "a", URI: "x"}})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "429") || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("error = %v", err)
	}
}

func TestHTTPConfigClientRequiresBaseURL(t *testing.T) {
	if _, err := NewHTTPConfigClient("", ""); err == nil {
		t.Fatal("expected error for missing base URL")
	}
}
