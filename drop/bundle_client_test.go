package drop

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testBundleKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()
	_, key, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func TestHTTPBundleClientSignDataItem(t *testing.T) {
	ctx := context.Background()
	client, err := NewHTTPBundleClient("http://node.test", "", testBundleKey(t))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	tags := []Tag{{Name: "Content-Type", Value: "image/png"}}
	item, err := client.SignDataItem(ctx, []byte("payload"), tags)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if item.ID == "" {
		t.Fatal("item id is empty")
	}

	// Same payload and tags sign to the same id.
	again, err := client.SignDataItem(ctx, []byte("payload"), tags)
	if err != nil {
		t.Fatalf("sign again: %v", err)
	}
	if again.ID != item.ID {
		t.Fatalf("signing is not deterministic: %q vs %q", again.ID, item.ID)
	}

	// Different tags change the id.
	other, err := client.SignDataItem(ctx, []byte("payload"), []Tag{{Name: "Content-Type", Value: "image/gif"}})
	if err != nil {
		t.Fatalf("sign other: %v", err)
	}
	if other.ID == item.ID {
		t.Fatal("tags must contribute to the item id")
	}
}

func TestHTTPBundleClientSubmitBundle(t *testing.T) {
	var got bundleSubmission
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/bundles" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode submission: %v", err)
		}
		_ = json.NewEncoder(w).Encode(bundleSubmissionResponse{BundleID: "b-1"})
	}))
	defer srv.Close()

	client, err := NewHTTPBundleClient(srv.URL, "https://gw.test", testBundleKey(t))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	items := []DataItem{
		{ID: "a", Data: []byte("x"), Tags: []Tag{{Name: "App-Name", Value: appName}}},
		{ID: "b", Data: []byte("y")},
	}
	receipt, err := client.SubmitBundle(context.Background(), items)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if receipt.BundleID != "b-1" {
		t.Fatalf("receipt = %+v", receipt)
	}
	if len(got.Items) != 2 || got.Items[0].ID != "a" {
		t.Fatalf("submission = %+v", got)
	}
	if got.Items[0].Tags["App-Name"] != appName {
		t.Fatalf("tags = %+v", got.Items[0].Tags)
	}
}

func TestHTTPBundleClientSubmitBundleRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bundle too large", http.StatusRequestEntityTooLarge)
	}))
	defer srv.Close()

	client, err := NewHTTPBundleClient(srv.URL, "", testBundleKey(t))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.SubmitBundle(context.Background(), []DataItem{{ID: "a"}}); err == nil {
		t.Fatal("expected rejection error")
	}
}

func TestHTTPBundleClientItemURI(t *testing.T) {
	client, err := NewHTTPBundleClient("http://node.test", "https://gw.test/", testBundleKey(t))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if got := client.ItemURI("abc"); got != "https://gw.test/abc" {
		t.Fatalf("uri = %q", got)
	}
}

func TestHTTPBundleClientValidation(t *testing.T) {
	key := testBundleKey(t)
	if _, err := NewHTTPBundleClient("", "", key); err == nil {
		t.Fatal("expected error for missing node URL")
	}
	if _, err := NewHTTPBundleClient("http://node.test", "", nil); err == nil {
		t.Fatal("expected error for missing key")
	}

	client, err := NewHTTPBundleClient("http://node.test", "", key)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if client.GatewayURL != "https://arweave.net" {
		t.Fatalf("default gateway = %q", client.GatewayURL)
	}
}
