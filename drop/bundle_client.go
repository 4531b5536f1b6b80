package drop

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBundleRequestTimeout = 2 * time.Minute

// HTTPBundleClient signs data items with an ed25519 key and submits
// assembled bundles to a bundler node over HTTP. Item ids follow the
// data-item convention: base64url(sha256(signature)).
type HTTPBundleClient struct {
	NodeURL    string
	GatewayURL string
	Key        ed25519.PrivateKey
	HTTPClient *http.Client
}

// NewHTTPBundleClient creates a bundle client for the given node and
// gateway endpoints.
func NewHTTPBundleClient(nodeURL, gatewayURL string, key ed25519.PrivateKey) (*HTTPBundleClient, error) {
	if nodeURL == "" {
		return nil, fmt.Errorf("bundler node URL is required")
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("ed25519 private key is required")
	}
	if gatewayURL == "" {
		gatewayURL = "https://arweave.net"
	}
	return &HTTPBundleClient{
		NodeURL:    strings.TrimRight(nodeURL, "/"),
		GatewayURL: strings.TrimRight(gatewayURL, "/"),
		Key:        key,
	}, nil
}

func (c *HTTPBundleClient) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: defaultBundleRequestTimeout}
}

// SignDataItem signs the payload together with its tags and derives the
// item id from the signature.
func (c *HTTPBundleClient) SignDataItem(ctx context.Context, data []byte, tags []Tag) (DataItem, error) {
	if err := ctx.Err(); err != nil {
		return DataItem{}, err
	}

	h := sha256.New()
	h.Write(data)
	for _, tag := range tags {
		h.Write([]byte(tag.Name))
		h.Write([]byte{0})
		h.Write([]byte(tag.Value))
		h.Write([]byte{0})
	}
	sig := ed25519.Sign(c.Key, h.Sum(nil))

	idHash := sha256.Sum256(sig)
	id := base64.RawURLEncoding.EncodeToString(idHash[:])

	return DataItem{ID: id, Data: data, Tags: tags}, nil
}

type bundleSubmission struct {
	Items []bundleSubmissionItem `json:"items"`
}

type bundleSubmissionItem struct {
	ID   string            `json:"id"`
	Data []byte            `json:"data"`
	Tags map[string]string `json:"tags"`
}

type bundleSubmissionResponse struct {
	BundleID string `json:"bundle_id"`
}

// SubmitBundle posts all items as one body to the bundler node. The node
// accepts or rejects the bundle as a unit.
func (c *HTTPBundleClient) SubmitBundle(ctx context.Context, items []DataItem) (BundleReceipt, error) {
	sub := bundleSubmission{Items: make([]bundleSubmissionItem, 0, len(items))}
	for _, item := range items {
		tags := make(map[string]string, len(item.Tags))
		for _, tag := range item.Tags {
			tags[tag.Name] = tag.Value
		}
		sub.Items = append(sub.Items, bundleSubmissionItem{ID: item.ID, Data: item.Data, Tags: tags})
	}

	body, err := json.Marshal(sub)
	if err != nil {
		return BundleReceipt{}, fmt.Errorf("encode bundle: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.NodeURL+"/bundles", bytes.NewReader(body))
	if err != nil {
		return BundleReceipt{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return BundleReceipt{}, fmt.Errorf("submit bundle: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return BundleReceipt{}, fmt.Errorf("submit bundle: node returned %d: %s",
			resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out bundleSubmissionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return BundleReceipt{}, fmt.Errorf("decode bundle response: %w", err)
	}
	return BundleReceipt{BundleID: out.BundleID}, nil
}

// ItemURI resolves a data-item id against the gateway.
func (c *HTTPBundleClient) ItemURI(id string) string {
	return c.GatewayURL + "/" + id
}
