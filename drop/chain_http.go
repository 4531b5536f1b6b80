package drop

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultChainRequestTimeout = 30 * time.Second

// HTTPConfigClient talks to a transaction gateway that owns signing and
// broadcast. The pipeline only needs create-once and commit-batch calls
// with a clear success/failure signal per call.
type HTTPConfigClient struct {
	BaseURL    string
	Authority  string
	HTTPClient *http.Client
}

// NewHTTPConfigClient creates a gateway-backed config client.
func NewHTTPConfigClient(baseURL, authority string) (*HTTPConfigClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("chain gateway URL is required")
	}
	return &HTTPConfigClient{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		Authority: authority,
	}, nil
}

func (c *HTTPConfigClient) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: defaultChainRequestTimeout}
}

func (c *HTTPConfigClient) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type createConfigRequest struct {
	Authority string             `json:"authority,omitempty"`
	Params    CreateConfigParams `json:"params"`
}

func (c *HTTPConfigClient) CreateConfig(ctx context.Context, params CreateConfigParams) (ConfigHandle, error) {
	var handle ConfigHandle
	err := c.post(ctx, "/v1/configs", createConfigRequest{Authority: c.Authority, Params: params}, &handle)
	if err != nil {
		return ConfigHandle{}, fmt.Errorf("create config: %w", err)
	}
	if handle.Address == "" {
		return ConfigHandle{}, fmt.Errorf("create config: gateway returned empty address")
	}
	return handle, nil
}

type commitLinesRequest struct {
	UUID       string       `json:"uuid"`
	StartIndex int          `json:"start_index"`
	Lines      []ConfigLine `json:"lines"`
}

type commitLinesResponse struct {
	Receipt string `json:"receipt"`
}

func (c *HTTPConfigClient) CommitLines(ctx context.Context, handle ConfigHandle, startIndex int, lines []ConfigLine) (string, error) {
	var out commitLinesResponse
	req := commitLinesRequest{UUID: handle.UUID, StartIndex: startIndex, Lines: lines}
	err := c.post(ctx, "/v1/configs/"+handle.Address+"/lines", req, &out)
	if err != nil {
		return "", fmt.Errorf("commit lines at %d: %w", startIndex, err)
	}
	return out.Receipt, nil
}
