package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"stealth-backend/internal/config"
	"stealth-backend/internal/dto"
	"stealth-backend/internal/enclave"
	"stealth-backend/internal/types"
)

// HTTPStatusError non-2xx response from a remote service
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP request failed: status=%d, body=%s", e.StatusCode, e.Body)
}

// EnclaveClient talks to a remote enclave over its /enclave/v1 API. It serves
// as the relay's batch Computer.
type EnclaveClient struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// NewEnclaveClient creates an enclave client
func NewEnclaveClient(cfg config.EnclaveConfig) *EnclaveClient {
	timeout := 30 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	return &EnclaveClient{
		baseURL:   strings.TrimSuffix(cfg.RemoteURL, "/"),
		authToken: cfg.AuthToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Process sends intents to the enclave and returns the signed batch.
func (c *EnclaveClient) Process(ctx context.Context, intents []types.Intent) (*types.SettlementBatch, error) {
	if intents == nil {
		intents = []types.Intent{}
	}
	body, err := c.makeRequest(ctx, http.MethodPost, "/enclave/v1/batches", dto.ProcessBatchRequest{Intents: intents})
	if err != nil {
		var statusErr *HTTPStatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnprocessableEntity {
			return nil, enclave.ErrNoIntents
		}
		return nil, fmt.Errorf("enclave batch request failed: %w", err)
	}

	var resp dto.ProcessBatchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse enclave batch response: %w", err)
	}
	if !resp.Success || resp.Batch == nil {
		return nil, fmt.Errorf("enclave batch failed: %s", resp.Error)
	}
	return resp.Batch, nil
}

// SignerAddress returns the enclave's signing address.
func (c *EnclaveClient) SignerAddress(ctx context.Context) (common.Address, error) {
	body, err := c.makeRequest(ctx, http.MethodGet, "/enclave/v1/signer", nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("enclave signer request failed: %w", err)
	}

	var resp dto.SignerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return common.Address{}, fmt.Errorf("parse enclave signer response: %w", err)
	}
	if !resp.Success || resp.Signer == (common.Address{}) {
		return common.Address{}, errors.New("enclave reported no signer")
	}
	return resp.Signer, nil
}

func (c *EnclaveClient) makeRequest(ctx context.Context, method, path string, data interface{}) ([]byte, error) {
	var body io.Reader
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "stealth-settlement-relay/1.0")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
		req.Header.Set("X-Service-Name", "stealth-settlement-relay")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Body: string(responseBody)}
	}
	return responseBody, nil
}
