package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/alanyoungcy/polyladder/internal/crypto"
	"github.com/alanyoungcy/polyladder/internal/domain"
)

// ClobClient is the REST client for the Polymarket CLOB API. It derives L2
// credentials, submits order batches and bulk-cancels orders.
type ClobClient struct {
	baseURL    string
	httpClient *http.Client
	signer     *crypto.Signer
	builder    *OrderBuilder

	mu    sync.RWMutex
	creds crypto.APICreds
}

// NewClobClient creates a new CLOB REST client.
//
// baseURL is the CLOB API root, e.g. "https://clob.polymarket.com". timeout
// bounds every request.
func NewClobClient(baseURL string, signer *crypto.Signer, builder *OrderBuilder, timeout time.Duration) *ClobClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ClobClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		signer:     signer,
		builder:    builder,
	}
}

// SetCreds installs L2 credentials, e.g. ones supplied through config.
func (c *ClobClient) SetCreds(creds crypto.APICreds) {
	c.mu.Lock()
	c.creds = creds
	c.mu.Unlock()
}

// Creds returns the current L2 credentials.
func (c *ClobClient) Creds() crypto.APICreds {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creds
}

// DeriveAPIKey obtains L2 credentials for the signer. It first derives the
// existing key and, if the server has none, creates one. On success the
// credentials are installed on the client.
func (c *ClobClient) DeriveAPIKey(ctx context.Context) (crypto.APICreds, error) {
	creds, err := c.l1Request(ctx, http.MethodGet, "/auth/derive-api-key")
	if err != nil {
		var statusErr *httpStatusError
		if !errors.As(err, &statusErr) ||
			(statusErr.code != http.StatusNotFound && statusErr.code != http.StatusBadRequest) {
			return crypto.APICreds{}, fmt.Errorf("polymarket/clob: derive api key: %w", err)
		}
		creds, err = c.l1Request(ctx, http.MethodPost, "/auth/api-key")
		if err != nil {
			return crypto.APICreds{}, fmt.Errorf("polymarket/clob: create api key: %w", err)
		}
	}
	if !creds.Valid() {
		return crypto.APICreds{}, fmt.Errorf("polymarket/clob: %w: incomplete api credentials", domain.ErrUnauthorized)
	}
	c.SetCreds(creds)
	return creds, nil
}

// CreateSignedOrder builds and signs the order for one ladder intent.
func (c *ClobClient) CreateSignedOrder(intent domain.OrderIntent, tokenID string, negRisk bool) (domain.SignedOrder, error) {
	return c.builder.Build(intent, tokenID, negRisk)
}

// PostOrders submits a batch of signed orders in one call. The returned
// error covers transport and HTTP failures; exchange-level rejections are
// reported through the BatchResponse.
func (c *ClobClient) PostOrders(ctx context.Context, orders []domain.SignedOrder) (domain.BatchResponse, error) {
	if len(orders) == 0 {
		return domain.BatchResponse{}, fmt.Errorf("polymarket/clob: post orders: %w", domain.ErrEmptyBatch)
	}

	owner := c.Creds().Key
	body := make([]postOrderArgs, 0, len(orders))
	for _, o := range orders {
		body = append(body, newPostOrderArgs(o, owner))
	}

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodPost, "/orders", body)
	if err != nil {
		return domain.BatchErrorResponse(err.Error()), fmt.Errorf("polymarket/clob: post orders: %w", err)
	}
	return decodeBatchResponse(respBody), nil
}

// CancelOrders bulk-cancels the given order ids.
func (c *ClobClient) CancelOrders(ctx context.Context, ids []string) (domain.CancelResult, error) {
	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodDelete, "/orders", ids)
	if err != nil {
		return domain.CancelResult{}, fmt.Errorf("polymarket/clob: cancel orders: %w", err)
	}

	var res apiCancelResult
	if err := json.Unmarshal(respBody, &res); err != nil {
		return domain.CancelResult{}, fmt.Errorf("polymarket/clob: decode cancel response: %w", err)
	}
	return domain.CancelResult{Canceled: res.Canceled, NotCanceled: res.NotCanceled}, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// l1Request calls a key-management endpoint with L1 (EIP-712) headers.
func (c *ClobClient) l1Request(ctx context.Context, method, path string) (crypto.APICreds, error) {
	timestamp := time.Now().Unix()
	nonce := int64(0)

	sig, err := c.signer.SignAuthMessage(timestamp, nonce)
	if err != nil {
		return crypto.APICreds{}, fmt.Errorf("sign auth message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return crypto.APICreds{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", c.signer.Address().Hex())
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", strconv.FormatInt(timestamp, 10))
	req.Header.Set("POLY_NONCE", strconv.FormatInt(nonce, 10))

	respBody, err := c.do(req)
	if err != nil {
		return crypto.APICreds{}, err
	}

	var creds crypto.APICreds
	if err := json.Unmarshal(respBody, &creds); err != nil {
		return crypto.APICreds{}, fmt.Errorf("decode credentials: %w", err)
	}
	return creds, nil
}

// doAuthenticatedRequest builds, signs (HMAC), sends, and reads an HTTP
// request against the CLOB API. It returns the raw response body.
func (c *ClobClient) doAuthenticatedRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	creds := c.Creds()
	if !creds.Valid() {
		return nil, fmt.Errorf("%w: no api credentials", domain.ErrUnauthorized)
	}

	var bodyReader io.Reader
	var bodyStr string
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range creds.L2Headers(c.signer.Address().Hex(), method, path, bodyStr) {
		req.Header.Set(k, v)
	}

	return c.do(req)
}

func (c *ClobClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// httpStatusError carries the status code of a non-2xx response.
type httpStatusError struct {
	code     int
	body     string
	sentinel error
}

func (e *httpStatusError) Error() string {
	if e.sentinel != nil {
		return fmt.Sprintf("%v: HTTP %d: %s", e.sentinel, e.code, e.body)
	}
	return fmt.Sprintf("HTTP %d: %s", e.code, e.body)
}

func (e *httpStatusError) Unwrap() error { return e.sentinel }

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	e := &httpStatusError{code: statusCode, body: truncate(string(body), 512)}
	switch statusCode {
	case http.StatusNotFound:
		e.sentinel = domain.ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		e.sentinel = domain.ErrUnauthorized
	case http.StatusTooManyRequests:
		e.sentinel = domain.ErrRateLimited
	}
	return e
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
