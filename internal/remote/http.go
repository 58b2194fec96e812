package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	apperrors "github.com/fintrack-app/fintrack/backend/internal/errors"
)

// ClientConfig holds HTTP client configuration for the remote service.
type ClientConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// Client implements Service over the server's HTTP JSON API.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a Client for the given endpoint.
func NewClient(config ClientConfig) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: config.Endpoint,
		apiKey:   config.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

// Invoke calls a named server procedure.
func (c *Client) Invoke(ctx context.Context, proc Procedure, payload interface{}) (*Result, error) {
	var result Result
	err := c.do(ctx, http.MethodPost, "/rpc/"+string(proc), payload, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Insert creates a row and returns the server-minted id.
func (c *Client) Insert(ctx context.Context, table string, record Record) (*Result, error) {
	var result Result
	err := c.do(ctx, http.MethodPost, "/tables/"+table, record, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Update applies field changes to an existing row.
func (c *Client) Update(ctx context.Context, table, id string, updates Record) error {
	return c.do(ctx, http.MethodPatch, "/tables/"+table+"/"+url.PathEscape(id), updates, nil)
}

// Delete removes a row.
func (c *Client) Delete(ctx context.Context, table, id string) error {
	return c.do(ctx, http.MethodDelete, "/tables/"+table+"/"+url.PathEscape(id), nil, nil)
}

// Get fetches a single row.
func (c *Client) Get(ctx context.Context, table, id string) (Record, error) {
	var rec Record
	err := c.do(ctx, http.MethodGet, "/tables/"+table+"/"+url.PathEscape(id), nil, &rec)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// QueryByName fetches the owner's rows matching an exact name.
func (c *Client) QueryByName(ctx context.Context, table, ownerID, name string) ([]Record, error) {
	q := url.Values{}
	q.Set("owner_id", ownerID)
	q.Set("name", name)
	var recs []Record
	err := c.do(ctx, http.MethodGet, "/tables/"+table+"?"+q.Encode(), nil, &recs)
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// FetchPage reads one page of owner-scoped rows.
func (c *Client) FetchPage(ctx context.Context, req PageRequest) ([]Record, error) {
	q := url.Values{}
	q.Set("owner_id", req.OwnerID)
	q.Set("limit", strconv.Itoa(req.Limit))
	q.Set("offset", strconv.Itoa(req.Offset))
	if req.Since > 0 {
		q.Set("since", strconv.FormatInt(req.Since, 10))
	}
	if req.FixedOnly {
		q.Set("fixed", "true")
	}
	var recs []Record
	err := c.do(ctx, http.MethodGet, "/tables/"+req.Table+"?"+q.Encode(), nil, &recs)
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// do runs one request and decodes the JSON response into dest when dest
// is non-nil. Status codes map onto the error-code contract callers
// classify on.
func (c *Client) do(ctx context.Context, method, path string, body, dest interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInternal, "encode request body", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrRemoteUnavailable, "remote request failed", err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return err
	}
	if dest == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "decode response body", err)
	}
	return nil
}

// statusError maps a non-2xx response onto the application error codes.
func statusError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := fmt.Sprintf("remote returned %d: %s", resp.StatusCode, bytes.TrimSpace(detail))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.New(apperrors.ErrNotFound, msg)
	case resp.StatusCode == http.StatusConflict:
		return apperrors.New(apperrors.ErrDuplicateName, msg)
	case resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusBadRequest:
		return apperrors.New(apperrors.ErrRemoteRejected, msg)
	case resp.StatusCode >= 500:
		return apperrors.New(apperrors.ErrRemoteUnavailable, msg)
	default:
		return apperrors.New(apperrors.ErrRemoteRejected, msg)
	}
}

var _ Service = (*Client)(nil)
