package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/genforge/backend/internal/textutil"
)

const (
	DefaultBaseURL = "https://api.kie.ai"
	DefaultTimeout = 30 * time.Second

	maxErrorBody = 4 << 10
)

// Client talks to the Kie.ai aggregation API. Every response is wrapped in a
// {code, msg, data} envelope. There are no retries: a failed call surfaces
// as *UpstreamError and the caller decides what to do.
type Client struct {
	BaseURL     string
	APIKey      string
	CallbackURL string
	httpClient  *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// post sends body as JSON and returns the envelope's data payload.
func (c *Client) post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

// get issues a GET with the given query and returns the envelope's data payload.
func (c *Client) get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	target := c.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{Message: err.Error(), IsTimeout: isTimeout(err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamError{HTTPStatus: resp.StatusCode, Message: "read response body: " + err.Error(), IsTimeout: isTimeout(err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{
			HTTPStatus: resp.StatusCode,
			Message:    strings.TrimSpace(textutil.Truncate(string(raw), 300)),
			RawBody:    textutil.Truncate(string(raw), maxErrorBody),
		}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &UpstreamError{
			HTTPStatus: resp.StatusCode,
			Message:    "invalid JSON response",
			RawBody:    textutil.Truncate(string(raw), maxErrorBody),
		}
	}
	// A missing code is treated as success, same as code 200.
	if env.Code != 0 && env.Code != http.StatusOK {
		msg := env.Msg
		if msg == "" {
			msg = "unknown error"
		}
		return nil, &UpstreamError{
			HTTPStatus:   resp.StatusCode,
			ProviderCode: env.Code,
			Message:      msg,
			RawBody:      textutil.Truncate(string(raw), maxErrorBody),
		}
	}
	return env.Data, nil
}

// submitTask posts a creation request and extracts data.taskId.
func (c *Client) submitTask(ctx context.Context, path string, body any) (string, error) {
	data, err := c.post(ctx, path, body)
	if err != nil {
		return "", err
	}
	var out struct {
		TaskID string `json:"taskId"`
	}
	if err := json.Unmarshal(data, &out); err != nil || out.TaskID == "" {
		return "", &UpstreamError{HTTPStatus: http.StatusOK, Message: "response did not contain a task id", RawBody: textutil.Truncate(string(data), maxErrorBody)}
	}
	return out.TaskID, nil
}

// recordInfo fetches the raw status payload of a task.
func (c *Client) recordInfo(ctx context.Context, path, taskID string) (json.RawMessage, error) {
	return c.get(ctx, path, url.Values{"taskId": {taskID}})
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
