// internal/judge/client.go
package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Client talks to the HTTP judge backend: a challenge catalogue plus a code
// runner.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *logrus.Logger
}

// NewClient builds a client for baseURL. token is sent as a bearer credential
// when non-empty.
func NewClient(baseURL, token string, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxRetries: 3,
		backoff:    250 * time.Millisecond,
		logger:     logger,
	}
}

type executeRequest struct {
	Submission
	Stdin string `json:"stdin"`
}

// Execute runs sub against input.
func (c *Client) Execute(ctx context.Context, sub Submission, input string) (Execution, error) {
	body, err := json.Marshal(executeRequest{Submission: sub, Stdin: input})
	if err != nil {
		return Execution{}, fmt.Errorf("failed to marshal execute request: %w", err)
	}
	var out Execution
	if err := c.do(ctx, http.MethodPost, "/execute", body, &out); err != nil {
		return Execution{}, err
	}
	return out, nil
}

// RandomChallenge draws any challenge of the given difficulty.
func (c *Client) RandomChallenge(ctx context.Context, level int) (Challenge, error) {
	var ch Challenge
	path := "/challenges/random?level=" + strconv.Itoa(level)
	if err := c.do(ctx, http.MethodGet, path, nil, &ch); err != nil {
		return Challenge{}, err
	}
	return ch, nil
}

// GetChallenge fetches a challenge by title.
func (c *Client) GetChallenge(ctx context.Context, title string) (Challenge, error) {
	var ch Challenge
	if err := c.do(ctx, http.MethodGet, "/challenges/"+url.PathEscape(title), nil, &ch); err != nil {
		return Challenge{}, err
	}
	return ch, nil
}

// do performs the request, retrying transport errors, 429 and 5xx with
// exponential backoff. Other 4xx responses fail immediately.
func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(math.Pow(2, float64(attempt-1))) * c.backoff
			c.logger.WithFields(logrus.Fields{"path": path, "attempt": attempt + 1}).Debugf("judge retry in %v: %v", wait, lastErr)
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			case <-time.After(wait):
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("%w: failed to create request: %v", ErrUnavailable, err)
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("%w: %s %s returned %d: %s", ErrUnavailable, method, path, resp.StatusCode, bytes.TrimSpace(respBody))
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("%w: failed to decode response: %v", ErrUnavailable, err)
		}
		return nil
	}
	return fmt.Errorf("%w: %s %s after %d attempts: %v", ErrUnavailable, method, path, c.maxRetries, lastErr)
}
