package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"time"

	"shodh/internal/common/http/middleware"

	"github.com/google/uuid"
)

// ResponseInfo carries response details.
type ResponseInfo struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	TraceID    string
}

// Client wraps HTTP requests for CLI. Cookies persist for the session so the
// server can keep cookie-backed join state.
type Client struct {
	baseURL      string
	http         *http.Client
	userProvider func() int64
}

func New(baseURL string, timeout time.Duration, userProvider func() int64) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		baseURL:      baseURL,
		http:         &http.Client{Timeout: timeout, Jar: jar},
		userProvider: userProvider,
	}
}

// HTTP returns the underlying client, sharing its cookie jar.
func (c *Client) HTTP() *http.Client { return c.http }

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

func (c *Client) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		c.http.Timeout = timeout
	}
}

func (c *Client) Do(ctx context.Context, method, path string, headers map[string]string, body []byte) (ResponseInfo, error) {
	var info ResponseInfo

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, fmt.Sprintf("%s%s", c.baseURL, path), reader)
	if err != nil {
		return info, fmt.Errorf("build request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	info.TraceID = uuid.NewString()
	req.Header.Set(middleware.TraceIDHeader, info.TraceID)
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	if c.userProvider != nil {
		if userID := c.userProvider(); userID > 0 {
			req.Header.Set(middleware.UserIDHeader, strconv.FormatInt(userID, 10))
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	info.Duration = time.Since(start)
	if err != nil {
		return info, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	info.StatusCode = resp.StatusCode
	info.Headers = resp.Header
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return info, fmt.Errorf("read response body failed: %w", err)
	}
	info.Body = bodyBytes
	return info, nil
}
