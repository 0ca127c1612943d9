package eastmoney

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	defaultQuoteBaseURL   = "https://push2.eastmoney.com"
	defaultHistoryBaseURL = "https://push2his.eastmoney.com"

	defaultHTTPTimeout      = 10 * time.Second
	defaultMaxRetries       = 3
	defaultRetryBackoffBase = 150 * time.Millisecond
	defaultUserAgent        = "marketpulse/1.0"
)

// quoteFields is the field set requested from the stock/get endpoint.
const quoteFields = "f43,f44,f45,f46,f47,f48,f57,f58,f60,f127"

// Client talks to the Eastmoney push2 quote and kline endpoints.
type Client struct {
	quoteBaseURL   string
	historyBaseURL string
	httpClient     *http.Client
	maxRetries     int
	retryBackoff   time.Duration
	userAgent      string
}

// Option configures a new Client.
type Option func(*Client)

// WithHTTPClient injects a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBaseURL points both endpoints at one host, for tests and proxies.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.quoteBaseURL = base
			c.historyBaseURL = base
		}
	}
}

// WithQuoteBaseURL overrides only the realtime quote host.
func WithQuoteBaseURL(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.quoteBaseURL = base
		}
	}
}

// WithHistoryBaseURL overrides only the kline history host.
func WithHistoryBaseURL(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.historyBaseURL = base
		}
	}
}

// WithMaxRetries adjusts the retry budget for transient HTTP failures.
func WithMaxRetries(max int) Option {
	return func(c *Client) {
		if max >= 0 {
			c.maxRetries = max
		}
	}
}

// WithRetryBackoff sets the initial backoff between retries. The delay
// doubles after each failed attempt.
func WithRetryBackoff(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.retryBackoff = d
		}
	}
}

// WithUserAgent sets the User-Agent header sent on every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// NewClient constructs an Eastmoney API client.
func NewClient(opts ...Option) *Client {
	client := &Client{
		quoteBaseURL:   defaultQuoteBaseURL,
		historyBaseURL: defaultHistoryBaseURL,
		httpClient:     &http.Client{Timeout: defaultHTTPTimeout},
		maxRetries:     defaultMaxRetries,
		retryBackoff:   defaultRetryBackoffBase,
		userAgent:      defaultUserAgent,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return client
}

// getQuote fetches the latest quote payload for a secid.
func (c *Client) getQuote(ctx context.Context, secid string) (*quoteData, error) {
	params := url.Values{}
	params.Set("secid", secid)
	params.Set("fltt", "2")
	params.Set("invt", "2")
	params.Set("fields", quoteFields)

	var payload quoteResponse
	endpoint := c.quoteBaseURL + "/api/qt/stock/get?" + params.Encode()
	if err := c.doRequest(ctx, endpoint, &payload); err != nil {
		return nil, err
	}
	return payload.Data, nil
}

// getKlines fetches up to count bars for a secid at the given klt interval.
func (c *Client) getKlines(ctx context.Context, secid, klt string, count int) (*klineData, error) {
	params := url.Values{}
	params.Set("secid", secid)
	params.Set("klt", klt)
	params.Set("fqt", "1")
	params.Set("lmt", fmt.Sprintf("%d", count))
	params.Set("end", "20500101")
	params.Set("fields1", "f1,f2,f3,f4,f5,f6")
	params.Set("fields2", "f51,f52,f53,f54,f55,f56,f57,f58,f59,f60,f61")

	var payload klineResponse
	endpoint := c.historyBaseURL + "/api/qt/stock/kline/get?" + params.Encode()
	if err := c.doRequest(ctx, endpoint, &payload); err != nil {
		return nil, err
	}
	return payload.Data, nil
}

// jsonpPattern strips the legacy jQuery callback wrapper some mirrors of
// the API still emit.
var jsonpPattern = regexp.MustCompile(`^[\w.$]+\((.*)\);?\s*$`)

// doRequest issues a GET and decodes the (possibly JSONP-wrapped) body.
func (c *Client) doRequest(ctx context.Context, endpoint string, result interface{}) error {
	var lastErr error
	backoff := c.retryBackoff
	if backoff <= 0 {
		backoff = defaultRetryBackoffBase
	}
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("eastmoney: build request: %w", err)
		}
		httpReq.Header.Set("Accept", "application/json")
		httpReq.Header.Set("User-Agent", c.userAgent)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
		} else {
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr != nil {
				lastErr = fmt.Errorf("eastmoney: read response: %w", readErr)
			} else if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				lastErr = fmt.Errorf("eastmoney: http status %d: %s", resp.StatusCode, truncate(body, 256))
			} else {
				if result != nil {
					if err := json.Unmarshal(stripJSONP(body), result); err != nil {
						return fmt.Errorf("eastmoney: decode response: %w", err)
					}
				}
				return nil
			}
		}

		if attempt < c.maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}
	}
	if lastErr != nil {
		return lastErr
	}
	return errors.New("eastmoney: request failed without error detail")
}

func stripJSONP(body []byte) []byte {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return body
	}
	if m := jsonpPattern.FindStringSubmatch(trimmed); m != nil {
		return []byte(m[1])
	}
	return body
}

func truncate(body []byte, limit int) string {
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit]) + "..."
}
