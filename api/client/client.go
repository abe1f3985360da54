package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/vocdoni/commit-reveal-sequencer/api"
	"github.com/vocdoni/commit-reveal-sequencer/util"
	"go.vocdoni.io/dvote/log"
)

const (
	// HTTPGET is the method string used for calling Request()
	HTTPGET = http.MethodGet
	// HTTPPOST is the method string used for calling Request()
	HTTPPOST = http.MethodPost
	// HTTPPUT is the method string used for calling Request()
	HTTPPUT = http.MethodPut

	// DefaultRetries this enables Request() to handle the situation where the server connection fails
	DefaultRetries = 3
	// DefaultTimeout is the default timeout for the HTTP client
	DefaultTimeout = 10 * time.Second

	retryInterval = 500 * time.Millisecond
)

// HTTPclient is the sequencer API HTTP client.
type HTTPclient struct {
	c       *http.Client
	host    *url.URL
	retries int
}

// New returns a client for the API host, after checking it answers the ping
// endpoint.
func New(host string) (*HTTPclient, error) {
	hostURL, err := url.Parse(host)
	if err != nil {
		return nil, err
	}

	tr := &http.Transport{
		IdleConnTimeout:    DefaultTimeout,
		DisableCompression: false,
	}
	c := &HTTPclient{
		c:       &http.Client{Transport: tr, Timeout: DefaultTimeout},
		host:    hostURL,
		retries: DefaultRetries,
	}
	log.Debugw("http client created", "host", hostURL.String())
	if err := c.Ping(); err != nil {
		return nil, err
	}
	return c, nil
}

// Ping checks the API server is alive.
func (c *HTTPclient) Ping() error {
	return c.do(HTTPGET, nil, nil, api.PingEndpoint)
}

// SetRetries configures the number of retries for the HTTP client.
func (c *HTTPclient) SetRetries(n int) {
	c.retries = n
}

// SetTimeout configures the timeout for the HTTP client.
func (c *HTTPclient) SetTimeout(d time.Duration) {
	c.c.Timeout = d
	if tr, ok := c.c.Transport.(*http.Transport); ok {
		tr.ResponseHeaderTimeout = d
	}
}

// Request performs a `method` type raw request to the endpoint specified in urlPath parameter.
// If a jsonBody is given it is sent JSON encoded. Returns the response,
// the status code and an error.
//
// Supports query parameters via `params` slice. If the slice is not empty, it should contain pairs of strings;
// the first element of each pair is the key, and the second element is the value.
func (c *HTTPclient) Request(method string, jsonBody any, params []string, urlPath ...string) ([]byte, int, error) {
	var body []byte
	if jsonBody != nil {
		var err error
		body, err = json.Marshal(jsonBody)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal JSON: %w", err)
		}
	}
	return c.RawRequest(method, "application/json", body, params, urlPath...)
}

// RawRequest works like Request but sends body as is with the given content
// type.
func (c *HTTPclient) RawRequest(method, contentType string, body []byte, params []string, urlPath ...string) ([]byte, int, error) {
	u := *c.host
	u.Path = path.Join(u.Path, path.Join(urlPath...))

	// Expecting even-length slice: [key1, val1, key2, val2, ...]
	// If length is odd, the last parameter without a pair will be ignored.
	if len(params) > 0 {
		values := url.Values{}
		for i := 0; i < len(params)-1; i += 2 {
			values.Set(params[i], params[i+1])
		}
		u.RawQuery = values.Encode()
	}

	headers := http.Header{}
	if body != nil {
		headers.Set("Content-Type", contentType)
		headers.Set("Accept", "application/json")
	}

	log.Debugw("http client request",
		"type", method,
		"url", u.String(),
		"body", func() string {
			redacted := util.RedactSalt(body)
			if len(redacted) > 512 {
				return redacted[:512] + "..."
			}
			return redacted
		}(),
	)

	var resp *http.Response
	attempt := 0
	backoff := retry.WithMaxRetries(uint64(max(c.retries-1, 0)), retry.NewConstant(retryInterval))
	err := retry.Do(context.Background(), backoff, func(ctx context.Context) error {
		attempt++
		// a fresh request each attempt, the body reader is consumed
		var reqBody io.Reader
		if body != nil {
			reqBody = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header = headers
		if resp, err = c.c.Do(req); err != nil {
			log.Warnw("http request failed", "error", err.Error(), "attempt", attempt, "retries", c.retries)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("http request failed after %d attempts: %w", attempt, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, resp.StatusCode, nil
}
