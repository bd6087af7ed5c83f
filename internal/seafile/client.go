// Package seafile implements the share-link wire protocol of a Seafile server.
package seafile

import (
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/publicsuffix"

	"github.com/italolelis/seafile_downloader/internal/sharelink"
	"github.com/italolelis/seafile_downloader/internal/transfer"
)

// DefaultUserAgent is sent on every request. The server serves a different page to
// clients it does not recognize as browsers.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/112.0.0.0 Safari/537.36"

const passwordHeader = "X-Seafile-Password"

// maxErrorBody bounds how much of an error response is read for classification.
const maxErrorBody = 64 << 10

type Config struct {
	BaseURL    string
	UserAgent  string
	Timeout    time.Duration
	Transport  http.RoundTripper
	Classifier Classifier
}

// Client is one session against a share. The cookie jar carries the session established by
// VerifyPassword into later listing and download calls.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	classifier Classifier
}

// Ensure Client implements ShareClient
var _ transfer.ShareClient = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	base := cfg.BaseURL
	if base == "" {
		base = sharelink.DefaultBaseURL
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}

	rt := cfg.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}

	classifier := cfg.Classifier
	if classifier == nil {
		classifier = DefaultClassifier
	}

	return &Client{
		baseURL:   strings.TrimRight(base, "/"),
		userAgent: ua,
		httpClient: &http.Client{
			Jar:       jar,
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(rt),
		},
		classifier: classifier,
	}, nil
}

// NewSessionFactory returns a factory that opens a fresh client, and so a fresh cookie jar,
// for every top-level operation.
func NewSessionFactory(cfg Config) transfer.SessionFactory {
	return func() (transfer.ShareClient, error) {
		return NewClient(cfg)
	}
}

// Classify maps an HTTP failure to a password outcome, or nil when the failure is unrelated.
func (c *Client) Classify(status int, body string, hadPassword bool) error {
	return c.classifier.Classify(status, body, hadPassword).Err()
}

func (c *Client) pageURL(shareKey string) string {
	return fmt.Sprintf("%s/d/%s/", c.baseURL, url.PathEscape(shareKey))
}

func (c *Client) prepare(req *http.Request, password *string) *http.Request {
	req.Header.Set("User-Agent", c.userAgent)

	if password != nil {
		req.Header.Set(passwordHeader, *password)

		q := req.URL.Query()
		q.Set("password", *password)
		req.URL.RawQuery = q.Encode()
	}

	return req
}

// failure turns a non-success response into either a password outcome or a NetworkError.
func (c *Client) failure(resp *http.Response, operation string, hadPassword bool) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	if err := c.Classify(resp.StatusCode, string(body), hadPassword); err != nil {
		return err
	}

	return &transfer.NetworkError{Operation: operation, StatusCode: resp.StatusCode}
}

func isSuccess(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}
