package seafile

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/italolelis/seafile_downloader/internal/logctx"
	"github.com/italolelis/seafile_downloader/internal/transfer"
)

const csrfField = "csrfmiddlewaretoken"

// promptMarkers show up on the page only while the share is still locked.
var promptMarkers = []string{"Please input the password", "请输入密码"}

// formMarkers additionally detect the password input itself.
var formMarkers = append([]string{`id="password"`, `name="password"`}, promptMarkers...)

// NeedsPassword fetches the share landing page and looks for a password form.
func (c *Client) NeedsPassword(ctx context.Context, shareKey string) (bool, error) {
	logger := logctx.LoggerFromContext(ctx).With("share_key", shareKey)

	page, err := c.getPage(ctx, shareKey)
	if err != nil {
		return false, &transfer.NetworkError{Operation: "check_password", Err: err}
	}

	needs := containsRaw(page, formMarkers)
	logger.DebugContext(ctx, "checked share page", "needs_password", needs)

	return needs, nil
}

// VerifyPassword unlocks the share for this session. The landing page is fetched first for
// the anti-forgery token and session cookie, then the password form is posted back with it.
func (c *Client) VerifyPassword(ctx context.Context, shareKey, password string) error {
	logger := logctx.LoggerFromContext(ctx).With("share_key", shareKey)

	page, err := c.getPage(ctx, shareKey)
	if err != nil {
		return &transfer.NetworkError{Operation: "verify_password", Err: err}
	}

	form := url.Values{"password": {password}}

	if token := extractCSRFToken(page); token != "" {
		form.Set(csrfField, token)
	} else {
		logger.DebugContext(ctx, "share page has no csrf token")
	}

	pageURL := c.pageURL(shareKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pageURL, strings.NewReader(form.Encode()))
	if err != nil {
		return &transfer.NetworkError{Operation: "verify_password", Err: err}
	}

	c.prepare(req, nil)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", pageURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &transfer.NetworkError{Operation: "verify_password", Err: err}
	}
	defer resp.Body.Close()

	if isSuccess(resp.StatusCode) || isRedirect(resp.StatusCode) {
		body, _ := io.ReadAll(resp.Body)
		if containsRaw(string(body), promptMarkers) {
			logger.WarnContext(ctx, "share password rejected")

			return transfer.ErrPasswordInvalid
		}

		logger.DebugContext(ctx, "share password accepted")

		return nil
	}

	return c.failure(resp, "verify_password", true)
}

func (c *Client) getPage(ctx context.Context, shareKey string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pageURL(shareKey), nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(c.prepare(req, nil))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	return string(body), nil
}

// extractCSRFToken returns the value of the csrfmiddlewaretoken input, if any. The tokenizer
// accepts double-quoted, single-quoted and unquoted attribute values.
func extractCSRFToken(page string) string {
	z := html.NewTokenizer(strings.NewReader(page))

	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.Data != "input" {
				continue
			}

			var name, value string

			for _, attr := range tok.Attr {
				switch attr.Key {
				case "name":
					name = attr.Val
				case "value":
					value = attr.Val
				}
			}

			if name == csrfField && value != "" {
				return value
			}
		}
	}
}

func containsRaw(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}

	return false
}

func isRedirect(status int) bool {
	return status >= http.StatusMultipleChoices && status < http.StatusBadRequest
}
