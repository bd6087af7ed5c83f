package seafile

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/italolelis/seafile_downloader/internal/transfer"
)

// FetchFile opens the download redirect for filePath. When offset is positive the request
// asks for the remaining bytes only. The response is returned whatever its status; the
// caller owns the body.
func (c *Client) FetchFile(ctx context.Context, shareKey, filePath string, password *string, offset int64) (*http.Response, error) {
	endpoint := fmt.Sprintf("%s/d/%s/files/?p=%s&dl=1",
		c.baseURL, url.PathEscape(shareKey), url.QueryEscape(filePath))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &transfer.NetworkError{Operation: "download", Err: err}
	}

	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := c.httpClient.Do(c.prepare(req, password))
	if err != nil {
		return nil, &transfer.NetworkError{Operation: "download", Err: err}
	}

	return resp, nil
}
