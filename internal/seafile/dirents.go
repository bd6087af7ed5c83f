package seafile

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/italolelis/seafile_downloader/internal/transfer"
)

type direntsResponse struct {
	DirentList []transfer.Dirent `json:"dirent_list"`
}

// ListDirents lists one directory of the share. Fields missing from the response keep their
// zero values.
func (c *Client) ListDirents(ctx context.Context, shareKey, path string, password *string) ([]transfer.Dirent, error) {
	endpoint := fmt.Sprintf("%s/api/v2.1/share-links/%s/dirents/?path=%s",
		c.baseURL, url.PathEscape(shareKey), url.QueryEscape(path))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &transfer.NetworkError{Operation: "list_dirents", Err: err}
	}

	resp, err := c.httpClient.Do(c.prepare(req, password))
	if err != nil {
		return nil, &transfer.NetworkError{Operation: "list_dirents", Err: err}
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return nil, c.failure(resp, "list_dirents", password != nil)
	}

	var out direntsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &transfer.NetworkError{Operation: "list_dirents", Err: fmt.Errorf("decode response: %w", err)}
	}

	return out.DirentList, nil
}
