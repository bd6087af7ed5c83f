package transfer

import (
	"context"
	"net/http"

	"github.com/italolelis/seafile_downloader/internal/telemetry"
)

// InstrumentedShareClient wraps ShareClient with telemetry.
type InstrumentedShareClient struct {
	client     ShareClient
	telemetry  *telemetry.Telemetry
	clientType string
}

// NewInstrumentedShareClient creates a new instrumented share client.
func NewInstrumentedShareClient(client ShareClient, tel *telemetry.Telemetry, clientType string) *InstrumentedShareClient {
	return &InstrumentedShareClient{
		client:     client,
		telemetry:  tel,
		clientType: clientType,
	}
}

// InstrumentSessions decorates every session opened by factory.
func InstrumentSessions(factory SessionFactory, tel *telemetry.Telemetry, clientType string) SessionFactory {
	if tel == nil {
		return factory
	}

	return func() (ShareClient, error) {
		c, err := factory()
		if err != nil {
			return nil, err
		}

		return NewInstrumentedShareClient(c, tel, clientType), nil
	}
}

// NeedsPassword checks the share landing page with telemetry.
func (c *InstrumentedShareClient) NeedsPassword(ctx context.Context, shareKey string) (bool, error) {
	var result bool

	var err error

	instrumentedErr := c.telemetry.InstrumentClientOperation(ctx, c.clientType, "needs_password", func(ctx context.Context) error {
		result, err = c.client.NeedsPassword(ctx, shareKey)

		return err
	})

	if instrumentedErr != nil {
		return false, instrumentedErr
	}

	return result, nil
}

// VerifyPassword submits the share password with telemetry.
func (c *InstrumentedShareClient) VerifyPassword(ctx context.Context, shareKey, password string) error {
	return c.telemetry.InstrumentClientOperation(ctx, c.clientType, "verify_password", func(ctx context.Context) error {
		return c.client.VerifyPassword(ctx, shareKey, password)
	})
}

// ListDirents lists a directory with telemetry.
func (c *InstrumentedShareClient) ListDirents(ctx context.Context, shareKey, path string, password *string) ([]Dirent, error) {
	var result []Dirent

	var err error

	instrumentedErr := c.telemetry.InstrumentClientOperation(ctx, c.clientType, "list_dirents", func(ctx context.Context) error {
		result, err = c.client.ListDirents(ctx, shareKey, path, password)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}

// FetchFile opens a file download with telemetry. Only the request is measured; the body
// is streamed by the caller.
func (c *InstrumentedShareClient) FetchFile(ctx context.Context, shareKey, filePath string, password *string, offset int64) (*http.Response, error) {
	var result *http.Response

	var err error

	instrumentedErr := c.telemetry.InstrumentClientOperation(ctx, c.clientType, "fetch_file", func(ctx context.Context) error {
		result, err = c.client.FetchFile(ctx, shareKey, filePath, password, offset)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}

// Classify delegates to the wrapped client.
func (c *InstrumentedShareClient) Classify(status int, body string, hadPassword bool) error {
	return c.client.Classify(status, body, hadPassword)
}
