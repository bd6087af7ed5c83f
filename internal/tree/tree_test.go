package tree

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/seafile_downloader/internal/transfer"
)

type fakeClient struct {
	locked    bool
	verifyErr error
	listing   map[string][]transfer.Dirent
	listErr   map[string]error

	verifyCalls int
	listCalls   []string
	passwords   []*string
}

func (f *fakeClient) NeedsPassword(context.Context, string) (bool, error) {
	return f.locked, nil
}

func (f *fakeClient) VerifyPassword(context.Context, string, string) error {
	f.verifyCalls++

	return f.verifyErr
}

func (f *fakeClient) ListDirents(_ context.Context, _ string, path string, password *string) ([]transfer.Dirent, error) {
	f.listCalls = append(f.listCalls, path)
	f.passwords = append(f.passwords, password)

	if err := f.listErr[path]; err != nil {
		return nil, err
	}

	return f.listing[path], nil
}

func (f *fakeClient) FetchFile(context.Context, string, string, *string, int64) (*http.Response, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeClient) Classify(int, string, bool) error { return nil }

func factoryFor(c *fakeClient) transfer.SessionFactory {
	return func() (transfer.ShareClient, error) { return c, nil }
}

func nestedListing() map[string][]transfer.Dirent {
	return map[string][]transfer.Dirent{
		"/": {
			{IsDir: true, FolderPath: "/docs/", FolderName: "docs"},
			{FilePath: "/readme.md", FileName: "readme.md", Size: 10},
			{IsDir: true, FolderPath: "/media/", FolderName: "media"},
		},
		"/docs/": {
			{IsDir: true, FolderPath: "/docs/deep/", FolderName: "deep"},
			{FilePath: "/docs/a.pdf", FileName: "a.pdf", Size: 100},
		},
		"/media/": {
			{FilePath: "/media/v.mp4", FileName: "v.mp4", Size: 1000},
		},
		"/docs/deep/": {
			{FilePath: "/docs/deep/b.txt", FileName: "b.txt", Size: 1},
		},
	}
}

func ids(nodes []transfer.FileNode) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}

	return out
}

func TestDiscoverBreadthFirst(t *testing.T) {
	client := &fakeClient{listing: nestedListing()}

	nodes, err := NewDiscoverer(factoryFor(client), nil).Discover(context.Background(), "key", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/", "/docs/", "/readme.md", "/media/",
		"/docs/deep/", "/docs/a.pdf",
		"/media/v.mp4",
		"/docs/deep/b.txt",
	}, ids(nodes))
	assert.Equal(t, []string{"/", "/docs/", "/media/", "/docs/deep/"}, client.listCalls)
	assert.Zero(t, client.verifyCalls)

	require.NoError(t, Validate(nodes))
	assert.True(t, nodes[0].IsRoot())
	assert.Equal(t, "/docs/", *nodes[4].Parent)
}

func TestDiscoverRequiresPasswordBeforeListing(t *testing.T) {
	client := &fakeClient{locked: true, listing: nestedListing()}

	_, err := NewDiscoverer(factoryFor(client), nil).Discover(context.Background(), "key", nil)
	require.ErrorIs(t, err, transfer.ErrPasswordRequired)
	assert.Equal(t, "PASSWORD_REQUIRED", err.Error())
	assert.Empty(t, client.listCalls)
	assert.Zero(t, client.verifyCalls)
}

func TestDiscoverVerifiesOnceAndForwardsPassword(t *testing.T) {
	client := &fakeClient{locked: true, listing: nestedListing()}
	pw := "secret"

	nodes, err := NewDiscoverer(factoryFor(client), nil).Discover(context.Background(), "key", &pw)
	require.NoError(t, err)
	assert.Len(t, nodes, 8)
	assert.Equal(t, 1, client.verifyCalls)

	for _, p := range client.passwords {
		require.NotNil(t, p)
		assert.Equal(t, pw, *p)
	}
}

func TestDiscoverErrors(t *testing.T) {
	t.Run("wrong password stops before listing", func(t *testing.T) {
		client := &fakeClient{locked: true, verifyErr: transfer.ErrPasswordInvalid}
		pw := "bad"

		_, err := NewDiscoverer(factoryFor(client), nil).Discover(context.Background(), "key", &pw)
		require.ErrorIs(t, err, transfer.ErrPasswordInvalid)
		assert.Empty(t, client.listCalls)
	})

	t.Run("listing failure aborts walk", func(t *testing.T) {
		listErr := &transfer.NetworkError{Operation: "list_dirents", StatusCode: http.StatusInternalServerError}
		client := &fakeClient{
			listing: nestedListing(),
			listErr: map[string]error{"/media/": listErr},
		}

		nodes, err := NewDiscoverer(factoryFor(client), nil).Discover(context.Background(), "key", nil)
		require.ErrorIs(t, err, listErr)
		assert.Nil(t, nodes)
		assert.EqualError(t, err, "list directory failed: HTTP 500")
	})

	t.Run("session factory failure", func(t *testing.T) {
		factory := func() (transfer.ShareClient, error) { return nil, errors.New("no jar") }

		_, err := NewDiscoverer(factory, nil).Discover(context.Background(), "key", nil)
		assert.ErrorContains(t, err, "no jar")
	})
}

func TestDiscoverEmptyShare(t *testing.T) {
	client := &fakeClient{listing: map[string][]transfer.Dirent{}}

	nodes, err := NewDiscoverer(factoryFor(client), nil).Discover(context.Background(), "key", nil)
	require.NoError(t, err)
	assert.Equal(t, []transfer.FileNode{Root()}, nodes)
}
