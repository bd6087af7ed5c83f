package seafile

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/seafile_downloader/internal/transfer"
)

const (
	testKey      = "abc123"
	testPassword = "s3cret"
	testToken    = "tok-42"
	sessionName  = "sfcsrftoken_unlocked"
)

const lockedPage = `<html><body>
<p>Please input the password if you want to browse the shared folder.</p>
<form method="post">
<input type='hidden' name='csrfmiddlewaretoken' value='` + testToken + `'>
<input type="password" name="password" id="password">
</form></body></html>`

const openPage = `<html><body><div id="wrapper">shared folder</div></body></html>`

// fakeShare emulates the share endpoints of a Seafile server.
type fakeShare struct {
	t        *testing.T
	locked   bool
	mu       sync.Mutex
	requests []*http.Request
	forms    []map[string]string
}

func (f *fakeShare) unlocked(r *http.Request) bool {
	if !f.locked {
		return true
	}

	c, err := r.Cookie(sessionName)

	return err == nil && c.Value == "1"
}

func (f *fakeShare) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r.Clone(context.Background()))
	f.mu.Unlock()

	page := "/d/" + testKey + "/"

	switch {
	case r.URL.Path == page && r.Method == http.MethodGet:
		if f.unlocked(r) {
			fmt.Fprint(w, openPage)

			return
		}

		fmt.Fprint(w, lockedPage)
	case r.URL.Path == page && r.Method == http.MethodPost:
		assert.NoError(f.t, r.ParseForm())
		f.mu.Lock()
		f.forms = append(f.forms, map[string]string{
			"password":            r.PostForm.Get("password"),
			"csrfmiddlewaretoken": r.PostForm.Get("csrfmiddlewaretoken"),
			"referer":             r.Header.Get("Referer"),
		})
		f.mu.Unlock()

		if r.PostForm.Get("password") != testPassword || r.PostForm.Get("csrfmiddlewaretoken") != testToken {
			fmt.Fprint(w, lockedPage)

			return
		}

		http.SetCookie(w, &http.Cookie{Name: sessionName, Value: "1", Path: "/"})
		http.Redirect(w, r, page, http.StatusFound)
	case r.URL.Path == "/api/v2.1/share-links/"+testKey+"/dirents/":
		if !f.unlocked(r) {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"error_msg":"Please input the password."}`)

			return
		}

		if r.URL.Query().Get("path") == "/gone" {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"error_msg":"not found"}`)

			return
		}

		fmt.Fprint(w, `{"dirent_list":[
			{"is_dir":true,"folder_path":"/docs","folder_name":"docs"},
			{"is_dir":false,"file_path":"/a.txt","file_name":"a.txt","size":12},
			{"file_path":"/b.bin","file_name":"b.bin"}
		]}`)
	case r.URL.Path == "/d/"+testKey+"/files/":
		w.Header().Set("Content-Type", "application/octet-stream")
		fmt.Fprint(w, "payload")
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeShare) last() *http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.requests[len(f.requests)-1]
}

func newTestClient(t *testing.T, locked bool) (*Client, *fakeShare) {
	t.Helper()

	fake := &fakeShare{t: t, locked: locked}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	return c, fake
}

func ptr(s string) *string { return &s }

func TestNeedsPassword(t *testing.T) {
	c, fake := newTestClient(t, true)

	needs, err := c.NeedsPassword(context.Background(), testKey)
	require.NoError(t, err)
	assert.True(t, needs)
	assert.Equal(t, DefaultUserAgent, fake.last().Header.Get("User-Agent"))

	open, _ := newTestClient(t, false)

	needs, err = open.NeedsPassword(context.Background(), testKey)
	require.NoError(t, err)
	assert.False(t, needs)
}

func TestNeedsPasswordNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.NeedsPassword(context.Background(), testKey)

	var netErr *transfer.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.True(t, strings.HasPrefix(err.Error(), "check share page failed:"))
}

func TestVerifyPasswordCarriesSession(t *testing.T) {
	c, fake := newTestClient(t, true)
	ctx := context.Background()

	require.NoError(t, c.VerifyPassword(ctx, testKey, testPassword))

	require.Len(t, fake.forms, 1)
	assert.Equal(t, testToken, fake.forms[0]["csrfmiddlewaretoken"])
	assert.Equal(t, testPassword, fake.forms[0]["password"])
	assert.Equal(t, c.pageURL(testKey), fake.forms[0]["referer"])

	// the cookie from the form post unlocks listing without a password
	dirents, err := c.ListDirents(ctx, testKey, "/", nil)
	require.NoError(t, err)
	assert.Len(t, dirents, 3)
}

func TestVerifyPasswordWrong(t *testing.T) {
	c, _ := newTestClient(t, true)

	err := c.VerifyPassword(context.Background(), testKey, "nope")
	assert.ErrorIs(t, err, transfer.ErrPasswordInvalid)
}

func TestVerifyPasswordClassifiesFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, "share link expired")

			return
		}

		fmt.Fprint(w, lockedPage)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	err = c.VerifyPassword(context.Background(), testKey, testPassword)
	assert.EqualError(t, err, "verify password failed: HTTP 403")
}

func TestListDirents(t *testing.T) {
	c, fake := newTestClient(t, false)

	dirents, err := c.ListDirents(context.Background(), testKey, "/", ptr(testPassword))
	require.NoError(t, err)

	assert.Equal(t, []transfer.Dirent{
		{IsDir: true, FolderPath: "/docs", FolderName: "docs"},
		{FilePath: "/a.txt", FileName: "a.txt", Size: 12},
		{FilePath: "/b.bin", FileName: "b.bin"},
	}, dirents)

	req := fake.last()
	assert.Equal(t, "/", req.URL.Query().Get("path"))
	assert.Equal(t, testPassword, req.URL.Query().Get("password"))
	assert.Equal(t, testPassword, req.Header.Get("X-Seafile-Password"))
}

func TestListDirentsErrors(t *testing.T) {
	locked, _ := newTestClient(t, true)

	_, err := locked.ListDirents(context.Background(), testKey, "/", nil)
	assert.ErrorIs(t, err, transfer.ErrPasswordRequired)

	_, err = locked.ListDirents(context.Background(), testKey, "/", ptr("bad"))
	assert.ErrorIs(t, err, transfer.ErrPasswordInvalid)

	open, _ := newTestClient(t, false)

	_, err = open.ListDirents(context.Background(), testKey, "/gone", nil)
	assert.EqualError(t, err, "list directory failed: HTTP 403")
	assert.False(t, transfer.IsPasswordError(err))
}

func TestFetchFile(t *testing.T) {
	c, fake := newTestClient(t, false)

	resp, err := c.FetchFile(context.Background(), testKey, "/docs/a b.txt", nil, 0)
	require.NoError(t, err)

	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "payload", string(body))

	req := fake.last()
	assert.Equal(t, "/docs/a b.txt", req.URL.Query().Get("p"))
	assert.Equal(t, "1", req.URL.Query().Get("dl"))
	assert.Empty(t, req.Header.Get("Range"))
	assert.Empty(t, req.URL.Query().Get("password"))

	resp, err = c.FetchFile(context.Background(), testKey, "/a.txt", ptr(testPassword), 5)
	require.NoError(t, err)
	resp.Body.Close()

	req = fake.last()
	assert.Equal(t, "bytes=5-", req.Header.Get("Range"))
	assert.Equal(t, testPassword, req.Header.Get("X-Seafile-Password"))
}

func TestExtractCSRFToken(t *testing.T) {
	tests := []struct {
		name string
		page string
		want string
	}{
		{name: "double quotes", page: `<input type="hidden" name="csrfmiddlewaretoken" value="abc">`, want: "abc"},
		{name: "single quotes", page: `<input type='hidden' name='csrfmiddlewaretoken' value='def'>`, want: "def"},
		{name: "value first", page: `<form><input value="ghi" name="csrfmiddlewaretoken" /></form>`, want: "ghi"},
		{name: "unquoted", page: `<input name=csrfmiddlewaretoken value=jkl>`, want: "jkl"},
		{name: "absent", page: `<input name="password">`, want: ""},
		{name: "empty", page: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractCSRFToken(tt.page))
		})
	}
}

func TestSessionFactoryOpensFreshJar(t *testing.T) {
	srv := httptest.NewServer(&fakeShare{t: t, locked: true})
	t.Cleanup(srv.Close)

	factory := NewSessionFactory(Config{BaseURL: srv.URL})

	first, err := factory()
	require.NoError(t, err)
	require.NoError(t, first.VerifyPassword(context.Background(), testKey, testPassword))

	second, err := factory()
	require.NoError(t, err)

	needs, err := second.NeedsPassword(context.Background(), testKey)
	require.NoError(t, err)
	assert.True(t, needs)
}
