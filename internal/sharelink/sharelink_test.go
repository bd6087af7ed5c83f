package sharelink

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		link string
		want string
	}{
		{name: "plain", link: "https://cloud.tsinghua.edu.cn/d/abc123/", want: "abc123"},
		{name: "with query", link: "https://cloud.tsinghua.edu.cn/d/abc123/?p=%2Fdocs", want: "abc123"},
		{name: "nested path", link: "https://cloud.tsinghua.edu.cn/d/k9/files/?p=/a.txt", want: "k9"},
		{name: "surrounding text", link: "see https://cloud.tsinghua.edu.cn/d/xyz/ now", want: "xyz"},
		{name: "no trailing slash", link: "https://cloud.tsinghua.edu.cn/d/abc123", want: ""},
		{name: "other host", link: "https://example.com/d/abc123/", want: ""},
		{name: "file link", link: "https://cloud.tsinghua.edu.cn/f/abc123/", want: ""},
		{name: "empty", link: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.link))
		})
	}
}

func TestParserCustomBase(t *testing.T) {
	p := New("http://127.0.0.1:8080/")

	assert.Equal(t, "key", p.Parse("http://127.0.0.1:8080/d/key/"))
	assert.Empty(t, p.Parse("https://cloud.tsinghua.edu.cn/d/key/"))
}
