// Package sharelink extracts share keys from public share URLs.
package sharelink

import "strings"

// DefaultBaseURL is the Seafile deployment share links point at unless configured otherwise.
const DefaultBaseURL = "https://cloud.tsinghua.edu.cn"

// Parser recognizes share links of one deployment.
type Parser struct {
	marker string
}

// New returns a Parser for links under baseURL.
func New(baseURL string) *Parser {
	return &Parser{marker: strings.TrimRight(baseURL, "/") + "/d/"}
}

// Parse returns the key between the "/d/" marker and the next slash.
// An empty result means link is not a recognized share link.
func (p *Parser) Parse(link string) string {
	pos := strings.Index(link, p.marker)
	if pos < 0 {
		return ""
	}

	rest := link[pos+len(p.marker):]

	end := strings.IndexByte(rest, '/')
	if end < 0 {
		return ""
	}

	return rest[:end]
}

// Parse parses link against DefaultBaseURL.
func Parse(link string) string {
	return New(DefaultBaseURL).Parse(link)
}
