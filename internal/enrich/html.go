package enrich

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// maxBodyBytes caps how much of a page is read for metadata.
const maxBodyBytes = 128 * 1024

type pageMeta struct {
	title       string
	ogTitle     string
	description string
	ogDesc      string
	siteName    string
}

// parsePageMeta extracts <title>, meta description and Open Graph tags.
func parsePageMeta(r io.Reader) (pageMeta, error) {
	doc, err := html.Parse(io.LimitReader(r, maxBodyBytes))
	if err != nil {
		return pageMeta{}, err
	}

	var m pageMeta
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if m.title == "" && n.FirstChild != nil {
					m.title = n.FirstChild.Data
				}
			case "meta":
				var name, property, content string
				for _, attr := range n.Attr {
					switch strings.ToLower(attr.Key) {
					case "name":
						name = strings.ToLower(attr.Val)
					case "property":
						property = strings.ToLower(attr.Val)
					case "content":
						content = attr.Val
					}
				}
				switch {
				case name == "description":
					m.description = content
				case property == "og:title":
					m.ogTitle = content
				case property == "og:description":
					m.ogDesc = content
				case property == "og:site_name":
					m.siteName = content
				case name == "twitter:title" && m.ogTitle == "":
					m.ogTitle = content
				case name == "twitter:description" && m.ogDesc == "":
					m.ogDesc = content
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return m, nil
}

func (m pageMeta) bestTitle() string {
	return firstNonEmpty(m.ogTitle, m.title)
}

func (m pageMeta) bestDescription() string {
	return firstNonEmpty(m.ogDesc, m.description)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
