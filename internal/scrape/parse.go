package scrape

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// selector is the minimal addressing the reference driver needs for record
// pages: "tag", "tag.class", ".class", or "#id".
type selector struct {
	tag   string
	class string
	id    string
}

func parseSelector(s string) (selector, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return selector{}, fmt.Errorf("empty selector")
	}
	if strings.HasPrefix(s, "#") {
		return selector{id: s[1:]}, nil
	}
	if i := strings.Index(s, "."); i >= 0 {
		return selector{tag: s[:i], class: s[i+1:]}, nil
	}
	return selector{tag: s}, nil
}

func (sel selector) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if sel.tag != "" && n.Data != sel.tag {
		return false
	}
	for _, attr := range n.Attr {
		switch attr.Key {
		case "id":
			if sel.id != "" && attr.Val == sel.id {
				return true
			}
		case "class":
			if sel.class != "" && hasClass(attr.Val, sel.class) {
				if sel.tag == "" || n.Data == sel.tag {
					return true
				}
			}
		}
	}
	if sel.id != "" || sel.class != "" {
		return false
	}
	return sel.tag != "" && n.Data == sel.tag
}

func hasClass(classAttr, class string) bool {
	for _, c := range strings.Fields(classAttr) {
		if c == class {
			return true
		}
	}
	return false
}

// findFirst returns the first node matching the selector in document order.
func findFirst(root *html.Node, sel selector) *html.Node {
	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if sel.matches(n) {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return found
}

// textContent collects and normalizes the visible text under a node.
func textContent(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteString(" ")
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// anchorUnder returns the first <a> at or under the node, with its href.
func anchorUnder(n *html.Node) (*html.Node, string) {
	if n == nil {
		return nil, ""
	}
	var found *html.Node
	var href string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" {
					found, href = n, strings.TrimSpace(attr.Val)
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return found, href
}
