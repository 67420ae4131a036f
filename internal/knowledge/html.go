package knowledge

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// plainText strips markup from a search snippet and collapses whitespace
func plainText(fragment string) string {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
	})
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}

	var buf strings.Builder
	for _, n := range nodes {
		buf.WriteString(nodeText(n))
		buf.WriteString(" ")
	}
	return strings.Join(strings.Fields(buf.String()), " ")
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var buf strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		buf.WriteString(nodeText(c))
	}
	return buf.String()
}

func hasClass(n *html.Node, className string) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, class := range strings.Fields(attr(n, "class")) {
		if class == className {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if match(node) {
			out = append(out, node)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

// disambiguationOptions lists the article titles a disambiguation page links
// to from its list items, in page order. Links into other namespaces
// (Help:, Special:, ...) and navigation boxes are skipped.
func disambiguationOptions(doc *html.Node) []string {
	content := findFirst(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "div" && hasClass(n, "mw-parser-output")
	})
	if content == nil {
		content = doc
	}

	var options []string
	seen := make(map[string]bool)
	for _, li := range findAll(content, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "li"
	}) {
		if insideNavigation(li) {
			continue
		}
		link := findFirst(li, func(n *html.Node) bool {
			return n.Type == html.ElementNode && n.Data == "a" && strings.HasPrefix(attr(n, "href"), "/wiki/")
		})
		if link == nil {
			continue
		}
		title := articleTitle(link)
		if title == "" || seen[title] {
			continue
		}
		seen[title] = true
		options = append(options, title)
	}
	return options
}

func insideNavigation(n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if hasClass(p, "navbox") || hasClass(p, "toc") || hasClass(p, "hatnote") || attr(p, "id") == "toc" {
			return true
		}
	}
	return false
}

func articleTitle(link *html.Node) string {
	path := strings.TrimPrefix(attr(link, "href"), "/wiki/")
	if i := strings.IndexAny(path, "#?"); i >= 0 {
		path = path[:i]
	}
	decoded, err := url.PathUnescape(path)
	if err != nil || decoded == "" || strings.Contains(decoded, ":") {
		return ""
	}
	if title := attr(link, "title"); title != "" {
		return title
	}
	return strings.ReplaceAll(decoded, "_", " ")
}

// pagePath turns a title into its /wiki/ path
func pagePath(title string) string {
	return "/wiki/" + url.PathEscape(strings.ReplaceAll(title, " ", "_"))
}
