package catalog

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// filterClasses are the class names carried by filter control labels across
// the known layout revisions, in preference order.
var filterClasses = []string{
	"dropdown-filter__btn-name",
	"filter__title",
	"filter-block__title",
}

// extractFilterLabels parses a rendered page snapshot and collects the text of
// every filter control label, in document order.
func extractFilterLabels(snapshot string) ([]string, error) {
	doc, err := html.Parse(strings.NewReader(snapshot))
	if err != nil {
		return nil, fmt.Errorf("parse page snapshot: %w", err)
	}

	var labels []string
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && hasFilterClass(n) {
			if text := strings.TrimSpace(textContent(n)); text != "" {
				labels = append(labels, text)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)
	return labels, nil
}

func hasFilterClass(n *html.Node) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, cls := range strings.Fields(attr.Val) {
			for _, want := range filterClasses {
				if cls == want {
					return true
				}
			}
		}
	}
	return false
}

// textContent concatenates the text nodes under n.
func textContent(n *html.Node) string {
	var b strings.Builder
	var traverse func(*html.Node)
	traverse = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(n)
	return b.String()
}
