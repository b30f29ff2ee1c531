// Package htmltext turns raw email HTML into the line-oriented plain text the
// institution extractors match against.
package htmltext

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// dropped elements are removed with their whole subtree.
var dropped = map[atom.Atom]bool{
	atom.Script: true,
	atom.Style:  true,
	atom.Meta:   true,
}

// Normalize returns the visible text of raw, one trimmed text node per line.
// Empty text nodes are skipped. Input that is not HTML is treated as a single text body.
func Normalize(raw string) string {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		// html.Parse only fails on reader errors, which a strings.Reader never returns.
		return strings.TrimSpace(raw)
	}

	var lines []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			if dropped[n.DataAtom] {
				return
			}
		case html.TextNode:
			if s := strings.TrimSpace(n.Data); s != "" {
				lines = append(lines, s)
			}
			return
		case html.CommentNode, html.DoctypeNode:
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.Join(lines, "\n")
}

// Lines splits normalized text back into its lines.
func Lines(text string) []string {
	return strings.Split(text, "\n")
}
