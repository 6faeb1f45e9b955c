package crawler

import (
	"fmt"
	"io"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Node is a read-only element of a captured document.
type Node interface {
	Find(selector string) []Node
	Text() string
	Attr(name string) (string, bool)
}

// DocumentView is the only thing the extraction engine knows about a page.
type DocumentView interface {
	Find(selector string) []Node
	// BaseURL is the address the document was loaded from; relative links
	// resolve against it.
	BaseURL() string
}

type htmlDocument struct {
	doc  *goquery.Document
	base string
}

// NewDocumentView parses a rendered HTML snapshot.
func NewDocumentView(r io.Reader, baseURL string) (DocumentView, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return &htmlDocument{doc: goquery.NewDocumentFromNode(root), base: baseURL}, nil
}

func (d *htmlDocument) Find(selector string) []Node {
	return wrapSelection(d.doc.Find(selector))
}

func (d *htmlDocument) BaseURL() string {
	return d.base
}

type htmlNode struct {
	sel *goquery.Selection
}

func (n htmlNode) Find(selector string) []Node {
	return wrapSelection(n.sel.Find(selector))
}

func (n htmlNode) Text() string {
	return n.sel.Text()
}

func (n htmlNode) Attr(name string) (string, bool) {
	return n.sel.Attr(name)
}

func wrapSelection(s *goquery.Selection) []Node {
	nodes := make([]Node, 0, s.Length())
	s.Each(func(_ int, el *goquery.Selection) {
		nodes = append(nodes, htmlNode{sel: el})
	})
	return nodes
}
