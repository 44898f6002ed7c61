// Package htmldom adapts golang.org/x/net/html trees to composed-DOM
// semantics: declarative shadow roots (<template shadowrootmode="open">)
// become shadow roots of their parent element, <slot> elements receive the
// host's light-DOM children, and selector queries stay inside one tree.
//
// Selectors are compiled with cascadia. Ancestor combinators are evaluated
// against the parsed tree, so a descendant selector written inside a shadow
// root may see the host's ancestors; prefer compound selectors there.
package htmldom

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/sktools/shadowtree"
)

// Document is a parsed HTML document with one-shot named events, the static
// stand-in for a browser page.
type Document struct {
	root *html.Node

	mu     sync.Mutex
	sels   map[string]cascadia.Selector
	events map[string]*oneShot
}

type oneShot struct {
	once sync.Once
	ch   chan struct{}
}

// Parse reads a full HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("htmldom: parse: %w", err)
	}
	return NewDocument(root), nil
}

// ParseString is Parse over a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// NewDocument wraps an already parsed tree.
func NewDocument(root *html.Node) *Document {
	return &Document{
		root:   root,
		sels:   make(map[string]cascadia.Selector),
		events: make(map[string]*oneShot),
	}
}

// Root returns the document node as a search root.
func (d *Document) Root() *Node {
	return &Node{n: d.root, kind: kindDocument, doc: d}
}

// HTMLNode exposes the underlying tree.
func (d *Document) HTMLNode() *html.Node { return d.root }

// QueryFirst is document.querySelector: light tree only. Nil when nothing
// matches.
func (d *Document) QueryFirst(selector string) (*Node, error) {
	return d.Root().queryFirst(selector)
}

// Render serialises the whole document, shadow templates included.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// Fire dispatches the named event. Only the first call has an effect.
func (d *Document) Fire(name string) {
	d.event(name).fire()
}

// WaitEvent blocks until the named event fires or ctx is done.
func (d *Document) WaitEvent(ctx context.Context, name string) error {
	select {
	case <-d.event(name).ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Document) event(name string) *oneShot {
	d.mu.Lock()
	defer d.mu.Unlock()
	ev, ok := d.events[name]
	if !ok {
		ev = &oneShot{ch: make(chan struct{})}
		d.events[name] = ev
	}
	return ev
}

func (e *oneShot) fire() {
	e.once.Do(func() { close(e.ch) })
}

func (d *Document) compile(selector string) (cascadia.Selector, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.sels[selector]; ok {
		return s, nil
	}
	s, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("htmldom: selector %q: %w", selector, err)
	}
	d.sels[selector] = s
	return s, nil
}

type kind int

const (
	kindElement kind = iota
	kindShadowRoot
	kindDocument
)

// Node is an element, a shadow root or the document. It implements
// shadowtree.Node.
type Node struct {
	n    *html.Node
	kind kind
	doc  *Document
}

var _ shadowtree.Node = (*Node)(nil)

// HTMLNode returns the wrapped node. For a shadow root this is the
// declarative <template>.
func (n *Node) HTMLNode() *html.Node { return n.n }

// Tag returns the lowercase tag name, "#shadow-root" or "#document".
func (n *Node) Tag() string {
	switch n.kind {
	case kindShadowRoot:
		return "#shadow-root"
	case kindDocument:
		return "#document"
	}
	return n.n.Data
}

// Attr returns an attribute value and whether it is present.
func (n *Node) Attr(key string) (string, bool) {
	for _, a := range n.n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func (n *Node) wrap(h *html.Node) *Node {
	return &Node{n: h, kind: kindElement, doc: n.doc}
}

// QuerySelector implements shadowtree.Node.
func (n *Node) QuerySelector(selector string) (shadowtree.Node, error) {
	hit, err := n.queryFirst(selector)
	if err != nil || hit == nil {
		return nil, err
	}
	return hit, nil
}

func (n *Node) queryFirst(selector string) (*Node, error) {
	sel, err := n.doc.compile(selector)
	if err != nil {
		return nil, err
	}
	var hit *html.Node
	walkLight(n.n, func(c *html.Node) bool {
		if sel.Match(c) {
			hit = c
			return false
		}
		return true
	})
	if hit == nil {
		return nil, nil
	}
	return n.wrap(hit), nil
}

// Descendants implements shadowtree.Node.
func (n *Node) Descendants() ([]shadowtree.Node, error) {
	var out []shadowtree.Node
	walkLight(n.n, func(c *html.Node) bool {
		out = append(out, n.wrap(c))
		return true
	})
	return out, nil
}

// ShadowRoot implements shadowtree.Node. Closed declarative roots are not
// reachable, as in a browser.
func (n *Node) ShadowRoot() (shadowtree.Node, error) {
	if n.kind != kindElement {
		return nil, nil
	}
	if t := openShadowTemplate(n.n); t != nil {
		return &Node{n: t, kind: kindShadowRoot, doc: n.doc}, nil
	}
	return nil, nil
}

// AssignedElements implements shadowtree.Node with flatten semantics.
func (n *Node) AssignedElements() ([]shadowtree.Node, error) {
	if n.kind != kindElement || n.n.DataAtom != atom.Slot {
		return nil, nil
	}
	var out []shadowtree.Node
	for _, c := range flattenedSlottables(n.n) {
		if c.Type == html.ElementNode {
			out = append(out, n.wrap(c))
		}
	}
	return out, nil
}

// InnerHTML renders the children; for a shadow root, its content.
func (n *Node) InnerHTML() string {
	var buf bytes.Buffer
	for c := n.n.FirstChild; c != nil; c = c.NextSibling {
		html.Render(&buf, c)
	}
	return buf.String()
}

// OuterHTML renders the node itself.
func (n *Node) OuterHTML() string {
	var buf bytes.Buffer
	html.Render(&buf, n.n)
	return buf.String()
}

// AppendElement creates an element with the given attributes and text and
// appends it as the last child.
func (n *Node) AppendElement(tag string, attrs []html.Attribute, text string) *Node {
	child := &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
		Attr:     append([]html.Attribute(nil), attrs...),
	}
	if text != "" {
		child.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
	n.n.AppendChild(child)
	return n.wrap(child)
}

// walkLight visits descendant elements of n in document order. Declarative
// shadow templates are skipped entirely and other <template> content is
// inert, matching what a browser exposes to querySelectorAll. fn returns
// false to stop.
func walkLight(n *html.Node, fn func(*html.Node) bool) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || isShadowTemplate(c) {
			continue
		}
		if !fn(c) {
			return false
		}
		if c.DataAtom == atom.Template {
			continue
		}
		if !walkLight(c, fn) {
			return false
		}
	}
	return true
}
