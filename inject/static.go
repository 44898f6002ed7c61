package inject

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/net/html"

	"github.com/hazyhaar/sktools/htmldom"
	"github.com/hazyhaar/sktools/shadowtree"
)

// Static is a Document over parsed HTML with declarative shadow roots. The
// ready event is fired with Fire; clicks are simulated with Click.
type Static struct {
	doc        *htmldom.Document
	url        string
	onActivate func(ctx context.Context)

	mu      sync.Mutex
	buttons []*htmldom.Node
}

// NewStatic wraps doc. onActivate may be nil.
func NewStatic(doc *htmldom.Document, url string, onActivate func(ctx context.Context)) *Static {
	return &Static{doc: doc, url: url, onActivate: onActivate}
}

// HTML returns the underlying document.
func (s *Static) HTML() *htmldom.Document { return s.doc }

// Fire dispatches a document event.
func (s *Static) Fire(name string) { s.doc.Fire(name) }

func (s *Static) URL() string { return s.url }

func (s *Static) QueryHost(_ context.Context, selector string) (shadowtree.Node, error) {
	n, err := s.doc.QueryFirst(selector)
	if err != nil || n == nil {
		return nil, err
	}
	return n, nil
}

func (s *Static) WaitEvent(ctx context.Context, name string) error {
	return s.doc.WaitEvent(ctx, name)
}

func (s *Static) AppendButton(_ context.Context, container shadowtree.Node, b Button) error {
	c, ok := container.(*htmldom.Node)
	if !ok {
		return fmt.Errorf("inject: static document got a %T container", container)
	}
	var attrs []html.Attribute
	for _, a := range b.Attributes() {
		attrs = append(attrs, html.Attribute{Key: a.Key, Val: a.Val})
	}
	added := c.AppendElement(b.Tag, attrs, b.Label)

	s.mu.Lock()
	s.buttons = append(s.buttons, added)
	s.mu.Unlock()
	return nil
}

func (s *Static) Markup(_ context.Context, n shadowtree.Node) (string, error) {
	hn, ok := n.(*htmldom.Node)
	if !ok {
		return "", fmt.Errorf("inject: static document got a %T node", n)
	}
	return hn.InnerHTML(), nil
}

// Click activates the last appended button. It reports false when no
// button was appended.
func (s *Static) Click(ctx context.Context) bool {
	s.mu.Lock()
	n := len(s.buttons)
	s.mu.Unlock()
	if n == 0 {
		return false
	}
	if s.onActivate != nil {
		s.onActivate(ctx)
	}
	return true
}
