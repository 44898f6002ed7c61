package browser

import (
	"fmt"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/sktools/shadowtree"
)

// Node is a live DOM node (document, shadow root or element) bound to the
// context of the call that produced it.
type Node struct {
	el   *rod.Element
	page *rod.Page
}

var _ shadowtree.Node = (*Node)(nil)

// nodes runs a function with this bound to n; the function returns an
// array of DOM nodes.
func (n *Node) nodes(js string, args ...interface{}) ([]*Node, error) {
	els, err := n.page.ElementsByJS(rod.Eval(js, args...).This(n.el.Object))
	if err != nil {
		return nil, err
	}
	out := make([]*Node, len(els))
	for i, el := range els {
		out[i] = &Node{el: el, page: n.page}
	}
	return out, nil
}

func (n *Node) first(selector string) (*Node, error) {
	hits, err := n.nodes(`function(sel) {
		const hit = this.querySelector(sel);
		return hit ? [hit] : [];
	}`, selector)
	if err != nil {
		return nil, fmt.Errorf("browser: querySelector %q: %w", selector, err)
	}
	if len(hits) == 0 {
		return nil, nil
	}
	return hits[0], nil
}

// QuerySelector implements shadowtree.Node.
func (n *Node) QuerySelector(selector string) (shadowtree.Node, error) {
	hit, err := n.first(selector)
	if err != nil || hit == nil {
		return nil, err
	}
	return hit, nil
}

// Descendants implements shadowtree.Node.
func (n *Node) Descendants() ([]shadowtree.Node, error) {
	all, err := n.nodes(`function() { return Array.from(this.querySelectorAll('*')); }`)
	if err != nil {
		return nil, fmt.Errorf("browser: descendants: %w", err)
	}
	return asTree(all), nil
}

// ShadowRoot implements shadowtree.Node. Closed roots are invisible.
func (n *Node) ShadowRoot() (shadowtree.Node, error) {
	roots, err := n.nodes(`function() { return this.shadowRoot ? [this.shadowRoot] : []; }`)
	if err != nil {
		return nil, fmt.Errorf("browser: shadowRoot: %w", err)
	}
	if len(roots) == 0 {
		return nil, nil
	}
	return roots[0], nil
}

// AssignedElements implements shadowtree.Node.
func (n *Node) AssignedElements() ([]shadowtree.Node, error) {
	assigned, err := n.nodes(`function() {
		return this instanceof HTMLSlotElement ? this.assignedElements({flatten: true}) : [];
	}`)
	if err != nil {
		return nil, fmt.Errorf("browser: assignedElements: %w", err)
	}
	return asTree(assigned), nil
}

// InnerHTML returns the node's inner markup.
func (n *Node) InnerHTML() (string, error) {
	res, err := n.page.Evaluate(rod.Eval(`function() { return this.innerHTML || ''; }`).This(n.el.Object))
	if err != nil {
		return "", fmt.Errorf("browser: innerHTML: %w", err)
	}
	return res.Value.Str(), nil
}

func asTree(ns []*Node) []shadowtree.Node {
	if len(ns) == 0 {
		return nil
	}
	out := make([]shadowtree.Node, len(ns))
	for i, n := range ns {
		out[i] = n
	}
	return out
}
