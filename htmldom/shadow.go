package htmldom

import (
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// isShadowTemplate reports whether t declares a shadow root for its parent.
func isShadowTemplate(t *html.Node) bool {
	if t.Type != html.ElementNode || t.DataAtom != atom.Template {
		return false
	}
	if t.Parent == nil || t.Parent.Type != html.ElementNode {
		return false
	}
	_, ok := shadowMode(t)
	return ok
}

// shadowMode reads shadowrootmode, falling back to the older shadowroot
// attribute still emitted by some renderers.
func shadowMode(t *html.Node) (string, bool) {
	for _, a := range t.Attr {
		if a.Key == "shadowrootmode" || a.Key == "shadowroot" {
			return a.Val, true
		}
	}
	return "", false
}

// openShadowTemplate returns the first declarative shadow template of host
// when its mode is open.
func openShadowTemplate(host *html.Node) *html.Node {
	for c := host.FirstChild; c != nil; c = c.NextSibling {
		if !isShadowTemplate(c) {
			continue
		}
		if mode, _ := shadowMode(c); mode == "open" {
			return c
		}
		return nil
	}
	return nil
}

// shadowHostOf returns the host and shadow template enclosing n, or nils
// when n is not inside a shadow tree.
func shadowHostOf(n *html.Node) (host, tmpl *html.Node) {
	for p := n.Parent; p != nil; p = p.Parent {
		if isShadowTemplate(p) {
			return p.Parent, p
		}
		if p.Type == html.ElementNode && p.DataAtom == atom.Template {
			return nil, nil
		}
	}
	return nil, nil
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

// findSlottables returns the host children assigned to slot. Only the first
// slot of a given name in a shadow tree receives assignments.
func findSlottables(slot *html.Node) []*html.Node {
	host, tmpl := shadowHostOf(slot)
	if host == nil {
		return nil
	}
	name := attrVal(slot, "name")

	var first *html.Node
	walkLight(tmpl, func(c *html.Node) bool {
		if c.DataAtom == atom.Slot && attrVal(c, "name") == name {
			first = c
			return false
		}
		return true
	})
	if first != slot {
		return nil
	}

	var out []*html.Node
	for c := host.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.ElementNode:
			if isShadowTemplate(c) {
				continue
			}
			if attrVal(c, "slot") == name {
				out = append(out, c)
			}
		case html.TextNode:
			if name == "" {
				out = append(out, c)
			}
		}
	}
	return out
}

// flattenedSlottables is assignedNodes({flatten: true}): nested slots are
// replaced by their own assignments, and a slot with no assignments
// contributes its fallback content.
func flattenedSlottables(slot *html.Node) []*html.Node {
	nodes := findSlottables(slot)
	if len(nodes) == 0 {
		for c := slot.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode || (c.Type == html.ElementNode && !isShadowTemplate(c)) {
				nodes = append(nodes, c)
			}
		}
	}

	var out []*html.Node
	for _, n := range nodes {
		if n.Type == html.ElementNode && n.DataAtom == atom.Slot {
			if host, _ := shadowHostOf(n); host != nil {
				out = append(out, flattenedSlottables(n)...)
				continue
			}
		}
		out = append(out, n)
	}
	return out
}
