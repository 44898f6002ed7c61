// Package shadowtree searches composed DOM trees: a root, the shadow roots
// attached under it, and the elements projected into its slots.
//
// Ordinary selector queries stop at shadow boundaries. Locate crosses them,
// which is how an injection point inside a third-party web component can be
// found without knowing the component's internal layout.
//
// The search is an explicit worklist with a depth counter, so deep or cyclic
// shadow structures terminate without relying on the goroutine stack.
package shadowtree

import (
	"errors"
	"fmt"
)

// DefaultMaxDepth bounds how many shadow or slot boundaries Locate crosses.
const DefaultMaxDepth = 10

// ErrNotFound is returned when no element matches within the depth bound.
var ErrNotFound = errors.New("shadowtree: not found")

// Node is a DOM-like search root: a document, a shadow root or an element.
// Implementations exist for parsed HTML (htmldom) and live Chrome pages.
type Node interface {
	// QuerySelector returns the first descendant matching selector in
	// document order, without crossing shadow boundaries. Nil when none.
	QuerySelector(selector string) (Node, error)

	// Descendants returns every descendant element in document order,
	// without crossing shadow boundaries.
	Descendants() ([]Node, error)

	// ShadowRoot returns the open shadow root attached to the element, or
	// nil when there is none.
	ShadowRoot() (Node, error)

	// AssignedElements returns the flattened element-typed nodes assigned
	// to a slot element. Nil for anything that is not a slot.
	AssignedElements() ([]Node, error)
}

type options struct {
	maxDepth int
}

// Option configures Locate.
type Option func(*options)

// WithMaxDepth sets the number of boundaries the search may cross.
// Negative values are treated as zero. Default: DefaultMaxDepth.
func WithMaxDepth(n int) Option {
	return func(o *options) {
		if n < 0 {
			n = 0
		}
		o.maxDepth = n
	}
}

type frame struct {
	node  Node
	depth int
}

// Locate returns the first element matching selector under root, searching
// root itself first, then each descendant's shadow root and each slot's
// assigned elements, depth-first in document order. A shadow root is
// searched before the slot assignments of the same element. Frames deeper
// than the max depth are skipped.
//
// Locate never mutates the tree. It returns ErrNotFound when nothing
// matches and a wrapped error when the tree itself fails to answer.
func Locate(root Node, selector string, opts ...Option) (Node, error) {
	if root == nil {
		return nil, ErrNotFound
	}
	o := options{maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(&o)
	}

	stack := []frame{{node: root}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.depth > o.maxDepth {
			continue
		}

		hit, err := f.node.QuerySelector(selector)
		if err != nil {
			return nil, fmt.Errorf("shadowtree: query %q at depth %d: %w", selector, f.depth, err)
		}
		if hit != nil {
			return hit, nil
		}

		children, err := childFrames(f)
		if err != nil {
			return nil, err
		}
		// Reverse push keeps pop order equal to document order.
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
	return nil, ErrNotFound
}

// childFrames lists the search roots one boundary below f, in visiting order.
func childFrames(f frame) ([]frame, error) {
	elems, err := f.node.Descendants()
	if err != nil {
		return nil, fmt.Errorf("shadowtree: descendants at depth %d: %w", f.depth, err)
	}

	var out []frame
	for _, el := range elems {
		sr, err := el.ShadowRoot()
		if err != nil {
			return nil, fmt.Errorf("shadowtree: shadow root at depth %d: %w", f.depth, err)
		}
		if sr != nil {
			out = append(out, frame{node: sr, depth: f.depth + 1})
		}

		assigned, err := el.AssignedElements()
		if err != nil {
			return nil, fmt.Errorf("shadowtree: slot assignment at depth %d: %w", f.depth, err)
		}
		for _, a := range assigned {
			out = append(out, frame{node: a, depth: f.depth + 1})
		}
	}
	return out, nil
}
