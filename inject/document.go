package inject

import (
	"context"

	"github.com/hazyhaar/sktools/shadowtree"
)

// Document is the page the button is injected into. Implementations exist
// for parsed HTML (Static) and live Chrome tabs (Page).
type Document interface {
	// URL identifies the page in logs and events. May be empty.
	URL() string

	// QueryHost returns the first light-tree element matching selector,
	// or nil when there is none.
	QueryHost(ctx context.Context, selector string) (shadowtree.Node, error)

	// WaitEvent blocks until the named document event fires once.
	WaitEvent(ctx context.Context, name string) error

	// AppendButton appends b as the last child of container, wired so
	// that activating it reports back to the injector.
	AppendButton(ctx context.Context, container shadowtree.Node, b Button) error

	// Markup returns the inner HTML of n, for diagnostics.
	Markup(ctx context.Context, n shadowtree.Node) (string, error)
}
