package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds parallel fragment loads.
const DefaultConcurrency = 4

var selFragmentLink = cascadia.MustCompile(`a[href*="/fragments/"]`)

// FragmentLoader fetches a fragment by path and returns it as a detached
// <main> element whose children are the fragment's sections.
type FragmentLoader interface {
	Load(ctx context.Context, path string) (*html.Node, error)
}

// FragmentLoadError reports one fragment that could not be inlined. It
// never stops the others.
type FragmentLoadError struct {
	Href string
	Path string
	Err  error
}

func (e *FragmentLoadError) Error() string {
	return fmt.Sprintf("bootstrap: fragment %s: %v", e.Href, e.Err)
}

func (e *FragmentLoadError) Unwrap() error { return e.Err }

var (
	errEmptyFragment = errors.New("fragment has no element content")
	errNoParent      = errors.New("link has no replaceable parent")
)

// Result summarises a pass.
type Result struct {
	Fragments int                  // fragment links found
	Inlined   int                  // links replaced by fragment content
	Failed    []*FragmentLoadError // soft failures, in document order
	Hero      bool                 // a hero block was built
}

type options struct {
	concurrency int
	logger      *slog.Logger
}

// Option configures InlineFragments and DecorateMain.
type Option func(*options)

// WithConcurrency sets the number of parallel loads. Default:
// DefaultConcurrency.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithLogger sets the logger used for soft failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func newOptions(opts []Option) options {
	o := options{concurrency: DefaultConcurrency, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// InlineFragments replaces the parent of every fragment link in main with
// the first element of the loaded fragment. Loads run concurrently; the
// tree is only mutated after all of them finish, in document order. A
// failed fragment is logged and leaves its link in place. Only context
// cancellation is returned as an error.
func InlineFragments(ctx context.Context, main *html.Node, loader FragmentLoader, opts ...Option) (Result, error) {
	o := newOptions(opts)
	links := cascadia.QueryAll(main, selFragmentLink)
	res := Result{Fragments: len(links)}
	if len(links) == 0 {
		return res, nil
	}

	type loaded struct {
		href, path string
		frag       *html.Node
		err        error
	}
	results := make([]loaded, len(links))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i, a := range links {
		href := attr(a, "href")
		results[i].href = href
		path, err := fragmentPath(href)
		if err != nil {
			results[i].err = err
			continue
		}
		results[i].path = path
		g.Go(func() error {
			frag, err := loader.Load(gctx, path)
			results[i].frag, results[i].err = frag, err
			return nil
		})
	}
	g.Wait()
	if err := ctx.Err(); err != nil {
		return res, err
	}

	for i, a := range links {
		r := results[i]
		err := r.err
		if err == nil {
			err = replaceParent(main, a, r.frag)
		}
		if err != nil {
			fe := &FragmentLoadError{Href: r.href, Path: r.path, Err: err}
			o.logger.Error("bootstrap: fragment loading failed", "href", r.href, "error", err)
			res.Failed = append(res.Failed, fe)
			continue
		}
		res.Inlined++
	}
	return res, nil
}

// fragmentPath extracts the path of an absolute or root-relative link.
func fragmentPath(href string) (string, error) {
	u, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse href: %w", err)
	}
	if u.Path == "" {
		return "", fmt.Errorf("href %q has no path", href)
	}
	return u.Path, nil
}

// replaceParent swaps link's parent for the first element child of frag.
func replaceParent(main, link, frag *html.Node) error {
	first := firstElementChild(frag)
	if first == nil {
		return errEmptyFragment
	}
	parent := link.Parent
	if parent == nil || parent.Parent == nil || parent == main {
		return errNoParent
	}
	frag.RemoveChild(first)
	parent.Parent.InsertBefore(first, parent)
	parent.Parent.RemoveChild(parent)
	return nil
}

func firstElementChild(n *html.Node) *html.Node {
	if n == nil {
		return nil
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}
