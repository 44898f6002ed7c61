package bootstrap

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// PlainSuffix is appended to a fragment path to get its undecorated markup.
const PlainSuffix = ".plain.html"

// HTTPFragmentLoader fetches fragments from the site origin.
type HTTPFragmentLoader struct {
	base   *url.URL
	http   *resty.Client
	policy *bluemonday.Policy
}

// LoaderOption configures an HTTPFragmentLoader.
type LoaderOption func(*HTTPFragmentLoader)

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(hc *http.Client) LoaderOption {
	return func(l *HTTPFragmentLoader) {
		l.http.SetTransport(hc.Transport)
		if hc.Timeout > 0 {
			l.http.SetTimeout(hc.Timeout)
		}
	}
}

// WithTimeout bounds each fragment request.
func WithTimeout(d time.Duration) LoaderOption {
	return func(l *HTTPFragmentLoader) { l.http.SetTimeout(d) }
}

// NewHTTPFragmentLoader creates a loader for the origin baseURL, e.g.
// https://main--site--org.aem.page.
func NewHTTPFragmentLoader(baseURL string, opts ...LoaderOption) (*HTTPFragmentLoader, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("bootstrap: invalid fragment base URL %q", baseURL)
	}
	l := &HTTPFragmentLoader{
		base:   base,
		http:   resty.New().SetBaseURL(base.String()).SetTimeout(10 * time.Second),
		policy: FragmentPolicy(),
	}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

// FragmentPolicy keeps user content plus the markup blocks rely on:
// classes and responsive pictures.
func FragmentPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Globally()
	p.AllowElements("picture", "source", "main")
	p.AllowAttrs("srcset", "type", "media").OnElements("source")
	p.AllowAttrs("loading", "width", "height").OnElements("img")
	return p
}

// Load implements FragmentLoader.
func (l *HTTPFragmentLoader) Load(ctx context.Context, path string) (*html.Node, error) {
	path = "/" + strings.TrimLeft(strings.TrimSuffix(path, ".html"), "/")
	resp, err := l.http.R().
		SetContext(ctx).
		Get(path + PlainSuffix)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: GET %s: %w", path, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("bootstrap: GET %s: status %d", path, resp.StatusCode())
	}

	clean := l.policy.SanitizeBytes(resp.Body())
	main := &html.Node{Type: html.ElementNode, Data: "main", DataAtom: atom.Main}
	nodes, err := html.ParseFragment(bytes.NewReader(clean), main)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: parse fragment %s: %w", path, err)
	}
	for _, n := range nodes {
		main.AppendChild(n)
	}

	ref := *l.base
	ref.Path = path
	resetMediaBase(main, &ref)
	return main, nil
}

// resetMediaBase rewrites "./media_*" references, which are relative to
// the fragment, to absolute URLs so they survive being moved into the page.
func resetMediaBase(root *html.Node, ref *url.URL) {
	for n := range root.Descendants() {
		if n.Type != html.ElementNode {
			continue
		}
		var key string
		switch n.DataAtom {
		case atom.Img:
			key = "src"
		case atom.Source:
			key = "srcset"
		default:
			continue
		}
		for i, a := range n.Attr {
			if a.Key != key || !strings.HasPrefix(a.Val, "./media_") {
				continue
			}
			if u, err := ref.Parse(a.Val); err == nil {
				n.Attr[i].Val = u.String()
			}
		}
	}
}
