package inject

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/sktools/inject/internal/browser"
	"github.com/hazyhaar/sktools/shadowtree"
)

// ActivationBinding is the page binding the injected button calls.
const ActivationBinding = "__sktools_activate"

// BrowserConfig configures Chrome for live injection.
type BrowserConfig struct {
	Remote           string   // DevTools WebSocket URL; empty launches Chrome
	Mode             string   // headless (default) or headful
	XvfbDisplay      string   // headful only
	ResourceBlocking []string // images, fonts, media, stylesheets
	Logger           *slog.Logger
}

// Browser opens live pages as injection Documents.
type Browser struct {
	mgr *browser.Manager
}

// NewBrowser validates cfg. Chrome starts on the first Open.
func NewBrowser(cfg BrowserConfig) (*Browser, error) {
	mode, err := browser.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	return &Browser{mgr: browser.NewManager(browser.Config{
		RemoteURL:        cfg.Remote,
		Mode:             mode,
		XvfbDisplay:      cfg.XvfbDisplay,
		ResourceBlocking: cfg.ResourceBlocking,
		Logger:           cfg.Logger,
	})}, nil
}

// Open navigates to url. onActivate, when set, runs on every click of an
// injected button until ctx is done. readyEvent is recorded from the first
// script onwards so a later WaitEvent does not miss it.
func (b *Browser) Open(ctx context.Context, url, readyEvent string, onActivate func(ctx context.Context)) (*Page, error) {
	if err := b.mgr.Start(ctx); err != nil {
		return nil, err
	}
	var watch []string
	if readyEvent != "" {
		watch = append(watch, readyEvent)
	}
	tab, err := b.mgr.Open(ctx, url, watch...)
	if err != nil {
		return nil, err
	}
	p := &Page{tab: tab}
	if onActivate != nil {
		err := tab.Bind(ctx, ActivationBinding, func(string) { onActivate(ctx) })
		if err != nil {
			tab.Close()
			return nil, err
		}
		p.binding = ActivationBinding
	}
	return p, nil
}

// Close shuts Chrome down.
func (b *Browser) Close() error { return b.mgr.Close() }

// Page is a live Chrome tab. It implements Document.
type Page struct {
	tab     *browser.Tab
	binding string
}

var _ Document = (*Page)(nil)

func (p *Page) URL() string { return p.tab.URL }

func (p *Page) QueryHost(ctx context.Context, selector string) (shadowtree.Node, error) {
	n, err := p.tab.Query(ctx, selector)
	if err != nil || n == nil {
		return nil, err
	}
	return n, nil
}

func (p *Page) WaitEvent(ctx context.Context, name string) error {
	return p.tab.WaitEvent(ctx, name)
}

func (p *Page) AppendButton(ctx context.Context, container shadowtree.Node, b Button) error {
	c, ok := container.(*browser.Node)
	if !ok {
		return fmt.Errorf("inject: live page got a %T container", container)
	}
	spec := browser.ElementSpec{
		Tag:     b.Tag,
		Text:    b.Label,
		Binding: p.binding,
		Payload: b.PluginID,
	}
	for _, a := range b.Attributes() {
		spec.Attrs = append(spec.Attrs, [2]string{a.Key, a.Val})
	}
	return p.tab.Append(ctx, c, spec)
}

func (p *Page) Markup(_ context.Context, n shadowtree.Node) (string, error) {
	bn, ok := n.(*browser.Node)
	if !ok {
		return "", fmt.Errorf("inject: live page got a %T node", n)
	}
	return bn.InnerHTML()
}

// Close closes the tab.
func (p *Page) Close() error { return p.tab.Close() }
