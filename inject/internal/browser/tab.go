package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// NavigateTimeout bounds navigation and the load wait.
const NavigateTimeout = 30 * time.Second

// firedKey is the window property recording watched events that fired
// before anyone waited on them.
const firedKey = "__sktools_fired"

// Tab is one stealth page.
type Tab struct {
	Page   *rod.Page
	URL    string
	router *rod.HijackRouter
	log    *slog.Logger
}

// Open creates a stealth tab, installs a recorder for the watched events,
// navigates to pageURL and waits for the load event.
func (m *Manager) Open(ctx context.Context, pageURL string, watch ...string) (*Tab, error) {
	b := m.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	t := &Tab{Page: page, URL: pageURL, log: m.cfg.Logger}
	t.router = applyResourceBlocking(page, m.cfg.ResourceBlocking)

	if len(watch) > 0 {
		names, _ := json.Marshal(watch)
		script := fmt.Sprintf(`(() => {
			window.%[1]s = window.%[1]s || {};
			for (const name of %[2]s) {
				document.addEventListener(name, () => { window.%[1]s[name] = true; }, {once: true});
			}
		})();`, firedKey, names)
		if _, err := page.EvalOnNewDocument(script); err != nil {
			t.Close()
			return nil, fmt.Errorf("browser: install event recorder: %w", err)
		}
	}

	navCtx, cancel := context.WithTimeout(ctx, NavigateTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		t.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		m.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}
	return t, nil
}

// Document returns the page's document node.
func (t *Tab) Document(ctx context.Context) (*Node, error) {
	p := t.Page.Context(ctx)
	els, err := p.ElementsByJS(rod.Eval(`() => [document]`))
	if err != nil {
		return nil, fmt.Errorf("browser: document: %w", err)
	}
	if len(els) == 0 {
		return nil, fmt.Errorf("browser: document: empty result")
	}
	return &Node{el: els[0], page: p}, nil
}

// Query is document.querySelector. Nil when nothing matches.
func (t *Tab) Query(ctx context.Context, selector string) (*Node, error) {
	doc, err := t.Document(ctx)
	if err != nil {
		return nil, err
	}
	return doc.first(selector)
}

// WaitEvent blocks until the named document event fires. Events in the
// watch list passed to Open resolve immediately if they already fired.
func (t *Tab) WaitEvent(ctx context.Context, name string) error {
	_, err := t.Page.Context(ctx).Evaluate(rod.Eval(`(name, key) => {
		if (window[key] && window[key][name]) return true;
		return new Promise((resolve) => {
			document.addEventListener(name, () => resolve(true), {once: true});
		});
	}`, name, firedKey).ByPromise())
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("browser: wait for %s: %w", name, err)
	}
	return nil
}

// Bind exposes window[name] to the page; every call delivers its string
// payload to fn until ctx is done.
func (t *Tab) Bind(ctx context.Context, name string, fn func(payload string)) error {
	if err := (proto.RuntimeAddBinding{Name: name}).Call(t.Page); err != nil {
		return fmt.Errorf("browser: add binding %s: %w", name, err)
	}
	wait := t.Page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != name {
			return
		}
		fn(e.Payload)
	})
	go wait()
	return nil
}

// ElementSpec describes an element to create.
type ElementSpec struct {
	Tag   string
	Attrs [][2]string // in insertion order
	Text  string

	// Binding, when set, is called with Payload on click.
	Binding string
	Payload string
}

// appendScript runs with the parent element as this. The click handler
// keeps the event from reaching the host's own action-group listeners.
const appendScript = `function(tag, attrs, text, binding, payload) {
	const el = document.createElement(tag);
	for (const [k, v] of attrs) el.setAttribute(k, v);
	el.textContent = text;
	if (binding) {
		el.addEventListener('click', (e) => {
			e.stopPropagation();
			e.preventDefault();
			if (typeof window[binding] === 'function') window[binding](payload);
		});
	}
	this.append(el);
	return true;
}`

// Append creates spec and appends it as the last child of parent.
func (t *Tab) Append(ctx context.Context, parent *Node, spec ElementSpec) error {
	_, err := t.Page.Context(ctx).Evaluate(rod.Eval(appendScript, spec.Tag, spec.Attrs, spec.Text, spec.Binding, spec.Payload).This(parent.el.Object))
	if err != nil {
		return fmt.Errorf("browser: append %s: %w", spec.Tag, err)
	}
	return nil
}

// Close stops resource blocking and closes the page.
func (t *Tab) Close() error {
	if t.router != nil {
		if err := t.router.Stop(); err != nil {
			t.log.Debug("browser: stop hijack router", "error", err)
		}
	}
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}
