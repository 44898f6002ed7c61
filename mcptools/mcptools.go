// Package mcptools exposes sktools operations as MCP tools.
package mcptools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/net/html"

	"github.com/hazyhaar/sktools/bootstrap"
	"github.com/hazyhaar/sktools/htmldom"
	"github.com/hazyhaar/sktools/idgen"
	"github.com/hazyhaar/sktools/journal"
	"github.com/hazyhaar/sktools/kit"
	"github.com/hazyhaar/sktools/plugin"
	"github.com/hazyhaar/sktools/shadowtree"
)

// Deps are the optional backends of the tools. Tools whose backend is nil
// report an error when called.
type Deps struct {
	Journal   *journal.Journal
	Fragments bootstrap.FragmentLoader
	Logger    *slog.Logger
}

// Register adds every sktools tool to srv.
func Register(srv *mcp.Server, deps Deps) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	r := registrar{srv: srv, deps: deps, ids: idgen.Prefixed("req_", idgen.UUIDv7())}
	r.registerLocate()
	r.registerEnsurePreview()
	r.registerDecorate()
	r.registerHistory()
}

type registrar struct {
	srv  *mcp.Server
	deps Deps
	ids  idgen.Generator
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// add wires endpoint behind logging, with a fresh request id per call.
func add[T any](r registrar, tool *mcp.Tool, endpoint func(context.Context, *T) (any, error)) {
	ep := kit.Chain(kit.Logging(r.deps.Logger, tool.Name))(func(ctx context.Context, req any) (any, error) {
		return endpoint(ctx, req.(*T))
	})
	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		v, err := kit.DecodeArgs[T](req)
		if err != nil {
			return nil, err
		}
		id := r.ids()
		return &kit.MCPDecodeResult{
			Request:   &v,
			EnrichCtx: func(ctx context.Context) context.Context { return kit.WithRequestID(ctx, id) },
		}, nil
	}
	kit.RegisterMCPTool(r.srv, tool, ep, decode)
}

// --- sktools_locate ---

type locateReq struct {
	HTML     string `json:"html"`
	Selector string `json:"selector"`
	MaxDepth *int   `json:"max_depth"`
}

type locateResp struct {
	Found     bool   `json:"found"`
	Tag       string `json:"tag,omitempty"`
	OuterHTML string `json:"outer_html,omitempty"`
}

func (r registrar) registerLocate() {
	tool := &mcp.Tool{
		Name:        "sktools_locate",
		Description: "Find the first element matching a CSS selector in an HTML page, searching inside open declarative shadow roots and slots.",
		InputSchema: inputSchema(map[string]any{
			"html":      map[string]any{"type": "string", "description": "Full HTML document"},
			"selector":  map[string]any{"type": "string", "description": "CSS selector"},
			"max_depth": map[string]any{"type": "integer", "description": "Shadow boundaries to cross (default 10)"},
		}, []string{"html", "selector"}),
	}
	add(r, tool, func(_ context.Context, req *locateReq) (any, error) {
		if strings.TrimSpace(req.Selector) == "" {
			return nil, errors.New("selector is required")
		}
		doc, err := htmldom.ParseString(req.HTML)
		if err != nil {
			return nil, err
		}
		var opts []shadowtree.Option
		if req.MaxDepth != nil {
			opts = append(opts, shadowtree.WithMaxDepth(*req.MaxDepth))
		}
		hit, err := shadowtree.Locate(doc.Root(), req.Selector, opts...)
		if errors.Is(err, shadowtree.ErrNotFound) {
			return locateResp{Found: false}, nil
		}
		if err != nil {
			return nil, err
		}
		n := hit.(*htmldom.Node)
		return locateResp{Found: true, Tag: n.Tag(), OuterHTML: n.OuterHTML()}, nil
	})
}

// --- sktools_ensure_preview ---

type ensureReq struct {
	Config  string              `json:"config"`
	Plugins []plugin.Descriptor `json:"plugins"`
}

type ensureResp struct {
	Changed bool           `json:"changed"`
	Changes plugin.Changes `json:"changes"`
	Content string         `json:"content"`
}

func (r registrar) registerEnsurePreview() {
	tool := &mcp.Tool{
		Name:        "sktools_ensure_preview",
		Description: "Merge plugin descriptors into a sidekick config.json and return the result without writing anything. Defaults to the A/B testing plugin.",
		InputSchema: inputSchema(map[string]any{
			"config": map[string]any{"type": "string", "description": "Current config.json content"},
			"plugins": map[string]any{
				"type":        "array",
				"description": "Descriptors to ensure: {id, title, environments, event}",
				"items":       map[string]any{"type": "object"},
			},
		}, []string{"config"}),
	}
	add(r, tool, func(_ context.Context, req *ensureReq) (any, error) {
		desired := req.Plugins
		if len(desired) == 0 {
			desired = []plugin.Descriptor{plugin.Experimentation}
		}
		if err := plugin.ValidateAll(desired); err != nil {
			return nil, err
		}
		doc, err := plugin.Parse([]byte(req.Config))
		if err != nil {
			return nil, err
		}
		before, err := doc.Encode()
		if err != nil {
			return nil, err
		}
		updated, changes := plugin.Ensure(desired, doc)
		after, err := updated.Encode()
		if err != nil {
			return nil, err
		}
		return ensureResp{
			Changed: !bytes.Equal(before, after),
			Changes: changes,
			Content: string(after),
		}, nil
	})
}

// --- sktools_decorate ---

type decorateReq struct {
	HTML   string `json:"html"`
	Format string `json:"format"`
}

type decorateResp struct {
	Hero     bool     `json:"hero"`
	Inlined  int      `json:"inlined"`
	Failed   []string `json:"failed,omitempty"`
	Document string   `json:"document"`
}

func (r registrar) registerDecorate() {
	tool := &mcp.Tool{
		Name:        "sktools_decorate",
		Description: "Run the page auto-blocking pass (fragment inlining, hero block) on an HTML page and return the result as html or markdown.",
		InputSchema: inputSchema(map[string]any{
			"html":   map[string]any{"type": "string", "description": "Full HTML document with a <main> element"},
			"format": map[string]any{"type": "string", "enum": []string{"html", "markdown"}, "description": "Output format (default html)"},
		}, []string{"html"}),
	}
	add(r, tool, func(ctx context.Context, req *decorateReq) (any, error) {
		root, err := html.Parse(strings.NewReader(req.HTML))
		if err != nil {
			return nil, err
		}
		main := bootstrap.FindMain(root)
		if main == nil {
			return nil, errors.New("document has no <main> element")
		}
		res, err := bootstrap.DecorateMain(ctx, main, r.deps.Fragments, bootstrap.WithLogger(r.deps.Logger))
		if err != nil {
			return nil, err
		}
		out := decorateResp{Hero: res.Hero, Inlined: res.Inlined}
		for _, f := range res.Failed {
			out.Failed = append(out.Failed, f.Error())
		}

		switch req.Format {
		case "", "html":
			var buf bytes.Buffer
			if err := html.Render(&buf, root); err != nil {
				return nil, err
			}
			out.Document = buf.String()
		case "markdown":
			md, err := bootstrap.Markdown(main)
			if err != nil {
				return nil, err
			}
			out.Document = md
		default:
			return nil, fmt.Errorf("unknown format %q", req.Format)
		}
		return out, nil
	})
}

// --- sktools_history ---

type historyReq struct {
	Limit int `json:"limit"`
}

func (r registrar) registerHistory() {
	tool := &mcp.Tool{
		Name:        "sktools_history",
		Description: "List recent config sync runs, newest first.",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Maximum runs (default 50)"},
		}, nil),
	}
	add(r, tool, func(ctx context.Context, req *historyReq) (any, error) {
		if r.deps.Journal == nil {
			return nil, errors.New("no sync journal configured")
		}
		runs, err := r.deps.Journal.List(ctx, req.Limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"runs": runs}, nil
	})
}
