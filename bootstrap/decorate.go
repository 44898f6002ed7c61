package bootstrap

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"golang.org/x/net/html"
)

// DecorateMain inlines fragments (when loader is non-nil), then builds the
// hero block.
func DecorateMain(ctx context.Context, main *html.Node, loader FragmentLoader, opts ...Option) (Result, error) {
	var res Result
	if loader != nil {
		var err error
		res, err = InlineFragments(ctx, main, loader, opts...)
		if err != nil {
			return res, err
		}
	}
	res.Hero = BuildHeroBlock(main)
	return res, nil
}

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// Markdown renders n and its subtree as markdown, for previews.
func Markdown(n *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", fmt.Errorf("bootstrap: render: %w", err)
	}
	md, err := mdConverter.ConvertString(buf.String())
	if err != nil {
		return "", fmt.Errorf("bootstrap: markdown: %w", err)
	}
	return strings.TrimSpace(md), nil
}
