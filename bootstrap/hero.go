// Package bootstrap runs the auto-blocking pass of the page bootstrap on a
// parsed page: fragment references are inlined and a leading picture and
// heading become a hero block.
package bootstrap

import (
	"slices"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	selH1      = cascadia.MustCompile("h1")
	selPicture = cascadia.MustCompile("picture")
	selMain    = cascadia.MustCompile("main")
)

// FindMain returns the first <main> element of doc, or nil.
func FindMain(doc *html.Node) *html.Node {
	return cascadia.Query(doc, selMain)
}

// BuildHeroBlock wraps the first picture and the first h1 of main in a hero
// block prepended to main as a new section, when the picture comes first
// and neither is already inside a hero. It reports whether a block was
// built.
func BuildHeroBlock(main *html.Node) bool {
	h1 := cascadia.Query(main, selH1)
	picture := cascadia.Query(main, selPicture)
	if h1 == nil || picture == nil || !precedes(main, picture, h1) {
		return false
	}
	if insideClass(h1, "hero") || insideClass(picture, "hero") {
		return false
	}

	picture.Parent.RemoveChild(picture)
	h1.Parent.RemoveChild(h1)

	section := newDiv()
	section.AppendChild(buildBlock("hero", picture, h1))
	main.InsertBefore(section, main.FirstChild)
	return true
}

// buildBlock lays elems out as a one-row, one-cell block:
// <div class="name"><div><div>elems...</div></div></div>.
func buildBlock(name string, elems ...*html.Node) *html.Node {
	block := newDiv()
	block.Attr = []html.Attribute{{Key: "class", Val: name}}
	row, cell := newDiv(), newDiv()
	for _, e := range elems {
		cell.AppendChild(e)
	}
	row.AppendChild(cell)
	block.AppendChild(row)
	return block
}

func newDiv() *html.Node {
	return &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
}

// precedes reports whether a comes before b in document order under root.
func precedes(root, a, b *html.Node) bool {
	for n := range root.Descendants() {
		switch n {
		case a:
			return true
		case b:
			return false
		}
	}
	return false
}

// insideClass is closest("."+class) != null.
func insideClass(n *html.Node, class string) bool {
	for ; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && hasClass(n, class) {
			return true
		}
	}
	return false
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == "class" {
			return slices.Contains(strings.Fields(a.Val), class)
		}
	}
	return false
}
