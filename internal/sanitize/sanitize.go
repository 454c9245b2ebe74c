// Package sanitize reduces remote HTML to an allow-listed subset of markup.
package sanitize

import (
	"bytes"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Elements removed together with everything inside them.
var dropTags = map[string]bool{
	"script": true, "style": true, "iframe": true, "object": true, "embed": true,
	"form": true, "input": true, "button": true, "select": true, "textarea": true,
	"noscript": true, "svg": true, "math": true, "template": true, "head": true,
	"link": true, "meta": true, "base": true, "frame": true, "frameset": true,
}

// Allowed elements and the attributes each may keep. Elements that are
// neither allowed nor dropped are unwrapped: their children survive.
var allowed = map[string]map[string]bool{
	"a":          {"href": true, "title": true, "target": true, "rel": true},
	"abbr":       {"title": true},
	"b":          {},
	"blockquote": {"cite": true},
	"br":         {},
	"caption":    {},
	"cite":       {},
	"code":       {},
	"del":        {"datetime": true},
	"div":        {},
	"em":         {},
	"figcaption": {},
	"figure":     {},
	"h1":         {},
	"h2":         {},
	"h3":         {},
	"h4":         {},
	"h5":         {},
	"h6":         {},
	"hr":         {},
	"i":          {},
	"img":        {"src": true, "alt": true, "title": true, "width": true, "height": true},
	"ins":        {"datetime": true},
	"li":         {},
	"ol":         {"start": true},
	"p":          {},
	"pre":        {},
	"q":          {"cite": true},
	"s":          {},
	"span":       {},
	"strong":     {},
	"sub":        {},
	"sup":        {},
	"table":      {},
	"tbody":      {},
	"td":         {"colspan": true, "rowspan": true},
	"tfoot":      {},
	"th":         {"colspan": true, "rowspan": true, "scope": true},
	"thead":      {},
	"tr":         {},
	"u":          {},
	"ul":         {},
}

// Attributes every allowed element may carry.
var globalAttrs = map[string]bool{"class": true, "id": true, "lang": true, "dir": true}

// URL-valued attributes; only safe schemes survive.
var urlAttrs = map[string]bool{"href": true, "src": true, "cite": true}

// HTML returns the allow-listed rendering of an HTML fragment.
func HTML(fragment string) string {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), ctx)
	if err != nil {
		return html.EscapeString(fragment)
	}

	var buf bytes.Buffer
	for _, n := range nodes {
		for _, out := range clean(n) {
			if err := html.Render(&buf, out); err != nil {
				return html.EscapeString(Text(fragment))
			}
		}
	}
	return strings.TrimSpace(buf.String())
}

// Text strips all markup and collapses whitespace.
func Text(fragment string) string {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{
		Type: html.ElementNode, Data: "body", DataAtom: atom.Body,
	})
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}

	var sb strings.Builder
	for _, n := range nodes {
		collectText(n, &sb)
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode && dropTags[n.Data] {
		return
	}
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		sb.WriteString(" ")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}

// clean returns the sanitized replacement nodes for n, detached from any
// parent.
func clean(n *html.Node) []*html.Node {
	switch n.Type {
	case html.TextNode:
		return []*html.Node{{Type: html.TextNode, Data: n.Data}}
	case html.ElementNode:
	default:
		return nil
	}

	if dropTags[n.Data] {
		return nil
	}

	var children []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		children = append(children, clean(c)...)
	}

	attrs, ok := allowed[n.Data]
	if !ok {
		return children
	}

	out := &html.Node{Type: html.ElementNode, Data: n.Data, DataAtom: n.DataAtom}
	for _, a := range n.Attr {
		if a.Namespace != "" {
			continue
		}
		key := strings.ToLower(a.Key)
		if !attrs[key] && !globalAttrs[key] {
			continue
		}
		if urlAttrs[key] && !safeURL(a.Val) {
			continue
		}
		out.Attr = append(out.Attr, html.Attribute{Key: key, Val: a.Val})
	}
	if n.Data == "a" && hasAttr(out, "target") {
		setAttr(out, "rel", "noopener noreferrer")
	}
	for _, c := range children {
		out.AppendChild(c)
	}
	return []*html.Node{out}
}

func safeURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "", "http", "https", "mailto":
		return true
	}
	return false
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
