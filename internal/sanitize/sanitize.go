// Package sanitize removes executable constructs from report HTML.
//
// Content is parsed into an element tree with golang.org/x/net/html and
// rewritten against an allowlist. Disallowed elements are unwrapped so their
// text survives, executable elements are dropped with their content, and
// attributes are filtered per tag. The gate never returns an error: any
// internal failure yields an empty, unclean result.
package sanitize

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Result is the outcome of a sanitization pass
type Result struct {
	Sanitized    string `json:"sanitized"`
	RemovedCount int    `json:"removed_count"`
	IsClean      bool   `json:"is_clean"`
}

// Gate applies a Policy to untrusted HTML
type Gate struct {
	policy *Policy
}

// New creates a gate for the given policy. A nil policy means DefaultPolicy.
func New(p *Policy) *Gate {
	if p == nil {
		p = DefaultPolicy()
	}
	return &Gate{policy: p}
}

var defaultGate = New(nil)

// Sanitize runs the default gate over html
func Sanitize(html string) Result {
	return defaultGate.Sanitize(html)
}

// Sanitize parses html, rewrites it against the policy and serializes the result.
// It is idempotent: sanitizing its own output removes nothing.
func (g *Gate) Sanitize(input string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{}
		}
	}()

	if g.policy.MaxInputBytes > 0 && len(input) > g.policy.MaxInputBytes {
		return Result{}
	}
	if input == "" {
		return Result{IsClean: true}
	}

	bodyCtx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(input), bodyCtx)
	if err != nil {
		return Result{}
	}

	w := &writer{policy: g.policy}
	for _, n := range nodes {
		w.node(n)
	}

	return Result{
		Sanitized:    w.sb.String(),
		RemovedCount: w.removed,
		IsClean:      w.removed == 0,
	}
}

// writer walks the parsed tree and serializes whatever the policy keeps
type writer struct {
	policy  *Policy
	sb      strings.Builder
	removed int
}

func (w *writer) node(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.sb.WriteString(html.EscapeString(n.Data))
	case html.ElementNode:
		w.element(n)
	case html.DocumentNode:
		w.children(n)
	default:
		// comments, doctypes and raw nodes never survive
		w.removed++
	}
}

func (w *writer) children(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.node(c)
	}
}

func (w *writer) element(n *html.Node) {
	tag := strings.ToLower(n.Data)

	if w.policy.ExecutableTags[tag] {
		w.removed++
		return
	}
	if !w.policy.AllowedTags[tag] || !allowedNamespace(n.Namespace) {
		w.removed++
		w.children(n)
		return
	}

	w.sb.WriteByte('<')
	w.sb.WriteString(n.Data)
	for _, a := range n.Attr {
		name := a.Key
		if a.Namespace != "" {
			name = a.Namespace + ":" + a.Key
		}
		if !w.policy.allowsAttr(tag, name) {
			w.removed++
			continue
		}
		if w.policy.URLAttributes[strings.ToLower(name)] && unsafeURL(a.Val) {
			w.removed++
			continue
		}
		w.sb.WriteByte(' ')
		w.sb.WriteString(name)
		w.sb.WriteString(`="`)
		w.sb.WriteString(html.EscapeString(a.Val))
		w.sb.WriteByte('"')
	}

	if n.Namespace == "" && voidElements[tag] {
		w.sb.WriteByte('>')
		return
	}
	if n.Namespace != "" && n.FirstChild == nil {
		w.sb.WriteString("/>")
		return
	}
	w.sb.WriteByte('>')

	// the parser swallows one leading newline after <pre>, so write it back
	if tag == "pre" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode &&
		strings.HasPrefix(n.FirstChild.Data, "\n") {
		w.sb.WriteByte('\n')
	}

	w.children(n)
	w.sb.WriteString("</")
	w.sb.WriteString(n.Data)
	w.sb.WriteByte('>')
}

func allowedNamespace(ns string) bool {
	return ns == "" || ns == "svg"
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "keygen": true, "link": true,
	"meta": true, "param": true, "source": true, "track": true, "wbr": true,
}

var unsafeDataTypes = []string{
	"text/html",
	"application/javascript",
	"text/javascript",
	"application/xhtml+xml",
}

// unsafeURL reports whether an attribute value uses a script-capable scheme.
// Browsers ignore embedded whitespace and control characters in the scheme, so
// they are stripped before comparison.
func unsafeURL(val string) bool {
	v := strings.ToLower(strings.Map(func(r rune) rune {
		if r <= ' ' || r == 0x7f {
			return -1
		}
		return r
	}, val))

	switch {
	case strings.HasPrefix(v, "javascript:"), strings.HasPrefix(v, "vbscript:"):
		return true
	case strings.HasPrefix(v, "data:"):
		payload := strings.TrimPrefix(v, "data:")
		for _, t := range unsafeDataTypes {
			if strings.HasPrefix(payload, t) {
				return true
			}
		}
	}
	return false
}
