package sanitize

import "strings"

// Policy describes which markup survives sanitization.
type Policy struct {
	// AllowedTags are kept with their (filtered) attributes
	AllowedTags map[string]bool
	// ExecutableTags are removed together with everything inside them
	ExecutableTags map[string]bool
	// Attributes maps a tag name (or "*" for every tag) to its allowed attributes
	Attributes map[string]map[string]bool
	// URLAttributes are checked for dangerous schemes
	URLAttributes map[string]bool
	// MaxInputBytes bounds the input size; larger input fails closed. Zero disables the limit.
	MaxInputBytes int
}

// DefaultMaxInputBytes is the input limit applied by DefaultPolicy
const DefaultMaxInputBytes = 16 << 20

// DefaultPolicy returns the allowlist used for report content
func DefaultPolicy() *Policy {
	return &Policy{
		AllowedTags: set(
			"h1", "h2", "h3", "h4", "h5", "h6",
			"p", "br", "hr", "div", "span",
			"strong", "em", "u", "b", "i", "s", "del", "ins", "mark", "small", "sub", "sup",
			"a", "img",
			"ul", "ol", "li", "dl", "dt", "dd",
			"table", "thead", "tbody", "tfoot", "tr", "th", "td", "caption", "colgroup", "col",
			"blockquote", "pre", "code",
			"section", "article", "header", "footer", "nav", "aside", "main", "figure", "figcaption",
			"svg", "g", "path", "circle", "ellipse", "rect", "line", "polyline", "polygon", "text", "tspan",
		),
		ExecutableTags: set(
			"script", "style", "iframe", "object", "embed", "applet", "meta", "link",
			"base", "frame", "frameset",
		),
		Attributes: map[string]map[string]bool{
			"*":          set("class", "id", "title", "lang", "dir"),
			"a":          set("href", "target", "rel", "name"),
			"img":        set("src", "alt", "width", "height"),
			"ol":         set("start", "type"),
			"li":         set("value"),
			"blockquote": set("cite"),
			"table":      set("border", "summary"),
			"th":         set("colspan", "rowspan", "scope", "align"),
			"td":         set("colspan", "rowspan", "align"),
			"col":        set("span", "width"),
			"colgroup":   set("span"),
			"svg":        set("viewbox", "width", "height", "xmlns", "fill", "stroke", "preserveaspectratio"),
			"g":          set("fill", "stroke", "stroke-width", "transform"),
			"path":       set("d", "fill", "stroke", "stroke-width", "transform"),
			"circle":     set("cx", "cy", "r", "fill", "stroke", "stroke-width"),
			"ellipse":    set("cx", "cy", "rx", "ry", "fill", "stroke", "stroke-width"),
			"rect":       set("x", "y", "width", "height", "rx", "ry", "fill", "stroke", "stroke-width"),
			"line":       set("x1", "y1", "x2", "y2", "stroke", "stroke-width"),
			"polyline":   set("points", "fill", "stroke", "stroke-width"),
			"polygon":    set("points", "fill", "stroke", "stroke-width"),
			"text":       set("x", "y", "dx", "dy", "fill", "font-size", "text-anchor"),
			"tspan":      set("x", "y", "dx", "dy", "fill"),
		},
		URLAttributes: set("href", "src", "action", "formaction", "xlink:href"),
		MaxInputBytes: DefaultMaxInputBytes,
	}
}

// allowsAttr reports whether attribute name is allowed on tag. Names compare case-insensitively.
func (p *Policy) allowsAttr(tag, name string) bool {
	name = strings.ToLower(name)
	if strings.HasPrefix(name, "on") {
		return false
	}
	if p.Attributes["*"][name] {
		return true
	}
	return p.Attributes[tag][name]
}

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, item := range items {
		m[item] = true
	}
	return m
}
