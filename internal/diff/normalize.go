package diff

import "regexp"

var blockBoundary = regexp.MustCompile(
	`(?i)(</(?:p|div|h[1-6]|li|ul|ol|dl|dt|dd|table|thead|tbody|tfoot|tr|caption|blockquote|pre|section|article|header|footer|nav|aside|main|figure|figcaption)>|<br\s*/?>|<hr\b[^>]*>)\n?`,
)

// BreakBlocks ends a line after every block-level closing tag, <br> and <hr>.
// Editors usually emit a whole report on one line; this gives the line diff
// one line per block. Text without markup is returned unchanged.
func BreakBlocks(content string) string {
	return blockBoundary.ReplaceAllString(content, "$1\n")
}
