package uibuild

import (
	"html"
	"regexp"
	"strings"
)

var (
	closingScript = regexp.MustCompile(`(?i)</(script)`)
	closingStyle  = regexp.MustCompile(`(?i)</(style)`)
)

// Document inlines one script and an optional stylesheet into a standalone
// HTML page with a #root mount.
func Document(title string, js, css []byte) string {
	var b strings.Builder
	b.Grow(len(js) + len(css) + 512)
	b.WriteString("<!doctype html>\n<html>\n<head>\n")
	b.WriteString(`<meta charset="utf-8">` + "\n")
	b.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1">` + "\n")
	b.WriteString("<title>" + html.EscapeString(title) + "</title>\n")
	if len(css) > 0 {
		b.WriteString("<style>\n")
		b.WriteString(closingStyle.ReplaceAllString(string(css), `<\/$1`))
		b.WriteString("\n</style>\n")
	}
	b.WriteString("</head>\n<body>\n")
	b.WriteString(`<div id="root"></div>` + "\n")
	b.WriteString("<script>\n")
	b.WriteString(closingScript.ReplaceAllString(string(js), `<\/$1`))
	b.WriteString("\n</script>\n</body>\n</html>\n")
	return b.String()
}
