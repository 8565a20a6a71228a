package analyzer

import (
	"bytes"
	"regexp"
)

var declarationPattern = regexp.MustCompile(`\b[A-Za-z_][A-Za-z0-9_]*\.(Tool|Resource|Prompt)\b`)

// MayDeclare is a cheap existence test run before parsing. It matches text
// inside comments and strings too; those files are parsed and then dropped.
func (a *Analyzer) MayDeclare(src []byte) bool {
	if !bytes.Contains(src, []byte(a.importPath)) {
		return false
	}
	return declarationPattern.Match(src)
}
