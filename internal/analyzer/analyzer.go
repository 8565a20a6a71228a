package analyzer

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"path"
	"strconv"
	"strings"

	"github.com/mcpapps/mcpapps/internal/domain"
)

// RuntimeImportPath is the package whose Tool, Resource and Prompt types mark a declaration.
const RuntimeImportPath = "github.com/mcpapps/mcpapps/pkg/mcpapps"

var kindByType = map[string]domain.Kind{
	"Tool":     domain.KindTool,
	"Resource": domain.KindResource,
	"Prompt":   domain.KindPrompt,
}

var frameworkBySelector = map[string]domain.Framework{
	"React":  domain.FrameworkReact,
	"Preact": domain.FrameworkPreact,
	"Solid":  domain.FrameworkSolid,
	"Hono":   domain.FrameworkHono,
	"DOM":    domain.FrameworkDOM,
}

// Declaration is one package-level entity variable found in a file.
type Declaration struct {
	Kind   domain.Kind
	Symbol string
	// Name is set only when NameKnown; computed or aliased names stay unknown.
	Name      string
	NameKnown bool
	URI       string
	// Literal is false when the value is not a composite literal, e.g.
	// `var X mcpapps.Tool = other.X`. Only presence is known in that case.
	Literal    bool
	// Pointer is set for `&mcpapps.Tool{...}` values and `*mcpapps.Tool` types.
	Pointer    bool
	HasConfig  bool
	HasHandler bool
	HasUI      bool
	UIEntry    string
	Framework  domain.Framework
	Schemas    domain.SchemaSources
	Line       int
}

// FileReport describes the declarations of a single file.
type FileReport struct {
	Path         string
	Package      string
	Declarations []Declaration
	// Unexported lists entity variables that cannot be referenced from generated code.
	Unexported []string
}

func (r FileReport) Has(kind domain.Kind) bool {
	for _, decl := range r.Declarations {
		if decl.Kind == kind {
			return true
		}
	}
	return false
}

func (r FileReport) ByKind(kind domain.Kind) []Declaration {
	var out []Declaration
	for _, decl := range r.Declarations {
		if decl.Kind == kind {
			out = append(out, decl)
		}
	}
	return out
}

type Analyzer struct {
	importPath string
}

type Option func(*Analyzer)

// WithImportPath matches declarations against another runtime package path.
func WithImportPath(importPath string) Option {
	return func(a *Analyzer) {
		if strings.TrimSpace(importPath) != "" {
			a.importPath = importPath
		}
	}
}

func New(opts ...Option) *Analyzer {
	a := &Analyzer{importPath: RuntimeImportPath}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze parses src and reports its entity declarations. It never type-checks
// or executes the file.
func (a *Analyzer) Analyze(filename string, src []byte) (FileReport, error) {
	report := FileReport{Path: filename}
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, src, parser.SkipObjectResolution)
	if err != nil {
		return report, fmt.Errorf("%w: %s: %v", domain.ErrParse, filename, err)
	}
	report.Package = file.Name.Name

	alias, ok := a.runtimeAlias(file)
	if !ok {
		return report, nil
	}

	v := &visitor{fset: fset, src: src, alias: alias}
	for _, decl := range file.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.VAR {
			continue
		}
		for _, spec := range gen.Specs {
			valueSpec, ok := spec.(*ast.ValueSpec)
			if !ok {
				continue
			}
			for i, ident := range valueSpec.Names {
				var value ast.Expr
				if i < len(valueSpec.Values) {
					value = valueSpec.Values[i]
				}
				found, ok := v.declaration(ident, valueSpec.Type, value)
				if !ok {
					continue
				}
				if !ident.IsExported() {
					report.Unexported = append(report.Unexported, ident.Name)
					continue
				}
				report.Declarations = append(report.Declarations, found)
			}
		}
	}
	return report, nil
}

func (a *Analyzer) runtimeAlias(file *ast.File) (string, bool) {
	for _, spec := range file.Imports {
		importPath, err := strconv.Unquote(spec.Path.Value)
		if err != nil || importPath != a.importPath {
			continue
		}
		if spec.Name != nil {
			if spec.Name.Name == "_" || spec.Name.Name == "." {
				return "", false
			}
			return spec.Name.Name, true
		}
		return path.Base(importPath), true
	}
	return "", false
}

type visitor struct {
	fset  *token.FileSet
	src   []byte
	alias string
}

func (v *visitor) declaration(ident *ast.Ident, declared ast.Expr, value ast.Expr) (Declaration, bool) {
	decl := Declaration{
		Symbol:  ident.Name,
		Line:    v.fset.Position(ident.Pos()).Line,
		Pointer: isPointerType(declared) || isAddressOf(value),
	}

	if lit := v.compositeLiteral(value); lit != nil {
		kind, ok := v.entityKind(lit.Type)
		if !ok {
			return Declaration{}, false
		}
		decl.Kind = kind
		decl.Literal = true
		v.readFields(&decl, lit)
		return decl, true
	}

	// A pointer var without a value is nil until some init runs.
	if declared == nil || (value == nil && decl.Pointer) {
		return Declaration{}, false
	}
	kind, ok := v.entityKind(declared)
	if !ok {
		return Declaration{}, false
	}
	decl.Kind = kind
	return decl, true
}

func (v *visitor) compositeLiteral(expr ast.Expr) *ast.CompositeLit {
	switch typed := expr.(type) {
	case *ast.CompositeLit:
		return typed
	case *ast.UnaryExpr:
		if typed.Op == token.AND {
			return v.compositeLiteral(typed.X)
		}
	case *ast.ParenExpr:
		return v.compositeLiteral(typed.X)
	}
	return nil
}

func isPointerType(expr ast.Expr) bool {
	switch typed := expr.(type) {
	case *ast.StarExpr:
		return true
	case *ast.ParenExpr:
		return isPointerType(typed.X)
	}
	return false
}

func isAddressOf(expr ast.Expr) bool {
	switch typed := expr.(type) {
	case *ast.UnaryExpr:
		return typed.Op == token.AND
	case *ast.ParenExpr:
		return isAddressOf(typed.X)
	}
	return false
}

func (v *visitor) entityKind(expr ast.Expr) (domain.Kind, bool) {
	switch typed := expr.(type) {
	case *ast.StarExpr:
		return v.entityKind(typed.X)
	case *ast.IndexExpr:
		return v.entityKind(typed.X)
	case *ast.IndexListExpr:
		return v.entityKind(typed.X)
	case *ast.SelectorExpr:
		pkg, ok := typed.X.(*ast.Ident)
		if !ok || pkg.Name != v.alias {
			return "", false
		}
		kind, ok := kindByType[typed.Sel.Name]
		return kind, ok
	}
	return "", false
}

func (v *visitor) readFields(decl *Declaration, lit *ast.CompositeLit) {
	for _, elt := range lit.Elts {
		kv, ok := elt.(*ast.KeyValueExpr)
		if !ok {
			continue
		}
		key, ok := kv.Key.(*ast.Ident)
		if !ok {
			continue
		}
		switch key.Name {
		case "Name":
			if name, ok := stringLiteral(kv.Value); ok {
				decl.Name = name
				decl.NameKnown = true
			}
		case "URI":
			if decl.Kind == domain.KindResource {
				if uri, ok := stringLiteral(kv.Value); ok {
					decl.URI = uri
				}
			}
		case "Handler":
			decl.HasHandler = !isNil(kv.Value)
		case "Config":
			decl.HasConfig = true
			if cfg := v.compositeLiteral(kv.Value); cfg != nil {
				v.readConfig(decl, cfg)
			}
		case "App":
			if decl.Kind != domain.KindTool || isNil(kv.Value) {
				continue
			}
			decl.HasUI = true
			if app := v.compositeLiteral(kv.Value); app != nil {
				v.readApp(decl, app)
			}
		}
	}
}

func (v *visitor) readConfig(decl *Declaration, cfg *ast.CompositeLit) {
	for _, elt := range cfg.Elts {
		kv, ok := elt.(*ast.KeyValueExpr)
		if !ok {
			continue
		}
		key, ok := kv.Key.(*ast.Ident)
		if !ok {
			continue
		}
		switch {
		case key.Name == "InputSchema" && decl.Kind == domain.KindTool:
			decl.Schemas.Input = v.slice(kv.Value)
		case key.Name == "OutputSchema" && decl.Kind == domain.KindTool:
			decl.Schemas.Output = v.slice(kv.Value)
		case key.Name == "Arguments" && decl.Kind == domain.KindPrompt:
			decl.Schemas.Arguments = v.slice(kv.Value)
		}
	}
}

func (v *visitor) readApp(decl *Declaration, app *ast.CompositeLit) {
	for _, elt := range app.Elts {
		kv, ok := elt.(*ast.KeyValueExpr)
		if !ok {
			continue
		}
		key, ok := kv.Key.(*ast.Ident)
		if !ok {
			continue
		}
		switch key.Name {
		case "Entry":
			if entry, ok := stringLiteral(kv.Value); ok {
				decl.UIEntry = entry
			}
		case "Framework":
			decl.Framework = v.framework(kv.Value)
		}
	}
}

func (v *visitor) framework(expr ast.Expr) domain.Framework {
	switch typed := expr.(type) {
	case *ast.BasicLit:
		if raw, ok := stringLiteral(typed); ok {
			fw, err := domain.ParseFramework(raw)
			if err == nil {
				return fw
			}
		}
	case *ast.SelectorExpr:
		if pkg, ok := typed.X.(*ast.Ident); ok && pkg.Name == v.alias {
			return frameworkBySelector[typed.Sel.Name]
		}
	case *ast.CallExpr:
		// mcpapps.Framework("preact")
		if len(typed.Args) == 1 {
			return v.framework(typed.Args[0])
		}
	}
	return ""
}

func (v *visitor) slice(expr ast.Expr) string {
	start := v.fset.Position(expr.Pos()).Offset
	end := v.fset.Position(expr.End()).Offset
	if start < 0 || end > len(v.src) || start >= end {
		return ""
	}
	return string(v.src[start:end])
}

func stringLiteral(expr ast.Expr) (string, bool) {
	lit, ok := expr.(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return "", false
	}
	value, err := strconv.Unquote(lit.Value)
	if err != nil {
		return "", false
	}
	return value, true
}

func isNil(expr ast.Expr) bool {
	ident, ok := expr.(*ast.Ident)
	return ok && ident.Name == "nil"
}
