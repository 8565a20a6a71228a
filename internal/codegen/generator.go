package codegen

import (
	"bytes"
	"fmt"
	"go/format"
	"strconv"
	"strings"

	"github.com/mcpapps/mcpapps/internal/analyzer"
	"github.com/mcpapps/mcpapps/internal/domain"
)

const (
	Header           = "// Code generated by mcpapps. DO NOT EDIT."
	DefaultFuncName  = "RegisterEntities"
	DefaultHTMLVar   = "BuiltHTML"
	mcpImportPath    = "github.com/modelcontextprotocol/go-sdk/mcp"
	embedImportPath  = "embed"
	registrarVarName = "r"
)

type Options struct {
	// Package is the package clause of the generated file.
	Package string
	// SelfImportPath is the import path of the generated file's package;
	// entities declared there are referenced without a qualifier.
	SelfImportPath    string
	RuntimeImportPath string
	FuncName          string
	// EmbedDir, when set, embeds prebuilt ui documents from that directory
	// (relative to the generated file) and exposes them as BuiltHTML.
	EmbedDir string
}

func (o Options) withDefaults() Options {
	if o.Package == "" {
		o.Package = "main"
	}
	if o.RuntimeImportPath == "" {
		o.RuntimeImportPath = analyzer.RuntimeImportPath
	}
	if o.FuncName == "" {
		o.FuncName = DefaultFuncName
	}
	return o
}

// Generate renders the registration file for reg. Entities are emitted in
// registry order so identical registries produce identical bytes. Any
// problem fails the whole generation; no partial output is returned.
func Generate(reg domain.Registry, opts Options) ([]byte, error) {
	opts = opts.withDefaults()
	if errs := validate(reg, opts); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrGenerate, strings.Join(errs, "; "))
	}

	aliases := assignAliases(reg, opts)

	var buf bytes.Buffer
	buf.WriteString(Header + "\n\n")
	fmt.Fprintf(&buf, "package %s\n\n", opts.Package)

	buf.WriteString("import (\n")
	if opts.EmbedDir != "" {
		fmt.Fprintf(&buf, "\t%s\n\n", strconv.Quote(embedImportPath))
	}
	fmt.Fprintf(&buf, "\t%s\n\n", strconv.Quote(mcpImportPath))
	fmt.Fprintf(&buf, "\t%s\n", strconv.Quote(opts.RuntimeImportPath))
	if len(aliases.order) > 0 {
		buf.WriteString("\n")
	}
	for _, pkg := range aliases.order {
		fmt.Fprintf(&buf, "\t%s %s\n", aliases.byPath[pkg], strconv.Quote(pkg))
	}
	buf.WriteString(")\n\n")

	fmt.Fprintf(&buf, "// %s registers every discovered tool, resource and prompt on server.\n", opts.FuncName)
	fmt.Fprintf(&buf, "func %s(server *mcp.Server, html mcpapps.HTMLSource) error {\n", opts.FuncName)
	fmt.Fprintf(&buf, "\t%s := mcpapps.NewRegistrar(server, html)\n", registrarVarName)
	for _, kind := range []domain.Kind{domain.KindTool, domain.KindResource, domain.KindPrompt} {
		for _, entity := range reg.ByKind(kind) {
			fmt.Fprintf(&buf, "\t%s.%s(%s, %s)\n", registrarVarName, registrarMethod(entity), strconv.Quote(entity.Name), aliases.ref(entity))
		}
	}
	fmt.Fprintf(&buf, "\treturn %s.Err()\n}\n\n", registrarVarName)

	if opts.EmbedDir != "" {
		fmt.Fprintf(&buf, "//go:embed %s\n", opts.EmbedDir)
		buf.WriteString("var builtUI embed.FS\n\n")
		fmt.Fprintf(&buf, "// %s serves the ui documents prebuilt by mcpapps build.\n", DefaultHTMLVar)
		fmt.Fprintf(&buf, "var %s mcpapps.HTMLSource = mcpapps.EmbeddedHTML(builtUI, %s)\n", DefaultHTMLVar, strconv.Quote(opts.EmbedDir))
	} else {
		fmt.Fprintf(&buf, "// %s is nil until mcpapps build embeds prebuilt ui documents;\n", DefaultHTMLVar)
		buf.WriteString("// the runtime then builds them on demand.\n")
		fmt.Fprintf(&buf, "var %s mcpapps.HTMLSource\n", DefaultHTMLVar)
	}

	out, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: format: %v", domain.ErrGenerate, err)
	}
	return out, nil
}

func registrarMethod(entity domain.Entity) string {
	switch entity.Kind {
	case domain.KindTool:
		if entity.HasUI {
			return "AppTool"
		}
		return "Tool"
	case domain.KindResource:
		return "Resource"
	default:
		return "Prompt"
	}
}

func validate(reg domain.Registry, opts Options) []string {
	var errs []string
	if !isIdentifier(opts.Package) {
		errs = append(errs, fmt.Sprintf("package %q is not a valid identifier", opts.Package))
	}
	if strings.ContainsAny(opts.EmbedDir, " \t\"`") || strings.HasPrefix(opts.EmbedDir, "/") || strings.Contains(opts.EmbedDir, "..") {
		errs = append(errs, fmt.Sprintf("embed dir %q is not a valid embed pattern", opts.EmbedDir))
	}
	for _, dup := range reg.Duplicates() {
		errs = append(errs, fmt.Sprintf("duplicate %s name %q in %s", dup.Kind, dup.Name, strings.Join(dup.Paths, ", ")))
	}
	for _, kind := range []domain.Kind{domain.KindTool, domain.KindResource, domain.KindPrompt} {
		for _, entity := range reg.ByKind(kind) {
			switch {
			case strings.TrimSpace(entity.Name) == "":
				errs = append(errs, fmt.Sprintf("%s in %s has no name", kind, entity.RelativePath))
			case entity.Package == "":
				errs = append(errs, fmt.Sprintf("%s %q: package of %s is not resolvable", kind, entity.Name, entity.RelativePath))
			case !isIdentifier(entity.Symbol):
				errs = append(errs, fmt.Sprintf("%s %q: invalid symbol %q", kind, entity.Name, entity.Symbol))
			case entity.HasUI && entity.UIEntry == "":
				errs = append(errs, fmt.Sprintf("tool %q declares an app but has no ui source", entity.Name))
			}
			if entity.HasUI {
				if _, err := domain.ParseUIResourceURI(domain.UIResourceURI(entity.Name)); err != nil {
					errs = append(errs, fmt.Sprintf("tool %q cannot be published as a ui resource: %v", entity.Name, err))
				}
			}
		}
	}
	return errs
}

type aliasTable struct {
	self   string
	byPath map[string]string
	order  []string
}

func (a aliasTable) ref(entity domain.Entity) string {
	ref := entity.Symbol
	if entity.Package != a.self {
		ref = a.byPath[entity.Package] + "." + entity.Symbol
	}
	if entity.Pointer {
		return "*" + ref
	}
	return ref
}

// assignAliases gives every entity package a collision-free identifier
// derived from its project-relative directory, in registry order.
func assignAliases(reg domain.Registry, opts Options) aliasTable {
	table := aliasTable{self: opts.SelfImportPath, byPath: make(map[string]string)}
	used := map[string]struct{}{
		"mcp":            {},
		"mcpapps":        {},
		"embed":          {},
		"server":         {},
		"html":           {},
		"builtUI":        {},
		registrarVarName: {},
		opts.FuncName:    {},
		DefaultHTMLVar:   {},
	}

	dirs := make(map[string]string)
	var pkgs []string
	for _, kind := range []domain.Kind{domain.KindTool, domain.KindResource, domain.KindPrompt} {
		for _, entity := range reg.ByKind(kind) {
			if entity.Package == "" || entity.Package == table.self {
				continue
			}
			if _, ok := dirs[entity.Package]; !ok {
				dirs[entity.Package] = entity.PackageDir
				pkgs = append(pkgs, entity.Package)
			}
		}
	}

	for _, pkg := range pkgs {
		base := Identifier(dirs[pkg])
		if base == "" {
			base = Identifier(pkg[strings.LastIndex(pkg, "/")+1:])
		}
		alias := base
		for n := 2; ; n++ {
			if _, taken := used[alias]; !taken && !isReserved(alias) {
				break
			}
			alias = base + strconv.Itoa(n)
		}
		used[alias] = struct{}{}
		table.byPath[pkg] = alias
		table.order = append(table.order, pkg)
	}
	return table
}

// Identifier maps a slash-separated name to a camelCase Go identifier:
// slashes and other separators become underscores, then the result is camel-cased.
func Identifier(name string) string {
	var normalized strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			normalized.WriteRune(r)
		default:
			normalized.WriteByte('_')
		}
	}
	parts := strings.Split(normalized.String(), "_")
	var out strings.Builder
	for _, part := range parts {
		if part == "" {
			continue
		}
		if out.Len() == 0 {
			out.WriteString(strings.ToLower(part[:1]) + part[1:])
			continue
		}
		out.WriteString(strings.ToUpper(part[:1]) + part[1:])
	}
	ident := out.String()
	if ident != "" && ident[0] >= '0' && ident[0] <= '9' {
		ident = "p" + ident
	}
	return ident
}

func isIdentifier(s string) bool {
	if s == "" || isReserved(s) {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

var reserved = map[string]struct{}{
	"break": {}, "case": {}, "chan": {}, "const": {}, "continue": {}, "default": {},
	"defer": {}, "else": {}, "fallthrough": {}, "for": {}, "func": {}, "go": {},
	"goto": {}, "if": {}, "import": {}, "interface": {}, "map": {}, "package": {},
	"range": {}, "return": {}, "select": {}, "struct": {}, "switch": {}, "type": {},
	"var": {}, "error": {}, "string": {}, "any": {}, "nil": {}, "true": {}, "false": {},
}

func isReserved(s string) bool {
	_, ok := reserved[s]
	return ok
}
