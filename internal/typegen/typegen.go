// Package typegen renders TypeScript declarations for the inputs and outputs
// of collected tools, so UI code can type its props.
package typegen

import (
	"bytes"
	"encoding/json"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/mcpapps/mcpapps/internal/domain"
)

const header = "// Code generated by mcpapps sync. DO NOT EDIT.\n"

type Options struct {
	// Root resolves entity package directories when a source path is absent.
	Root   string
	Logger *zap.Logger
}

type typeKey struct {
	dir  string
	name string
}

type generator struct {
	logger   *zap.Logger
	root     string
	fset     *token.FileSet
	packages map[string]map[string]*ast.TypeSpec
	names    map[typeKey]string
	used     map[string]typeKey
	order    []typeKey
	bodies   map[typeKey]string
}

// Generate renders one declaration file for every tool whose schemas are
// declared with SchemaFor. Types are emitted in registry order, then in
// the order they are first referenced.
func Generate(reg domain.Registry, opts Options) ([]byte, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &generator{
		logger:   logger.Named("typegen"),
		root:     opts.Root,
		fset:     token.NewFileSet(),
		packages: make(map[string]map[string]*ast.TypeSpec),
		names:    make(map[typeKey]string),
		used:     make(map[string]typeKey),
		bodies:   make(map[typeKey]string),
	}

	type toolTypes struct {
		name          string
		input, output string
	}
	var tools []toolTypes
	for _, tool := range reg.Tools {
		entry := toolTypes{name: tool.Name}
		var err error
		if entry.input, err = g.schemaRef(tool, tool.Schemas.Input); err != nil {
			return nil, err
		}
		if entry.output, err = g.schemaRef(tool, tool.Schemas.Output); err != nil {
			return nil, err
		}
		if entry.input != "" || entry.output != "" {
			tools = append(tools, entry)
		}
	}

	var buf bytes.Buffer
	buf.WriteString(header)
	for _, key := range g.order {
		buf.WriteString("\n")
		buf.WriteString(g.bodies[key])
	}
	buf.WriteString("\nexport interface ToolTypes {\n")
	for _, tool := range tools {
		input, output := tool.input, tool.output
		if input == "" {
			input = "Record<string, never>"
		}
		if output == "" {
			output = "unknown"
		}
		fmt.Fprintf(&buf, "  %s: { input: %s; output: %s };\n", strconv.Quote(tool.name), input, output)
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

// schemaRef resolves a SchemaFor[T]() expression to the TypeScript name of T.
func (g *generator) schemaRef(entity domain.Entity, src string) (string, error) {
	if strings.TrimSpace(src) == "" {
		return "", nil
	}
	expr, err := parser.ParseExpr(src)
	if err != nil {
		return "", fmt.Errorf("%s: parse schema %q: %w", entity.RelativePath, src, err)
	}
	typeExpr, ok := schemaForType(expr)
	if !ok {
		g.logger.Debug("schema is not a SchemaFor call, skipping types", zap.String("entity", entity.Name), zap.String("schema", src))
		return "", nil
	}
	dir := filepath.Dir(entity.SourcePath)
	if entity.SourcePath == "" {
		dir = filepath.Join(g.root, filepath.FromSlash(entity.PackageDir))
	}
	return g.tsType(dir, typeExpr), nil
}

func schemaForType(expr ast.Expr) (ast.Expr, bool) {
	call, ok := expr.(*ast.CallExpr)
	if !ok || len(call.Args) != 0 {
		return nil, false
	}
	index, ok := call.Fun.(*ast.IndexExpr)
	if !ok {
		return nil, false
	}
	switch fn := index.X.(type) {
	case *ast.Ident:
		return index.Index, fn.Name == "SchemaFor"
	case *ast.SelectorExpr:
		return index.Index, fn.Sel.Name == "SchemaFor"
	default:
		return nil, false
	}
}

func (g *generator) typesIn(dir string) map[string]*ast.TypeSpec {
	if types, ok := g.packages[dir]; ok {
		return types
	}
	types := make(map[string]*ast.TypeSpec)
	g.packages[dir] = types
	entries, err := os.ReadDir(dir)
	if err != nil {
		g.logger.Warn("read package dir", zap.String("dir", dir), zap.Error(err))
		return types
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(g.fset, filepath.Join(dir, name), nil, parser.SkipObjectResolution)
		if err != nil {
			g.logger.Warn("parse file", zap.String("file", name), zap.Error(err))
			continue
		}
		for _, decl := range file.Decls {
			gen, ok := decl.(*ast.GenDecl)
			if !ok || gen.Tok != token.TYPE {
				continue
			}
			for _, spec := range gen.Specs {
				if ts, ok := spec.(*ast.TypeSpec); ok && ts.TypeParams == nil {
					types[ts.Name.Name] = ts
				}
			}
		}
	}
	return types
}

func (g *generator) tsType(dir string, expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		if builtin, ok := builtinType(t.Name); ok {
			return builtin
		}
		return g.named(dir, t.Name)
	case *ast.StarExpr:
		return g.tsType(dir, t.X)
	case *ast.ArrayType:
		if ident, ok := t.Elt.(*ast.Ident); ok && ident.Name == "byte" {
			return "string"
		}
		elem := g.tsType(dir, t.Elt)
		if strings.ContainsAny(elem, " |") {
			elem = "(" + elem + ")"
		}
		return elem + "[]"
	case *ast.MapType:
		return "Record<string, " + g.tsType(dir, t.Value) + ">"
	case *ast.StructType:
		return g.object(dir, t, "")
	case *ast.SelectorExpr:
		if pkg, ok := t.X.(*ast.Ident); ok {
			switch pkg.Name + "." + t.Sel.Name {
			case "time.Time":
				return "string"
			case "time.Duration":
				return "number"
			}
		}
		return "unknown"
	default:
		return "unknown"
	}
}

func builtinType(name string) (string, bool) {
	switch name {
	case "string":
		return "string", true
	case "bool":
		return "boolean", true
	case "int", "int8", "int16", "int32", "int64",
		"uint", "uint8", "uint16", "uint32", "uint64",
		"float32", "float64", "byte", "rune":
		return "number", true
	case "any", "error":
		return "unknown", true
	default:
		return "", false
	}
}

// named emits the declaration of a package-level type once and returns
// its TypeScript name.
func (g *generator) named(dir, name string) string {
	key := typeKey{dir: dir, name: name}
	if ts, ok := g.names[key]; ok {
		return ts
	}
	spec, ok := g.typesIn(dir)[name]
	if !ok {
		return "unknown"
	}
	tsName := name
	if other, taken := g.used[tsName]; taken && other != key {
		tsName = filepath.Base(dir) + "_" + name
		for i := 2; ; i++ {
			if _, taken := g.used[tsName]; !taken {
				break
			}
			tsName = fmt.Sprintf("%s_%s%d", filepath.Base(dir), name, i)
		}
	}
	g.names[key] = tsName
	g.used[tsName] = key
	g.order = append(g.order, key)

	var body string
	if st, ok := spec.Type.(*ast.StructType); ok {
		body = "export interface " + tsName + " " + g.object(dir, st, "") + "\n"
	} else {
		body = "export type " + tsName + " = " + g.tsType(dir, spec.Type) + ";\n"
	}
	g.bodies[key] = body
	return tsName
}

type field struct {
	name     string
	optional bool
	ts       string
}

func (g *generator) object(dir string, st *ast.StructType, indent string) string {
	fields := g.fields(dir, st, map[string]bool{})
	if len(fields) == 0 {
		return "{}"
	}
	var b strings.Builder
	b.WriteString("{\n")
	for _, f := range fields {
		name := f.name
		if !isTSIdentifier(name) {
			name = strconv.Quote(name)
		}
		if f.optional {
			name += "?"
		}
		fmt.Fprintf(&b, "%s  %s: %s;\n", indent, name, f.ts)
	}
	b.WriteString(indent + "}")
	return b.String()
}

func (g *generator) fields(dir string, st *ast.StructType, seen map[string]bool) []field {
	var out []field
	for _, f := range st.Fields.List {
		jsonName, opts := jsonTag(f.Tag)
		if jsonName == "-" && opts == "" {
			continue
		}
		if len(f.Names) == 0 {
			if jsonName == "" {
				if embedded := g.embedded(dir, f.Type, seen); embedded != nil {
					out = append(out, embedded...)
				}
				continue
			}
			name := embeddedName(f.Type)
			if name == "" || !ast.IsExported(name) {
				continue
			}
			out = append(out, g.field(dir, f, jsonName, opts))
			continue
		}
		for _, ident := range f.Names {
			if !ident.IsExported() {
				continue
			}
			name := jsonName
			if name == "" {
				name = ident.Name
			}
			out = append(out, g.field(dir, f, name, opts))
		}
	}
	return out
}

func (g *generator) field(dir string, f *ast.Field, name, opts string) field {
	_, pointer := f.Type.(*ast.StarExpr)
	optional := pointer || strings.Contains(opts, "omitempty") || strings.Contains(opts, "omitzero")
	return field{name: name, optional: optional, ts: g.tsType(dir, f.Type)}
}

// embedded flattens the fields of an embedded local struct, the way
// encoding/json promotes them.
func (g *generator) embedded(dir string, expr ast.Expr, seen map[string]bool) []field {
	if star, ok := expr.(*ast.StarExpr); ok {
		expr = star.X
	}
	ident, ok := expr.(*ast.Ident)
	if !ok || seen[ident.Name] {
		return nil
	}
	spec, ok := g.typesIn(dir)[ident.Name]
	if !ok {
		return nil
	}
	st, ok := spec.Type.(*ast.StructType)
	if !ok {
		return nil
	}
	seen[ident.Name] = true
	return g.fields(dir, st, seen)
}

func embeddedName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return embeddedName(t.X)
	case *ast.Ident:
		return t.Name
	case *ast.SelectorExpr:
		return t.Sel.Name
	default:
		return ""
	}
}

func jsonTag(tag *ast.BasicLit) (string, string) {
	if tag == nil {
		return "", ""
	}
	raw, err := strconv.Unquote(tag.Value)
	if err != nil {
		return "", ""
	}
	value, ok := reflect.StructTag(raw).Lookup("json")
	if !ok {
		return "", ""
	}
	name, opts, _ := strings.Cut(value, ",")
	return name, opts
}

func isTSIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_' || r == '$' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// Manifest renders the registry as indented JSON with a trailing newline.
// Paths are made relative to root so the file is stable across checkouts.
func Manifest(reg domain.Registry, root string) ([]byte, error) {
	reg = reg.Clone()
	for _, list := range [][]domain.Entity{reg.Tools, reg.Resources, reg.Prompts} {
		for i := range list {
			list[i].SourcePath = ""
			if list[i].UIEntry != "" && root != "" {
				if rel, err := filepath.Rel(root, list[i].UIEntry); err == nil {
					list[i].UIEntry = filepath.ToSlash(rel)
				}
			}
		}
	}
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return append(data, '\n'), nil
}
