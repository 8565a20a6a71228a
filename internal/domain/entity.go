package domain

import (
	"fmt"
	"strings"
)

// Kind identifies which server surface an entity is registered on.
type Kind string

const (
	KindTool     Kind = "tool"
	KindResource Kind = "resource"
	KindPrompt   Kind = "prompt"
)

func (k Kind) Valid() bool {
	switch k {
	case KindTool, KindResource, KindPrompt:
		return true
	default:
		return false
	}
}

// Framework is the UI target a tool's App is compiled for.
type Framework string

const (
	FrameworkReact  Framework = "react"
	FrameworkPreact Framework = "preact"
	FrameworkSolid  Framework = "solid"
	FrameworkHono   Framework = "hono"
	FrameworkDOM    Framework = "dom"
)

var frameworks = []Framework{FrameworkReact, FrameworkPreact, FrameworkSolid, FrameworkHono, FrameworkDOM}

func Frameworks() []Framework {
	out := make([]Framework, len(frameworks))
	copy(out, frameworks)
	return out
}

func ParseFramework(raw string) (Framework, error) {
	value := Framework(strings.ToLower(strings.TrimSpace(raw)))
	switch value {
	case "":
		return "", nil
	case "hono-jsx", "honojsx":
		return FrameworkHono, nil
	case "vanilla", "html":
		return FrameworkDOM, nil
	}
	for _, fw := range frameworks {
		if fw == value {
			return fw, nil
		}
	}
	return "", fmt.Errorf("unknown framework %q", raw)
}

// SchemaSources holds schema expressions exactly as written in the declaring file.
type SchemaSources struct {
	Input     string `json:"input,omitempty"`
	Output    string `json:"output,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

func (s SchemaSources) IsZero() bool {
	return s.Input == "" && s.Output == "" && s.Arguments == ""
}

// Entity is one discovered tool, resource or prompt declaration.
type Entity struct {
	Name         string        `json:"name"`
	Kind         Kind          `json:"kind"`
	SourcePath   string        `json:"sourcePath"`
	RelativePath string        `json:"relativePath"`
	Package      string        `json:"package,omitempty"`
	PackageDir   string        `json:"packageDir,omitempty"`
	Symbol       string        `json:"symbol,omitempty"`
	// Pointer marks a symbol holding a pointer to the declaration.
	Pointer      bool          `json:"pointer,omitempty"`
	HasUI        bool          `json:"hasUi"`
	UIEntry      string        `json:"uiEntry,omitempty"`
	Framework    Framework     `json:"framework,omitempty"`
	URI          string        `json:"uri,omitempty"`
	NameFromPath bool          `json:"nameFromPath,omitempty"`
	Schemas      SchemaSources `json:"rawSchemaSource,omitzero"`
}

func (e Entity) String() string {
	return fmt.Sprintf("%s %q (%s)", e.Kind, e.Name, e.RelativePath)
}
