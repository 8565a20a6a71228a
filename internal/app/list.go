package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/mcpapps/mcpapps/internal/domain"
)

// List output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
	FormatTOML  = "toml"
)

var ListFormats = []string{FormatTable, FormatJSON, FormatYAML, FormatTOML}

type ListEntry struct {
	Name       string `json:"name" yaml:"name" toml:"name"`
	Path       string `json:"path" yaml:"path" toml:"path"`
	Package    string `json:"package,omitempty" yaml:"package,omitempty" toml:"package,omitempty"`
	Symbol     string `json:"symbol,omitempty" yaml:"symbol,omitempty" toml:"symbol,omitempty"`
	UI         bool   `json:"ui" yaml:"ui" toml:"ui"`
	Framework  string `json:"framework,omitempty" yaml:"framework,omitempty" toml:"framework,omitempty"`
	URI        string `json:"uri,omitempty" yaml:"uri,omitempty" toml:"uri,omitempty"`
	IframePath string `json:"iframePath,omitempty" yaml:"iframePath,omitempty" toml:"iframePath,omitempty"`
}

type Listing struct {
	Tools     []ListEntry `json:"tools" yaml:"tools" toml:"tools"`
	Resources []ListEntry `json:"resources" yaml:"resources" toml:"resources"`
	Prompts   []ListEntry `json:"prompts" yaml:"prompts" toml:"prompts"`
}

func NewListing(reg domain.Registry, iframePath func(string) string) Listing {
	convert := func(entities []domain.Entity) []ListEntry {
		out := make([]ListEntry, 0, len(entities))
		for _, entity := range entities {
			entry := ListEntry{
				Name:    entity.Name,
				Path:    entity.RelativePath,
				Package: entity.Package,
				Symbol:  entity.Symbol,
				UI:      entity.HasUI,
				URI:     entity.URI,
			}
			if entity.HasUI {
				entry.Framework = string(entity.Framework)
				if iframePath != nil {
					entry.IframePath = iframePath(entity.Name)
				}
			}
			out = append(out, entry)
		}
		return out
	}
	return Listing{
		Tools:     convert(reg.Tools),
		Resources: convert(reg.Resources),
		Prompts:   convert(reg.Prompts),
	}
}

// List collects the project and writes its entities to w in format.
func (p *Project) List(ctx context.Context, w io.Writer, format string, iframePath func(string) string) error {
	reg, err := p.Collector.Collect(ctx)
	if err != nil {
		return err
	}
	return WriteListing(w, NewListing(reg, iframePath), format)
}

func WriteListing(w io.Writer, listing Listing, format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatTable:
		return writeTable(w, listing)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(listing)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(listing); err != nil {
			return err
		}
		return enc.Close()
	case FormatTOML:
		return toml.NewEncoder(w).Encode(listing)
	default:
		return fmt.Errorf("unknown format %q (want one of %s)", format, strings.Join(ListFormats, ", "))
	}
}

func writeTable(w io.Writer, listing Listing) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tNAME\tUI\tPATH")
	rows := []struct {
		kind    domain.Kind
		entries []ListEntry
	}{
		{domain.KindTool, listing.Tools},
		{domain.KindResource, listing.Resources},
		{domain.KindPrompt, listing.Prompts},
	}
	for _, row := range rows {
		for _, entry := range row.entries {
			ui := "-"
			if entry.UI {
				ui = entry.Framework
				if ui == "" {
					ui = "yes"
				}
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", row.kind, entry.Name, ui, entry.Path)
		}
	}
	return tw.Flush()
}
