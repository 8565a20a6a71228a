package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"go.uber.org/zap"

	"github.com/mcpapps/mcpapps/internal/domain"
)

type tsconfig struct {
	CompilerOptions struct {
		JSX             string `json:"jsx"`
		JSXImportSource string `json:"jsxImportSource"`
	} `json:"compilerOptions"`
}

// DetectFramework infers the default UI framework from tsconfig.json (which
// may contain comments and trailing commas). It returns "" when undecided.
func DetectFramework(root string, logger *zap.Logger) domain.Framework {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, name := range []string{"tsconfig.json", "jsconfig.json"} {
		data, err := os.ReadFile(filepath.Join(root, name))
		if err != nil {
			continue
		}
		var cfg tsconfig
		if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
			logger.Warn("parse tsconfig", zap.String("file", name), zap.Error(err))
			continue
		}
		if fw := frameworkForImportSource(cfg.CompilerOptions.JSXImportSource); fw != "" {
			return fw
		}
	}
	return ""
}

func frameworkForImportSource(source string) domain.Framework {
	source = strings.TrimSpace(source)
	switch {
	case source == "":
		return ""
	case source == "react":
		return domain.FrameworkReact
	case strings.HasPrefix(source, "preact"):
		return domain.FrameworkPreact
	case strings.HasPrefix(source, "solid-js"):
		return domain.FrameworkSolid
	case strings.HasPrefix(source, "hono"):
		return domain.FrameworkHono
	default:
		return ""
	}
}
