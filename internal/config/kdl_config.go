package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// LoadKDL attempts to load configuration from a `.packdeps.kdl` file in
// dir. Returns (nil, nil) when no such file exists — that is not an
// error, the caller falls back to Default().
//
// Example file:
//
//	schema_path "schema.json"
//	game "warhammer3" {
//	    archive "C:/SteamLibrary/.../data/data_1.pack"
//	    archive "C:/SteamLibrary/.../data/data_2.pack"
//	    data_path "C:/SteamLibrary/.../data"
//	    secondary_path "C:/Users/me/AppData/.../secondary"
//	    content_path "C:/SteamLibrary/.../workshop/content/1142710"
//	    assembly_kit_path "C:/SteamLibrary/.../assembly_kit"
//	    database_version "wh3"
//	    parent_pack "mymod.pack"
//	}
//	performance {
//	    parallel_file_workers 0
//	    build_timeout_sec 120
//	}
//	cache {
//	    path ".packdeps-cache"
//	    watch_mode false
//	}
func LoadKDL(dir string) (*Config, error) {
	kdlPath := filepath.Join(dir, ".packdeps.kdl")
	if !fileExists(kdlPath) {
		return nil, nil
	}

	content, err := os.ReadFile(kdlPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read .packdeps.kdl: %w", err)
	}

	cfg, err := parseKDL(string(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse .packdeps.kdl: %w", err)
	}

	if cfg.Cache.Path != "" && !filepath.IsAbs(cfg.Cache.Path) {
		cfg.Cache.Path = filepath.Clean(filepath.Join(dir, cfg.Cache.Path))
	}
	if cfg.SchemaPath != "" && !filepath.IsAbs(cfg.SchemaPath) {
		cfg.SchemaPath = filepath.Clean(filepath.Join(dir, cfg.SchemaPath))
	}

	return cfg, nil
}

func parseKDL(content string) (*Config, error) {
	cfg := Default()

	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse KDL config: %w", err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "schema_path":
			assignSimpleString(n, "schema_path", func(v string) { cfg.SchemaPath = v })
		case "game":
			if s, ok := firstStringArg(n); ok {
				cfg.Game.Key = s
			}
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "archive":
					if s, ok := firstStringArg(cn); ok {
						cfg.Game.ArchivePaths = append(cfg.Game.ArchivePaths, s)
					}
				case "data_path":
					assignSimpleString(cn, "data_path", func(v string) { cfg.Game.DataPath = v })
				case "secondary_path":
					assignSimpleString(cn, "secondary_path", func(v string) { cfg.Game.SecondaryPath = v })
				case "content_path":
					assignSimpleString(cn, "content_path", func(v string) { cfg.Game.ContentPath = v })
				case "assembly_kit_path":
					assignSimpleString(cn, "assembly_kit_path", func(v string) { cfg.Game.AssemblyKitPath = v })
				case "database_version":
					assignSimpleString(cn, "database_version", func(v string) { cfg.Game.DatabaseVersion = v })
				case "parent_pack":
					if s, ok := firstStringArg(cn); ok {
						cfg.Game.ParentPackNames = append(cfg.Game.ParentPackNames, s)
					}
				}
			}
		case "performance":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "parallel_file_workers":
					if v, ok := firstIntArg(cn); ok {
						cfg.Performance.ParallelFileWorkers = v
					}
				case "build_timeout_sec":
					if v, ok := firstIntArg(cn); ok {
						cfg.Performance.BuildTimeoutSec = v
					}
				}
			}
		case "cache":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "path":
					assignSimpleString(cn, "path", func(v string) { cfg.Cache.Path = v })
				case "watch_mode":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Cache.WatchMode = b
					}
				}
			}
		}
	}

	return cfg, nil
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

func assignSimpleString(n *document.Node, target string, set func(string)) {
	if nodeName(n) == target {
		if s, ok := firstStringArg(n); ok {
			set(s)
		}
	}
}
