package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// loadKDLInto parses the KDL document at path and merges its settings onto
// cfg, following the block layout the teacher's .lci.kdl uses:
//
//	project { root "."; name "myproject" }
//	index {
//	    languages "go" "typescript" "python" "cpp"
//	    max_file_size_mb 10
//	    max_concurrent_files 8
//	    force false
//	    respect_gitignore true
//	    include "src/**"
//	    exclude "**/vendor/**" "**/node_modules/**"
//	}
//	store {
//	    database_path ".sentinel/index.db"
//	    cache_strategy "moderate"
//	}
func loadKDLInto(cfg *Config, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	doc, err := kdl.Parse(strings.NewReader(string(content)))
	if err != nil {
		return fmt.Errorf("parsing KDL: %w", err)
	}

	dir := filepath.Dir(path)

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "project":
			for _, cn := range n.Children {
				assignSimpleString(cn, "root", func(v string) { cfg.Project.Root = v })
				assignSimpleString(cn, "name", func(v string) { cfg.Project.Name = v })
			}
		case "index":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "languages":
					if v := collectStringArgs(cn); len(v) > 0 {
						cfg.Index.Languages = v
					}
				case "include":
					if v := collectStringArgs(cn); len(v) > 0 {
						cfg.Index.Include = v
					}
				case "exclude":
					if v := collectStringArgs(cn); len(v) > 0 {
						cfg.Index.Exclude = v
					}
				case "max_file_size_mb":
					if v, ok := firstIntArg(cn); ok {
						cfg.Index.MaxFileSizeMB = int64(v)
					}
				case "max_concurrent_files":
					if v, ok := firstIntArg(cn); ok {
						cfg.Index.MaxConcurrentFiles = v
					}
				case "parser_file_timeout_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Index.ParserFileTimeoutMS = v
					}
				case "force":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Index.Force = b
					}
				case "respect_gitignore":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Index.RespectGitignore = b
					}
				case "follow_symlinks":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Index.FollowSymlinks = b
					}
				}
			}
		case "store":
			for _, cn := range n.Children {
				assignSimpleString(cn, "database_path", func(v string) { cfg.Store.DatabasePath = v })
				assignSimpleString(cn, "cache_strategy", func(v string) { cfg.Store.CacheStrategy = v })
			}
		}
	}

	// A relative root in the KDL file is resolved against the directory
	// containing the config file, not the process cwd.
	if cfg.Project.Root != "" && !filepath.IsAbs(cfg.Project.Root) {
		cfg.Project.Root = filepath.Clean(filepath.Join(dir, cfg.Project.Root))
	}
	if cfg.Store.DatabasePath != "" && !filepath.IsAbs(cfg.Store.DatabasePath) {
		cfg.Store.DatabasePath = filepath.Join(cfg.Project.Root, cfg.Store.DatabasePath)
	}

	return nil
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

func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 && len(n.Children) > 0 {
		out = make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

func assignSimpleString(n *document.Node, target string, set func(string)) {
	if nodeName(n) == target {
		if s, ok := firstStringArg(n); ok {
			set(s)
		}
	}
}
