package buildconfig

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// ErrInvalidProject is returned when project inputs cannot produce a usable configuration.
var ErrInvalidProject = errors.New("invalid project")

const (
	defaultSourceDir = "src"
	defaultOutputDir = "dist"
	defaultTemplate  = "./index.html"
	defaultFavicon   = "favicon.ico"
	defaultDevPort   = 4200
)

// Project holds the static inputs of a resolve. Root is expected to be absolute;
// the resolver joins paths onto it without touching the filesystem.
type Project struct {
	Root       string              `json:"root" yaml:"root"`
	SourceDir  string              `json:"source_dir" yaml:"source_dir"`
	OutputDir  string              `json:"output_dir" yaml:"output_dir"`
	Template   string              `json:"template" yaml:"template"`
	Favicon    string              `json:"favicon" yaml:"favicon"`
	Entry      map[string][]string `json:"entry" yaml:"entry"`
	Extensions []string            `json:"extensions" yaml:"extensions"`
	// Aliases map an import prefix to a path relative to Root.
	Aliases map[string]string `json:"aliases" yaml:"aliases"`
	DevPort int               `json:"dev_port" yaml:"dev_port"`
}

// DefaultProject returns the stock web application layout rooted at root.
func DefaultProject(root string) Project {
	return Project{
		Root:      root,
		SourceDir: defaultSourceDir,
		OutputDir: defaultOutputDir,
		Template:  defaultTemplate,
		Favicon:   defaultFavicon,
		Entry: map[string][]string{
			"main":      {"@babel/polyfill", "./index.jsx"},
			"analytics": {"./analytics.ts"},
		},
		Extensions: []string{".js", ".json", ".png"},
		Aliases: map[string]string{
			"@models": "src/models",
			"@":       "src",
		},
		DevPort: defaultDevPort,
	}
}

// Validate checks that p can be resolved.
func (p Project) Validate() error {
	if len(p.Entry) == 0 {
		return fmt.Errorf("%w: at least one entry chunk is required", ErrInvalidProject)
	}
	for name, modules := range p.Entry {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: entry chunk name cannot be empty", ErrInvalidProject)
		}
		if len(modules) == 0 {
			return fmt.Errorf("%w: entry chunk %q has no modules", ErrInvalidProject, name)
		}
	}
	for _, ext := range p.Extensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return fmt.Errorf("%w: extension %q must start with a dot", ErrInvalidProject, ext)
		}
	}
	if p.DevPort < 1 || p.DevPort > 65535 {
		return fmt.Errorf("%w: dev server port %d out of range", ErrInvalidProject, p.DevPort)
	}
	return nil
}

// Clone returns a deep copy of p.
func (p Project) Clone() Project {
	out := p
	out.Entry = cloneEntry(p.Entry)
	out.Extensions = slices.Clone(p.Extensions)
	out.Aliases = maps.Clone(p.Aliases)
	return out
}

func cloneEntry(src map[string][]string) map[string][]string {
	if src == nil {
		return nil
	}
	out := make(map[string][]string, len(src))
	for name, modules := range src {
		out[name] = slices.Clone(modules)
	}
	return out
}
