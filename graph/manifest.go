package graph

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cespare/xxhash/v2"
)

type manifestFile struct {
	Name      string            `toml:"name"`
	Root      string            `toml:"root"`
	Variables map[string]string `toml:"variables"`
	Targets   []manifestTarget  `toml:"target"`
}

type manifestTarget struct {
	Path        string   `toml:"path"`
	Kind        string   `toml:"kind"`
	Flags       []string `toml:"flags"`
	Parent      string   `toml:"parent"`
	Depends     []string `toml:"depends"`
	Implicit    []string `toml:"implicit"`
	Description string   `toml:"description"`
	Compile     *Compile `toml:"compile"`
	Link        *Link    `toml:"link"`
	Copy        *Copy    `toml:"copy"`
}

// LoadManifest builds a graph from the TOML manifest at path. Target paths
// are relative to the manifest's directory.
func LoadManifest(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	g, err := ParseManifest(data, dir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// ParseManifest builds a graph from manifest text. Relative paths are
// joined to dir unless dir is empty. Dependencies that name no declared
// target become File targets.
func ParseManifest(data []byte, dir string) (*Graph, error) {
	var m manifestFile
	if _, err := toml.Decode(string(data), &m); err != nil {
		return nil, err
	}

	g := New(m.Name)
	g.Variables = m.Variables
	abs := func(p string) string {
		if dir == "" || filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		return filepath.Join(dir, p)
	}

	for i, mt := range m.Targets {
		if mt.Path == "" {
			return nil, fmt.Errorf("target %d: missing path", i+1)
		}
		if g.Target(abs(mt.Path)) != nil {
			return nil, fmt.Errorf("%s: declared twice", mt.Path)
		}
		t := g.Add(abs(mt.Path), KindGenerated)
		if mt.Kind != "" {
			if err := kindFilter.FromArchive(nil, mt.Kind, &t.Kind); err != nil {
				return nil, fmt.Errorf("%s: kind: %w", mt.Path, err)
			}
		}
		if len(mt.Flags) > 0 {
			if err := flagsFilter.FromArchive(nil, strings.Join(mt.Flags, "|"), &t.Flags); err != nil {
				return nil, fmt.Errorf("%s: flags: %w", mt.Path, err)
			}
		}
		if mt.Description != "" {
			t.SetDescription(mt.Description)
		}

		var err error
		switch {
		case mt.Compile != nil:
			t.Action, err = expandCompile(mt.Compile, g.Variables)
		case mt.Link != nil:
			t.Action, err = expandLink(mt.Link, g.Variables)
		case mt.Copy != nil:
			t.Action = mt.Copy
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", mt.Path, err)
		}
	}

	for _, mt := range m.Targets {
		t := g.Target(abs(mt.Path))
		for _, p := range mt.Depends {
			t.DependOn(g.Add(abs(p), KindFile))
		}
		for _, p := range mt.Implicit {
			t.DependImplicitlyOn(g.Add(abs(p), KindFile))
		}
		if mt.Parent != "" {
			t.Parent = g.Target(abs(mt.Parent))
			if t.Parent == nil {
				return nil, fmt.Errorf("%s: unknown parent %s", mt.Path, mt.Parent)
			}
		}
	}
	for _, t := range g.Targets {
		if t.Action != nil {
			t.Hash = xxhash.Sum64String(commandString(t.Action.Command(t)))
		}
	}

	if m.Root != "" {
		g.Root = g.Target(abs(m.Root))
		if g.Root == nil {
			return nil, fmt.Errorf("unknown root %s", m.Root)
		}
	}
	if _, err := g.Order(); err != nil {
		return nil, err
	}
	return g, nil
}

func expandCompile(c *Compile, vars map[string]string) (*Compile, error) {
	var err error
	out := &Compile{Defines: c.Defines}
	if out.Compiler, err = expand(c.Compiler, vars); err != nil {
		return nil, err
	}
	for _, f := range c.Flags {
		f, err = expand(f, vars)
		if err != nil {
			return nil, err
		}
		out.Flags = append(out.Flags, f)
	}
	return out, nil
}

func expandLink(l *Link, vars map[string]string) (*Link, error) {
	var err error
	out := &Link{Libraries: slices.Clone(l.Libraries)}
	if out.Linker, err = expand(l.Linker, vars); err != nil {
		return nil, err
	}
	return out, nil
}

// expand replaces ${name} and $name with manifest variables.
func expand(s string, vars map[string]string) (string, error) {
	var missing []string
	s = os.Expand(s, func(name string) string {
		v, ok := vars[name]
		if !ok {
			missing = append(missing, name)
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("undefined variable %s", strings.Join(missing, ", "))
	}
	return s, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
